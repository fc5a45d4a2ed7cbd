package classifier

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
)

// Pack bundles the regex cues and stability parameters for one CLI type.
// Pack files live at <packs_dir>/<cli_type>.yml and hold a JSON object.
type Pack struct {
	Name           string
	StabilityPolls int
	Idle           []*regexp.Regexp
	Busy           []*regexp.Regexp
	Confirm        []*regexp.Regexp
	Error          []*regexp.Regexp
}

type packFile struct {
	StabilityPolls            int      `json:"stability_polls"`
	IdlePatterns              []string `json:"idle_patterns"`
	BusyPatterns              []string `json:"busy_patterns"`
	NeedsConfirmationPatterns []string `json:"needs_confirmation_patterns"`
	ErrorPatterns             []string `json:"error_patterns"`
}

// LoadPack reads the pack for cliType. A missing or unreadable file yields
// an empty pack with the default stability threshold so the watcher keeps
// running with default-READY behavior.
func LoadPack(packsDir, cliType string, defaultStability int, logger *slog.Logger) Pack {
	empty := Pack{Name: cliType, StabilityPolls: defaultStability}
	path := filepath.Join(packsDir, cliType+".yml")
	raw, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("no classifier pack found, falling back to defaults", "cli_type", cliType, "path", path)
		return empty
	}
	var pf packFile
	if err := json.Unmarshal(raw, &pf); err != nil {
		logger.Error("failed to parse classifier pack", "path", path, "err", err)
		return empty
	}
	polls := pf.StabilityPolls
	if polls <= 0 {
		polls = defaultStability
	}
	return Pack{
		Name:           cliType,
		StabilityPolls: polls,
		Idle:           compilePatterns(pf.IdlePatterns, path, logger),
		Busy:           compilePatterns(pf.BusyPatterns, path, logger),
		Confirm:        compilePatterns(pf.NeedsConfirmationPatterns, path, logger),
		Error:          compilePatterns(pf.ErrorPatterns, path, logger),
	}
}

// compilePatterns compiles each pattern case-insensitive and multiline.
// A pattern that fails to compile is skipped, not fatal.
func compilePatterns(patterns []string, path string, logger *slog.Logger) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile("(?im)" + pattern)
		if err != nil {
			logger.Error("invalid classifier pattern", "path", path, "pattern", pattern, "err", err)
			continue
		}
		out = append(out, re)
	}
	return out
}
