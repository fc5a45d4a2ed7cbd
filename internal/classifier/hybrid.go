package classifier

import (
	"context"
	"log/slog"
)

// remoteClassifier is what the hybrid tries before regex. Satisfied by
// OpenRouterClassifier; tests substitute fakes.
type remoteClassifier interface {
	Classify(ctx context.Context, snapshot string, meta Meta) (Result, error)
}

// Hybrid tries the remote classifier when one is configured and falls back
// to the regex cues on any failure. Classify never returns an error.
type Hybrid struct {
	pack   Pack
	regex  *RegexClassifier
	remote remoteClassifier
	logger *slog.Logger
}

func NewHybrid(pack Pack, apiKey, model string, logger *slog.Logger) *Hybrid {
	h := &Hybrid{
		pack:   pack,
		regex:  NewRegexClassifier(pack),
		logger: logger,
	}
	if apiKey != "" {
		h.remote = NewOpenRouterClassifier(apiKey, model)
	}
	return h
}

// Pack exposes the loaded pack so the watcher can read stability_polls.
func (h *Hybrid) Pack() Pack {
	return h.pack
}

func (h *Hybrid) Classify(ctx context.Context, snapshot string, meta Meta) Result {
	if h.remote != nil {
		result, err := h.remote.Classify(ctx, snapshot, meta)
		if err == nil {
			return result
		}
		h.logger.Warn("LLM classification failed, using regex fallback", "pane_id", meta.PaneID, "err", err)
	}
	return h.regex.Classify(snapshot)
}
