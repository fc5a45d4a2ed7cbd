package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"conductor/internal/classifier"
	"conductor/internal/config"
	"conductor/internal/statusstore"
	"conductor/internal/term"
	"conductor/internal/tmux"
)

// PaneState is the in-memory stability tracker for one pane. A hash change
// resets the stable count and forces BUSY; classification only runs once the
// count crosses the pack threshold and the hash was not classified before.
type PaneState struct {
	LastSnapshotHash   string
	LastClassifiedHash string
	StableCount        int
	LastChangeTs       float64
	State              string
	Summary            string
	ActionsNeeded      string
	Threshold          int
}

// paneSource is the slice of the tmux adapter the watcher needs.
type paneSource interface {
	ListAllPanes() ([]tmux.PaneInfo, error)
	CapturePane(target string) (string, error)
}

// paneClassifier is satisfied by classifier.Hybrid.
type paneClassifier interface {
	Classify(ctx context.Context, snapshot string, meta classifier.Meta) classifier.Result
	Pack() classifier.Pack
}

// Watcher polls every pane belonging to a known worker, tracks snapshot
// stability, classifies stable screens and persists the result.
type Watcher struct {
	interval         time.Duration
	workspaceRoot    string
	defaultCLIType   string
	defaultStability int

	panes  paneSource
	store  *statusstore.Store
	logger *slog.Logger

	state       map[string]*PaneState
	classifiers map[string]paneClassifier
	emulator    *term.Emulator

	classifierFor func(cliType string) paneClassifier
	now           func() float64
}

func New(cfg config.Config, panes paneSource, store *statusstore.Store, logger *slog.Logger) *Watcher {
	w := &Watcher{
		interval:         cfg.WatcherInterval,
		workspaceRoot:    cfg.WorkspaceRoot,
		defaultCLIType:   cfg.DefaultCLIType,
		defaultStability: cfg.WatcherDefaultStability,
		panes:            panes,
		store:            store,
		logger:           logger,
		state:            map[string]*PaneState{},
		classifiers:      map[string]paneClassifier{},
		emulator:         term.NewEmulator(0, 0),
		now: func() float64 {
			return float64(time.Now().UnixNano()) / float64(time.Second)
		},
	}
	w.classifierFor = func(cliType string) paneClassifier {
		pack := classifier.LoadPack(cfg.ClassifierPacksDir, cliType, cfg.WatcherDefaultStability, logger)
		return classifier.NewHybrid(pack, cfg.OpenRouterAPIKey, cfg.OpenRouterModel, logger)
	}
	return w
}

// Run polls until ctx is cancelled, then closes the status store.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("starting PTY watcher loop", "interval", w.interval.String())
	defer func() {
		_ = w.store.Close()
	}()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		w.PollOnce(ctx)
		select {
		case <-ctx.Done():
			w.logger.Info("PTY watcher stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// PollOnce runs one discovery/capture/classify/persist cycle.
func (w *Watcher) PollOnce(ctx context.Context) {
	workers := LoadWorkers(w.workspaceRoot, w.defaultCLIType)
	panes, err := w.panes.ListAllPanes()
	if err != nil {
		w.logger.Warn("failed to list tmux panes", "err", err)
		return
	}
	now := w.now()
	seen := map[string]struct{}{}
	for _, pane := range panes {
		worker, ok := workers[pane.SessionName]
		if !ok {
			continue
		}
		seen[pane.PaneID] = struct{}{}
		w.processPane(ctx, pane, worker, now)
	}
	for paneID := range w.state {
		if _, ok := seen[paneID]; !ok {
			w.logger.Info("pane disappeared, removing cache entry", "pane_id", paneID)
			delete(w.state, paneID)
		}
	}
}

func (w *Watcher) processPane(ctx context.Context, pane tmux.PaneInfo, worker WorkerMeta, ts float64) {
	text, err := w.panes.CapturePane(pane.Target())
	if err != nil {
		w.logger.Warn("tmux capture-pane failed, skipping pane this cycle", "target", pane.Target(), "err", err)
		return
	}
	snapshot := w.emulator.Render(text)
	sum := sha256.Sum256([]byte(snapshot))
	snapshotHash := hex.EncodeToString(sum[:])

	paneState, ok := w.state[pane.PaneID]
	if !ok {
		paneState = &PaneState{
			State:        classifier.StateUnknown,
			LastChangeTs: ts,
			Threshold:    w.classifier(worker.CLIType).Pack().StabilityPolls,
		}
		w.state[pane.PaneID] = paneState
	}

	if paneState.LastSnapshotHash != snapshotHash {
		paneState.LastSnapshotHash = snapshotHash
		paneState.StableCount = 0
		paneState.LastChangeTs = ts
		paneState.State = classifier.StateBusy
		paneState.Summary = "Pane output changing"
		paneState.ActionsNeeded = ""
	} else {
		paneState.StableCount++
		threshold := paneState.Threshold
		if threshold <= 0 {
			threshold = w.defaultStability
		}
		if paneState.StableCount >= threshold && paneState.LastClassifiedHash != snapshotHash {
			result := w.classifier(worker.CLIType).Classify(ctx, snapshot, classifier.Meta{
				WorkerID: worker.WorkerID,
				PaneID:   pane.PaneID,
				CLIType:  worker.CLIType,
			})
			paneState.State = result.State
			paneState.Summary = result.Summary
			paneState.ActionsNeeded = result.ActionsNeeded
			paneState.LastClassifiedHash = snapshotHash
		}
	}
	w.writeStatus(worker, pane, paneState, snapshotHash, ts)
}

func (w *Watcher) writeStatus(worker WorkerMeta, pane tmux.PaneInfo, paneState *PaneState, snapshotHash string, ts float64) {
	payload := map[string]any{
		"worker_id":      worker.WorkerID,
		"pane_id":        pane.PaneID,
		"tmux_session":   pane.SessionName,
		"tmux_target":    pane.Target(),
		"state":          paneState.State,
		"summary":        paneState.Summary,
		"actions_needed": nullable(paneState.ActionsNeeded),
		"last_change_ts": paneState.LastChangeTs,
		"last_polled_ts": ts,
	}
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err == nil {
		statusPath := filepath.Join(worker.Workspace, "status.json")
		if err := os.WriteFile(statusPath, raw, 0o644); err != nil {
			w.logger.Warn("failed to write status file", "path", statusPath, "err", err)
		}
	}
	err = w.store.Upsert(
		statusstore.Pty{
			ID:          pane.PaneID,
			WorkerID:    worker.WorkerID,
			TmuxSession: pane.SessionName,
			TmuxWindow:  pane.WindowIndex,
			TmuxPane:    pane.PaneIndex,
			Cwd:         pane.CurrentPath,
			CLIType:     worker.CLIType,
		},
		statusstore.Status{
			State:            paneState.State,
			Summary:          paneState.Summary,
			ActionsNeeded:    paneState.ActionsNeeded,
			LastSnapshotHash: snapshotHash,
			LastChangeTs:     paneState.LastChangeTs,
			LastPolledTs:     ts,
			StableCount:      paneState.StableCount,
		},
	)
	if err != nil {
		w.logger.Warn("status store upsert failed", "pane_id", pane.PaneID, "err", err)
	}
}

func (w *Watcher) classifier(cliType string) paneClassifier {
	if cliType == "" {
		cliType = w.defaultCLIType
	}
	c, ok := w.classifiers[cliType]
	if !ok {
		c = w.classifierFor(cliType)
		w.classifiers[cliType] = c
	}
	return c
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
