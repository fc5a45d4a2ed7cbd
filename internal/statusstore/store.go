package statusstore

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"conductor/internal/db"
)

// Pty is the stable identity of a tracked pane. Replaced wholesale on every
// upsert so stale worker bindings never linger.
type Pty struct {
	ID          string `gorm:"column:id;primaryKey"`
	WorkerID    string `gorm:"column:worker_id;not null;default:''"`
	TmuxSession string `gorm:"column:tmux_session;not null;default:''"`
	TmuxWindow  string `gorm:"column:tmux_window;not null;default:''"`
	TmuxPane    string `gorm:"column:tmux_pane;not null;default:''"`
	Cwd         string `gorm:"column:cwd;not null;default:''"`
	CLIType     string `gorm:"column:cli_type;not null;default:''"`
}

func (Pty) TableName() string { return "ptys" }

// Status is the latest state snapshot for a pane. Timestamps are float
// seconds because the watcher polls sub-second.
type Status struct {
	ID               string  `gorm:"column:id;primaryKey"`
	State            string  `gorm:"column:state;not null"`
	Summary          string  `gorm:"column:summary;not null;default:''"`
	ActionsNeeded    string  `gorm:"column:actions_needed;not null;default:''"`
	LastSnapshotHash string  `gorm:"column:last_snapshot_hash;not null;default:''"`
	LastChangeTs     float64 `gorm:"column:last_change_ts;not null;default:0"`
	LastPolledTs     float64 `gorm:"column:last_polled_ts;not null;default:0"`
	StableCount      int     `gorm:"column:stable_count;not null;default:0"`
}

func (Status) TableName() string { return "status" }

// HistoryEntry is one append-only row of the state stream.
type HistoryEntry struct {
	Seq     int64   `gorm:"column:seq;primaryKey;autoIncrement"`
	ID      string  `gorm:"column:id;not null"`
	Ts      float64 `gorm:"column:ts;not null"`
	State   string  `gorm:"column:state;not null"`
	Summary string  `gorm:"column:summary;not null;default:''"`
}

func (HistoryEntry) TableName() string { return "status_history" }

// Store persists watcher output to its own sqlite file. WAL journaling lets
// CLI readers run while the watcher writes.
type Store struct {
	gdb *gorm.DB
}

func Open(path string) (*Store, error) {
	gdb, err := db.OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open status store: %w", err)
	}
	if err := gdb.AutoMigrate(&Pty{}, &Status{}, &HistoryEntry{}); err != nil {
		return nil, fmt.Errorf("migrate status store: %w", err)
	}
	if err := gdb.Exec(`CREATE INDEX IF NOT EXISTS idx_status_history_id_ts ON status_history(id, ts);`).Error; err != nil {
		return nil, err
	}
	return &Store{gdb: gdb}, nil
}

func (s *Store) Close() error {
	return db.Close(s.gdb)
}

// Upsert atomically replaces the pty and status rows for one pane and
// appends one history row.
func (s *Store) Upsert(pty Pty, status Status) error {
	status.ID = pty.ID
	return s.gdb.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&pty).Error; err != nil {
			return err
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&status).Error; err != nil {
			return err
		}
		return tx.Create(&HistoryEntry{
			ID:      pty.ID,
			Ts:      status.LastPolledTs,
			State:   status.State,
			Summary: status.Summary,
		}).Error
	})
}

// StatusRow is a status row joined with its pty metadata, as served to the
// CLI.
type StatusRow struct {
	PaneID           string  `gorm:"column:id" json:"pane_id"`
	WorkerID         string  `gorm:"column:worker_id" json:"worker_id"`
	CLIType          string  `gorm:"column:cli_type" json:"cli_type"`
	Cwd              string  `gorm:"column:cwd" json:"cwd"`
	TmuxSession      string  `gorm:"column:tmux_session" json:"tmux_session"`
	TmuxWindow       string  `gorm:"column:tmux_window" json:"tmux_window"`
	TmuxPane         string  `gorm:"column:tmux_pane" json:"tmux_pane"`
	TmuxTarget       string  `gorm:"-" json:"tmux_target"`
	State            string  `gorm:"column:state" json:"state"`
	Summary          string  `gorm:"column:summary" json:"summary"`
	ActionsNeeded    string  `gorm:"column:actions_needed" json:"actions_needed"`
	LastSnapshotHash string  `gorm:"column:last_snapshot_hash" json:"last_snapshot_hash"`
	LastChangeTs     float64 `gorm:"column:last_change_ts" json:"last_change_ts"`
	LastPolledTs     float64 `gorm:"column:last_polled_ts" json:"last_polled_ts"`
	StableCount      int     `gorm:"column:stable_count" json:"stable_count"`
}

// ListStatus returns the joined status rows, most recently polled first.
// minPolledTs, when non-nil, drops panes last polled before it.
func (s *Store) ListStatus(minPolledTs *float64) ([]StatusRow, error) {
	query := `
		SELECT s.*, p.worker_id, p.tmux_session, p.tmux_window, p.tmux_pane, p.cwd, p.cli_type
		FROM status s
		LEFT JOIN ptys p ON s.id = p.id`
	args := []any{}
	if minPolledTs != nil {
		query += ` WHERE s.last_polled_ts >= ?`
		args = append(args, *minPolledTs)
	}
	query += ` ORDER BY s.last_polled_ts DESC`

	var rows []StatusRow
	if err := s.gdb.Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].TmuxTarget = paneTarget(rows[i].TmuxSession, rows[i].TmuxWindow, rows[i].TmuxPane)
	}
	return rows, nil
}

// HistoryRow is one history entry joined with pty metadata.
type HistoryRow struct {
	PaneID      string  `gorm:"column:id" json:"pane_id"`
	TmuxTarget  string  `gorm:"-" json:"tmux_target"`
	WorkerID    string  `gorm:"column:worker_id" json:"worker_id"`
	CLIType     string  `gorm:"column:cli_type" json:"cli_type"`
	Cwd         string  `gorm:"column:cwd" json:"cwd"`
	TmuxSession string  `gorm:"column:tmux_session" json:"tmux_session"`
	TmuxWindow  string  `gorm:"column:tmux_window" json:"tmux_window"`
	TmuxPane    string  `gorm:"column:tmux_pane" json:"tmux_pane"`
	Ts          float64 `gorm:"column:ts" json:"ts"`
	State       string  `gorm:"column:state" json:"state"`
	Summary     string  `gorm:"column:summary" json:"summary"`
}

// TailHistory returns the newest limit rows for a pane in chronological
// order.
func (s *Store) TailHistory(paneID string, limit int) ([]HistoryRow, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []HistoryRow
	err := s.gdb.Raw(`
		SELECT h.id, h.ts, h.state, h.summary,
		       p.worker_id, p.tmux_session, p.tmux_window, p.tmux_pane, p.cwd, p.cli_type
		FROM status_history h
		LEFT JOIN ptys p ON h.id = p.id
		WHERE h.id = ?
		ORDER BY h.ts DESC
		LIMIT ?`, paneID, limit).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	for i := range rows {
		rows[i].TmuxTarget = paneTarget(rows[i].TmuxSession, rows[i].TmuxWindow, rows[i].TmuxPane)
	}
	return rows, nil
}

func paneTarget(session, window, pane string) string {
	if session == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s.%s", session, window, pane)
}

// FormatTimestamp renders a float unix timestamp for table output.
func FormatTimestamp(ts float64) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(int64(ts), 0).Format("2006-01-02T15:04:05")
}

// MinTimestampForWindow converts a --since window in seconds to the oldest
// admissible polled timestamp. nil means no filtering.
func MinTimestampForWindow(windowSeconds *float64) *float64 {
	if windowSeconds == nil {
		return nil
	}
	cutoff := float64(time.Now().UnixNano())/float64(time.Second) - *windowSeconds
	return &cutoff
}
