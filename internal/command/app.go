package command

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"conductor/internal/config"
	"conductor/internal/db"
	"conductor/internal/statusstore"
)

type Deps struct {
	LoadConfig   func() (config.Config, error)
	RunServe     func(context.Context, config.Config) error
	RunMigrateUp func(config.Config) error
	RunWatcher   func(context.Context, config.Config) error
	CreateWorker func(context.Context, config.Config, string) (*db.Worker, error)
	ListWorkers  func(config.Config) ([]db.Worker, error)
	StatusRows   func(config.Config, *float64) ([]statusstore.StatusRow, error)
	HistoryRows  func(config.Config, string, int) ([]statusstore.HistoryRow, error)
	Out          io.Writer
}

func BuildApp(deps Deps) *cli.App {
	out := deps.Out
	if out == nil {
		out = os.Stdout
	}
	return &cli.App{
		Name:   "conductor",
		Usage:  "tmux-hosted coding agent conductor",
		Writer: out,
		// The caller maps returned errors to the exit code.
		ExitErrHandler: func(*cli.Context, error) {},
		Action: func(ctx *cli.Context) error {
			cli.ShowAppHelp(ctx)
			return cli.Exit("", 1)
		},
		Commands: []*cli.Command{
			serveCommand(deps),
			migrateCommand(deps),
			ptyCommand(deps, out),
			workerCommand(deps, out),
		},
	}
}

func serveCommand(deps Deps) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the API server, worker monitors and PTY watcher",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Usage: "bind address"},
			&cli.IntFlag{Name: "port", Usage: "bind port"},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := deps.LoadConfig()
			if err != nil {
				return err
			}
			if host := strings.TrimSpace(ctx.String("host")); host != "" {
				cfg.Host = host
			}
			if port := ctx.Int("port"); port > 0 {
				cfg.Port = port
			}
			return deps.RunServe(ctx.Context, cfg)
		},
	}
}

func migrateCommand(deps Deps) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "database migration",
		Action: func(ctx *cli.Context) error {
			cli.ShowSubcommandHelp(ctx)
			return cli.Exit("", 1)
		},
		Subcommands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply pending migrations",
				Action: func(ctx *cli.Context) error {
					cfg, err := deps.LoadConfig()
					if err != nil {
						return err
					}
					return deps.RunMigrateUp(cfg)
				},
			},
		},
	}
}

func ptyCommand(deps Deps, out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "pty",
		Usage: "PTY watcher helpers",
		Action: func(ctx *cli.Context) error {
			cli.ShowSubcommandHelp(ctx)
			return cli.Exit("", 1)
		},
		Subcommands: []*cli.Command{
			{
				Name:  "watch",
				Usage: "run the tmux watcher daemon",
				Flags: []cli.Flag{
					&cli.Float64Flag{Name: "interval", Usage: "polling interval in seconds"},
				},
				Action: func(ctx *cli.Context) error {
					cfg, err := deps.LoadConfig()
					if err != nil {
						return err
					}
					if secs := ctx.Float64("interval"); secs > 0 {
						cfg.WatcherInterval = secondsDuration(secs)
					}
					return deps.RunWatcher(ctx.Context, cfg)
				},
			},
			{
				Name:  "status",
				Usage: "list tracked PTYs and their states",
				Flags: []cli.Flag{
					&cli.Float64Flag{Name: "since", Usage: "only show panes polled within the past SECONDS"},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON rows"},
					&cli.BoolFlag{Name: "short", Usage: "print compact summary instead of the table"},
				},
				Action: func(ctx *cli.Context) error {
					cfg, err := deps.LoadConfig()
					if err != nil {
						return err
					}
					var since *float64
					if ctx.IsSet("since") {
						v := ctx.Float64("since")
						since = &v
					}
					rows, err := deps.StatusRows(cfg, since)
					if err != nil {
						return err
					}
					return printStatus(out, rows, ctx.Bool("json"), ctx.Bool("short"))
				},
			},
			{
				Name:      "tail",
				Usage:     "show status history for a pane",
				ArgsUsage: "<pane_id>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 50, Usage: "maximum number of history rows"},
					&cli.BoolFlag{Name: "json", Usage: "output JSON history rows"},
				},
				Action: func(ctx *cli.Context) error {
					paneID := ctx.Args().First()
					if paneID == "" {
						cli.ShowSubcommandHelp(ctx)
						return cli.Exit("pane_id is required", 1)
					}
					cfg, err := deps.LoadConfig()
					if err != nil {
						return err
					}
					rows, err := deps.HistoryRows(cfg, paneID, ctx.Int("limit"))
					if err != nil {
						return err
					}
					return printHistory(out, rows, paneID, ctx.Int("limit"), ctx.Bool("json"))
				},
			},
		},
	}
}

func workerCommand(deps Deps, out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "worker provisioning helpers",
		Action: func(ctx *cli.Context) error {
			cli.ShowSubcommandHelp(ctx)
			return cli.Exit("", 1)
		},
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "provision a worker with a tmux session and workspace",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "label", Usage: "human readable label"},
				},
				Action: func(ctx *cli.Context) error {
					cfg, err := deps.LoadConfig()
					if err != nil {
						return err
					}
					worker, err := deps.CreateWorker(ctx.Context, cfg, ctx.String("label"))
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Created worker %s (session %s)\n", worker.ID, worker.TmuxSession)
					if worker.TtydURL != "" {
						fmt.Fprintf(out, "Terminal: %s\n", worker.TtydURL)
					}
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "list known workers",
				Action: func(ctx *cli.Context) error {
					cfg, err := deps.LoadConfig()
					if err != nil {
						return err
					}
					workers, err := deps.ListWorkers(cfg)
					if err != nil {
						return err
					}
					printWorkers(out, workers)
					return nil
				},
			},
		},
	}
}

func printStatus(out io.Writer, rows []statusstore.StatusRow, asJSON, short bool) error {
	if asJSON {
		raw, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(raw))
		return nil
	}
	if short {
		if len(rows) == 0 {
			fmt.Fprintln(out, "[no workers]")
			return nil
		}
		chunks := make([]string, 0, len(rows))
		for _, row := range rows {
			worker := row.WorkerID
			if worker == "" {
				worker = row.PaneID
			}
			state := row.State
			if state == "" {
				state = "-"
			}
			chunks = append(chunks, fmt.Sprintf("[%s: %s]", worker, state))
		}
		fmt.Fprintln(out, strings.Join(chunks, " "))
		return nil
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "No PTYs tracked (status database empty).")
		return nil
	}
	table := make([][]string, 0, len(rows))
	for _, row := range rows {
		table = append(table, []string{
			row.PaneID,
			orDash(row.TmuxTarget),
			orDash(row.State),
			strings.TrimSpace(row.Summary),
			statusstore.FormatTimestamp(row.LastPolledTs),
		})
	}
	printTable(out, []string{"Pane", "Target", "State", "Summary", "Last polled"}, table)
	return nil
}

func printHistory(out io.Writer, rows []statusstore.HistoryRow, paneID string, limit int, asJSON bool) error {
	if asJSON {
		raw, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(raw))
		return nil
	}
	if len(rows) == 0 {
		fmt.Fprintf(out, "No history found for pane %s.\n", paneID)
		return nil
	}
	target := rows[0].TmuxTarget
	if target == "" {
		target = paneID
	}
	fmt.Fprintf(out, "History for %s (limit %d):\n", target, limit)
	table := make([][]string, 0, len(rows))
	for _, row := range rows {
		table = append(table, []string{
			statusstore.FormatTimestamp(row.Ts),
			row.State,
			strings.TrimSpace(row.Summary),
		})
	}
	printTable(out, []string{"Timestamp", "State", "Summary"}, table)
	return nil
}

func printWorkers(out io.Writer, workers []db.Worker) {
	if len(workers) == 0 {
		fmt.Fprintln(out, "[no workers]")
		return
	}
	table := make([][]string, 0, len(workers))
	for _, w := range workers {
		table = append(table, []string{
			w.ID,
			orDash(w.Label),
			w.Status,
			w.TmuxSession,
			orDash(w.TtydURL),
		})
	}
	printTable(out, []string{"ID", "Label", "Status", "Session", "Terminal"}, table)
}

// printTable pads columns to the widest cell, underlines headers with
// dashes and joins cells with two spaces.
func printTable(out io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	line := func(cells []string) string {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}
	fmt.Fprintln(out, line(headers))
	dashes := make([]string, len(headers))
	for i, w := range widths {
		dashes[i] = strings.Repeat("-", w)
	}
	fmt.Fprintln(out, strings.Join(dashes, "  "))
	for _, row := range rows {
		fmt.Fprintln(out, line(row))
	}
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func secondsDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}
