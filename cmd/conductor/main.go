package main

import (
	"fmt"
	"os"

	"conductor/internal/application"
	"conductor/internal/command"
	"conductor/internal/config"
)

func main() {
	app := command.BuildApp(command.Deps{
		LoadConfig:   config.Load,
		RunServe:     application.Serve,
		RunMigrateUp: application.MigrateUp,
		RunWatcher:   application.RunWatcher,
		CreateWorker: application.CreateWorker,
		ListWorkers:  application.ListWorkers,
		StatusRows:   application.StatusRows,
		HistoryRows:  application.HistoryRows,
	})
	if err := app.Run(os.Args); err != nil {
		if msg := err.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(1)
	}
}
