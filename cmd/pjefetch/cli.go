package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/juridigo/pjefetch/pkg/artifacts"
	"github.com/juridigo/pjefetch/pkg/browser"
	"github.com/juridigo/pjefetch/pkg/config"
	"github.com/juridigo/pjefetch/pkg/logging"
	"github.com/juridigo/pjefetch/pkg/notify"
	"github.com/juridigo/pjefetch/pkg/orchestrator"
	"github.com/juridigo/pjefetch/pkg/registry"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp() *cli.App {
	return &cli.App{
		Name:    "pjefetch",
		Usage:   "Fetch case documents from the PJe TJMG portal",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "pjefetch.yaml",
				Usage:   "Path to the configuration file",
			},
		},
		Commands: []*cli.Command{
			fetchCmd(),
			listCmd(),
			checkCmd(),
		},
	}
}

// loadConfig reads the configuration named by the global --config flag
// and builds the logger from it. A missing file yields the defaults.
func loadConfig(c *cli.Context) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, logging.New(&cfg.Logging), nil
}

// fetchCmd creates the fetch command.
func fetchCmd() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Acquire the document for one case number",
		ArgsUsage: "<case-number>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one case number argument")
			}
			caseNumber := c.Args().First()

			cfg, log, err := loadConfig(c)
			if err != nil {
				return err
			}
			creds, err := cfg.Credentials()
			if err != nil {
				return err
			}

			reg, err := registry.Open(cfg.Registry.Path, log)
			if err != nil {
				return err
			}
			defer reg.Close()

			store, err := artifacts.New(&cfg.Storage, log)
			if err != nil {
				return err
			}

			manager := browser.NewManager()
			if err := manager.Initialize(); err != nil {
				return fmt.Errorf("initializing browser runtime: %w", err)
			}
			defer func() {
				if err := manager.Shutdown(); err != nil {
					log.Warn("browser runtime shutdown failed", "error", err)
				}
			}()

			sessions := orchestrator.SessionFactoryFunc(func() (browser.Session, error) {
				return manager.NewSession(&cfg.Browser, log)
			})
			dispatcher := notify.NewDispatcher(&cfg.Webhook, log)
			orch := orchestrator.New(reg, store, dispatcher, sessions, creds, &cfg.Portal, &cfg.Browser, log)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := orch.Acquire(ctx, caseNumber); err != nil {
				return err
			}
			fmt.Printf("acquired %s\n", caseNumber)
			return nil
		},
	}
}

// listCmd creates the list command.
func listCmd() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List acquired cases, newest first",
		Action: func(c *cli.Context) error {
			cfg, log, err := loadConfig(c)
			if err != nil {
				return err
			}

			reg, err := registry.Open(cfg.Registry.Path, log)
			if err != nil {
				return err
			}
			defer reg.Close()

			records := reg.ListAll()
			if len(records) == 0 {
				fmt.Println("no cases acquired")
				return nil
			}
			for _, rec := range records {
				fmt.Printf("%s\t%s\t%s\t%s\n",
					rec.CaseNumber,
					rec.ProcessingStatus,
					rec.FileName,
					rec.AcquiredAt.Format(time.RFC3339),
				)
			}
			return nil
		},
	}
}

// checkCmd creates the check command.
func checkCmd() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Report whether a case is already acquired",
		ArgsUsage: "<case-number>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one case number argument")
			}
			caseNumber := c.Args().First()

			cfg, log, err := loadConfig(c)
			if err != nil {
				return err
			}

			reg, err := registry.Open(cfg.Registry.Path, log)
			if err != nil {
				return err
			}
			defer reg.Close()

			store, err := artifacts.New(&cfg.Storage, log)
			if err != nil {
				return err
			}

			record, ok := reg.Get(caseNumber)
			if !ok {
				fmt.Printf("%s: not acquired\n", caseNumber)
				return nil
			}
			if !store.Exists(record.FileName) {
				fmt.Printf("%s: recorded but artifact missing (%s)\n", caseNumber, record.FileName)
				return nil
			}
			path, err := store.Path(record.FileName)
			if err != nil {
				return err
			}
			fmt.Printf("%s: acquired at %s (%s)\n", caseNumber, record.AcquiredAt.Format(time.RFC3339), path)
			return nil
		},
	}
}
