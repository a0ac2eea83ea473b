// Command catalogimport drives catalog import sessions from the shell:
// parse a file, fix rows, validate, commit, and download the issue report.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/catalogimport/internal/app"
	"github.com/JonMunkholm/catalogimport/internal/config"
	"github.com/JonMunkholm/catalogimport/internal/core"
	"github.com/JonMunkholm/catalogimport/internal/logging"
	"github.com/JonMunkholm/catalogimport/internal/store/sqlite"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	envFile   string
	sessionDB string
	actor     string
	admin     bool
	json      bool
	logLevel  string
}

// cli holds lazily built dependencies. Tests replace newService.
type cli struct {
	opts       globalOptions
	newService func(ctx context.Context) (*core.Service, func() error, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &cli{}
	c.newService = c.buildService
	if err := newRootCmd(c).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", describe(err))
		os.Exit(1)
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "catalogimport",
		Short:         "Bulk import categories, items, modifiers and sizes into the catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loadEnv(c.opts.envFile)
			logging.SetupWriter(cmd.ErrOrStderr(), c.opts.logLevel, "text")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&c.opts.envFile, "env-file", "", "Load environment from this file (default: .env if present)")
	f.StringVar(&c.opts.sessionDB, "session-db", "", "Keep sessions in a local SQLite file instead of Postgres")
	f.StringVar(&c.opts.actor, "actor", defaultActor(), "Actor id recorded as the session owner")
	f.BoolVar(&c.opts.admin, "admin", false, "Act with the import admin capability")
	f.BoolVar(&c.opts.json, "json", false, "Print sessions as JSON")
	f.StringVar(&c.opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	root.AddCommand(
		newParseCmd(c),
		newEditCmd(c),
		newValidateCmd(c),
		newCommitCmd(c),
		newDiscardCmd(c),
		newShowCmd(c),
		newListCmd(c),
		newReportCmd(c),
		newSourceCmd(c),
		newSchemasCmd(),
		newTemplateCmd(),
	)
	return root
}

func loadEnv(path string) {
	if path != "" {
		if err := godotenv.Overload(path); err != nil {
			slog.Warn("could not load env file", "path", path, "error", err)
		}
		return
	}
	_ = godotenv.Load() // optional .env; real environment wins
}

func defaultActor() string {
	if v := os.Getenv("CATALOG_IMPORT_ACTOR"); v != "" {
		return v
	}
	return os.Getenv("USER")
}

// actor is the caller the CLI acts as.
func (c *cli) actor() core.Actor {
	caps := []string{core.CapabilityImport}
	if c.opts.admin {
		caps = append(caps, core.CapabilityImportAdmin)
	}
	return core.Actor{ID: strings.TrimSpace(c.opts.actor), Capabilities: caps}
}

// buildService wires the Service from the environment, optionally with a
// SQLite session store.
func (c *cli) buildService(ctx context.Context) (*core.Service, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	var opts []app.Option
	var local *sqlite.SessionStore
	if c.opts.sessionDB != "" {
		local, err = sqlite.Open(ctx, c.opts.sessionDB)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, app.WithSessionStore(local))
	}

	a, err := app.New(ctx, cfg, opts...)
	if err != nil {
		if local != nil {
			local.Close()
		}
		return nil, nil, err
	}
	closeAll := func() error {
		err := a.Close()
		if local != nil {
			if cerr := local.Close(); err == nil {
				err = cerr
			}
		}
		return err
	}
	return a.Service, closeAll, nil
}

// withService runs fn with a wired Service and releases it afterwards.
func (c *cli) withService(cmd *cobra.Command, fn func(ctx context.Context, svc *core.Service) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, closeFn, err := c.newService(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, svc)
}
