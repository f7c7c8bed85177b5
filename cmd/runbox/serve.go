package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/runbox/internal/compiler"
	"github.com/michaelbrown/runbox/internal/config"
	"github.com/michaelbrown/runbox/internal/language"
	"github.com/michaelbrown/runbox/internal/logging"
	"github.com/michaelbrown/runbox/internal/server"
	"github.com/michaelbrown/runbox/internal/session"
	"github.com/michaelbrown/runbox/internal/storage/sqlite"
	"github.com/michaelbrown/runbox/internal/workspace"
)

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the runbox server",
	Long: `Start the runbox HTTP server: the compile endpoint, the interactive
run channel, and the job-history API.

Examples:
  runbox serve
  runbox serve --port 9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer log.Sync()

	store, err := sqlite.Open(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	workspaces, err := workspace.NewStore(cfg.Workspace.Root, log)
	if err != nil {
		return fmt.Errorf("preparing workspace root: %w", err)
	}

	sb, err := cfg.NewSandbox()
	if err != nil {
		return err
	}

	langs := language.Builtin()
	if cfg.Languages.Dir != "" {
		if err := langs.LoadDir(cfg.Languages.Dir); err != nil {
			return fmt.Errorf("loading language profiles: %w", err)
		}
	}

	// Unclaimed sessions that expire still own a workspace; release it.
	registry := session.NewRegistry(cfg.Session.TTL, func(sess *session.Session) {
		workspaces.Destroy(sess.Workspace)
	}, log)

	srv := server.New(cfg, server.Deps{
		Store:      store,
		Workspaces: workspaces,
		Registry:   registry,
		Invoker:    compiler.New(sb, cfg.Compile.Timeout, log),
		Sandbox:    sb,
		Languages:  langs,
		Log:        log,
	})

	port := cfg.Server.Port
	if portFlag > 0 {
		port = portFlag
	}

	// Graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		srv.Shutdown(context.Background())
	}()

	return srv.Start(port)
}
