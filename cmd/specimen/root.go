package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bryanwahyu/biosight/internal/client/api"
	"github.com/bryanwahyu/biosight/internal/client/offline"
	"github.com/bryanwahyu/biosight/internal/infra/observability"
)

const sessionTokenKey = "session_token"

type globalFlags struct {
	server   string
	queue    string
	demo     bool
	timeout  time.Duration
	logLevel string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "specimen",
		Short: "Submit specimen images to a BioSight gateway",
		Long: `specimen uploads medical images to a BioSight gateway for AI-assisted
visual marker extraction.

Specimens captured while the gateway is unreachable are kept in a local
queue and resubmitted in order once it is back.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&g.server, "server", envOr("BIOSIGHT_SERVER", "http://localhost:8080"), "gateway base URL")
	cmd.PersistentFlags().StringVar(&g.queue, "queue", envOr("BIOSIGHT_QUEUE", defaultQueuePath()), "offline queue database")
	cmd.PersistentFlags().BoolVar(&g.demo, "demo", false, "return a synthetic result without contacting the gateway")
	cmd.PersistentFlags().DurationVar(&g.timeout, "timeout", 60*time.Second, "per-request timeout")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "log level")

	cmd.AddCommand(
		newConsentCmd(g),
		newSubmitCmd(g),
		newSyncCmd(g),
		newWatchCmd(g),
		newQueueCmd(g),
		newHistoryCmd(g),
	)
	return cmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func defaultQueuePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "biosight-queue.db"
	}
	return filepath.Join(dir, "biosight", "queue.db")
}

// app holds what every command needs. The session cookie is restored from
// the queue database so consent survives restarts.
type app struct {
	log    *logrus.Logger
	client *api.Client
	queue  *offline.SQLiteQueue
}

func openApp(ctx context.Context, g *globalFlags) (*app, error) {
	log := observability.NewLogger(g.logLevel, "text")
	log.SetOutput(os.Stderr)

	if err := os.MkdirAll(filepath.Dir(g.queue), 0o750); err != nil {
		return nil, fmt.Errorf("create queue dir: %w", err)
	}
	q, err := offline.OpenSQLite(g.queue)
	if err != nil {
		return nil, err
	}
	c, err := api.New(g.server, g.timeout)
	if err != nil {
		q.Close()
		return nil, err
	}
	tok, err := q.Get(ctx, sessionTokenKey)
	if err != nil {
		q.Close()
		return nil, err
	}
	c.SetSessionToken(tok)
	return &app{log: log, client: c, queue: q}, nil
}

func (a *app) close(ctx context.Context) {
	if tok := a.client.SessionToken(); tok != "" {
		if err := a.queue.Set(ctx, sessionTokenKey, tok); err != nil {
			a.log.WithError(err).Warn("save session token")
		}
	}
	_ = a.queue.Close()
}

// startEngine runs an engine whose connectivity state starts from one probe.
func (a *app) startEngine(ctx context.Context, demo bool, notify func(offline.Notice)) (*offline.Engine, error) {
	e := offline.NewEngine(a.client, a.queue, a.log)
	e.Notify = notify
	go func() { _ = e.Run(ctx) }()

	if demo {
		if err := e.SetDemo(ctx, true); err != nil {
			return nil, err
		}
	}
	probe, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := a.client.Ping(probe); err != nil {
		a.log.WithError(err).Info("gateway unreachable, working offline")
		if err := e.SetOnline(ctx, false); err != nil {
			return nil, err
		}
	}
	return e, nil
}
