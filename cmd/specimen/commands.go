package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/biosight/internal/client/api"
	"github.com/bryanwahyu/biosight/internal/client/offline"
	"github.com/bryanwahyu/biosight/internal/client/render"
)

func newConsentCmd(g *globalFlags) *cobra.Command {
	var accept bool
	cmd := &cobra.Command{
		Use:   "consent",
		Short: "Show or accept the legal disclaimer for this client's session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, g)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			if accept {
				if err := a.client.AcceptConsent(ctx); err != nil {
					return fmt.Errorf("record consent: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Consent recorded.")
				return nil
			}
			ok, err := a.client.ConsentStatus(ctx)
			if err != nil {
				return err
			}
			if ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Consent accepted.")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Consent required. Run: specimen consent --accept")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&accept, "accept", false, "accept the disclaimer")
	return cmd
}

func newSubmitCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "submit FILE...",
		Short: "Analyze specimen images, queueing them when offline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			a, err := openApp(ctx, g)
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(ctx))

			e, err := a.startEngine(ctx, g.demo, nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var failed int
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				res, err := e.Submit(ctx, api.Specimen{Filename: filepath.Base(path), Data: data})
				if err != nil {
					failed++
					fmt.Fprintf(out, "%s: %v\n", path, err)
					continue
				}
				switch {
				case res.Queued:
					fmt.Fprintf(out, "%s: connection unavailable, saved to local queue (#%d)\n", path, res.QueueID)
				default:
					fmt.Fprintf(out, "== %s ==\n", path)
					printInterpretation(out, res.Interpretation)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d specimens failed", failed, len(args))
			}
			return nil
		},
	}
}

func newSyncCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Resubmit queued specimens once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			a, err := openApp(ctx, g)
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(ctx))

			out := cmd.OutOrStdout()
			e, err := a.startEngine(ctx, false, func(n offline.Notice) { printNotice(out, n) })
			if err != nil {
				return err
			}
			report, err := e.Drain(ctx)
			if err != nil {
				return err
			}
			if report.Err != nil {
				return fmt.Errorf("sync stopped after %d sent: %w", report.Sent, report.Err)
			}
			return nil
		},
	}
}

func newWatchCmd(g *globalFlags) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Probe the gateway and drain the queue whenever it comes back",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, g)
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(ctx))

			out := cmd.OutOrStdout()
			e := offline.NewEngine(a.client, a.queue, a.log)
			e.Notify = func(n offline.Notice) { printNotice(out, n) }
			go func() { _ = e.Run(ctx) }()

			p := &offline.Prober{Pinger: a.client, Interval: interval}
			err = p.Run(ctx, e)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "probe interval")
	return cmd
}

func newQueueCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List specimens waiting for connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, g)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			items, err := a.queue.Pending(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "Queue is empty.")
				return nil
			}
			for _, it := range items {
				fmt.Fprintf(out, "#%-4d %-32s %-11s %7d bytes  %s\n",
					it.ID, it.Filename, it.MIME, len(it.Data), it.QueuedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newHistoryCmd(g *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show this session's latest analyses",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, g)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			entries, err := a.client.History(ctx, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No analyses yet.")
				return nil
			}
			for _, h := range entries {
				fmt.Fprintf(out, "== %s  %s ==\n", h.CreatedAt.Local().Format(time.RFC1123), h.ImagePath)
				raw, _ := json.Marshal(h.Interpretation)
				printInterpretation(out, raw)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 5, "number of entries")
	return cmd
}

func printInterpretation(w io.Writer, raw json.RawMessage) {
	r, err := render.Render(raw)
	if err != nil {
		fmt.Fprintln(w, "Received valid AI data but failed to render it:")
		fmt.Fprintln(w, string(raw))
		return
	}
	_ = render.WriteText(w, r, time.Now())
}

func printNotice(w io.Writer, n offline.Notice) {
	switch n.Kind {
	case offline.NoticeQueued:
		fmt.Fprintf(w, "queued %s (#%d)\n", n.Filename, n.QueueID)
	case offline.NoticeSynced:
		fmt.Fprintf(w, "== synced %s (#%d) ==\n", n.Filename, n.QueueID)
		printInterpretation(w, n.Result.Interpretation)
	case offline.NoticeDropped:
		fmt.Fprintf(w, "dropped %s (#%d): %v\n", n.Filename, n.QueueID, n.Err)
	case offline.NoticeDrained:
		if n.Err != nil {
			fmt.Fprintf(w, "sync paused: %d sent, %d dropped: %v\n", n.Sent, n.Dropped, n.Err)
		} else {
			fmt.Fprintf(w, "sync complete: %d sent, %d dropped\n", n.Sent, n.Dropped)
		}
	}
}
