package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pocketlm/pkg/types"
)

// withApp resolves config, opens the services for one command and closes them
// when fn returns. Ctrl+C cancels ctx.
func withApp(cmd *cobra.Command, root *rootOptions, fn func(ctx context.Context, a *app) error) error {
	cfg, err := root.resolveConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a, err := openApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close(context.Background())
	return fn(ctx, a)
}

func buildModelsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "models",
		Aliases: []string{"ls"},
		Short:   "List catalog models with their download status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, root, func(ctx context.Context, a *app) error {
				states, err := a.downloads.Models(ctx)
				if err != nil {
					return err
				}
				return printModels(cmd.OutOrStdout(), states)
			})
		},
	}
}

func printModels(out io.Writer, states []types.ModelState) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATUS\tSIZE\tPATH")
	for _, s := range states {
		size := "-"
		if s.Model.SizeBytes > 0 {
			size = fmt.Sprintf("%.1f MB", float64(s.Model.SizeBytes)/1e6)
		}
		path := s.LocalPath
		if path == "" {
			path = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Model.Name, s.Status, size, path)
	}
	return tw.Flush()
}

func buildDownloadCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "download <model>",
		Short:   "Download a model and wait for it to finish",
		Example: "  pocketlm download google/gemma-3n-e2b",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, root, func(ctx context.Context, a *app) error {
				out := cmd.OutOrStdout()
				path, err := a.downloads.Download(ctx, args[0], func(p types.Progress) {
					printProgress(out, p)
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "\n%s -> %s\n", args[0], path)
				return nil
			})
		},
	}
}

func printProgress(out io.Writer, p types.Progress) {
	speed := "    -   "
	if p.SpeedMbps != nil {
		speed = fmt.Sprintf("%6.1f Mbps", *p.SpeedMbps)
	}
	fmt.Fprintf(out, "\r%-32s %5.1f%%  %s", p.Model, p.Fraction*100, speed)
}

func buildDeleteCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <model>",
		Short: "Delete a downloaded model artifact and its status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, root, func(ctx context.Context, a *app) error {
				err := a.downloads.Exclusive(args[0], func() error {
					return a.models.Delete(ctx, args[0])
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func buildSessionsCmd(root *rootOptions) *cobra.Command {
	var history string
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List chat sessions, or print one session's history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, root, func(ctx context.Context, a *app) error {
				out := cmd.OutOrStdout()
				if history != "" {
					msgs, err := a.store.ListMessages(ctx, history)
					if err != nil {
						return err
					}
					for _, m := range msgs {
						fmt.Fprintf(out, "[%s] %s: %s\n", m.CreatedAt.Format("2006-01-02 15:04"), m.Role, m.Content)
					}
					return nil
				}
				list, err := a.store.ListSessions(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tUPDATED")
				for _, s := range list {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, s.Name, s.UpdatedAt.Format("2006-01-02 15:04"))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&history, "history", "", "Print the messages of this session id")
	return cmd
}
