package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/heysubinoy/pyazwatch/pkg/kv"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Range     bool
	NoInitial bool
	ID        string
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <key|prefix>",
		Short: "Stream changes of a key or key prefix",
		Long: `Stream changes of a key or key prefix until interrupted.

Example:
  kv-cli watch foo
  kv-cli watch --range users/
  kv-cli watch --range --no-initial ""`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Range, "range", false, "treat the argument as a key prefix")
	cmd.Flags().BoolVar(&opts.NoInitial, "no-initial", false, "skip delivery of current values")
	cmd.Flags().StringVar(&opts.ID, "id", "kv-cli", "watcher id reported in server logs")

	return cmd
}

func runWatch(cmd *cobra.Command, opts *WatchOptions, target string) error {
	if target == "" && !opts.Range {
		return fmt.Errorf("an empty target requires --range")
	}

	client, conn, err := opts.client()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var writeErr error
	watchOpts := kv.WatchOptions{ID: opts.ID, Range: opts.Range, NoInitial: opts.NoInitial}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	err = client.Watch(ctx, target, watchOpts, func(rec kv.Record) {
		if writeErr != nil {
			return
		}
		if writeErr = writeRecord(cmd.OutOrStdout(), opts.Format, rec); writeErr != nil {
			cancel()
		}
	})
	if writeErr != nil {
		return writeErr
	}
	if err == nil || status.Code(err) == codes.Canceled && ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("watch failed: %w", err)
}
