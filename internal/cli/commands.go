package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// NewGetCommand creates the get command.
func NewGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the record stored under a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, conn, err := opts.client()
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := opts.requestContext(cmd)
			defer cancel()

			rec, found, err := client.Get(ctx, args[0])
			if err != nil {
				return fmt.Errorf("get failed: %w", err)
			}
			if !found {
				return fmt.Errorf("key %q not found", args[0])
			}
			return writeRecord(cmd.OutOrStdout(), opts.Format, rec)
		},
	}
}

// NewFindCommand creates the find command.
func NewFindCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "find [prefix]",
		Short: "List keys starting with a prefix",
		Long:  "List keys starting with a prefix in ascending order. Without a prefix every key is listed.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}

			client, conn, err := opts.client()
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := opts.requestContext(cmd)
			defer cancel()

			keys, err := client.Find(ctx, prefix)
			if err != nil {
				return fmt.Errorf("find failed: %w", err)
			}
			return writeKeys(cmd.OutOrStdout(), opts.Format, keys)
		},
	}
}

// NewSetCommand creates the set command.
func NewSetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a value under a key",
		Long: `Store a value under a key.

The value is parsed as JSON when possible, otherwise it is stored as a plain
string.

Example:
  kv-cli set foo 123
  kv-cli set user '{"name":"ada"}'
  kv-cli set greeting hello`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, conn, err := opts.client()
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := opts.requestContext(cmd)
			defer cancel()

			changed, err := client.Set(ctx, args[0], parseValue(args[1]))
			if err != nil {
				return fmt.Errorf("set failed: %w", err)
			}
			return writeResult(cmd.OutOrStdout(), opts.Format, "changed", changed)
		},
	}
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a key",
		Long:  "Delete a key. A key that still has watchers is cleared instead and the watchers are notified.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, conn, err := opts.client()
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := opts.requestContext(cmd)
			defer cancel()

			removed, err := client.Delete(ctx, args[0])
			if err != nil {
				return fmt.Errorf("delete failed: %w", err)
			}
			return writeResult(cmd.OutOrStdout(), opts.Format, "removed", removed)
		},
	}
}

// NewNotifyCommand creates the notify command.
func NewNotifyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "notify <key>",
		Short: "Re-deliver the current record of a key to its watchers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, conn, err := opts.client()
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := opts.requestContext(cmd)
			defer cancel()

			if err := client.Notify(ctx, args[0]); err != nil {
				return fmt.Errorf("notify failed: %w", err)
			}
			return writeResult(cmd.OutOrStdout(), opts.Format, "notified", true)
		},
	}
}

// NewResetCommand creates the reset command.
func NewResetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Drop every record and watcher on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, conn, err := opts.client()
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := opts.requestContext(cmd)
			defer cancel()

			if err := client.Reset(ctx); err != nil {
				return fmt.Errorf("reset failed: %w", err)
			}
			return writeResult(cmd.OutOrStdout(), opts.Format, "reset", true)
		},
	}
}

// parseValue decodes s as JSON and falls back to the raw string.
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}
