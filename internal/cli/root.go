package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/heysubinoy/pyazwatch/internal/api"
)

const (
	defaultAddr    = "127.0.0.1:9090"
	defaultTimeout = 5 * time.Second
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// DialFunc opens a connection to a kv-single gRPC endpoint.
type DialFunc func(addr string) (*grpc.ClientConn, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Addr    string
	Timeout time.Duration
	Format  string // "json" | "text"

	dial DialFunc
}

// client connects to the configured server. The caller closes the
// returned connection.
func (o *RootOptions) client() (*api.Client, *grpc.ClientConn, error) {
	conn, err := o.dial(o.Addr)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", o.Addr, err)
	}
	return api.NewClient(conn), conn, nil
}

// requestContext bounds a unary call by the --timeout flag.
func (o *RootOptions) requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, o.Timeout)
}

func dialGRPC(addr string) (*grpc.ClientConn, error) {
	return grpc.NewClient("passthrough:///"+addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// NewRootCommand creates the root command for kv-cli.
func NewRootCommand() *cobra.Command {
	return newRootCommand(dialGRPC)
}

func newRootCommand(dial DialFunc) *cobra.Command {
	opts := &RootOptions{dial: dial}

	addr := os.Getenv("KV_ADDR")
	if addr == "" {
		addr = defaultAddr
	}

	cmd := &cobra.Command{
		Use:   "kv-cli",
		Short: "Client for the pyazwatch key/value store",
		Long:  "Read, write and watch keys on a running kv-single server over gRPC.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.Timeout <= 0 {
				return fmt.Errorf("timeout must be positive, got %s", opts.Timeout)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Addr, "addr", addr, "server gRPC address (env KV_ADDR)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", defaultTimeout, "timeout for unary requests")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewFindCommand(opts))
	cmd.AddCommand(NewSetCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewNotifyCommand(opts))
	cmd.AddCommand(NewResetCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
