package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/your-org/filebackup/internal/app"
	"github.com/your-org/filebackup/internal/backup"
	"github.com/your-org/filebackup/pkg/config"
)

var exampleUsage = strings.TrimSpace(`
  backupctl replay ./event.json
  cat event.json | backupctl replay -
  backupctl copy --bucket inbox --key "reports/q1 summary.pdf" --destination inbox-backup
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var destination string

	root := &cobra.Command{
		Use:          "backupctl",
		Short:        "Replay bucket notifications through the backup handler",
		Long:         "backupctl runs the backup handler against a saved notification document or a single object, using the same environment configuration as the deployed function.",
		Example:      exampleUsage,
		Version:      getVersion(),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&destination, "destination", "", "backup bucket (overrides BACKUP_BUCKET)")

	run := func(cmd *cobra.Command, handle func(context.Context, *backup.Dispatcher) (backup.AggregateResponse, error)) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if destination != "" {
			cfg.Backup.DestinationBucket = destination
		}

		a, err := app.New(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close(context.WithoutCancel(cmd.Context())) //nolint:errcheck

		resp, err := handle(cmd.Context(), a.Dispatcher)
		if err != nil {
			return err
		}
		if err := printResult(cmd.OutOrStdout(), resp); err != nil {
			return err
		}
		if !resp.OK() {
			return fmt.Errorf("%d of %d records not backed up", resp.Failed+resp.Unprocessed, len(resp.Outcomes))
		}
		return nil
	}

	root.AddCommand(newReplayCmd(run), newCopyCmd(run))
	return root
}

type runFunc func(*cobra.Command, func(context.Context, *backup.Dispatcher) (backup.AggregateResponse, error)) error

func newReplayCmd(run runFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <event.json|->",
		Short: "Process a saved S3 event notification document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			return run(cmd, func(ctx context.Context, d *backup.Dispatcher) (backup.AggregateResponse, error) {
				return d.HandlePayload(ctx, payload)
			})
		},
	}
}

func newCopyCmd(run runFunc) *cobra.Command {
	var bucket, key string
	cmd := &cobra.Command{
		Use:   "copy",
		Short: "Back up a single object",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Dispatch decodes keys the way notifications carry them.
			evt := backup.ReplicationEvent{Bucket: bucket, Key: url.QueryEscape(key), EventName: "ObjectCreated:Manual"}
			return run(cmd, func(ctx context.Context, d *backup.Dispatcher) (backup.AggregateResponse, error) {
				return d.Handle(ctx, []backup.ReplicationEvent{evt})
			})
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "source bucket")
	cmd.Flags().StringVar(&key, "key", "", "source object key")
	_ = cmd.MarkFlagRequired("bucket")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func readPayload(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read event document: %w", err)
	}
	return payload, nil
}

type outcomeLine struct {
	Status      backup.Status        `json:"status"`
	Source      string               `json:"source"`
	Destination string               `json:"destination"`
	SizeBytes   int64                `json:"size_bytes,omitempty"`
	Reason      backup.FailureReason `json:"reason,omitempty"`
	Error       string               `json:"error,omitempty"`
}

func printResult(w io.Writer, resp backup.AggregateResponse) error {
	lines := make([]outcomeLine, 0, len(resp.Outcomes))
	for _, o := range resp.Outcomes {
		line := outcomeLine{
			Status:      o.Status,
			Source:      o.Source.String(),
			Destination: o.Destination.String(),
			SizeBytes:   o.SizeBytes,
			Reason:      o.Reason,
		}
		if o.Err != nil {
			line.Error = o.Err.Error()
		}
		lines = append(lines, line)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Summary  backup.Summary `json:"summary"`
		Outcomes []outcomeLine  `json:"outcomes"`
	}{resp.Summary(), lines})
}
