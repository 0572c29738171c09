package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Shugur-Network/dmsync/internal/application"
	"github.com/Shugur-Network/dmsync/internal/engine"
	"github.com/Shugur-Network/dmsync/internal/health"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one bootstrap and persist the snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			node, err := application.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer node.Shutdown()

			if cold, _ := cmd.Flags().GetBool("cold"); cold {
				if err := node.ForgetCache(cmd.Context()); err != nil {
					return fmt.Errorf("failed to drop cached snapshot: %w", err)
				}
			}
			rep, err := node.Sync(cmd.Context())
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}
			printReport(cmd.OutOrStdout(), rep)
			return nil
		},
	}
	cmd.Flags().Bool("cold", false, "Discard the cached snapshot and fetch the full history")
	return cmd
}

func printReport(w io.Writer, rep *engine.Report) {
	snap := rep.Snapshot
	fmt.Fprintf(w, "Mode:           %s (%s)\n", rep.Mode, rep.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Conversations:  %d\n", len(snap.Conversations))
	fmt.Fprintf(w, "Messages:       %d (%d new, %d already stored)\n", snap.MessageCount(), rep.NewMessages, rep.AlreadyStored)
	fmt.Fprintf(w, "Participants:   %d\n", len(snap.Participants))
	fmt.Fprintf(w, "Unwrapped:      %d of %d (%d failed)\n", rep.Unwrap.Unwrapped, rep.Unwrap.Total, rep.Unwrap.Failed)
	fmt.Fprintf(w, "Relays queried: %s\n", strings.Join(append(append([]string{}, rep.OwnRelays...), rep.NewRelays...), ", "))
	for _, rs := range health.ClassifyRelays(snap) {
		if rs.Status == health.StatusUnhealthy {
			fmt.Fprintf(w, "Relay failed:   %s: %s\n", rs.URL, rs.Error)
		}
	}
	if snap.SyncState.QueryLimitReached {
		fmt.Fprintln(w, "Warning: a relay returned a full page; older history may be missing")
	}
	if rep.Incomplete {
		fmt.Fprintln(w, "Warning: none of your relays answered; the next sync will retry from the previous sync time")
	}
	if rep.SaveErr != nil {
		fmt.Fprintf(w, "Warning: snapshot not persisted: %v\n", rep.SaveErr)
	}
}
