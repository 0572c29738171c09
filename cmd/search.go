package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Shugur-Network/dmsync/internal/application"
	"github.com/Shugur-Network/dmsync/internal/models"
)

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the local snapshot for messages and conversations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			refresh, _ := cmd.Flags().GetBool("refresh")

			node, err := application.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer node.Shutdown()

			var snap *models.Snapshot
			if refresh {
				rep, err := node.Sync(cmd.Context())
				if err != nil {
					return fmt.Errorf("sync failed: %w", err)
				}
				snap = rep.Snapshot
			} else {
				var ok bool
				if snap, ok = node.CachedSnapshot(cmd.Context()); !ok {
					return fmt.Errorf("no cached snapshot, run `dmsync sync` or pass --refresh")
				}
			}

			out := cmd.OutOrStdout()
			for _, c := range snap.SearchConversations(query) {
				names := make([]string, 0, len(c.ParticipantPubkeys))
				for _, pk := range c.ParticipantPubkeys {
					names = append(names, snap.DisplayName(pk))
				}
				fmt.Fprintf(out, "[conversation] %s  %s\n", strings.Join(names, ", "), c.Subject)
			}
			msgs := snap.SearchMessages(query)
			for _, m := range msgs {
				fmt.Fprintf(out, "%s  %-20s %s\n  (%s)\n",
					m.CreatedAt.Time().Format("2006-01-02 15:04"),
					snap.DisplayName(m.Event.PubKey), m.Content, m.ConversationID)
			}
			if len(msgs) == 0 {
				fmt.Fprintln(out, "No matching messages.")
			}
			return nil
		},
	}
	cmd.Flags().Bool("refresh", false, "Synchronize before searching")
	return cmd
}
