package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/aichat/internal/model/chat"
)

func newSessionsCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage saved conversations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved conversations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := deps.Build(cmd.Context())
			if err != nil {
				return err
			}
			ids, err := core.Store.List()
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}
			if len(ids) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No sessions found.")
				return nil
			}
			for _, id := range ids {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Print a saved conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := deps.Build(cmd.Context())
			if err != nil {
				return err
			}
			record, err := core.Store.Load(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "%s  %s\n", infoStyle.Render("session"), record.Identifier)
			_, _ = fmt.Fprintf(out, "%s  %s\n", infoStyle.Render("persona"), record.PersonaName)
			_, _ = fmt.Fprintf(out, "%s   %s\n\n", infoStyle.Render("prompt"), record.PersonaPrompt)
			for _, m := range record.Messages {
				label := userLabel()
				if m.Role != chat.RoleUser {
					label = assistantLabel(record.PersonaName)
				}
				_, _ = fmt.Fprintf(out, "%s: %s\n", label, m.Content)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := deps.Build(cmd.Context())
			if err != nil {
				return err
			}
			if !core.Store.Exists(args[0]) {
				return fmt.Errorf("session %s not found", args[0])
			}
			if err := core.Store.Delete(args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	})

	return cmd
}
