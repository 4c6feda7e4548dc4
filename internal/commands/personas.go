package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newPersonasCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "personas",
		Short: "List preset personas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := deps.Build(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tNAME\tDESCRIPTION")
			for _, p := range core.Personas.List() {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Name, p.Description)
			}
			return w.Flush()
		},
	}
}
