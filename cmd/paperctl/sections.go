package main

import (
	"fmt"

	"github.com/paperdesk/paperdesk/internal/paper"
	"github.com/spf13/cobra"
)

func newSectionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sections",
		Short: "List the canonical paper sections in order",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for i, name := range paper.SectionNames() {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, name)
			}
		},
	}
}
