package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/helixml/syntree/infrastructure/parsing"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and grammar information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "syntree %s (commit %s, built %s)\n", version, commit, date)
			_, _ = fmt.Fprintf(w, "grammars %s: %s\n",
				parsing.GrammarVersion(), strings.Join(parsing.DefaultLanguages().Names(), ", "))
		},
	}
}
