package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chase3718/lou-piano/internal/melody"
	"github.com/chase3718/lou-piano/internal/note"
)

func init() {
	rootCmd.AddCommand(melodiesCmd, notesCmd)
}

var melodiesCmd = &cobra.Command{
	Use:   "melodies",
	Short: "List the built-in melodies",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		for _, title := range melody.Library() {
			m, _ := melody.Lookup(title)
			fmt.Fprintf(out, "%-24s %s\n", title, m)
		}
	},
}

var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "Show the key index to note name table",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		for i, name := range note.Names() {
			kind := "natural"
			if note.IsAccidental(i) {
				kind = "accidental"
			}
			fmt.Fprintf(out, "%2d  %-4s %s\n", i, name, kind)
		}
		fmt.Fprintln(out, strings.Repeat("-", 22))
		fmt.Fprintf(out, "unknown index renders as %q\n", note.Placeholder)
	},
}
