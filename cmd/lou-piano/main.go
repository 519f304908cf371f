// Command lou-piano runs the melody teaching engine for the 12-key surface.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/chase3718/lou-piano/internal/config"
)

var (
	configPath string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "lou-piano",
	Short: "Melody teaching engine for a 12-key chromatic surface",
	Long: `lou-piano lights the next key of a melody, flashes wrong presses red,
and reports progress as the learner plays along on the board, a MIDI
keyboard, the browser or the on-screen keyboard.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the YAML config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging (adds source location)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
