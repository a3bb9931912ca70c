package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/vrsandeep/transdoc-go/internal/core"
	"github.com/vrsandeep/transdoc-go/internal/logging"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "transdoc-cli",
	Short: "Manage credentials and documents of a transdoc installation",
	Long: `transdoc-cli works directly on the database and storage configured in
config.yml (or TRANSDOC_* environment variables). It can run documents through
the pipeline without starting the web server.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := "warn"
		if verbose {
			level = "debug"
		}
		logging.SetupWriter(level, "console", os.Stderr)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.AddCommand(keysCmd(), collectionsCmd(), processCmd(), statusCmd())
}

// openApp builds the application without starting any background work.
func openApp() (*core.App, error) {
	app, err := core.New()
	if err != nil {
		return nil, fmt.Errorf("setup: %w", err)
	}
	return app, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Debug().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
