package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Build information, set with -ldflags "-X github.com/tbag/core/cmd/tbag/commands.Version=..."
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// NewRootCommand creates the tbag command tree
func NewRootCommand() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "tbag",
		Short: "Script file server",
		Long: `tbag serves a directory of scripts. Each script is reachable through a subdomain
named after its basename: command line clients receive the raw file and browsers
get a syntax highlighted page.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to a config file (yaml, json or toml)")

	rootCmd.AddCommand(NewServeCommand(&configFile))
	rootCmd.AddCommand(NewIndexCommand(&configFile))
	rootCmd.AddCommand(NewStatsCommand(&configFile))
	rootCmd.AddCommand(NewMigrateCommand(&configFile))
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print tbag version",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tbag %s\n", Version)
			fmt.Fprintf(out, "Build Date: %s\n", BuildDate)
			fmt.Fprintf(out, "Git Commit: %s\n", Commit)
		},
	}
}
