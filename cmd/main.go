package cmd

import (
	"github.com/spf13/cobra"

	buildcmd "github.com/etas-contrib/score-docs-as-code/pkg/buildsys/cmd"
)

var rootCmd = &cobra.Command{
	Use:   "tool",
	Short: "Docs-as-code tooling for SCORE",
	Long: `This command bundles the tools used to check and build the documentation of a SCORE repository.
This includes the BUILD file driven build, the copyright header check, source link extraction, ...`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().Bool("log-json", false, "print JSON log lines instead of colored messages")
	rootCmd.PersistentFlags().String("log-level", "info", "minimum level of log messages (debug, info, warn, error)")

	rootCmd.AddCommand(buildcmd.RootCmd)
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
