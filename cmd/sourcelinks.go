package cmd

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/etas-contrib/score-docs-as-code/pkg"
	buildcmd "github.com/etas-contrib/score-docs-as-code/pkg/buildsys/cmd"
	"github.com/etas-contrib/score-docs-as-code/pkg/sourcelinks"
)

var sourcelinksCmd = &cobra.Command{
	Use:   "sourcelinks",
	Short: "Extracts need references from source code comments",
}

var generateLinksCmd = &cobra.Command{
	Use:   "generate --output <file> <files or directories...>",
	Short: "Scans source files for traceability tags and writes the found links as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := buildcmd.NewSession(cmd)
		if err != nil {
			return err
		}

		output, err := cmd.Flags().GetString("output")
		if err != nil {
			return err
		}

		files, err := expandPaths(args)
		if err != nil {
			return err
		}

		wd, err := os.Getwd()
		if err != nil {
			return eris.Wrap(err, "failed to retrieve the current working directory")
		}

		scanner, err := sourcelinks.NewScanner(wd, session.Config.Sourcelinks.Tags)
		if err != nil {
			return err
		}

		links, err := scanner.ScanFiles(files)
		if err != nil {
			return err
		}

		err = sourcelinks.Write(output, links)
		if err != nil {
			return err
		}

		pkg.PrintTask(cmd.OutOrStdout(), fmt.Sprintf("Found %d links in %d files", len(links), len(files)))
		return nil
	},
}

var mergeLinksCmd = &cobra.Command{
	Use:   "merge --output <file> <input files...>",
	Short: "Merges several source link files. Duplicates are dropped.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, err := cmd.Flags().GetString("output")
		if err != nil {
			return err
		}

		links, err := sourcelinks.Merge(args...)
		if err != nil {
			return err
		}

		err = sourcelinks.Write(output, links)
		if err != nil {
			return err
		}

		pkg.PrintTask(cmd.OutOrStdout(), fmt.Sprintf("Merged %d links from %d files", len(links), len(args)))
		return nil
	},
}

func init() {
	for _, sub := range []*cobra.Command{generateLinksCmd, mergeLinksCmd} {
		sub.Flags().StringP("output", "o", "", "JSON file to write")
		_ = sub.MarkFlagRequired("output")
		sourcelinksCmd.AddCommand(sub)
	}

	rootCmd.AddCommand(sourcelinksCmd)
}
