package cmd

import (
	"fmt"
	"io/ioutil"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/etas-contrib/score-docs-as-code/pkg"
	buildcmd "github.com/etas-contrib/score-docs-as-code/pkg/buildsys/cmd"
	"github.com/etas-contrib/score-docs-as-code/pkg/copyright"
)

var copyrightCmd = &cobra.Command{
	Use:   "copyright <files or directories...>",
	Short: "Checks that source files start with the copyright header",
	Long: `Checks every passed file (directories are scanned recursively) for the copyright header. Files with an
extension the config doesn't know are skipped. With --fix, missing headers are added.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := buildcmd.NewSession(cmd)
		if err != nil {
			return err
		}

		configPath, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}

		templatePath, err := cmd.Flags().GetString("template")
		if err != nil {
			return err
		}

		fix, err := cmd.Flags().GetBool("fix")
		if err != nil {
			return err
		}

		cfg := copyright.DefaultConfig()
		if configPath != "" {
			cfg, err = copyright.LoadConfig(configPath)
			if err != nil {
				return err
			}
		}

		template := ""
		if templatePath != "" {
			content, err := ioutil.ReadFile(templatePath)
			if err != nil {
				return eris.Wrapf(err, "failed to read template %s", templatePath)
			}
			template = string(content)
		}

		files, err := expandPaths(args)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		checker := copyright.NewChecker(cfg, template, session.Logger)
		checker.Root = session.Root
		if configPath != "" {
			checker.Root = filepath.Dir(configPath)
		}
		pkg.PrintTask(out, fmt.Sprintf("Checking %d files", len(files)))

		violations, err := checker.CheckAll(session.Ctx, files)
		if err != nil {
			return err
		}

		if fix && len(violations) > 0 {
			pkg.PrintTask(out, "Adding missing headers")
			year := time.Now().Year()
			for _, v := range violations {
				fixed, err := checker.Fix(v.File, year)
				if err != nil {
					pkg.PrintError(out, err.Error())
				} else if fixed {
					pkg.PrintSubtask(out, v.File)
				}
			}

			violations, err = checker.CheckAll(session.Ctx, files)
			if err != nil {
				return err
			}
		}

		for _, v := range violations {
			pkg.PrintError(out, v.String())
		}

		if len(violations) > 0 {
			return eris.Errorf("%d of %d files have no valid copyright header", len(violations), len(files))
		}

		pkg.PrintTask(out, "Done")
		return nil
	},
}

func init() {
	copyrightCmd.Flags().String("config", "", "YAML file mapping extensions to comment styles")
	copyrightCmd.Flags().String("template", "", "header template with {year} and {author} placeholders")
	copyrightCmd.Flags().Bool("fix", false, "add the header to files that miss it")

	rootCmd.AddCommand(copyrightCmd)
}
