// Package cmd implements the build command on top of the buildsys package
package cmd

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/etas-contrib/score-docs-as-code/pkg"
	"github.com/etas-contrib/score-docs-as-code/pkg/buildsys"
	"github.com/etas-contrib/score-docs-as-code/pkg/config"
	"github.com/etas-contrib/score-docs-as-code/pkg/state"
)

// Session holds everything a command needs once the workspace has been located
type Session struct {
	Root   string
	Config *config.Config
	Logger zerolog.Logger
	Ctx    context.Context
}

// NewSession locates the workspace around the working directory, loads its config and sets up logging.
// The persistent flags log-json and log-level override the config.
func NewSession(cmd *cobra.Command) (*Session, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, eris.Wrap(err, "failed to retrieve the current working directory")
	}

	root, err := pkg.FindWorkspaceRoot(wd)
	if err != nil {
		root = wd
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	if flag := cmd.Flags().Lookup("log-json"); flag != nil && flag.Changed {
		cfg.Log.JSON = flag.Value.String() == "true"
	}
	if flag := cmd.Flags().Lookup("log-level"); flag != nil && flag.Changed {
		cfg.Log.Level = flag.Value.String()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	s := &Session{
		Root:   root,
		Config: cfg,
		Logger: NewLogger(cfg, cmd.ErrOrStderr()),
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s.Ctx = buildsys.WithLogger(ctx, &s.Logger)
	return s, nil
}

// NewLogger returns a console logger or, if configured, a JSON logger writing to out
func NewLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	if cfg.Log.JSON {
		return zerolog.New(out).Level(cfg.LogLevel()).With().Timestamp().Logger()
	}

	return zerolog.New(NewConsoleWriter(out)).Level(cfg.LogLevel())
}

var RootCmd = &cobra.Command{
	Use:   "build [targets...] [option=value...]",
	Short: "Builds targets declared in BUILD files",
	Long: `This command evaluates the BUILD file in the workspace root and builds the given targets after their
dependencies. Labels are relative to the package of the current directory. Without targets, all available
targets are listed.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		targetArgs := make([]string, 0)
		options := make(map[string]string)
		dryRun, err := cmd.Flags().GetBool("dry")
		if err != nil {
			return err
		}

		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			return err
		}

		fix, err := cmd.Flags().GetBool("fix")
		if err != nil {
			return err
		}

		for _, part := range args {
			pos := strings.Index(part, "=")
			if pos > -1 {
				options[part[:pos]] = part[pos+1:]
			} else {
				targetArgs = append(targetArgs, part)
			}
		}

		session, err := NewSession(cmd)
		if err != nil {
			return err
		}
		logger := session.Logger
		cfg := session.Config

		store, err := state.Open(cfg.StateDB)
		if err != nil {
			return err
		}
		defer store.Close()

		// options passed once stay in effect for later runs
		saved, err := store.Options()
		if err != nil {
			return err
		}
		for key, value := range options {
			saved[key] = value
		}
		err = store.SaveOptions(saved)
		if err != nil {
			return err
		}

		ws, err := buildsys.LoadWorkspace(session.Ctx, session.Root, cfg.BuildFile, saved)
		if err != nil {
			return eris.Wrap(err, "failed to parse BUILD files")
		}
		ws.OutDir = cfg.OutDir

		if len(targetArgs) == 0 {
			err = ws.LoadAll()
			if err != nil {
				return err
			}

			ws.Listing(cmd.OutOrStdout())
			return nil
		}

		labels, err := relativeLabels(session.Root, targetArgs)
		if err != nil {
			return err
		}

		exe, err := os.Executable()
		if err != nil {
			logger.Warn().Err(err).Msg("Could not locate the tool binary, mv, rm and mkdir use the system commands")
		} else {
			buildsys.HelperBinary = exe
		}

		runner := buildsys.NewRunner(ws, buildsys.Settings{
			Tags:      cfg.Sourcelinks.Tags,
			DocsTitle: cfg.Docs.Title,
		}, store)
		runner.DryRun = dryRun
		runner.Force = force
		runner.Fix = fix
		runner.Stdout = cmd.OutOrStdout()
		runner.Stderr = cmd.ErrOrStderr()

		err = runner.Run(session.Ctx, labels...)
		if err != nil {
			logger.Error().Err(err).Msg("Build failed")
			return eris.New("build failed")
		}

		return nil
	},
}

// relativeLabels turns the passed labels into absolute ones based on the package of the working directory
func relativeLabels(root string, args []string) ([]string, error) {
	pkgPath := ""
	wd, err := os.Getwd()
	if err == nil {
		rel, err := filepath.Rel(root, wd)
		if err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
			pkgPath = filepath.ToSlash(rel)
		}
	}

	labels := make([]string, 0, len(args))
	for _, arg := range args {
		l, err := buildsys.ParseLabel(pkgPath, arg)
		if err != nil {
			return nil, err
		}
		labels = append(labels, l.String())
	}

	return labels, nil
}

func init() {
	RootCmd.Flags().BoolP("dry", "n", false, "dry run; only print the commands, don't execute anything")
	RootCmd.Flags().BoolP("force", "f", false, "force build; always execute the passed steps even if they don't have to run")
	RootCmd.Flags().Bool("fix", false, "let copyright_checker targets add missing headers")
}
