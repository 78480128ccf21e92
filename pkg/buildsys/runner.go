package buildsys

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/etas-contrib/score-docs-as-code/pkg/state"
)

// HelperBinary is prepended to mv, rm and mkdir calls in shell commands so they behave the same on all platforms.
// Commands run unchanged while it's empty.
var HelperBinary = ""

// Settings carries the tool configuration the rule actions need
type Settings struct {
	Tags      []string
	DocsTitle string
}

// Runner executes targets after their dependencies and skips those whose inputs didn't change
type Runner struct {
	Workspace *Workspace
	Settings  Settings
	// State is optional, without it every action runs
	State  *state.Store
	DryRun bool
	Force  bool
	Fix    bool
	Stdout io.Writer
	Stderr io.Writer

	runTargets map[string]bool
}

// NewRunner returns a runner that prints to the process' stdout and stderr
func NewRunner(ws *Workspace, settings Settings, store *state.Store) *Runner {
	return &Runner{
		Workspace:  ws,
		Settings:   settings,
		State:      store,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		runTargets: map[string]bool{},
	}
}

var defaultExecHandler = interp.DefaultExecHandler(2 * time.Second)

func execHandler(helper string) interp.ExecHandlerFunc {
	return func(ctx context.Context, args []string) error {
		if helper != "" && len(args) > 0 {
			switch args[0] {
			case "mv", "rm", "mkdir":
				args = append([]string{helper}, args...)
			}
		}

		return defaultExecHandler(ctx, args)
	}
}

var defaultOpenHandler = interp.DefaultOpenHandler()

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return defaultOpenHandler(ctx, path, flag, perm)
}

func resolvePatternLists(projectRoot, base string, patterns []string) ([]string, error) {
	result := []string{}
	cfg := expand.Config{
		ReadDir:  shellReadDir,
		GlobStar: true,
	}

	parser := syntax.NewParser()
	parserCtx := &parserCtx{
		filepath:    filepath.Join(base, "BUILD"),
		projectRoot: projectRoot,
	}

	for _, item := range patterns {
		item = normalizePath(parserCtx, item)
		item = filepath.ToSlash(item)

		words := make([]*syntax.Word, 0)
		err := parser.Words(strings.NewReader(item), func(w *syntax.Word) bool {
			words = append(words, w)
			return true
		})
		if err != nil {
			return nil, eris.Wrapf(err, "failed to parse pattern %s", item)
		}

		matches, err := expand.Fields(&cfg, words...)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to resolve pattern %s", item)
		}

		for _, match := range matches {
			// If a pattern didn't match anything, it's returned as a result. Skip those results.
			if !strings.ContainsAny(match, "*?[") {
				result = append(result, match)
			}
		}
	}
	return result, nil
}

// Run executes the given targets. Labels are relative to the root package.
func (r *Runner) Run(ctx context.Context, labels ...string) error {
	if r.runTargets == nil {
		r.runTargets = map[string]bool{}
	}

	for _, raw := range labels {
		l, err := ParseLabel("", raw)
		if err != nil {
			return err
		}

		target, err := r.Workspace.Lookup(l)
		if err != nil {
			return err
		}

		err = r.run(ctx, target, nil)
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *Runner) run(ctx context.Context, target *Target, stack []string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	key := target.Label.String()
	stack = append(stack, key)

	status, ok := r.runTargets[key]
	if ok {
		if status {
			log(ctx).Debug().Msgf("Target %s already run", key)
			return nil
		}

		return &CycleError{Path: stack}
	}

	r.runTargets[key] = false
	logger := targetLog(ctx, target)

	deps, err := r.Workspace.Dependencies(target)
	if err != nil {
		return err
	}

	for _, dep := range deps {
		err = r.run(ctx, dep, stack)
		if err != nil {
			if _, ok := err.(*CycleError); ok {
				return err
			}
			return eris.Wrapf(err, "target %s failed due to its dependency %s", key, dep.Label)
		}
	}

	if target.Kind == KindFilegroup {
		r.runTargets[key] = true
		return nil
	}

	inputs, err := r.inputsOf(target)
	if err != nil {
		return err
	}

	outputs, err := r.Workspace.OutputsOf(target)
	if err != nil {
		return err
	}

	fingerprint, err := r.fingerprint(target, inputs)
	if err != nil {
		return err
	}

	if !r.Force && r.upToDate(target, fingerprint, outputs) {
		logger.Info().Msg("nothing to do (inputs unchanged)")
		r.runTargets[key] = true
		return nil
	}

	if r.DryRun && target.Kind != KindTask {
		logger.Info().Msgf("would run %s with %d inputs", target.Kind, len(inputs))
		r.runTargets[key] = true
		return nil
	}

	err = r.execute(ctx, target, inputs)
	if err != nil {
		return err
	}

	if r.cacheable(target) && !r.DryRun {
		err = r.State.Put(key, state.Record{
			Fingerprint: fingerprint,
			Outputs:     outputs,
			Updated:     time.Now(),
		})
		if err != nil {
			return err
		}
	}

	r.runTargets[key] = true
	return nil
}

func (r *Runner) cacheable(target *Target) bool {
	if r.State == nil {
		return false
	}

	switch target.Kind {
	case KindCopyright, KindSourcelinks, KindDocs, KindNeedsJSON:
		return true
	case KindTask:
		return len(target.Outputs) > 0
	}
	return false
}

func (r *Runner) upToDate(target *Target, fingerprint string, outputs []string) bool {
	if !r.cacheable(target) {
		return false
	}

	record, found, err := r.State.Get(target.Label.String())
	if err != nil || !found || record.Fingerprint != fingerprint {
		return false
	}

	for _, output := range outputs {
		if _, err := os.Stat(output); err != nil {
			return false
		}
	}
	return true
}

// inputsOf lists every file whose contents influence the result of a target
func (r *Runner) inputsOf(target *Target) ([]string, error) {
	switch target.Kind {
	case KindDocs, KindNeedsJSON:
		data, err := r.Workspace.ResolveData(target)
		if err != nil {
			return nil, err
		}

		sources, err := r.Workspace.resolvePath(target, target.Attrs["source_dir"])
		if err != nil {
			return nil, err
		}

		return append(sources, data...), nil
	case KindCLIHelper:
		return []string{}, nil
	}

	return r.Workspace.ResolveSrcs(target)
}

func (r *Runner) fingerprint(target *Target, inputs []string) (string, error) {
	hash := sha256.New()
	fmt.Fprintf(hash, "kind=%s\n", target.Kind)

	attrs := make([]string, 0, len(target.Attrs))
	for key := range target.Attrs {
		attrs = append(attrs, key)
	}
	sort.Strings(attrs)
	for _, key := range attrs {
		fmt.Fprintf(hash, "attr %s=%s\n", key, target.Attrs[key])
	}

	for _, cmd := range target.Cmds {
		if script, ok := cmd.(TaskCmdScript); ok {
			fmt.Fprintf(hash, "cmd %s\n", script.Content)
		} else if ref, err := cmd.ToTarget(); err == nil && ref != nil {
			fmt.Fprintf(hash, "cmd %s\n", ref.Label)
		}
	}

	switch target.Kind {
	case KindSourcelinks:
		fmt.Fprintf(hash, "tags=%s\n", strings.Join(r.Settings.Tags, ","))
	case KindDocs, KindNeedsJSON:
		fmt.Fprintf(hash, "title=%s\n", r.Settings.DocsTitle)
	}

	// rule config files are read by the action but aren't listed as inputs
	for _, key := range []string{"config", "template", "metamodel"} {
		path, err := r.Workspace.ResolveFile(target, target.Attrs[key])
		if err != nil {
			return "", err
		}
		if path == "" {
			continue
		}

		content, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			fmt.Fprintf(hash, "%s %s missing\n", key, path)
			continue
		}
		if err != nil {
			return "", eris.Wrapf(err, "failed to read %s %s", key, path)
		}
		fmt.Fprintf(hash, "%s %s %d\n", key, path, len(content))
		hash.Write(content)
	}

	for _, path := range inputs {
		content, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			// outputs of dependencies skipped by a dry run
			fmt.Fprintf(hash, "input %s missing\n", path)
			continue
		}
		if err != nil {
			return "", eris.Wrapf(err, "failed to read input %s", path)
		}

		fmt.Fprintf(hash, "input %s %d\n", path, len(content))
		hash.Write(content)
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

func getTaskEnv(target *Target) expand.Environ {
	return expand.ListEnviron(getEnvVars(target.Env)...)
}

func (r *Runner) runTask(ctx context.Context, target *Target) error {
	logger := targetLog(ctx, target)

	base := target.Attrs["base"]
	if base == "" {
		base = target.Dir
	}

	runner, err := interp.New(
		interp.Dir(base),
		interp.Env(getTaskEnv(target)),
		interp.ExecHandler(execHandler(HelperBinary)),
		interp.OpenHandler(openHandler),
		interp.StdIO(nil, r.Stdout, r.Stderr),
		interp.Params("-e"),
	)
	if err != nil {
		return eris.Wrap(err, "failed to initialize runner")
	}

	parser := syntax.NewParser()
	printer := syntax.NewPrinter(
		syntax.Minify(true),
	)
	strBuffer := strings.Builder{}

	for _, item := range target.Cmds {
		stmts, err := item.ToShellStmts(parser)
		if err != nil {
			return eris.Wrap(err, "failed to parse shell script")
		}

		if stmts != nil {
			for _, stm := range stmts {
				strBuffer.Reset()
				err = printer.Print(&strBuffer, stm)
				if err != nil {
					return eris.Wrap(err, "failed to print command")
				}

				logger.Info().
					Bool("command", true).
					Msg(strBuffer.String())

				if !r.DryRun {
					err = runner.Run(ctx, stm)
					if err != nil {
						return eris.Wrapf(err, "%s: command failed", target.Label)
					}

					if runner.Exited() {
						return nil
					}
				}
			}
		} else {
			sub, err := item.ToTarget()
			if err != nil {
				return eris.Wrap(err, "failed to retrieve target ref")
			}

			if sub == nil {
				return eris.Errorf("unexpected task command %+v", item)
			}

			err = r.run(ctx, sub, []string{target.Label.String()})
			if err != nil {
				return err
			}
		}

		if err = ctx.Err(); err != nil {
			return err
		}
	}

	return nil
}
