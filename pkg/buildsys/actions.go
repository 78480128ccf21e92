package buildsys

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"

	"github.com/etas-contrib/score-docs-as-code/pkg/copyright"
	"github.com/etas-contrib/score-docs-as-code/pkg/docs"
	"github.com/etas-contrib/score-docs-as-code/pkg/metamodel"
	"github.com/etas-contrib/score-docs-as-code/pkg/sourcelinks"
)

func (r *Runner) execute(ctx context.Context, target *Target, inputs []string) error {
	switch target.Kind {
	case KindCopyright:
		return r.checkCopyright(ctx, target, inputs)
	case KindSourcelinks:
		return r.writeSourcelinks(ctx, target, inputs)
	case KindDocs, KindNeedsJSON:
		return r.buildDocs(ctx, target)
	case KindCLIHelper:
		if err := r.Workspace.LoadAll(); err != nil {
			return err
		}
		r.Workspace.Listing(r.Stdout)
		return nil
	case KindTask:
		return r.runTask(ctx, target)
	case KindFilegroup:
		return nil
	}

	return eris.Errorf("%s: unsupported rule %s", target.Label, target.Kind)
}

func (r *Runner) checkCopyright(ctx context.Context, target *Target, inputs []string) error {
	logger := targetLog(ctx, target)

	cfg := copyright.DefaultConfig()
	configFile, err := r.Workspace.ResolveFile(target, target.Attrs["config"])
	if err != nil {
		return err
	}
	if configFile != "" {
		cfg, err = copyright.LoadConfig(configFile)
		if err != nil {
			return err
		}
	}

	template := copyright.DefaultTemplate
	templateFile, err := r.Workspace.ResolveFile(target, target.Attrs["template"])
	if err != nil {
		return err
	}
	if templateFile != "" {
		content, err := os.ReadFile(templateFile)
		if err != nil {
			return eris.Wrapf(err, "failed to read template %s", templateFile)
		}
		template = string(content)
	}

	checker := copyright.NewChecker(cfg, template, logger)
	checker.Root = r.Workspace.Root
	violations, err := checker.CheckAll(ctx, inputs)
	if err != nil {
		return err
	}

	if r.Fix && len(violations) > 0 {
		year := time.Now().Year()
		for _, v := range violations {
			_, err := checker.Fix(v.File, year)
			if err != nil {
				logger.Error().Str("file", v.File).Err(err).Msg("Could not fix header")
			}
		}

		violations, err = checker.CheckAll(ctx, inputs)
		if err != nil {
			return err
		}
	}

	for _, v := range violations {
		logger.Error().Str("file", v.File).Int("line", v.Line).Msg(v.Reason)
	}

	if len(violations) > 0 {
		return eris.Errorf("%s: %d of %d files have no valid copyright header", target.Label, len(violations), len(inputs))
	}

	logger.Info().Msgf("%d files checked", len(inputs))
	return nil
}

func (r *Runner) writeSourcelinks(ctx context.Context, target *Target, inputs []string) error {
	logger := targetLog(ctx, target)

	scanner, err := sourcelinks.NewScanner(r.Workspace.Root, r.Settings.Tags)
	if err != nil {
		return err
	}

	linkFiles := []string{}
	sources := []string{}
	for _, input := range inputs {
		if sourcelinks.IsLinkFile(input) {
			linkFiles = append(linkFiles, input)
		} else {
			sources = append(sources, input)
		}
	}

	links, err := scanner.ScanFiles(sources)
	if err != nil {
		return err
	}

	if len(linkFiles) > 0 {
		merged, err := sourcelinks.Merge(linkFiles...)
		if err != nil {
			return err
		}
		links = append(links, merged...)
	}

	outputs, err := r.Workspace.OutputsOf(target)
	if err != nil {
		return err
	}

	err = sourcelinks.Write(outputs[0], links)
	if err != nil {
		return err
	}

	logger.Info().Str("file", outputs[0]).Msgf("%d links from %d files", len(links), len(inputs))
	return nil
}

func (r *Runner) buildDocs(ctx context.Context, target *Target) error {
	logger := targetLog(ctx, target)

	data, err := r.Workspace.ResolveData(target)
	if err != nil {
		return err
	}

	var mm *metamodel.Metamodel
	metamodelFile, err := r.Workspace.ResolveFile(target, target.Attrs["metamodel"])
	if err != nil {
		return err
	}
	if metamodelFile != "" {
		mm, err = metamodel.Load(metamodelFile)
		if err != nil {
			return err
		}
	}

	title := target.Attrs["title"]
	if title == "" {
		title = r.Settings.DocsTitle
	}

	project := target.Attrs["project"]
	if project == "" {
		project = filepath.Base(r.Workspace.Root)
	}

	outputs, err := r.Workspace.OutputsOf(target)
	if err != nil {
		return err
	}

	builder := &docs.Builder{
		SourceDir: filepath.Join(target.Dir, filepath.FromSlash(target.Attrs["source_dir"])),
		OutDir:    filepath.Dir(outputs[0]),
		Data:      data,
		Metamodel: mm,
		Title:     title,
		Project:   project,
		Version:   target.Attrs["version"],
		Logger:    logger,
	}

	if target.Kind == KindNeedsJSON {
		_, err = builder.BuildNeedsJSON(ctx)
	} else {
		_, err = builder.Build(ctx)
	}
	return err
}
