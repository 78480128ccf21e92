// Package copyright checks and fixes license headers at the top of source files.
package copyright

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"gopkg.in/yaml.v3"
)

// DefaultAuthor is used when the config doesn't name one
const DefaultAuthor = "Contributors to the Eclipse Foundation"

// DefaultTemplate is the Eclipse SCORE Apache 2.0 header
const DefaultTemplate = `*******************************************************************************
Copyright (c) {year} {author}

See the NOTICE file(s) distributed with this work for additional
information regarding copyright ownership.

This program and the accompanying materials are made available under the
terms of the Apache License Version 2.0 which is available at
https://www.apache.org/licenses/LICENSE-2.0

SPDX-License-Identifier: Apache-2.0
*******************************************************************************
`

const yearPattern = `\d{4}(-\d{4})?`

// CommentStyle describes how a header is commented out. Begin and End are optional lines around the
// header, Line prefixes every header line.
type CommentStyle struct {
	Begin string `yaml:"begin"`
	Line  string `yaml:"line"`
	End   string `yaml:"end"`
}

// Config selects comment styles by file extension (or full base name, e.g. BUILD)
type Config struct {
	Extensions map[string]CommentStyle `yaml:"extensions"`
	Exclude    []string                `yaml:"exclude"`
	Author     string                  `yaml:"author"`
}

// DefaultConfig returns the built-in comment styles
func DefaultConfig() Config {
	hash := CommentStyle{Line: "#"}
	block := CommentStyle{Begin: "/*", Line: " *", End: " */"}

	cfg := Config{
		Extensions: map[string]CommentStyle{},
		Author:     DefaultAuthor,
	}
	for _, ext := range []string{".py", ".sh", ".bzl", ".star", "BUILD", "BUILD.bazel"} {
		cfg.Extensions[ext] = hash
	}
	for _, ext := range []string{".go", ".c", ".cc", ".h", ".hpp", ".cpp", ".rs", ".js", ".ts"} {
		cfg.Extensions[ext] = block
	}

	return cfg
}

// LoadConfig reads a YAML config. Missing fields fall back to DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return cfg, eris.Wrapf(err, "failed to read %s", path)
	}

	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return cfg, eris.Wrapf(err, "failed to parse %s", path)
	}

	defaults := DefaultConfig()
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = defaults.Extensions
	}
	if cfg.Author == "" {
		cfg.Author = defaults.Author
	}

	return cfg, nil
}

// Violation is a file without a valid header
type Violation struct {
	File   string
	Line   int
	Reason string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s:%d: %s", v.File, v.Line, v.Reason)
}

// Checker compares files against a header template
type Checker struct {
	Config   Config
	Template string
	Logger   zerolog.Logger
	// Root is the directory exclude patterns are relative to
	Root string

	patterns map[CommentStyle][]*regexp.Regexp
}

// NewChecker returns a checker for cfg. An empty template selects DefaultTemplate.
func NewChecker(cfg Config, template string, logger zerolog.Logger) *Checker {
	if template == "" {
		template = DefaultTemplate
	}
	if cfg.Author == "" {
		cfg.Author = DefaultAuthor
	}

	return &Checker{
		Config:   cfg,
		Template: template,
		Logger:   logger,
		patterns: map[CommentStyle][]*regexp.Regexp{},
	}
}

func (c *Checker) styleFor(path string) (CommentStyle, bool) {
	if style, ok := c.Config.Extensions[filepath.Base(path)]; ok {
		return style, true
	}

	ext := filepath.Ext(path)
	if ext == "" {
		return CommentStyle{}, false
	}

	style, ok := c.Config.Extensions[ext]
	return style, ok
}

func (c *Checker) excluded(path string) bool {
	if c.Root != "" {
		root, rootErr := filepath.Abs(c.Root)
		abs, err := filepath.Abs(path)
		if rootErr == nil && err == nil {
			if rel, err := filepath.Rel(root, abs); err == nil && !strings.HasPrefix(rel, "..") {
				path = rel
			}
		}
	}

	slashed := filepath.ToSlash(path)
	base := filepath.Base(path)
	for _, pattern := range c.Config.Exclude {
		if ok, _ := filepath.Match(pattern, slashed); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
		if strings.HasSuffix(pattern, "/**") && strings.HasPrefix(slashed, strings.TrimSuffix(pattern, "**")) {
			return true
		}
	}
	return false
}

// render comments out every template line. The placeholders are left in place.
func (c *Checker) render(style CommentStyle) []string {
	lines := []string{}
	if style.Begin != "" {
		lines = append(lines, style.Begin)
	}

	for _, line := range strings.Split(strings.TrimRight(c.Template, "\n"), "\n") {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			lines = append(lines, strings.TrimRight(style.Line, " \t"))
		} else {
			lines = append(lines, style.Line+" "+line)
		}
	}

	if style.End != "" {
		lines = append(lines, style.End)
	}
	return lines
}

func (c *Checker) patternsFor(style CommentStyle) []*regexp.Regexp {
	if result, ok := c.patterns[style]; ok {
		return result
	}

	author := regexp.QuoteMeta(c.Config.Author)
	result := []*regexp.Regexp{}
	for _, line := range c.render(style) {
		quoted := regexp.QuoteMeta(line)
		quoted = strings.ReplaceAll(quoted, regexp.QuoteMeta("{year}"), yearPattern)
		quoted = strings.ReplaceAll(quoted, regexp.QuoteMeta("{author}"), author)
		result = append(result, regexp.MustCompile("^"+quoted+"$"))
	}

	c.patterns[style] = result
	return result
}

// Header returns the commented header for path with the placeholders filled in
func (c *Checker) Header(path string, year int) (string, bool) {
	style, ok := c.styleFor(path)
	if !ok {
		return "", false
	}

	replacer := strings.NewReplacer("{year}", strconv.Itoa(year), "{author}", c.Config.Author)
	buf := strings.Builder{}
	for _, line := range c.render(style) {
		buf.WriteString(replacer.Replace(line))
		buf.WriteString("\n")
	}
	return buf.String(), true
}

// headerStart skips a shebang and blank lines
func headerStart(lines []string) int {
	idx := 0
	if len(lines) > 0 && strings.HasPrefix(lines[0], "#!") {
		idx = 1
	}
	for idx < len(lines) && strings.TrimSpace(lines[idx]) == "" {
		idx++
	}
	return idx
}

func splitLines(data []byte) []string {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return strings.Split(text, "\n")
}

// Check looks for the header in path. Files with an unconfigured extension or matching an exclude
// pattern are skipped.
func (c *Checker) Check(path string) ([]Violation, error) {
	style, ok := c.styleFor(path)
	if !ok || c.excluded(path) {
		return nil, nil
	}

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", path)
	}

	lines := splitLines(data)
	start := headerStart(lines)
	for idx, pattern := range c.patternsFor(style) {
		lineNo := start + idx
		if lineNo < len(lines) && pattern.MatchString(strings.TrimRight(lines[lineNo], " \t")) {
			continue
		}

		line := lineNo + 1
		if line > len(lines) {
			line = len(lines)
		}

		if idx == 0 {
			return []Violation{{File: path, Line: line, Reason: "missing copyright header"}}, nil
		}
		return []Violation{{File: path, Line: line, Reason: fmt.Sprintf("header mismatch at line %d", line)}}, nil
	}

	return nil, nil
}

// Fix prepends the header to path if it's missing. A header that is present but doesn't match can't be
// fixed automatically and is returned as an error.
func (c *Checker) Fix(path string, year int) (bool, error) {
	violations, err := c.Check(path)
	if err != nil || len(violations) == 0 {
		return false, err
	}

	if violations[0].Reason != "missing copyright header" {
		return false, eris.Errorf("%s needs manual fixing", violations[0])
	}

	header, _ := c.Header(path, year)
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return false, eris.Wrapf(err, "failed to read %s", path)
	}

	content := string(data)
	prefix := ""
	if strings.HasPrefix(content, "#!") {
		end := strings.IndexByte(content, '\n')
		if end == -1 {
			prefix = content + "\n"
			content = ""
		} else {
			prefix = content[:end+1]
			content = content[end+1:]
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return false, eris.Wrapf(err, "failed to stat %s", path)
	}

	err = ioutil.WriteFile(path, []byte(prefix+header+"\n"+content), info.Mode())
	if err != nil {
		return false, eris.Wrapf(err, "failed to write %s", path)
	}

	c.Logger.Info().Str("file", path).Msg("Added copyright header")
	return true, nil
}

// CheckAll checks every file and returns the violations sorted by file
func (c *Checker) CheckAll(ctx context.Context, files []string) ([]Violation, error) {
	bar := progressBar(len(files), "Checking copyright headers")
	result := []Violation{}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		violations, err := c.Check(file)
		if err != nil {
			return nil, err
		}

		result = append(result, violations...)
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].File != result[j].File {
			return result[i].File < result[j].File
		}
		return result[i].Line < result[j].Line
	})

	return result, nil
}

func progressBar(length int, desc string) *progressbar.ProgressBar {
	if os.Getenv("CI") == "true" || !isTerminal(os.Stderr) {
		return progressbar.NewOptions(length, progressbar.OptionSetVisibility(false))
	}

	return progressbar.NewOptions(length,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
	)
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
