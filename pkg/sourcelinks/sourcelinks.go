// Package sourcelinks finds traceability tags in source files and reads, writes and merges
// the resulting link files.
package sourcelinks

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// DefaultTags lists the tags recognized when no explicit list is configured.
var DefaultTags = []string{"score:req:", "req-Id:", "req-traceability:"}

// NeedLink connects a single line of source code to a need
type NeedLink struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Tag      string `json:"tag"`
	Need     string `json:"need"`
	FullLine string `json:"full_line"`
}

// Location returns the file:line reference used in need listings
func (l NeedLink) Location() string {
	return l.File + ":" + strconv.Itoa(l.Line)
}

// Scanner finds tagged lines in source files.
type Scanner struct {
	// Root is used to turn scanned paths into relative paths. Leave empty to keep them as passed.
	Root string
	Tags []string

	pattern *regexp.Regexp
}

// NewScanner returns a scanner for the given tags. DefaultTags is used if tags is empty.
func NewScanner(root string, tags []string) (*Scanner, error) {
	if len(tags) == 0 {
		tags = DefaultTags
	}

	quoted := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(tag))
	}

	if len(quoted) == 0 {
		return nil, eris.New("no usable tags configured")
	}

	pattern, err := regexp.Compile(`(?:#|//)[ \t]*(?:` + strings.Join(quoted, "|") + `)`)
	if err != nil {
		return nil, eris.Wrap(err, "failed to compile tag pattern")
	}

	return &Scanner{
		Root:    root,
		Tags:    tags,
		pattern: pattern,
	}, nil
}

// ScanLine checks a single line for a tag. It returns the tag as written (including the comment marker)
// and the referenced need IDs.
func (s *Scanner) ScanLine(line string) (string, []string, bool) {
	loc := s.pattern.FindStringIndex(line)
	if loc == nil {
		return "", nil, false
	}

	tag := line[loc[0]:loc[1]]
	ids := make([]string, 0, 1)
	for _, part := range strings.Split(line[loc[1]:], ",") {
		id := strings.TrimSpace(part)
		if id != "" {
			ids = append(ids, id)
		}
	}

	if len(ids) == 0 {
		return "", nil, false
	}

	return tag, ids, true
}

// ScanFile returns all links found in the given file
func (s *Scanner) ScanFile(path string) ([]NeedLink, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", path)
	}

	name := s.displayPath(path)
	result := []NeedLink{}
	lineScanner := bufio.NewScanner(bytes.NewReader(content))
	lineScanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for lineScanner.Scan() {
		lineNo++
		line := lineScanner.Text()

		tag, ids, ok := s.ScanLine(line)
		if !ok {
			continue
		}

		for _, id := range ids {
			result = append(result, NeedLink{
				File:     name,
				Line:     lineNo,
				Tag:      tag,
				Need:     id,
				FullLine: strings.TrimSpace(line),
			})
		}
	}

	if err := lineScanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "failed to scan %s", path)
	}

	return result, nil
}

// ScanFiles scans every file in order and concatenates the results
func (s *Scanner) ScanFiles(paths []string) ([]NeedLink, error) {
	result := []NeedLink{}
	for _, path := range paths {
		links, err := s.ScanFile(path)
		if err != nil {
			return nil, err
		}

		result = append(result, links...)
	}

	return result, nil
}

func (s *Scanner) displayPath(path string) string {
	if s.Root == "" {
		return filepath.ToSlash(path)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return filepath.ToSlash(path)
	}

	rel, err := filepath.Rel(s.Root, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}

	return filepath.ToSlash(rel)
}

// Read loads a link file
func Read(path string) ([]NeedLink, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", path)
	}

	var links []NeedLink
	err = json.Unmarshal(data, &links)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to decode %s", path)
	}

	for idx, link := range links {
		if link.File == "" || link.Need == "" {
			return nil, eris.Errorf("%s: entry #%d is missing the file or need field", path, idx)
		}
	}

	return links, nil
}

// Write stores links as a JSON array. Parent directories are created as needed.
func Write(path string, links []NeedLink) error {
	if links == nil {
		links = []NeedLink{}
	}

	data, err := json.MarshalIndent(links, "", "  ")
	if err != nil {
		return eris.Wrap(err, "failed to encode links")
	}

	err = os.MkdirAll(filepath.Dir(path), 0770)
	if err != nil {
		return eris.Wrapf(err, "failed to create directory for %s", path)
	}

	err = os.WriteFile(path, append(data, '\n'), 0660)
	if err != nil {
		return eris.Wrapf(err, "failed to write to %s", path)
	}

	return nil
}

// Merge reads all passed link files and returns their combined entries. Exact duplicates are dropped,
// the order of first occurrence is kept.
func Merge(paths ...string) ([]NeedLink, error) {
	seen := make(map[NeedLink]bool)
	result := []NeedLink{}

	for _, path := range paths {
		chunk, err := Read(path)
		if err != nil {
			return nil, err
		}

		for _, link := range chunk {
			if !seen[link] {
				seen[link] = true
				result = append(result, link)
			}
		}
	}

	return result, nil
}

// IsLinkFile reports whether path looks like a link file produced by Write
func IsLinkFile(path string) bool {
	if filepath.Ext(path) != ".json" {
		return false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}

	data = bytes.TrimSpace(data)
	return len(data) > 0 && data[0] == '['
}
