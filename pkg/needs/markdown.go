package needs

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// DefaultLinkNames is used by the markdown parser if no link names are configured
var DefaultLinkNames = []string{
	"includes",
	"consists_of",
	"implements",
	"uses",
	"included_by",
	"satisfies",
	"fulfils",
	"complies",
}

var (
	fenceRe     = regexp.MustCompile("^ {0,3}(`{3,}|~{3,}|:{3,})(.*)$")
	directiveRe = regexp.MustCompile(`^\{([A-Za-z0-9_\-]+)\}\s*(.*)$`)
	optionRe    = regexp.MustCompile(`^:([A-Za-z0-9_\-]+):\s*(.*)$`)
)

// ParseOptions controls which directives are turned into needs
type ParseOptions struct {
	// Types limits the accepted directive names. If empty, every directive with an :id: option is accepted.
	Types map[string]bool
	// LinkNames lists options that contain comma separated need IDs. Defaults to DefaultLinkNames.
	LinkNames map[string]bool
}

// Directive is a need definition found in a markdown document
type Directive struct {
	Need *Need
	// StartLine and EndLine are the 1-based lines of the opening and closing fence
	StartLine int
	EndLine   int
}

// Fence is any fenced block in a markdown document
type Fence struct {
	Info      string
	Body      []string
	StartLine int
	EndLine   int
}

// ScanFences returns all fenced blocks in document order. Unterminated fences are an error.
func ScanFences(docname string, content []byte) ([]Fence, error) {
	lines := splitLines(content)
	result := []Fence{}

	for idx := 0; idx < len(lines); idx++ {
		m := fenceRe.FindStringSubmatch(lines[idx])
		if m == nil {
			continue
		}

		marker := m[1]
		fence := Fence{
			Info:      strings.TrimSpace(m[2]),
			StartLine: idx + 1,
		}

		closed := false
		for idx++; idx < len(lines); idx++ {
			if isClosingFence(lines[idx], marker) {
				closed = true
				break
			}

			fence.Body = append(fence.Body, lines[idx])
		}

		if !closed {
			return nil, eris.Errorf("%s:%d: unterminated fence", docname, fence.StartLine)
		}

		fence.EndLine = idx + 1
		result = append(result, fence)
	}

	return result, nil
}

// ScanDirectives finds all need directives in a MyST markdown document
func ScanDirectives(docname string, content []byte, opts ParseOptions) ([]Directive, error) {
	fences, err := ScanFences(docname, content)
	if err != nil {
		return nil, err
	}

	linkNames := opts.LinkNames
	if len(linkNames) == 0 {
		linkNames = make(map[string]bool, len(DefaultLinkNames))
		for _, name := range DefaultLinkNames {
			linkNames[name] = true
		}
	}

	result := []Directive{}
	for _, fence := range fences {
		m := directiveRe.FindStringSubmatch(fence.Info)
		if m == nil {
			continue
		}

		typ := m[1]
		if len(opts.Types) > 0 && !opts.Types[typ] {
			continue
		}

		need := New("", typ, strings.TrimSpace(m[2]))
		need.Docname = docname
		need.Lineno = fence.StartLine

		body := fence.Body
		for len(body) > 0 {
			om := optionRe.FindStringSubmatch(strings.TrimSpace(body[0]))
			if om == nil {
				break
			}
			body = body[1:]

			key, value := om[1], strings.TrimSpace(om[2])
			switch {
			case key == "id":
				need.ID = value
			case key == "status":
				need.Status = value
			case linkNames[key]:
				need.Links[key] = splitList(value)
			default:
				need.Options[key] = value
			}
		}

		need.Content = strings.TrimSpace(strings.Join(body, "\n"))

		if need.ID == "" {
			if len(opts.Types) == 0 {
				// plain MyST directive (note, admonition, ...)
				continue
			}

			return nil, eris.Errorf("%s:%d: %s directive without :id:", docname, fence.StartLine, typ)
		}

		result = append(result, Directive{
			Need:      need,
			StartLine: fence.StartLine,
			EndLine:   fence.EndLine,
		})
	}

	return result, nil
}

// ParseMarkdown returns the needs defined in a markdown document
func ParseMarkdown(docname string, content []byte, opts ParseOptions) ([]*Need, error) {
	directives, err := ScanDirectives(docname, content, opts)
	if err != nil {
		return nil, err
	}

	result := make([]*Need, len(directives))
	for idx, directive := range directives {
		result[idx] = directive.Need
	}

	return result, nil
}

func isClosingFence(line, marker string) bool {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) < len(marker) {
		return false
	}

	return strings.Trim(trimmed, marker[:1]) == ""
}

func splitList(value string) []string {
	result := []string{}
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

func splitLines(content []byte) []string {
	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	return strings.Split(text, "\n")
}
