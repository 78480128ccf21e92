package buildsys

import (
	"path"
	"strings"

	"github.com/rotisserie/eris"
)

// Label identifies a target: @repo//pkg/path:name
type Label struct {
	Repo string
	Pkg  string
	Name string
}

func (l Label) String() string {
	prefix := ""
	if l.Repo != "" {
		prefix = "@" + l.Repo
	}
	return prefix + "//" + l.Pkg + ":" + l.Name
}

// PackageKey identifies the package the label belongs to
func (l Label) PackageKey() string {
	return l.Repo + "//" + l.Pkg
}

// IsLabel reports whether a source entry refers to a target instead of a plain path
func IsLabel(entry string) bool {
	return strings.HasPrefix(entry, "//") || strings.HasPrefix(entry, ":") || strings.HasPrefix(entry, "@")
}

// ParseLabel parses s relative to the package pkg. Accepted forms are @repo//pkg:name, //pkg:name, //pkg
// (the name is the last path element), :name and name.
func ParseLabel(pkg, s string) (Label, error) {
	label := Label{}
	rest := s

	if strings.HasPrefix(rest, "@") {
		pos := strings.Index(rest, "//")
		if pos == -1 {
			return label, eris.Errorf("invalid label %q: missing // after repository name", s)
		}

		label.Repo = rest[1:pos]
		if label.Repo == "" {
			return label, eris.Errorf("invalid label %q: empty repository name", s)
		}
		rest = rest[pos:]
	}

	if strings.Count(rest, ":") > 1 {
		return label, eris.Errorf("invalid label %q: more than one ':'", s)
	}

	switch {
	case strings.HasPrefix(rest, "//"):
		rest = rest[2:]
		pos := strings.Index(rest, ":")
		if pos == -1 {
			label.Pkg = rest
			label.Name = path.Base(rest)
			if rest == "" {
				label.Name = ""
			}
		} else {
			label.Pkg = rest[:pos]
			label.Name = rest[pos+1:]
		}
	case strings.HasPrefix(rest, ":"):
		label.Pkg = pkg
		label.Name = rest[1:]
	default:
		if label.Repo != "" || strings.Contains(rest, ":") {
			return label, eris.Errorf("invalid label %q", s)
		}
		label.Pkg = pkg
		label.Name = rest
	}

	label.Pkg = strings.TrimSuffix(label.Pkg, "/")
	if label.Name == "" {
		return label, eris.Errorf("invalid label %q: empty target name", s)
	}

	for _, segment := range strings.Split(label.Pkg, "/") {
		if segment == ".." || segment == "." {
			return label, eris.Errorf("invalid label %q: relative package segments are not allowed", s)
		}
	}

	for _, segment := range strings.Split(label.Name, "/") {
		if segment == ".." {
			return label, eris.Errorf("invalid label %q: relative name segments are not allowed", s)
		}
	}

	return label, nil
}
