package pkg

import (
	"io"
	"os"
	"path/filepath"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
)

// rootMarkers identify the top of a workspace, checked in this order in every directory
var rootMarkers = []string{"MODULE.bazel", "WORKSPACE", "WORKSPACE.bazel", "docs-tool.toml"}

// FindWorkspaceRoot walks up from dir until it finds a directory containing one of the workspace markers.
// Without any marker, the topmost directory with a BUILD file wins.
func FindWorkspaceRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", eris.Wrapf(err, "failed to resolve %s", dir)
	}

	buildDir := ""
	for {
		for _, marker := range rootMarkers {
			_, err := os.Stat(filepath.Join(dir, marker))
			if err == nil {
				return dir, nil
			}

			if !eris.Is(err, os.ErrNotExist) {
				return "", eris.Wrap(err, "error occurred while searching for the workspace root")
			}
		}

		for _, name := range []string{"BUILD", "BUILD.bazel"} {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				buildDir = dir
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if buildDir != "" {
		return buildDir, nil
	}
	return "", eris.New("workspace root not found")
}

func PrintTask(w io.Writer, msg string) {
	colorstring.Fprintf(w, "[blue][bold]==>[default] %s\n", msg)
}

func PrintSubtask(w io.Writer, msg string) {
	colorstring.Fprintf(w, "[green][bold]  ->[reset] %s\n", msg)
}

func PrintError(w io.Writer, msg string) {
	colorstring.Fprintf(w, "[red][bold]  ->[reset] %s\n", msg)
}
