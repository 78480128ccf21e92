package pkg

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0770))
	require.NoError(t, os.WriteFile(path, []byte{}, 0660))
}

func TestFindWorkspaceRoot(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "MODULE.bazel"))
	touch(t, filepath.Join(root, "src", "BUILD"))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "deep"), 0770))

	found, err := FindWorkspaceRoot(filepath.Join(root, "src", "deep"))
	require.NoError(t, err)
	assert.Equal(t, root, found)
}

func TestFindWorkspaceRootByBuildFile(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "BUILD"))
	touch(t, filepath.Join(root, "src", "BUILD"))

	found, err := FindWorkspaceRoot(filepath.Join(root, "src"))
	require.NoError(t, err)
	assert.Equal(t, root, found)
}

func TestPrintTask(t *testing.T) {
	out := bytes.Buffer{}
	PrintTask(&out, "Checking")
	PrintSubtask(&out, "a.py")
	PrintError(&out, "b.py")

	assert.Contains(t, out.String(), "==>")
	assert.Contains(t, out.String(), "Checking")
	assert.Contains(t, out.String(), "  ->")
	assert.Contains(t, out.String(), "b.py")
}
