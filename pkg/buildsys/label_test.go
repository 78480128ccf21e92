package buildsys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLabel(t *testing.T) {
	tests := []struct {
		pkg      string
		input    string
		expected Label
	}{
		{"", "//src:all_sources", Label{Pkg: "src", Name: "all_sources"}},
		{"", "//src/extensions", Label{Pkg: "src/extensions", Name: "extensions"}},
		{"", "//:BUILD", Label{Pkg: "", Name: "BUILD"}},
		{"docs", ":needs_json", Label{Pkg: "docs", Name: "needs_json"}},
		{"docs", "needs_json", Label{Pkg: "docs", Name: "needs_json"}},
		{"", "@score_process//:needs_json", Label{Repo: "score_process", Pkg: "", Name: "needs_json"}},
		{"", "@score_tooling//cr_checker/resources:config", Label{Repo: "score_tooling", Pkg: "cr_checker/resources", Name: "config"}},
		{"", "//docs:sub/page.md", Label{Pkg: "docs", Name: "sub/page.md"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			l, err := ParseLabel(tt.pkg, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, l)
		})
	}
}

func TestParseLabelErrors(t *testing.T) {
	for _, input := range []string{"//", "//src:", ":", "//a:b:c", "//../x:y", "//src:../x", "@//x:y", "@repo", "@repo:x"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseLabel("", input)
			assert.Error(t, err)
		})
	}
}

func TestLabelString(t *testing.T) {
	assert.Equal(t, "//src:all_sources", Label{Pkg: "src", Name: "all_sources"}.String())
	assert.Equal(t, "//:docs", Label{Name: "docs"}.String())
	assert.Equal(t, "@score_process//:needs_json", Label{Repo: "score_process", Name: "needs_json"}.String())

	l, err := ParseLabel("", "//src/extensions")
	require.NoError(t, err)
	assert.Equal(t, "//src/extensions:extensions", l.String())
}

func TestIsLabel(t *testing.T) {
	assert.True(t, IsLabel("//:BUILD"))
	assert.True(t, IsLabel(":docs"))
	assert.True(t, IsLabel("@repo//:x"))
	assert.False(t, IsLabel("src"))
	assert.False(t, IsLabel("src/**/*.py"))
}
