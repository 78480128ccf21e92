package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleWriter(t *testing.T) {
	out := bytes.Buffer{}
	logger := zerolog.New(NewConsoleWriter(&out))

	logger.Info().Str("target", "//:docs").Msg("nothing to do")
	assert.Contains(t, out.String(), "//:docs: nothing to do")

	out.Reset()
	logger.Error().Err(eris.New("boom")).Msg("Build failed")
	assert.Contains(t, out.String(), "Error: Build failed")
	assert.Contains(t, out.String(), "boom")

	out.Reset()
	wd, err := os.Getwd()
	require.NoError(t, err)
	logger.Info().Str("file", filepath.Join(wd, "out", "needs.json")).Msg("Wrote needs")
	assert.Contains(t, out.String(), "Wrote needs ("+filepath.Join("out", "needs.json")+")")
}

func TestConsoleWriterRejectsGarbage(t *testing.T) {
	_, err := NewConsoleWriter(&bytes.Buffer{}).Write([]byte("not json"))
	assert.Error(t, err)
}

func TestRelativeLabels(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	labels, err := relativeLabels(filepath.Dir(wd), []string{":docs", "//:copyright", "@ext//x:y"})
	require.NoError(t, err)
	assert.Equal(t, []string{"//" + filepath.Base(wd) + ":docs", "//:copyright", "@ext//x:y"}, labels)

	_, err = relativeLabels(wd, []string{"//a:b:c"})
	assert.Error(t, err)
}
