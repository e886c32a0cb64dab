package trees

import (
	"bytes"
	"context"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(files map[string]string) *Handler {
	fs := afero.NewMemMapFs()
	for path, content := range files {
		_ = afero.WriteFile(fs, path, []byte(content), 0o644)
	}
	return &Handler{fs: fs}
}

func TestRunPrintsTrees(t *testing.T) {
	color.NoColor = true

	h := newTestHandler(map[string]string{
		"templates/page.tmpl": `{{define "header"}}<h1>{{.Title}}</h1>{{end}}{{template "header" .}}`,
	})
	h.Patterns = []string{"templates/*.tmpl"}

	var out bytes.Buffer
	err := h.Run(context.Background(), &out)
	require.NoError(t, err)

	got := out.String()
	assert.Contains(t, got, "header (tree 2)")
	assert.Contains(t, got, "templates/page.tmpl (tree 1)")
	assert.Contains(t, got, "<h1>{{.Title}}</h1>")
	assert.Contains(t, got, `{{template "header" .}}`)
}

func TestRunShowsFields(t *testing.T) {
	color.NoColor = true

	h := newTestHandler(map[string]string{
		"a.tmpl": "{{.Name.First}} {{.Age}}",
	})
	h.Patterns = []string{"a.tmpl"}
	h.ShowFields = true

	var out bytes.Buffer
	err := h.Run(context.Background(), &out)
	require.NoError(t, err)

	got := out.String()
	assert.Contains(t, got, "  field .Age\n")
	assert.Contains(t, got, "  field .Name\n")
	assert.Contains(t, got, "  field .Name.First\n")
}

func TestRunFuncsFlag(t *testing.T) {
	color.NoColor = true

	files := map[string]string{
		"a.tmpl": `{{if eq .foo "bar"}}ok{{end}}`,
	}

	t.Run("without_funcs", func(t *testing.T) {
		h := newTestHandler(files)
		h.Patterns = []string{"a.tmpl"}

		var out bytes.Buffer
		err := h.Run(context.Background(), &out)
		require.Error(t, err)
		assert.ErrorContains(t, err, "function eq not defined")
	})

	t.Run("with_funcs", func(t *testing.T) {
		h := newTestHandler(files)
		h.Patterns = []string{"a.tmpl"}
		h.Funcs = []string{"eq"}

		var out bytes.Buffer
		err := h.Run(context.Background(), &out)
		require.NoError(t, err)
	})
}

func TestRunDynamicFlag(t *testing.T) {
	color.NoColor = true

	files := map[string]string{
		"a.tmpl": "{{template (.name) .}}",
	}

	t.Run("disabled", func(t *testing.T) {
		h := newTestHandler(files)
		h.Patterns = []string{"a.tmpl"}

		var out bytes.Buffer
		err := h.Run(context.Background(), &out)
		require.Error(t, err)
		assert.ErrorContains(t, err, "dynamic template names are not enabled")
	})

	t.Run("enabled", func(t *testing.T) {
		h := newTestHandler(files)
		h.Patterns = []string{"a.tmpl"}
		h.Dynamic = true

		var out bytes.Buffer
		err := h.Run(context.Background(), &out)
		require.NoError(t, err)
	})
}

func TestRunCollectsFailures(t *testing.T) {
	color.NoColor = true

	h := newTestHandler(map[string]string{
		"good.tmpl": "hello {{.name}}",
		"bad.tmpl":  "{{if .}}unterminated",
	})
	h.Patterns = []string{"*.tmpl"}

	var out bytes.Buffer
	err := h.Run(context.Background(), &out)
	require.Error(t, err)
	assert.ErrorContains(t, err, "bad.tmpl")

	// The good file is still reported.
	assert.Contains(t, out.String(), "hello {{.name}}")
}

func TestRunNoMatches(t *testing.T) {
	h := newTestHandler(nil)
	h.Patterns = []string{"missing/**/*.tmpl"}

	var out bytes.Buffer
	err := h.Run(context.Background(), &out)
	require.Error(t, err)
	assert.ErrorContains(t, err, "no files matched")
}

func TestNewTreesCommandFlags(t *testing.T) {
	cmd := NewTreesCommand()

	assert.NotNil(t, cmd.Flags().Lookup("funcs"))
	assert.NotNil(t, cmd.Flags().Lookup("dynamic"))
	assert.NotNil(t, cmd.Flags().Lookup("fields"))
	assert.Error(t, cmd.Args(cmd, nil), "at least one pattern is required")
}
