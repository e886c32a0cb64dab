// Package trees implements the "trees" subcommand: glob template files,
// parse each one, and print the named parse trees it defines.
package trees

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
	"go.uber.org/multierr"

	"github.com/walteh/gotmplparse/pkg/parser"
)

// Handler holds the resolved command configuration.
type Handler struct {
	Funcs      []string
	Dynamic    bool
	ShowFields bool
	ForceColor bool
	Patterns   []string

	fs afero.Fs
}

func NewTreesCommand() *cobra.Command {
	h := &Handler{fs: afero.NewOsFs()}

	cmd := &cobra.Command{
		Use:   "trees [patterns...]",
		Short: "Parse template files and print their named parse trees",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h.Patterns = args
			return h.Run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringSliceVar(&h.Funcs, "funcs", nil, "comma-separated names of known template functions")
	cmd.Flags().BoolVar(&h.Dynamic, "dynamic", false, "enable dynamic template names in {{template}} actions")
	cmd.Flags().BoolVar(&h.ShowFields, "fields", false, "also print the field paths each tree references")
	cmd.Flags().BoolVar(&h.ForceColor, "color", false, "force colored output even when stdout is not a terminal")

	return cmd
}

// Run globs the patterns over the handler's filesystem and parses every
// match. Parse failures are logged and collected so every file gets
// reported before the command fails.
func (h *Handler) Run(ctx context.Context, out io.Writer) error {
	logger := zerolog.Ctx(ctx)
	iofs := afero.NewIOFS(h.fs)
	if h.ForceColor {
		color.NoColor = false
	}

	var errs error
	matched := 0
	for _, pattern := range h.Patterns {
		matches, err := doublestar.Glob(iofs, pattern)
		if err != nil {
			return errors.Errorf("invalid pattern %q: %w", pattern, err)
		}
		for _, match := range matches {
			matched++
			logger.Debug().Str("file", match).Msg("parsing template")
			if err := h.processFile(out, match); err != nil {
				logger.Error().Err(err).Str("file", match).Msg("parse failed")
				errs = multierr.Append(errs, err)
			}
		}
	}
	if matched == 0 {
		return errors.Errorf("no files matched %v", h.Patterns)
	}
	return errs
}

func (h *Handler) processFile(out io.Writer, path string) error {
	content, err := afero.ReadFile(h.fs, path)
	if err != nil {
		return errors.Errorf("reading %s: %w", path, err)
	}

	p := parser.New(path, h.Funcs...)
	p.DynamicTemplates = h.Dynamic
	treeSet, err := p.Parse(string(content))
	if err != nil {
		return errors.Errorf("parsing %s: %w", path, err)
	}

	names := make([]string, 0, len(treeSet))
	for name := range treeSet {
		names = append(names, name)
	}
	sort.Strings(names)

	header := color.New(color.FgCyan, color.Bold)
	for _, name := range names {
		tree := treeSet[name]
		fmt.Fprintf(out, "%s (tree %d)\n", header.Sprint(name), tree.ID)
		if tree.Root != nil {
			fmt.Fprintln(out, tree.Root.String())
		}
		if h.ShowFields && len(tree.Fields) > 0 {
			fields := make([]string, 0, len(tree.Fields))
			for f := range tree.Fields {
				fields = append(fields, f)
			}
			sort.Strings(fields)
			for _, f := range fields {
				fmt.Fprintf(out, "  field %s\n", f)
			}
		}
		fmt.Fprintln(out)
	}
	return nil
}
