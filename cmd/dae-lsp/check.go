package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"daelsp/internal/analysis"
	"daelsp/internal/dae"
	"daelsp/internal/index"
	"daelsp/internal/parser"
	"daelsp/internal/resolver"
	"daelsp/internal/textstore"

	"github.com/spf13/cobra"
)

type checkedFile struct {
	path  string
	uri   string
	text  string
	tree  *parser.Tree
	lines *textstore.LineIndex
}

var severityNames = map[analysis.Severity]string{
	analysis.SeverityError:       "error",
	analysis.SeverityWarning:     "warning",
	analysis.SeverityInformation: "info",
	analysis.SeverityHint:        "hint",
}

func runCheck(cmd *cobra.Command, args []string) error {
	configureLogging()
	errors, err := check(cmd.OutOrStdout(), args)
	if err != nil {
		return err
	}
	if errors > 0 {
		exitCode = 1
	}
	return nil
}

// check analyzes the files together, so that names declared in one resolve
// in the others, and prints one line per diagnostic. It returns the number
// of errors.
func check(w io.Writer, paths []string) (int, error) {
	lang := dae.Language{}
	analyzer := analysis.New(lang)
	idx := index.New()

	files := make([]checkedFile, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return 0, err
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return 0, err
		}
		f := checkedFile{
			path:  p,
			uri:   resolver.URIFromPath(abs),
			text:  string(data),
			lines: textstore.NewLineIndex(string(data)),
		}
		f.tree = parser.Parse(lang.Grammar(), nil, f.text, nil)
		idx.SetDisk(f.uri, analyzer.Symbols(f.uri, f.tree, f.text).All())
		files = append(files, f)
	}

	errors := 0
	for _, f := range files {
		res, err := analyzer.Analyze(context.Background(), analysis.Input{
			URI:       f.uri,
			Text:      f.text,
			Tree:      f.tree,
			Lines:     f.lines,
			Workspace: idx,
		})
		if err != nil {
			return errors, err
		}
		for _, d := range res.Diagnostics {
			pos := f.lines.Position(d.Start)
			code := ""
			if d.Code != "" {
				code = " [" + d.Code + "]"
			}
			fmt.Fprintf(w, "%s:%d:%d: %s: %s%s\n", f.path, pos.Line+1, pos.Character+1, severityNames[d.Severity], d.Message, code)
			if d.Severity == analysis.SeverityError {
				errors++
			}
		}
	}
	return errors, nil
}
