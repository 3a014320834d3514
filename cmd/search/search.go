// Package search implements the one-shot command-line search: compile the
// given source documents, fan the keyword out, print a table.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/windvane/booksource/engine"
	"github.com/windvane/booksource/fetch"
	"github.com/windvane/booksource/log"
	"github.com/windvane/booksource/pipeline"
	"github.com/windvane/booksource/source"
)

var SearchCmd = &cobra.Command{
	Use:   "search",
	Short: "search the given book sources for a keyword.",
	Long:  "search the given book sources for a keyword.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		Run()
	},
}

func init() {
	SearchCmd.Flags().StringArrayVar(
		&sourceFiles, "source", nil, "book source document file, repeatable")

	SearchCmd.Flags().StringVar(
		&keyword, "keyword", "", "search keyword")

	SearchCmd.Flags().IntVar(
		&page, "page", 1, "result page to request")

	SearchCmd.Flags().BoolVar(
		&asJSON, "json", false, "print JSON instead of a table")

	SearchCmd.Flags().IntVar(
		&timeoutSec, "timeout", 60, "overall timeout in seconds")

	_ = SearchCmd.MarkFlagRequired("source")
	_ = SearchCmd.MarkFlagRequired("keyword")
}

var sourceFiles []string
var keyword string
var page int
var asJSON bool
var timeoutSec int

type sourceReport struct {
	Source string           `json:"source"`
	Books  []*pipeline.Book `json:"books"`
	Error  string           `json:"error,omitempty"`
}

func Run() {
	// results go to stdout, diagnostics to stderr
	logger := log.NewLogger(log.NewStderrPlugin(zapcore.WarnLevel))

	var sources []*source.Source
	for _, path := range sourceFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Fatal("read source file", zap.String("file", path), zap.Error(err))
		}
		src, err := source.Compile(data)
		if err != nil {
			logger.Fatal("compile source", zap.String("file", path), zap.Error(err))
		}
		sources = append(sources, src)
	}

	x := pipeline.New(fetch.NewClient(fetch.WithLogger(logger)))
	eng := engine.New(x, engine.WithLogger(logger))

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSec)*time.Second)
	defer cancel()

	reports := make([]sourceReport, 0, len(sources))
	for _, res := range eng.SearchAll(ctx, sources, keyword, page) {
		rep := sourceReport{Books: res.Books}
		if res.Source != nil {
			rep.Source = res.Source.Name
		}
		if res.Err != nil {
			rep.Error = res.Err.Error()
		}
		if rep.Books == nil {
			rep.Books = []*pipeline.Book{}
		}
		reports = append(reports, rep)
	}

	if asJSON {
		out, err := json.MarshalIndent(reports, "", "  ")
		if err != nil {
			logger.Fatal("encode results", zap.Error(err))
		}
		fmt.Println(string(out))
		return
	}
	renderTable(reports)
}

func renderTable(reports []sourceReport) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Source", "Name", "Author", "Latest", "URL"})

	total := 0
	for _, rep := range reports {
		for _, b := range rep.Books {
			total++
			t.AppendRow(table.Row{total, rep.Source, b.Name, b.Author, b.LastChapter, b.BookURL})
		}
	}
	t.AppendFooter(table.Row{"Total", total, fmt.Sprintf("Keyword: %s", keyword), "", "", ""})
	t.Render()

	for _, rep := range reports {
		if rep.Error != "" {
			fmt.Fprintf(os.Stderr, "source %s failed: %s\n", rep.Source, rep.Error)
		}
	}
}
