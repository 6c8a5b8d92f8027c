// Command booksearch searches a book's search.json index from the terminal.
//
//	booksearch query --index site/it/search.json mercato '"costo opportunità"'
//	booksearch interactive --index site/en/search.json < queries.txt
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/glamour"

	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/index"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/searcher/render"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/searcher/session"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/pkg/logger"
)

var CLI struct {
	LogLevel string `name:"log-level" default:"warn" enum:"debug,info,warn,error" help:"Log level for stderr diagnostics."`

	Query       QueryCmd       `cmd:"" help:"Run one search and print the ranked results."`
	Interactive InteractiveCmd `cmd:"" help:"Read one query per line from stdin; only the last of a rapid burst is printed."`
}

// IndexFlags select the index and the ranking limits.
type IndexFlags struct {
	Index         string `required:"" type:"existingfile" help:"Path to a search.json index."`
	Lang          string `default:"it" help:"Language label reported with the results."`
	BasePath      string `name:"base-path" help:"Site prefix to strip from urls before deriving book order."`
	Limit         int    `default:"80" help:"Maximum number of results."`
	PerChapter    int    `name:"per-chapter" default:"6" help:"Maximum results per chapter."`
	SnippetLength int    `name:"snippet-length" default:"240" help:"Snippet length in characters."`
}

func (f IndexFlags) executor() *executor.Executor {
	store := index.NewStore(index.FileSource{Path: f.Index})
	return executor.New(store, executor.Config{
		Ranking: ranker.Options{
			MaxTotal:      f.Limit,
			MaxPerChapter: f.PerChapter,
			BasePath:      f.BasePath,
		},
		SnippetLength: f.SnippetLength,
		Renderer:      render.MarkupRenderer{},
	})
}

// OutputFlags choose how results are printed.
type OutputFlags struct {
	Markdown bool   `help:"Render results as styled markdown."`
	Style    string `default:"dark" help:"Markdown style (dark, light, notty)."`
	HTML     bool   `name:"html" help:"Print rendered HTML snippets instead of raw text."`
}

func (o OutputFlags) format() executor.Format {
	if o.HTML {
		return executor.FormatHTML
	}
	return executor.FormatText
}

type QueryCmd struct {
	IndexFlags  `embed:""`
	OutputFlags `embed:""`

	Words []string `arg:"" help:"Query words. Quote a phrase to match it contiguously."`
}

func (c *QueryCmd) Run(kctx *kong.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return c.run(ctx, kctx.Stdout)
}

func (c *QueryCmd) run(ctx context.Context, w io.Writer) error {
	raw := strings.Join(c.Words, " ")
	res, err := c.executor().Execute(ctx, c.Lang, parser.Parse(raw), c.format())
	if err != nil {
		return err
	}
	return printResult(w, res, c.OutputFlags)
}

type InteractiveCmd struct {
	IndexFlags  `embed:""`
	OutputFlags `embed:""`

	Debounce time.Duration `default:"80ms" help:"Quiet period before a query runs."`
}

func (c *InteractiveCmd) Run(kctx *kong.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return c.run(ctx, os.Stdin, kctx.Stdout)
}

// run submits every input line to a debounced session. At end of input the
// pending query runs immediately so the last line always gets an answer.
func (c *InteractiveCmd) run(ctx context.Context, in io.Reader, w io.Writer) error {
	var mu sync.Mutex
	var firstErr error
	deliver := func(o session.Outcome) {
		mu.Lock()
		defer mu.Unlock()
		if o.Err != nil {
			fmt.Fprintf(w, "error: %v\n", o.Err)
			if firstErr == nil {
				firstErr = o.Err
			}
			return
		}
		fmt.Fprintf(w, "> %s\n", o.Query)
		if err := printResult(w, o.Result, c.OutputFlags); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	s := session.New(ctx, c.executor(), session.Options{
		Lang:     c.Lang,
		Format:   c.format(),
		Debounce: c.Debounce,
	}, deliver)
	defer s.Close()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.Submit(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading queries: %w", err)
	}
	s.Flush()

	mu.Lock()
	defer mu.Unlock()
	return firstErr
}

func printResult(w io.Writer, res *executor.SearchResult, out OutputFlags) error {
	if out.Markdown {
		rendered, err := glamour.Render(markdownResult(res, out.HTML), out.Style)
		if err != nil {
			return fmt.Errorf("rendering markdown: %w", err)
		}
		_, err = io.WriteString(w, rendered)
		return err
	}
	_, err := io.WriteString(w, plainResult(res, out.HTML))
	return err
}

func plainResult(res *executor.SearchResult, html bool) string {
	var b strings.Builder
	if len(res.Results) == 0 {
		b.WriteString("no results\n")
		return b.String()
	}
	fmt.Fprintf(&b, "%d result(s)\n\n", res.TotalHits)
	for i, hit := range res.Results {
		fmt.Fprintf(&b, "%2d. %s\n    %s\n    %s\n\n", i+1, hit.Title, hit.URL, snippetText(hit, html))
	}
	return b.String()
}

func markdownResult(res *executor.SearchResult, html bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %d result(s) for `%s`\n\n", res.TotalHits, res.Query)
	for _, hit := range res.Results {
		fmt.Fprintf(&b, "### [%s](%s)\n\n> %s\n\n", hit.Title, hit.URL, snippetText(hit, html))
	}
	return b.String()
}

func snippetText(hit executor.Hit, html bool) string {
	if html && hit.HTML != "" {
		return hit.HTML
	}
	return hit.Snippet
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("booksearch"),
		kong.Description("Search a textbook's search.json index."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	logger.SetupWriter(os.Stderr, CLI.LogLevel, "text")
	err := kctx.Run(kctx)
	kctx.FatalIfErrorf(err)
}
