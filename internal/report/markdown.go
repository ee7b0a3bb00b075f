package report

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

const timeLayout = "2006-01-02 15:04:05 MST"

// MarkdownWriter renders a human-readable crawl summary.
type MarkdownWriter struct {
	out io.Writer
}

// NewMarkdownWriter creates a MarkdownWriter.
func NewMarkdownWriter(out io.Writer) *MarkdownWriter {
	return &MarkdownWriter{out: out}
}

// Write renders report.
func (w *MarkdownWriter) Write(report *crawler.CrawlReport) error {
	md := markdown.NewMarkdown(w.out)

	writeHeader(md, report)
	writeStatistics(md, report.Statistics)
	writeDepths(md, report.Summary.PagesByDepth)
	writeStatusCodes(md, report.Summary.StatusCodes)
	writePages(md, report.CrawledPages)

	if err := md.Build(); err != nil {
		return fmt.Errorf("build markdown report: %w", err)
	}
	return nil
}

func writeHeader(md *markdown.Markdown, report *crawler.CrawlReport) {
	md.H1("Crawl Report")
	md.PlainText("")

	status := "Complete"
	if report.Canceled {
		status = "Canceled (partial results)"
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Start URL", "`" + report.StartURL + "`"},
			{"Max Depth", strconv.Itoa(report.CrawlSettings.MaxDepth)},
			{"Max Pages", strconv.Itoa(report.CrawlSettings.MaxPages)},
			{"Same Origin Only", strconv.FormatBool(report.CrawlSettings.SameOriginOnly)},
			{"Finished", report.Timestamp.Format(timeLayout)},
			{"Status", status},
		},
	})
	md.PlainText("")
}

func writeStatistics(md *markdown.Markdown, stats crawler.CrawlStatistics) {
	md.H2("Statistics")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Pages Crawled", strconv.Itoa(stats.TotalPagesCrawled)},
			{"Successful", strconv.Itoa(stats.SuccessfulPages)},
			{"Failed", strconv.Itoa(stats.FailedPages)},
			{"Images", strconv.Itoa(stats.TotalImages)},
			{"Links", strconv.Itoa(stats.TotalLinks)},
			{"Unique URLs", strconv.Itoa(stats.UniqueURLs)},
			{"Average Content Length", strconv.Itoa(stats.AverageContentLength)},
			{"Depth Reached", strconv.Itoa(stats.CrawlDepthReached)},
		},
	})
	md.PlainText("")

	if stats.TotalPagesCrawled == 0 {
		return
	}
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Page Outcomes"),
		piechart.WithShowData(true),
	)
	if stats.SuccessfulPages > 0 {
		chart.LabelAndIntValue("Successful", uint64(stats.SuccessfulPages))
	}
	if stats.FailedPages > 0 {
		chart.LabelAndIntValue("Failed", uint64(stats.FailedPages))
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func writeDepths(md *markdown.Markdown, depths []crawler.DepthCount) {
	md.H2("Pages by Depth")
	md.PlainText("")
	rows := make([][]string, 0, len(depths))
	for _, d := range depths {
		rows = append(rows, []string{strconv.Itoa(d.Depth), strconv.Itoa(d.Count)})
	}
	md.Table(markdown.TableSet{Header: []string{"Depth", "Pages"}, Rows: rows})
	md.PlainText("")
}

func writeStatusCodes(md *markdown.Markdown, codes map[int]int) {
	md.H2("Status Codes")
	md.PlainText("")
	if len(codes) == 0 {
		md.PlainText("No pages were fetched.")
		md.PlainText("")
		return
	}
	keys := make([]int, 0, len(codes))
	for code := range codes {
		keys = append(keys, code)
	}
	slices.Sort(keys)
	rows := make([][]string, 0, len(keys))
	for _, code := range keys {
		label := strconv.Itoa(code)
		if code == 0 {
			label = "0 (no response)"
		}
		rows = append(rows, []string{label, strconv.Itoa(codes[code])})
	}
	md.Table(markdown.TableSet{Header: []string{"Status", "Pages"}, Rows: rows})
	md.PlainText("")
}

func writePages(md *markdown.Markdown, pages []crawler.PageResult) {
	md.H2("Pages")
	md.PlainText("")
	if len(pages) == 0 {
		md.PlainText("No pages were crawled.")
		return
	}
	rows := make([][]string, 0, len(pages))
	for _, p := range pages {
		outcome := "ok"
		if !p.Succeeded() {
			outcome = string(p.FailureKind) + ": " + p.Error
		}
		rows = append(rows, []string{
			cell(p.URL),
			strconv.Itoa(p.Depth),
			strconv.Itoa(p.StatusCode),
			cell(p.Title),
			strconv.Itoa(p.ContentLength),
			cell(outcome),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Depth", "Status", "Title", "Content Length", "Outcome"},
		Rows:   rows,
	})
}

// cell keeps free text from breaking the table layout.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}
