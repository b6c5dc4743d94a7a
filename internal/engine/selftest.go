package engine

import (
	"context"
	"fmt"

	"github.com/papyr-io/papyr/internal/source"
)

// SelfTest probes a source end to end: search with a fixed keyword, then
// chase book info, chapter list, and content for the first hit. The chain
// short-circuits at the first failing stage; later stages are simply
// absent from the report.
func (e *Engine) SelfTest(ctx context.Context, src *source.BookSource) map[string]StageReport {
	report := make(map[string]StageReport, 4)

	keyword := e.cfg.SelfTestKeyword
	if keyword == "" {
		keyword = "the"
	}

	searchRes := e.Search(ctx, src, keyword)
	report["search"] = stageOf(searchRes)
	if !searchRes.OK() {
		return report
	}
	hits, err := SearchHits(searchRes)
	if err != nil || len(hits) == 0 {
		report["search"] = StageReport{
			Success: false,
			TimeMs:  searchRes.ElapsedMs,
			Error:   stageError(err, "search returned no results"),
		}
		return report
	}
	first := hits[0]

	infoRes := e.BookInfo(ctx, src, first.BookURL)
	report["bookInfo"] = stageOf(infoRes)
	if !infoRes.OK() {
		return report
	}
	detail, err := Detail(infoRes)
	if err != nil {
		report["bookInfo"] = StageReport{Success: false, TimeMs: infoRes.ElapsedMs, Error: err.Error()}
		return report
	}
	tocURL := detail.TocURL
	if tocURL == "" {
		tocURL = first.BookURL
	}

	tocRes := e.TableOfContents(ctx, src, tocURL, first.BookURL)
	report["toc"] = stageOf(tocRes)
	if !tocRes.OK() {
		return report
	}
	chapters, err := Chapters(tocRes)
	if err != nil || len(chapters) == 0 {
		report["toc"] = StageReport{
			Success: false,
			TimeMs:  tocRes.ElapsedMs,
			Error:   stageError(err, "table of contents is empty"),
		}
		return report
	}

	contentRes := e.Content(ctx, src, chapters[0].URL, first.BookURL)
	report["content"] = stageOf(contentRes)
	return report
}

func stageOf(res *ExecuteResult) StageReport {
	r := StageReport{Success: res.OK(), TimeMs: res.ElapsedMs}
	if !res.OK() {
		r.Error = fmt.Sprintf("%s: %s", res.Status, res.Error)
	}
	return r
}

func stageError(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
