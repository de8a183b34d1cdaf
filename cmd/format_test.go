package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/bibmerge/internal/ingest"
	"github.com/sells-group/bibmerge/internal/model"
	"github.com/sells-group/bibmerge/internal/resilience"
)

func samplePaper() model.Paper {
	return model.Paper{
		ID:      7,
		Title:   "Automatic differentiation in ML: Where we are and where we should be going",
		Links:   []model.Link{{Type: "arxiv", Link: "1810.11530"}},
		Authors: []model.PaperAuthor{{AuthorID: 3, Name: "Bart van Merriënboer"}, {AuthorID: 4, Position: 1, Name: "Alexey Radul"}},
		Releases: []model.Release{{
			Venue:         model.Venue{Name: "NeurIPS"},
			Status:        "published",
			Date:          time.Date(2018, 12, 1, 0, 0, 0, 0, time.UTC),
			DatePrecision: model.PrecisionMonth,
		}},
		Quality: 0.8,
		Sources: []string{"arxiv", "semantic_scholar"},
		Contributions: []model.Contribution{
			{Fingerprint: "fp-scholar", Record: model.RawRecord{Source: "semantic_scholar", Quality: 0.8}},
			{Fingerprint: "fp-arxiv", Record: model.RawRecord{Source: "arxiv", Quality: 0.6, Links: []model.Link{{Type: "arxiv", Link: "1810.11530"}}}},
		},
	}
}

func TestFormatPapersList(t *testing.T) {
	var buf bytes.Buffer
	formatPapersList(&buf, []model.Paper{samplePaper()})

	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "TITLE")
	assert.Contains(t, out, "2018")
	assert.Contains(t, out, "0.80")
	assert.Contains(t, out, "Bart van Merriënboer, Alexey Radul")
}

func TestFormatPapersList_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatPapersList(&buf, nil)
	assert.Equal(t, "No papers found.\n", buf.String())
}

func TestFormatPaper_ShowsProvenance(t *testing.T) {
	p := samplePaper()
	var buf bytes.Buffer
	formatPaper(&buf, &p)

	out := buf.String()
	assert.Contains(t, out, "Paper 7:")
	assert.Contains(t, out, "arxiv, semantic_scholar")
	assert.Contains(t, out, "Alexey Radul [4]")
	assert.Contains(t, out, "NeurIPS (published) 2018-12")
	assert.Contains(t, out, "Contributions (2):")
	assert.Contains(t, out, "fp-arxiv")
	assert.Contains(t, out, "arxiv:1810.11530")
	assert.NotContains(t, out, "Citations:")

	p.CitationCount = 312
	buf.Reset()
	formatPaper(&buf, &p)
	assert.Contains(t, buf.String(), "Citations: 312")
}

func TestAuthorSummary(t *testing.T) {
	p := samplePaper()
	assert.Equal(t, "Bart van Merriënboer, Alexey Radul", authorSummary(p))

	p.Authors = append(p.Authors, model.PaperAuthor{AuthorID: 5, Name: "Dan Moldovan"})
	assert.Equal(t, "Bart van Merriënboer et al.", authorSummary(p))

	p.Authors = nil
	assert.Equal(t, "-", authorSummary(p))
}

func TestPaperYear_Undated(t *testing.T) {
	assert.Equal(t, "-", paperYear(model.Paper{}))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "ééé…", truncate("éééééé", 4))
}

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	assert.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "0", "-1", "abc"} {
		_, err := parseID(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatReviews(t *testing.T) {
	var buf bytes.Buffer
	formatReviews(&buf, []model.Review{{
		ID:           "rv-1",
		Kind:         model.ReviewAmbiguousAuthor,
		Name:         "Li Wang",
		PaperID:      9,
		AuthorID:     12,
		CandidateIDs: []int64{4, 5},
		CreatedAt:    time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC),
	}})

	out := buf.String()
	assert.Contains(t, out, "rv-1")
	assert.Contains(t, out, "ambiguous_author")
	assert.Contains(t, out, "4,5")
	assert.Contains(t, out, "2025-06-15 10:30")

	buf.Reset()
	formatReviews(&buf, nil)
	assert.Equal(t, "No open reviews.\n", buf.String())
}

func TestFormatDLQList(t *testing.T) {
	var buf bytes.Buffer
	formatDLQList(&buf, []resilience.DLQEntry{{
		ID:          "dlq-1",
		Record:      model.RawRecord{Title: "Deep learning"},
		Origin:      "in.jsonl:3",
		Error:       "store: commit: connection reset",
		ErrorType:   "transient",
		RetryCount:  1,
		MaxRetries:  3,
		NextRetryAt: time.Date(2025, 6, 15, 11, 0, 0, 0, time.UTC),
	}})

	out := buf.String()
	assert.Contains(t, out, "dlq-1")
	assert.Contains(t, out, "transient")
	assert.Contains(t, out, "1/3")
	assert.Contains(t, out, "in.jsonl:3")
	assert.Contains(t, out, "Deep learning")

	buf.Reset()
	formatDLQList(&buf, nil)
	assert.Equal(t, "Dead letter queue is empty.\n", buf.String())
}

func TestFormatBatchResult(t *testing.T) {
	var buf bytes.Buffer
	formatBatchResult(&buf, &ingest.BatchResult{
		ID: "b1", Files: 2, Lines: 6, Ingested: 3, Duplicates: 1, Rejected: 2,
		History: "history/x.jsonl",
	})

	out := buf.String()
	assert.Contains(t, out, "batch b1: 2 files, 6 lines")
	assert.Contains(t, out, "ingested:   3")
	assert.Contains(t, out, "rejected:   2")
	assert.Contains(t, out, "history:    history/x.jsonl")
}
