// Package release folds per-source publication events into a paper's
// canonical releases, merging near-duplicates at the same venue.
package release

import (
	"time"

	"github.com/sells-group/bibmerge/internal/merge"
	"github.com/sells-group/bibmerge/internal/model"
	"github.com/sells-group/bibmerge/internal/normalize"
)

// Config tunes release matching.
type Config struct {
	// DateToleranceDays widens each release's date interval on both sides
	// before testing overlap. Zero means the intervals must overlap exactly.
	DateToleranceDays int
}

// Merger matches and merges release mentions.
type Merger struct {
	tolerance time.Duration
}

// New creates a Merger.
func New(cfg Config) *Merger {
	days := cfg.DateToleranceDays
	if days < 0 {
		days = 0
	}
	return &Merger{tolerance: time.Duration(days) * 24 * time.Hour}
}

// Merge folds mention into p's releases: into the first compatible release
// when there is one, appended otherwise.
func (m *Merger) Merge(p *model.Paper, mention model.ReleaseMention) {
	p.Releases = m.Fold(p.Releases, mention)
}

// Fold is Merge over a bare release slice. The input slice is not modified.
func (m *Merger) Fold(rels []model.Release, mention model.ReleaseMention) []model.Release {
	out := make([]model.Release, len(rels), len(rels)+1)
	copy(out, rels)
	for i := range out {
		if m.Matches(out[i], mention) {
			out[i] = combine(out[i], mention)
			return out
		}
	}
	return append(out, model.Release(mention))
}

// Matches reports whether mention describes the same publication event as r:
// same normalized venue name and series, and compatible dates.
func (m *Merger) Matches(r model.Release, mention model.ReleaseMention) bool {
	if normalize.VenueKey(r.Venue.Name, r.Venue.Series) != normalize.VenueKey(mention.Venue.Name, mention.Venue.Series) {
		return false
	}
	return m.DatesCompatible(r.Date, r.DatePrecision, mention.Date, mention.DatePrecision)
}

// DatesCompatible reports whether two dates may denote the same day given
// their precisions. A month-precision date and a day-precision date inside
// that month are compatible; an unknown date is compatible with anything.
func (m *Merger) DatesCompatible(a time.Time, pa model.DatePrecision, b time.Time, pb model.DatePrecision) bool {
	as, ae, okA := model.Span(a, pa)
	bs, be, okB := model.Span(b, pb)
	if !okA || !okB {
		return true
	}
	return as.Add(-m.tolerance).Before(be) && bs.Add(-m.tolerance).Before(ae)
}

func combine(r model.Release, mention model.ReleaseMention) model.Release {
	text := func(a, b string) string {
		return merge.Text([]merge.Candidate[string]{
			{Value: a, Quality: r.Quality},
			{Value: b, Quality: mention.Quality},
		})
	}

	out := r
	out.Venue.Name = text(r.Venue.Name, mention.Venue.Name)
	out.Venue.Series = text(r.Venue.Series, mention.Venue.Series)
	out.Venue.Type = model.VenueType(text(string(r.Venue.Type), string(mention.Venue.Type)))
	out.Venue.Volume = text(r.Venue.Volume, mention.Venue.Volume)
	out.Venue.Publisher = text(r.Venue.Publisher, mention.Venue.Publisher)
	out.Venue.Open = merge.Flag(r.Venue.Open, mention.Venue.Open)
	out.Venue.PeerReviewed = merge.Flag(r.Venue.PeerReviewed, mention.Venue.PeerReviewed)
	out.Status = model.HigherStatus(r.Status, mention.Status)
	out.Date, out.DatePrecision = pickDate(r, mention)
	out.Quality = merge.Quality(r.Quality, mention.Quality)
	return out
}

// pickDate keeps the more precise date; equal precision goes to the higher
// quality, then to the earlier date.
func pickDate(r model.Release, mention model.ReleaseMention) (time.Time, model.DatePrecision) {
	switch {
	case mention.DatePrecision > r.DatePrecision:
		return mention.Date, mention.DatePrecision
	case mention.DatePrecision < r.DatePrecision:
		return r.Date, r.DatePrecision
	case mention.Quality > r.Quality:
		return mention.Date, mention.DatePrecision
	case mention.Quality < r.Quality:
		return r.Date, r.DatePrecision
	case mention.Date.Before(r.Date):
		return mention.Date, mention.DatePrecision
	default:
		return r.Date, r.DatePrecision
	}
}
