// Package ingest feeds scraper output into the match engine: it decodes
// JSONL record files, throttles and retries commits, dead-letters records
// the store refused and keeps a replayable history of accepted records.
package ingest

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/bibmerge/internal/model"
)

// Decoder turns one JSONL line into a RawRecord. Two shapes are accepted:
// the native record shape, and the tagged paper shape scrapers emit
// ({"__type__": "Paper", "authors": [{"author": {...}}], "topics":
// [{"name": ...}], ...}).
type Decoder struct {
	// Source is used when a line names none.
	Source string
	// Quality is used when a line or mention carries no quality.
	Quality model.Quality
}

type wireRecord struct {
	Type     string            `json:"__type__"`
	Source   string            `json:"source"`
	Scrapers []string          `json:"scrapers"`
	Title    string            `json:"title"`
	Abstract string            `json:"abstract"`
	Quality  *float64          `json:"quality"`
	Authors  []wireAuthor      `json:"authors"`
	Links    []model.Link      `json:"links"`
	Topics   []json.RawMessage `json:"topics"`
	Releases []wireRelease     `json:"releases"`
	Cites    *int              `json:"citation_count"`
}

type wireAuthor struct {
	Name         string            `json:"name"`
	Links        []model.Link      `json:"links"`
	Quality      *float64          `json:"quality"`
	Affiliations []json.RawMessage `json:"affiliations"`
	Author       *struct {
		Name  string       `json:"name"`
		Links []model.Link `json:"links"`
	} `json:"author"`
}

type wireRelease struct {
	Venue struct {
		Type         string `json:"type"`
		Name         string `json:"name"`
		Series       string `json:"series"`
		Volume       string `json:"volume"`
		Publisher    string `json:"publisher"`
		Open         bool   `json:"open"`
		PeerReviewed bool   `json:"peer_reviewed"`
	} `json:"venue"`
	Status        string          `json:"status"`
	Date          json.RawMessage `json:"date"`
	DatePrecision *int            `json:"date_precision"`
	Volume        string          `json:"volume"`
	Publisher     string          `json:"publisher"`
	Quality       *float64        `json:"quality"`
}

// Decode parses line. Malformed input is reported as a validation error so
// batches count it as rejected and move on.
func (d Decoder) Decode(line []byte) (model.RawRecord, error) {
	var w wireRecord
	if err := json.Unmarshal(line, &w); err != nil {
		return model.RawRecord{}, &model.ValidationError{Field: "json", Reason: err.Error()}
	}
	switch w.Type {
	case "", "RawRecord", "Record", "Paper":
	default:
		return model.RawRecord{}, &model.ValidationError{Field: "__type__", Reason: "unsupported type " + strconv.Quote(w.Type)}
	}

	rec := model.RawRecord{
		Source:   w.Source,
		Title:    w.Title,
		Abstract: w.Abstract,
		Links:    w.Links,
		Quality:  d.quality(w.Quality, d.Quality),
	}
	if rec.Source == "" && len(w.Scrapers) > 0 {
		rec.Source = w.Scrapers[0]
	}
	if rec.Source == "" {
		rec.Source = d.Source
	}
	if w.Cites != nil {
		rec.CitationCount = *w.Cites
	}

	for _, a := range w.Authors {
		m := model.AuthorMention{Name: a.Name, Links: a.Links, Quality: d.quality(a.Quality, rec.Quality)}
		if a.Author != nil {
			if m.Name == "" {
				m.Name = a.Author.Name
			}
			m.Links = append(m.Links, a.Author.Links...)
		}
		for _, raw := range a.Affiliations {
			if inst, ok := institution(raw); ok {
				m.Affiliations = append(m.Affiliations, inst)
			}
		}
		rec.Authors = append(rec.Authors, m)
	}

	for _, raw := range w.Topics {
		if t := topicName(raw); t != "" {
			rec.Topics = append(rec.Topics, t)
		}
	}

	for i, r := range w.Releases {
		rm, err := d.release(r, rec.Quality)
		if err != nil {
			return model.RawRecord{}, &model.ValidationError{Field: "releases", Reason: "release " + strconv.Itoa(i) + ": " + err.Error()}
		}
		rec.Releases = append(rec.Releases, rm)
	}
	return rec, nil
}

func (d Decoder) quality(v *float64, fallback model.Quality) model.Quality {
	if v == nil {
		return fallback
	}
	return model.Quality(*v)
}

// topicName accepts "name" or {"name": "name"}.
func topicName(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Name
	}
	return ""
}

// institution accepts "name" or {"name", "category", "aliases"}.
func institution(raw json.RawMessage) (model.Institution, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return model.Institution{Name: s}, s != ""
	}
	var obj struct {
		Name     string   `json:"name"`
		Category string   `json:"category"`
		Aliases  []string `json:"aliases"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || obj.Name == "" {
		return model.Institution{}, false
	}
	return model.Institution{
		Name:     obj.Name,
		Category: model.InstitutionCategory(obj.Category),
		Aliases:  obj.Aliases,
	}, true
}

func (d Decoder) release(r wireRelease, q model.Quality) (model.ReleaseMention, error) {
	rm := model.ReleaseMention{
		Venue: model.Venue{
			Type:         model.VenueType(strings.ToLower(r.Venue.Type)),
			Name:         r.Venue.Name,
			Series:       r.Venue.Series,
			Volume:       r.Venue.Volume,
			Publisher:    r.Venue.Publisher,
			Open:         r.Venue.Open,
			PeerReviewed: r.Venue.PeerReviewed,
		},
		Status:  model.ReleaseStatus(r.Status),
		Quality: d.quality(r.Quality, q),
	}
	if rm.Venue.Volume == "" {
		rm.Venue.Volume = r.Volume
	}
	if rm.Venue.Publisher == "" {
		rm.Venue.Publisher = r.Publisher
	}

	date, prec, err := parseWireDate(r.Date)
	if err != nil {
		return rm, err
	}
	if r.DatePrecision != nil && prec != model.PrecisionUnknown {
		p := model.DatePrecision(*r.DatePrecision)
		if p < model.PrecisionUnknown || p > model.PrecisionDay {
			return rm, &model.ValidationError{Field: "date_precision", Reason: "out of range"}
		}
		// An explicit precision never claims more than the date string holds.
		if p < prec {
			prec = p
		}
		if p == model.PrecisionUnknown {
			date = time.Time{}
			prec = model.PrecisionUnknown
		}
	}
	rm.Date = date
	rm.DatePrecision = prec
	return rm, nil
}

// parseWireDate accepts a date string (see model.ParseDate), a bare year
// number, or null.
func parseWireDate(raw json.RawMessage) (time.Time, model.DatePrecision, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, model.PrecisionUnknown, nil
	}
	var year int
	if err := json.Unmarshal(raw, &year); err == nil {
		return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC), model.PrecisionYear, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, model.PrecisionUnknown, &model.ValidationError{Field: "date", Reason: "not a string or year"}
	}
	return model.ParseDate(s)
}
