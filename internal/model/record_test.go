package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawRecord_Validate(t *testing.T) {
	t.Parallel()

	ok := RawRecord{Source: "arxiv", Title: "A paper", Quality: 0.5}
	require.NoError(t, ok.Validate())

	tests := []struct {
		name  string
		rec   RawRecord
		field string
	}{
		{"no source", RawRecord{Title: "x"}, "source"},
		{"no title", RawRecord{Source: "arxiv", Title: "  "}, "title"},
		{"bad quality", RawRecord{Source: "arxiv", Title: "x", Quality: 2}, "quality"},
		{"unnamed author", RawRecord{Source: "arxiv", Title: "x", Authors: []AuthorMention{{Name: ""}}}, "authors"},
		{"bad release quality", RawRecord{Source: "arxiv", Title: "x", Releases: []ReleaseMention{{Quality: -1}}}, "releases"},
		{"negative citations", RawRecord{Source: "arxiv", Title: "x", CitationCount: -1}, "citation_count"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			require.Error(t, err)
			assert.True(t, IsValidation(err))
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestRawRecord_Normalize(t *testing.T) {
	t.Parallel()

	rec := RawRecord{
		Source: " ArXiv ",
		Title:  "  Automatic   differentiation\nin ML ",
		Links:  []Link{{"html", "https://arxiv.org/abs/1810.11530v1"}},
		Topics: []string{" machine  learning ", ""},
		Authors: []AuthorMention{
			{Name: " Bart  van Merrienboer", Links: []Link{{"Semantic_Scholar", "3158246"}}},
		},
		Releases: []ReleaseMention{
			{Venue: Venue{Name: " arXiv "}, Status: "Preprint", Date: time.Date(2018, 10, 26, 0, 0, 0, 0, time.UTC), DatePrecision: PrecisionMonth},
			{Venue: Venue{Name: "NeurIPS"}, Date: time.Date(2018, 10, 26, 0, 0, 0, 0, time.UTC)},
		},
	}

	n := rec.Normalize()
	assert.Equal(t, "arxiv", n.Source)
	assert.Equal(t, "Automatic differentiation in ML", n.Title)
	assert.Equal(t, []Link{{LinkArxiv, "1810.11530"}}, n.Links)
	assert.Equal(t, []string{"machine learning"}, n.Topics)
	assert.Equal(t, "Bart van Merrienboer", n.Authors[0].Name)
	assert.Equal(t, []Link{{LinkSemanticScholar, "3158246"}}, n.Authors[0].Links)
	assert.Equal(t, "arXiv", n.Releases[0].Venue.Name)
	assert.Equal(t, StatusPreprint, n.Releases[0].Status)
	assert.Equal(t, time.Date(2018, 10, 1, 0, 0, 0, 0, time.UTC), n.Releases[0].Date)
	assert.True(t, n.Releases[1].Date.IsZero())

	// original untouched
	assert.Equal(t, " ArXiv ", rec.Source)
}

func TestRawRecord_NormalizeAffiliations(t *testing.T) {
	t.Parallel()

	rec := RawRecord{
		Source: "dblp", Title: "x", CitationCount: 12,
		Authors: []AuthorMention{{Name: "A", Affiliations: []Institution{
			{Name: "  Mila  ", Category: "Academia", Aliases: []string{"Mila", " Quebec AI Institute "}},
			{Name: "Google", Category: "company"},
			{Name: "   "},
		}}},
	}
	n := rec.Normalize()
	assert.Equal(t, 12, n.CitationCount)
	assert.Equal(t, []Institution{
		{Name: "Mila", Category: InstitutionAcademia, Aliases: []string{"Quebec AI Institute"}},
		{Name: "Google", Category: InstitutionUnknown},
	}, n.Authors[0].Affiliations)

	// Records without affiliations keep their fingerprint.
	bare := RawRecord{Source: "dblp", Title: "x", Authors: []AuthorMention{{Name: "A"}}}
	withEmpty := RawRecord{Source: "dblp", Title: "x", Authors: []AuthorMention{{Name: "A", Affiliations: []Institution{}}}}
	nb, ne := bare.Normalize(), withEmpty.Normalize()
	assert.Equal(t, nb.Fingerprint(), ne.Fingerprint())
}

func TestRawRecord_Fingerprint(t *testing.T) {
	t.Parallel()

	a := RawRecord{Source: "arxiv", Title: "x", Links: []Link{{"arxiv", "1"}}}
	b := a.Clone()
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.Title = "y"
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	assert.Len(t, a.Fingerprint(), 32)
}

func TestMentionID(t *testing.T) {
	t.Parallel()

	id := MentionID("abc", 3)
	assert.Equal(t, "abc#3", id)

	fp, pos, err := ParseMentionID(id)
	require.NoError(t, err)
	assert.Equal(t, "abc", fp)
	assert.Equal(t, 3, pos)

	_, _, err = ParseMentionID("nohash")
	assert.Error(t, err)
	_, _, err = ParseMentionID("abc#x")
	assert.Error(t, err)
}

func TestPaper_Clone(t *testing.T) {
	t.Parallel()

	p := &Paper{
		ID:    1,
		Links: []Link{{"arxiv", "1"}},
		Contributions: []Contribution{{
			Fingerprint: "f",
			AuthorIDs:   []int64{7},
			Record:      RawRecord{Authors: []AuthorMention{{Name: "A", Links: []Link{{"orcid", "1"}}}}},
		}},
		Authors: []PaperAuthor{{AuthorID: 7, Affiliations: []Institution{{Name: "Mila", Aliases: []string{"MILA"}}}}},
	}
	c := p.Clone()
	c.Links[0].Link = "2"
	c.Contributions[0].AuthorIDs[0] = 8
	c.Contributions[0].Record.Authors[0].Links[0].Link = "2"
	c.Authors[0].Affiliations[0].Aliases[0] = "x"

	assert.Equal(t, "1", p.Links[0].Link)
	assert.Equal(t, int64(7), p.Contributions[0].AuthorIDs[0])
	assert.Equal(t, "1", p.Contributions[0].Record.Authors[0].Links[0].Link)
	assert.Equal(t, "MILA", p.Authors[0].Affiliations[0].Aliases[0])
	assert.Equal(t, 0, p.ContributionIndex("f"))
	assert.Equal(t, -1, p.ContributionIndex("g"))
}

func TestAuthor_PaperIDs(t *testing.T) {
	t.Parallel()

	a := &Author{Mentions: []MentionRef{{PaperID: 3}, {PaperID: 1}, {PaperID: 3}}}
	assert.Equal(t, []int64{1, 3}, a.PaperIDs())

	c := a.Clone()
	c.Mentions[0].PaperID = 9
	assert.Equal(t, int64(3), a.Mentions[0].PaperID)
}
