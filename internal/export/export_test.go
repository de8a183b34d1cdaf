package export

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/bibmerge/internal/model"
)

func fixture() ([]model.Paper, []model.Author) {
	papers := []model.Paper{
		{
			ID:    1,
			Title: "Automatic differentiation in ML",
			Links: []model.Link{{Type: "arxiv", Link: "1810.11530"}},
			Authors: []model.PaperAuthor{
				{AuthorID: 7, Position: 0, Name: "Bart van Merrienboer", Affiliations: []model.Institution{{Name: "Mila", Category: model.InstitutionAcademia}}},
				{AuthorID: 8, Position: 1, Name: "Alexey Radul"},
			},
			Topics: []string{"Machine Learning"},
			Releases: []model.Release{
				{Venue: model.Venue{Name: "arXiv", Type: model.VenuePreprint}, Status: model.StatusPreprint, Date: time.Date(2018, 10, 1, 0, 0, 0, 0, time.UTC), DatePrecision: model.PrecisionMonth},
				{Venue: model.Venue{Name: "JMLR", Type: model.VenueJournal, PeerReviewed: true, Volume: "18"}, Status: model.StatusPublished, Date: time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC), DatePrecision: model.PrecisionYear},
			},
			Quality:       0.8,
			CitationCount: 120,
			Sources:       []string{"arxiv", "semantic_scholar"},
		},
		{ID: 2, Title: "Bare"},
	}
	authors := []model.Author{
		{ID: 7, Name: "Bart van Merriënboer", Aliases: []string{"Bart van Merrienboer"}, Links: []model.Link{{Type: "semantic_scholar", Link: "3158246"}}},
	}
	return papers, authors
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"json": FormatJSON, "JSONL": FormatJSON, "yml": FormatYAML, " xlsx ": FormatXLSX} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("csv")
	assert.Error(t, err)
}

func TestView(t *testing.T) {
	papers, authors := fixture()
	byID := map[int64]model.Author{7: authors[0]}

	v := View(papers[0], byID)
	require.Len(t, v.Authors, 2)
	assert.Equal(t, "Bart van Merriënboer", v.Authors[0].Name)
	assert.Equal(t, []string{"Bart van Merrienboer"}, v.Authors[0].Aliases)
	assert.Equal(t, "Alexey Radul", v.Authors[1].Name, "unresolved authors keep their mention name")
	assert.Equal(t, []model.Institution{{Name: "Mila", Category: model.InstitutionAcademia}}, v.Authors[0].Affiliations)
	assert.Empty(t, v.Authors[1].Affiliations)
	assert.Equal(t, 120, v.Cites)

	require.Len(t, v.Releases, 2)
	assert.Equal(t, "JMLR", v.Releases[0].Venue, "peer-reviewed release first")
	assert.Equal(t, "2018", v.Releases[0].Date)
	assert.Equal(t, "year", v.Releases[0].DatePrecision)
	assert.Equal(t, "2018-10", v.Releases[1].Date)

	bare := View(papers[1], byID)
	assert.NotNil(t, bare.Links)
	assert.NotNil(t, bare.Topics)
	assert.Empty(t, bare.Releases)
}

func TestWrite_JSONL(t *testing.T) {
	papers, authors := fixture()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, papers, authors))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var got Paper
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, int64(1), got.ID)
	assert.Equal(t, []model.Link{{Type: "arxiv", Link: "1810.11530"}}, got.Links)
	assert.Contains(t, lines[1], `"links":[]`)
}

func TestWrite_YAML(t *testing.T) {
	papers, authors := fixture()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatYAML, papers, authors))

	var doc struct {
		Papers []Paper `yaml:"papers"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc.Papers, 2)
	assert.Equal(t, "Automatic differentiation in ML", doc.Papers[0].Title)
	assert.Equal(t, "18", doc.Papers[0].Releases[0].Volume)
	assert.InDelta(t, 0.8, doc.Papers[0].Quality, 1e-9)
}

func TestWrite_XLSX(t *testing.T) {
	papers, authors := fixture()
	path := filepath.Join(t.TempDir(), "papers.xlsx")
	out, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, Write(out, FormatXLSX, papers, authors))
	require.NoError(t, out.Close())

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 3)

	ps := f.Sheet["Papers"]
	require.NotNil(t, ps)
	require.Len(t, ps.Rows, 3)
	assert.Equal(t, "paper_id", ps.Rows[0].Cells[0].String())
	assert.Equal(t, "1", ps.Rows[1].Cells[0].String())
	assert.Equal(t, "Bart van Merriënboer; Alexey Radul", ps.Rows[1].Cells[2].String())
	assert.Equal(t, "2018", ps.Rows[1].Cells[3].String())
	assert.Equal(t, "JMLR", ps.Rows[1].Cells[4].String())
	assert.Equal(t, "arxiv:1810.11530", ps.Rows[1].Cells[7].String())

	as := f.Sheet["Authors"]
	require.NotNil(t, as)
	assert.Len(t, as.Rows, 3)

	rs := f.Sheet["Releases"]
	require.NotNil(t, rs)
	require.Len(t, rs.Rows, 3)
	assert.Equal(t, "JMLR", rs.Rows[1].Cells[1].String())
}

func TestWrite_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Write(&buf, Format("csv"), nil, nil))
}
