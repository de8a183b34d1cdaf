package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalizeLink(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   Link
		want Link
	}{
		{"arxiv abs url", Link{"html", "https://arxiv.org/abs/1810.11530v2"}, Link{LinkArxiv, "1810.11530"}},
		{"arxiv pdf url", Link{"pdf", "http://export.arxiv.org/pdf/1810.11530"}, Link{LinkArxiv, "1810.11530"}},
		{"arxiv typed with version", Link{"ArXiv", "1810.11530v3"}, Link{LinkArxiv, "1810.11530"}},
		{"arxiv prefix", Link{"arxiv", "arXiv:1810.11530"}, Link{LinkArxiv, "1810.11530"}},
		{"doi url", Link{"html", "https://doi.org/10.1000/ABC.123"}, Link{LinkDOI, "10.1000/abc.123"}},
		{"doi prefix", Link{"doi", "doi:10.1/X"}, Link{LinkDOI, "10.1/x"}},
		{"pubmed", Link{"html", "https://pubmed.ncbi.nlm.nih.gov/123456/"}, Link{LinkPubMed, "123456"}},
		{"pmc", Link{"html", "https://www.ncbi.nlm.nih.gov/pmc/articles/PMC42/"}, Link{LinkPMC, "PMC42"}},
		{"openreview keeps case", Link{"html", "https://openreview.net/forum?id=AbC_12"}, Link{LinkOpenReview, "AbC_12"}},
		{"dblp", Link{"html", "https://dblp.org/rec/conf/nips/Smith20.html"}, Link{LinkDBLP, "conf/nips/Smith20"}},
		{"unknown url kept", Link{"html", "https://example.com/p.html"}, Link{LinkHTML, "https://example.com/p.html"}},
		{"trimmed", Link{" semantic_scholar ", " 3158246 "}, Link{LinkSemanticScholar, "3158246"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalizeLink(tt.in))
		})
	}
}

func TestCanonicalizeLinks_DedupesAndDropsEmpty(t *testing.T) {
	t.Parallel()

	got := CanonicalizeLinks([]Link{
		{"arxiv", "1810.11530v1"},
		{"", "x"},
		{"html", "https://arxiv.org/abs/1810.11530"},
		{"doi", "10.1/a"},
	})
	assert.Equal(t, []Link{{LinkArxiv, "1810.11530"}, {LinkDOI, "10.1/a"}}, got)
	assert.Nil(t, CanonicalizeLinks(nil))
}

func TestSortLinks(t *testing.T) {
	t.Parallel()

	links := []Link{{"doi", "b"}, {"arxiv", "z"}, {"doi", "a"}}
	SortLinks(links)
	assert.Equal(t, []Link{{"arxiv", "z"}, {"doi", "a"}, {"doi", "b"}}, links)
	assert.True(t, HasLinkType(links, "arxiv"))
	assert.False(t, HasLinkType(links, "dblp"))
	assert.Equal(t, "doi:a", links[1].String())
}
