package model

import (
	"regexp"
	"sort"
	"strings"
)

// Link is an identity link: a source type paired with an opaque,
// source-specific identifier (e.g. arxiv:1810.11530).
type Link struct {
	Type string `json:"type" yaml:"type"`
	Link string `json:"link" yaml:"link"`
}

// Known link types.
const (
	LinkArxiv           = "arxiv"
	LinkDOI             = "doi"
	LinkPubMed          = "pubmed"
	LinkPMC             = "pmc"
	LinkOpenReview      = "openreview"
	LinkDBLP            = "dblp"
	LinkSemanticScholar = "semantic_scholar"
	LinkCorpusID        = "corpusid"
	LinkMAG             = "mag"
	LinkOpenAlex        = "openalex"
	LinkORCID           = "orcid"
	LinkMLR             = "mlr"
	LinkHTML            = "html"
	LinkPDF             = "pdf"
)

func (l Link) String() string {
	return l.Type + ":" + l.Link
}

// IsZero reports whether the link has no type or no identifier.
func (l Link) IsZero() bool {
	return l.Type == "" || l.Link == ""
}

// urlExtractors rewrite URL-valued links into typed identifiers. They are
// tried in order; the first match wins.
var urlExtractors = []struct {
	re  *regexp.Regexp
	typ string
}{
	{regexp.MustCompile(`^https?://[a-z.]*arxiv\.org/(?:abs|pdf)/([0-9]{4}\.[0-9]+)`), LinkArxiv},
	{regexp.MustCompile(`^https?://[a-z.]*arxiv-vanity\.com/papers/([0-9]{4}\.[0-9]+)`), LinkArxiv},
	{regexp.MustCompile(`^https?://scirate\.com/arxiv/([0-9]{4}\.[0-9]+)`), LinkArxiv},
	{regexp.MustCompile(`^https?://pubmed\.ncbi\.nlm\.nih\.gov/([^/]+)`), LinkPubMed},
	{regexp.MustCompile(`^https?://www\.ncbi\.nlm\.nih\.gov/pubmed/([^/]+)`), LinkPubMed},
	{regexp.MustCompile(`^https?://www\.ncbi\.nlm\.nih\.gov/pmc/articles/([^/]+)`), LinkPMC},
	{regexp.MustCompile(`^https?://europepmc\.org/article/PMC/([^/]+)`), LinkPMC},
	{regexp.MustCompile(`^https?://(?:dx\.)?doi\.org/(.+)$`), LinkDOI},
	{regexp.MustCompile(`^https?://(?:www\.)?openreview\.net/(?:pdf|forum)\?id=([^&]+)`), LinkOpenReview},
	{regexp.MustCompile(`^https?://dblp\.(?:uni-trier\.de|org)/rec/(.+?)(?:\.html)?$`), LinkDBLP},
	{regexp.MustCompile(`^https?://(?:www\.)?semanticscholar\.org/paper/(?:[^/]+/)?([0-9a-f]{40})`), LinkSemanticScholar},
	{regexp.MustCompile(`^https?://orcid\.org/([0-9X-]+)`), LinkORCID},
}

var arxivVersion = regexp.MustCompile(`v[0-9]+$`)

// CanonicalizeLink reduces a link to its most precise typed form. URL links
// pointing at a known service become typed ids, arXiv version suffixes are
// dropped and DOIs are lower-cased. Unknown links are only trimmed.
func CanonicalizeLink(l Link) Link {
	l.Type = strings.ToLower(strings.TrimSpace(l.Type))
	l.Link = strings.TrimSpace(l.Link)

	if strings.HasPrefix(l.Link, "http://") || strings.HasPrefix(l.Link, "https://") {
		for _, ex := range urlExtractors {
			if m := ex.re.FindStringSubmatch(l.Link); m != nil {
				l = Link{Type: ex.typ, Link: m[1]}
				break
			}
		}
	}

	switch l.Type {
	case LinkArxiv:
		l.Link = strings.TrimPrefix(strings.ToLower(l.Link), "arxiv:")
		l.Link = arxivVersion.ReplaceAllString(l.Link, "")
	case LinkDOI:
		l.Link = strings.ToLower(strings.TrimPrefix(l.Link, "doi:"))
	}
	return l
}

// CanonicalizeLinks canonicalizes every link, drops empty ones and removes
// exact duplicates while preserving first-seen order.
func CanonicalizeLinks(links []Link) []Link {
	if len(links) == 0 {
		return nil
	}
	seen := make(map[Link]bool, len(links))
	out := make([]Link, 0, len(links))
	for _, l := range links {
		l = CanonicalizeLink(l)
		if l.IsZero() || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

// SortLinks orders links by type then identifier.
func SortLinks(links []Link) {
	sort.Slice(links, func(i, j int) bool {
		if links[i].Type != links[j].Type {
			return links[i].Type < links[j].Type
		}
		return links[i].Link < links[j].Link
	})
}

// HasLinkType reports whether any link has the given type.
func HasLinkType(links []Link, typ string) bool {
	for _, l := range links {
		if l.Type == typ {
			return true
		}
	}
	return false
}
