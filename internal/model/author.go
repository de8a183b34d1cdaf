package model

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Author is a canonical author shared across papers.
type Author struct {
	ID        int64        `json:"id" yaml:"id"`
	Name      string       `json:"name" yaml:"name"`
	Aliases   []string     `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Links     []Link       `json:"links,omitempty" yaml:"links,omitempty"`
	Quality   Quality      `json:"quality" yaml:"quality"`
	Mentions  []MentionRef `json:"mentions" yaml:"mentions"`
	CreatedAt time.Time    `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" yaml:"updated_at"`
}

// MentionRef is one author mention attributed to a canonical author. ID is
// "<record fingerprint>#<author position>" and is stable across re-ingestion.
type MentionRef struct {
	ID      string  `json:"id" yaml:"id"`
	PaperID int64   `json:"paper_id" yaml:"paper_id"`
	Name    string  `json:"name" yaml:"name"`
	Links   []Link  `json:"links,omitempty" yaml:"links,omitempty"`
	Quality Quality `json:"quality" yaml:"quality"`
}

// MentionID builds the stable id of the pos-th author of a record.
func MentionID(fingerprint string, pos int) string {
	return fingerprint + "#" + strconv.Itoa(pos)
}

// ParseMentionID splits a mention id into fingerprint and position.
func ParseMentionID(id string) (string, int, error) {
	i := strings.LastIndexByte(id, '#')
	if i <= 0 {
		return "", 0, eris.Errorf("model: malformed mention id %q", id)
	}
	pos, err := strconv.Atoi(id[i+1:])
	if err != nil || pos < 0 {
		return "", 0, eris.Errorf("model: malformed mention id %q", id)
	}
	return id[:i], pos, nil
}

// Clone returns a deep copy of a.
func (a *Author) Clone() *Author {
	if a == nil {
		return nil
	}
	c := *a
	c.Aliases = slices.Clone(a.Aliases)
	c.Links = slices.Clone(a.Links)
	c.Mentions = make([]MentionRef, len(a.Mentions))
	for i, m := range a.Mentions {
		m.Links = slices.Clone(m.Links)
		c.Mentions[i] = m
	}
	return &c
}

// PaperIDs returns the distinct papers the author is mentioned on, ascending.
func (a *Author) PaperIDs() []int64 {
	ids := make([]int64, 0, len(a.Mentions))
	for _, m := range a.Mentions {
		ids = append(ids, m.PaperID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}
