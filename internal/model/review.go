package model

import "time"

// ReviewKind classifies a manual review item.
type ReviewKind string

// Review kinds.
const (
	ReviewAmbiguousAuthor ReviewKind = "ambiguous_author"
)

// Review is a reconciliation decision deferred to a human.
type Review struct {
	ID           string     `json:"id" yaml:"id"`
	Kind         ReviewKind `json:"kind" yaml:"kind"`
	MentionID    string     `json:"mention_id" yaml:"mention_id"`
	PaperID      int64      `json:"paper_id" yaml:"paper_id"`
	AuthorID     int64      `json:"author_id" yaml:"author_id"`
	CandidateIDs []int64    `json:"candidate_ids" yaml:"candidate_ids"`
	Name         string     `json:"name" yaml:"name"`
	CreatedAt    time.Time  `json:"created_at" yaml:"created_at"`
}

// EntityKind names the kind of canonical entity a redirect or link refers to.
type EntityKind string

// Entity kinds.
const (
	KindPaper  EntityKind = "paper"
	KindAuthor EntityKind = "author"
)

// Redirect records that an absorbed entity now lives under another id.
type Redirect struct {
	Kind EntityKind `json:"kind" yaml:"kind"`
	From int64      `json:"from" yaml:"from"`
	To   int64      `json:"to" yaml:"to"`
}
