package model

import "strings"

// ReleaseStatus is the publication state of a release at a venue.
type ReleaseStatus string

// Known statuses. Their rank order is
// draft < preprint < submitted < accepted < published.
const (
	StatusDraft     ReleaseStatus = "draft"
	StatusPreprint  ReleaseStatus = "preprint"
	StatusSubmitted ReleaseStatus = "submitted"
	StatusAccepted  ReleaseStatus = "accepted"
	StatusPublished ReleaseStatus = "published"
)

var statusRank = map[ReleaseStatus]int{
	StatusDraft:     1,
	StatusPreprint:  2,
	StatusSubmitted: 3,
	StatusAccepted:  4,
	StatusPublished: 5,
}

// NormalizeStatus lower-cases and trims a status string.
func NormalizeStatus(s string) ReleaseStatus {
	return ReleaseStatus(strings.ToLower(strings.TrimSpace(s)))
}

// Rank returns the position of s in the status order. Unrecognized statuses
// rank 0, below every known status.
func (s ReleaseStatus) Rank() int {
	return statusRank[s]
}

// HigherStatus returns whichever of a and b ranks higher. Equal ranks resolve
// to the lexically smaller string so the result does not depend on argument
// order.
func HigherStatus(a, b ReleaseStatus) ReleaseStatus {
	ra, rb := a.Rank(), b.Rank()
	switch {
	case ra > rb:
		return a
	case rb > ra:
		return b
	case a == "":
		return b
	case b == "":
		return a
	case b < a:
		return b
	default:
		return a
	}
}
