package model

// VenueType classifies the kind of venue a release appeared at.
type VenueType string

// Venue types.
const (
	VenueJournal    VenueType = "journal"
	VenueConference VenueType = "conference"
	VenueWorkshop   VenueType = "workshop"
	VenueSymposium  VenueType = "symposium"
	VenueBook       VenueType = "book"
	VenueReview     VenueType = "review"
	VenuePreprint   VenueType = "preprint"
	VenueChallenge  VenueType = "challenge"
	VenueForum      VenueType = "forum"
	VenueTrack      VenueType = "track"
	VenueTutorials  VenueType = "tutorials"
	VenueSeminar    VenueType = "seminar"
	VenueUnknown    VenueType = "unknown"
)

// Venue describes where a release appeared.
type Venue struct {
	Type         VenueType `json:"type,omitempty" yaml:"type,omitempty"`
	Name         string    `json:"name" yaml:"name"`
	Series       string    `json:"series,omitempty" yaml:"series,omitempty"`
	Volume       string    `json:"volume,omitempty" yaml:"volume,omitempty"`
	Publisher    string    `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	Open         bool      `json:"open,omitempty" yaml:"open,omitempty"`
	PeerReviewed bool      `json:"peer_reviewed,omitempty" yaml:"peer_reviewed,omitempty"`
}
