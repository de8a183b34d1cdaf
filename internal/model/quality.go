package model

import (
	"math"

	"github.com/rotisserie/eris"
)

// Quality is a confidence/completeness weight attached to a record, field or
// mention. Valid values lie in [MinQuality, MaxQuality]; the zero value is the
// lowest quality, never "unset".
type Quality float64

// Quality bounds.
const (
	MinQuality Quality = 0
	MaxQuality Quality = 1
)

// NewQuality validates f and returns it as a Quality.
func NewQuality(f float64) (Quality, error) {
	q := Quality(f)
	if !q.Valid() {
		return 0, eris.Errorf("model: quality %v outside [0, 1]", f)
	}
	return q, nil
}

// Valid reports whether q is a finite value inside the allowed bounds.
func (q Quality) Valid() bool {
	f := float64(q)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	return q >= MinQuality && q <= MaxQuality
}

// MaxOf returns the highest of the given qualities, or MinQuality when empty.
func MaxOf(qs ...Quality) Quality {
	best := MinQuality
	for _, q := range qs {
		if q > best {
			best = q
		}
	}
	return best
}
