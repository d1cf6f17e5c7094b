// Package patientpref stores the optional per-patient time-of-day hints used
// to soft-weight slot recommendations. Preferences are never a hard filter.
package patientpref

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Bucket string

const (
	Morning   Bucket = "morning"   // before 12:00
	Afternoon Bucket = "afternoon" // 12:00 to 17:00
	Evening   Bucket = "evening"   // 17:00 onward
)

// BucketOf maps a clinic-local wall clock to its time-of-day bucket.
func BucketOf(local time.Time) Bucket {
	switch h := local.Hour(); {
	case h < 12:
		return Morning
	case h < 17:
		return Afternoon
	default:
		return Evening
	}
}

// Preference holds a patient's preferred time-of-day buckets.
type Preference struct {
	PatientID uuid.UUID
	Buckets   []Bucket
}

// Prefers reports whether the bucket is among the patient's preferred ones.
func (p *Preference) Prefers(b Bucket) bool {
	for _, have := range p.Buckets {
		if have == b {
			return true
		}
	}
	return false
}

var ErrPreferenceNotFound = errors.New("patient preference not found")

type Store interface {
	// Get returns the patient's preference, or ErrPreferenceNotFound when
	// none was recorded. Absence is normal, not an error condition upstream.
	Get(ctx context.Context, patientID uuid.UUID) (*Preference, error)
}
