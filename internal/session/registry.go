package session

import (
	"context"
	"time"
)

// Record is the single live refresh session of a subject.
type Record struct {
	TokenValue string    `json:"token"`
	SubjectID  string    `json:"sub"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func (r Record) liveAt(now time.Time) bool {
	return r.ExpiresAt.After(now)
}

// Registry stores at most one live Record per subject. Every mutation is atomic
// with respect to concurrent readers and writers of the same subject.
type Registry interface {
	// Replace removes every record of rec.SubjectID and stores rec. It reports
	// how many live records were superseded.
	Replace(ctx context.Context, rec Record) (int, error)

	// Rotate is Replace conditioned on presented still being the live record
	// of next.SubjectID. It returns ErrNotFound otherwise.
	Rotate(ctx context.Context, presented string, next Record) error

	// FindByValue returns ErrNotFound for unknown values and for records that
	// expired at or before now, whether or not they were swept.
	FindByValue(ctx context.Context, value string, now time.Time) (Record, error)

	DeleteByValue(ctx context.Context, value string) error
	DeleteBySubject(ctx context.Context, subjectID string) (int, error)

	// Sweep physically removes records expired at or before now.
	Sweep(ctx context.Context, now time.Time) (int, error)
}
