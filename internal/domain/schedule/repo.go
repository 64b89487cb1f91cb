package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ReminderWindow selects which advance-reminder pass a query or flag update
// targets.
type ReminderWindow int

const (
	Window3Day ReminderWindow = 3
	Window1Day ReminderWindow = 1
)

// Days returns how many days before the scheduled date the window fires.
func (w ReminderWindow) Days() int { return int(w) }

// Digest is the per-user material for the weekly summary notification.
type Digest struct {
	Done     []*VaccineRecord
	Upcoming []*VaccineRecord
	Overdue  []*VaccineRecord
}

// Empty reports whether the digest carries nothing worth sending.
func (d *Digest) Empty() bool {
	return len(d.Done) == 0 && len(d.Upcoming) == 0 && len(d.Overdue) == 0
}

// Repository is the persistence boundary for vaccine records.
type Repository interface {
	Create(ctx context.Context, rec *VaccineRecord) error
	CreateBatch(ctx context.Context, recs []*VaccineRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*VaccineRecord, error)
	Update(ctx context.Context, rec *VaccineRecord) error

	// ListByChild returns the child's records ordered by scheduled date.
	// status narrows to one lifecycle state when non-empty; superseded rows
	// are always excluded.
	ListByChild(ctx context.Context, childID string, status Status) ([]*VaccineRecord, error)

	// OwnerOf returns the user owning the child's records, or "" when the
	// child has none yet.
	OwnerOf(ctx context.Context, childID string) (string, error)

	// SupersedeActive marks every non-done, non-superseded record of the
	// child as superseded and returns how many rows changed.
	SupersedeActive(ctx context.Context, childID string) (int, error)

	// ActiveExists reports whether the child has an upcoming or overdue
	// record with the given vaccine code.
	ActiveExists(ctx context.Context, childID, vaccineCode string) (bool, error)

	ListSeries(ctx context.Context, childID, vaccineCode, brandCode string) ([]*VaccineRecord, error)
	DeleteSeries(ctx context.Context, childID, vaccineCode, brandCode string) (int, error)

	CountByStatus(ctx context.Context, childID string) (map[Status]int, error)

	// DueWithUnsentReminder returns upcoming records scheduled exactly
	// window.Days() after on whose flag for that window is still unset.
	DueWithUnsentReminder(ctx context.Context, on time.Time, window ReminderWindow) ([]*VaccineRecord, error)

	// OverdueCandidates returns upcoming records whose scheduled date is
	// three or more days before asOf.
	OverdueCandidates(ctx context.Context, asOf time.Time) ([]*VaccineRecord, error)

	// FollowUpCandidates returns records completed exactly one day before
	// asOf with no side effects recorded yet.
	FollowUpCandidates(ctx context.Context, asOf time.Time) ([]*VaccineRecord, error)

	// MarkReminderSent flips the window's flag and reports whether this call
	// was the one that flipped it.
	MarkReminderSent(ctx context.Context, id uuid.UUID, window ReminderWindow) (bool, error)

	// TransitionStatus moves the record from one status to another and
	// reports whether a row changed. The from guard makes the overdue pass
	// idempotent.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error)

	DigestForUser(ctx context.Context, userID string, today time.Time) (*Digest, error)
}
