package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vaxtrack/vaxtrack/internal/domain/catalog"
)

// CatalogSource is the slice of the catalog service the generator needs.
type CatalogSource interface {
	ActiveVersion() string
	ListActive(ctx context.Context) ([]*catalog.VaccineDefinition, error)
}

// TxFunc runs fn inside a database transaction. Production wiring passes
// db.WithTx bound to the pool; tests pass a passthrough.
type TxFunc func(ctx context.Context, fn func(ctx context.Context) error) error

// Stats summarizes a child's schedule.
type Stats struct {
	Total      int     `json:"total"`
	Done       int     `json:"done"`
	Upcoming   int     `json:"upcoming"`
	Overdue    int     `json:"overdue"`
	Skipped    int     `json:"skipped"`
	Compliance float64 `json:"compliance"`
}

// Service implements schedule generation and the dose lifecycle.
type Service struct {
	records Repository
	catalog CatalogSource
	inTx    TxFunc
	nowFn   func() time.Time
}

func NewService(records Repository, cat CatalogSource, inTx TxFunc) *Service {
	return &Service{
		records: records,
		catalog: cat,
		inTx:    inTx,
		nowFn:   time.Now,
	}
}

// Generate expands the active catalog version into a fresh timetable for the
// child. Mandatory vaccines only unless includeOptional is set. Existing
// non-done records are superseded and done records kept, so regeneration is
// safe to repeat. The supersede and the inserts commit together or not at
// all.
func (s *Service) Generate(ctx context.Context, userID, childID string, birthDate time.Time, includeOptional bool) ([]*VaccineRecord, error) {
	if childID == "" {
		return nil, fmt.Errorf("%w: child id is required", ErrInvalidInput)
	}
	if birthDate.After(s.nowFn()) {
		return nil, fmt.Errorf("%w: birth date is in the future", ErrInvalidInput)
	}
	defs, err := s.catalog.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	if len(defs) == 0 {
		return nil, ErrNoDefinitions
	}

	recs := BuildRecords(defs, userID, childID, birthDate, includeOptional, s.nowFn())
	if len(recs) == 0 {
		return nil, ErrNoDefinitions
	}

	err = s.inTx(ctx, func(ctx context.Context) error {
		superseded, err := s.records.SupersedeActive(ctx, childID)
		if err != nil {
			return fmt.Errorf("supersede previous schedule: %w", err)
		}
		if superseded > 0 {
			log.Info().Str("child_id", childID).Int("superseded", superseded).
				Msg("replaced previous schedule")
		}
		return s.records.CreateBatch(ctx, recs)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("child_id", childID).Str("version", s.catalog.ActiveVersion()).
		Int("records", len(recs)).Msg("schedule generated")
	return recs, nil
}

// ListByChild returns the child's records, optionally narrowed to one
// status. The filter accepts the same aliases as the status API.
func (s *Service) ListByChild(ctx context.Context, childID, statusFilter string) ([]*VaccineRecord, error) {
	var status Status
	if statusFilter != "" {
		var err error
		if status, err = ParseStatus(statusFilter); err != nil {
			return nil, err
		}
	}
	return s.records.ListByChild(ctx, childID, status)
}

// Upcoming returns the child's not-yet-administered doses in date order,
// overdue ones included.
func (s *Service) Upcoming(ctx context.Context, childID string) ([]*VaccineRecord, error) {
	recs, err := s.records.ListByChild(ctx, childID, "")
	if err != nil {
		return nil, err
	}
	var out []*VaccineRecord
	for _, rec := range recs {
		if rec.Status == StatusUpcoming || rec.Status == StatusOverdue {
			out = append(out, rec)
		}
	}
	return out, nil
}

// History returns the child's completed doses, most recent first.
func (s *Service) History(ctx context.Context, childID string) ([]*VaccineRecord, error) {
	recs, err := s.records.ListByChild(ctx, childID, StatusDone)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*VaccineRecord, error) {
	return s.records.GetByID(ctx, id)
}

// MarkDone completes a dose. The actual date defaults to today, must not
// precede the child's birth date and must not lie in the future.
func (s *Service) MarkDone(ctx context.Context, id uuid.UUID, actualDate *time.Time, notes string) (*VaccineRecord, error) {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.CanComplete() {
		return nil, fmt.Errorf("%w: cannot mark %s record done", ErrIllegalTransition, rec.Status)
	}

	when := s.nowFn().Truncate(24 * time.Hour)
	if actualDate != nil {
		when = *actualDate
	}
	if when.Before(rec.BirthDate) {
		return nil, ErrDateBeforeBirth
	}
	if when.After(s.nowFn()) {
		return nil, ErrDateInFuture
	}

	rec.Status = StatusDone
	rec.ActualDate = &when
	if notes != "" {
		rec.Notes = notes
	}
	if err := s.records.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateStatus applies a requested lifecycle transition. Done is reachable
// only through MarkDone so the actual date is always validated; superseded
// is not reachable at all.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, statusStr, notes string) (*VaccineRecord, error) {
	status, err := ParseStatus(statusStr)
	if err != nil {
		return nil, err
	}
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !legalTransition(rec.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, rec.Status, status)
	}
	if status == StatusDone {
		return s.MarkDone(ctx, id, nil, notes)
	}

	rec.Status = status
	rec.ActualDate = nil
	if notes != "" {
		rec.Notes = notes
	}
	if err := s.records.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func legalTransition(from, to Status) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusUpcoming:
		return to == StatusDone || to == StatusSkipped || to == StatusOverdue
	case StatusOverdue:
		return to == StatusDone || to == StatusSkipped
	}
	// done, skipped and superseded are terminal.
	return false
}

// RecordSideEffects attaches observed reactions to a dose. Any status is
// accepted; in practice reports arrive on completed doses, but a reaction
// noticed before the record is marked done must not be lost.
func (s *Service) RecordSideEffects(ctx context.Context, id uuid.UUID, raw []interface{}, severityStr string) (*VaccineRecord, error) {
	severity, err := ParseSeverity(severityStr)
	if err != nil {
		return nil, err
	}
	effects, err := NormalizeSideEffects(raw)
	if err != nil {
		return nil, err
	}
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	rec.SideEffects = effects
	rec.SideEffectSeverity = severity
	if err := s.records.Update(ctx, rec); err != nil {
		return nil, err
	}
	if severity == SeveritySevere {
		log.Warn().Str("record_id", rec.ID.String()).Str("child_id", rec.ChildID).
			Str("vaccine", rec.VaccineCode).Msg("severe side effect recorded")
	}
	return rec, nil
}

// Stats aggregates the child's schedule by status. Compliance is the done
// share of all active records; zero when the child has none.
func (s *Service) Stats(ctx context.Context, childID string) (*Stats, error) {
	counts, err := s.records.CountByStatus(ctx, childID)
	if err != nil {
		return nil, err
	}
	st := &Stats{
		Done:     counts[StatusDone],
		Upcoming: counts[StatusUpcoming],
		Overdue:  counts[StatusOverdue],
		Skipped:  counts[StatusSkipped],
	}
	st.Total = st.Done + st.Upcoming + st.Overdue + st.Skipped
	if st.Total > 0 {
		st.Compliance = float64(st.Done) / float64(st.Total)
	}
	return st, nil
}
