package privatevaccine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vaxtrack/vaxtrack/internal/domain/schedule"
)

// ScheduleVersionPrivate marks wizard-created records; they never belong to
// a national catalog version.
const ScheduleVersionPrivate = "private"

var (
	ErrTypeNotFound   = errors.New("private vaccine type not found")
	ErrBrandNotFound  = errors.New("brand not found for vaccine type")
	ErrSeriesConflict = errors.New("an active series already exists for this vaccine family")
	ErrAnchorRequired = errors.New("first dose date is required for this brand")
	ErrNotPrivate     = errors.New("record does not belong to a private series")
	ErrForbidden      = errors.New("record does not belong to the user")
)

// DosePlan is the preview returned by Validate: what AddToSchedule would
// create, without creating it.
type DosePlan struct {
	TypeKey   string      `json:"type"`
	BrandCode string      `json:"brand_code"`
	Family    string      `json:"family"`
	DoseCount int         `json:"dose_count"`
	Anchor    Anchor      `json:"anchor"`
	Dates     []time.Time `json:"dates"`
}

// RecordStore is the slice of the record repository the wizard needs.
type RecordStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*schedule.VaccineRecord, error)
	CreateBatch(ctx context.Context, recs []*schedule.VaccineRecord) error
	ActiveExists(ctx context.Context, childID, vaccineCode string) (bool, error)
	ListSeries(ctx context.Context, childID, vaccineCode, brandCode string) ([]*schedule.VaccineRecord, error)
	DeleteSeries(ctx context.Context, childID, vaccineCode, brandCode string) (int, error)
}

// Service implements the private vaccine wizard on top of the shared record
// store.
type Service struct {
	records RecordStore
	inTx    schedule.TxFunc
	nowFn   func() time.Time
}

func NewService(records RecordStore, inTx schedule.TxFunc) *Service {
	return &Service{records: records, inTx: inTx, nowFn: time.Now}
}

// ListTypes returns the configured wizard catalog.
func (s *Service) ListTypes() []VaccineType { return Types() }

// Validate checks an addition and returns the dose plan it would create.
// Read-only; a UI may call it any number of times before committing.
// anchorDate is the intended first dose date for first-dose-anchored brands
// and is ignored for birth-anchored ones.
func (s *Service) Validate(ctx context.Context, childID, typeKey, brandCode string, birthDate time.Time, anchorDate *time.Time) (*DosePlan, error) {
	vt, ok := TypeByKey(typeKey)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTypeNotFound, typeKey)
	}
	brand, ok := vt.BrandByCode(brandCode)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBrandNotFound, brandCode)
	}

	exists, err := s.records.ActiveExists(ctx, childID, vt.Family)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: family %s", ErrSeriesConflict, vt.Family)
	}

	anchor := birthDate
	if brand.Anchor == AnchorFirstDose {
		if anchorDate == nil {
			return nil, ErrAnchorRequired
		}
		anchor = *anchorDate
	}

	plan := &DosePlan{
		TypeKey:   vt.Key,
		BrandCode: brand.Code,
		Family:    vt.Family,
		DoseCount: brand.DoseCount,
		Anchor:    brand.Anchor,
	}
	for _, offset := range brand.OffsetsMonths {
		plan.Dates = append(plan.Dates, schedule.DueDate(anchor, offset))
	}
	return plan, nil
}

// AddToSchedule re-validates and inserts the series into the record store.
// All doses commit together.
func (s *Service) AddToSchedule(ctx context.Context, userID, childID, typeKey, brandCode string, birthDate time.Time, anchorDate *time.Time) ([]*schedule.VaccineRecord, error) {
	plan, err := s.Validate(ctx, childID, typeKey, brandCode, birthDate, anchorDate)
	if err != nil {
		return nil, err
	}
	vt, _ := TypeByKey(typeKey)

	now := s.nowFn()
	brandCopy := plan.BrandCode
	var recs []*schedule.VaccineRecord
	for i, due := range plan.Dates {
		recs = append(recs, &schedule.VaccineRecord{
			ID:                 uuid.New(),
			UserID:             userID,
			ChildID:            childID,
			VaccineCode:        plan.Family,
			VaccineName:        vt.Name,
			DoseNumber:         i + 1,
			ScheduleVersion:    ScheduleVersionPrivate,
			BirthDate:          birthDate,
			ScheduledDate:      due,
			Status:             schedule.StatusUpcoming,
			IsPrivate:          true,
			BrandCode:          &brandCopy,
			SideEffectSeverity: schedule.SeverityNone,
			CreatedAt:          now,
			UpdatedAt:          now,
		})
	}

	err = s.inTx(ctx, func(ctx context.Context) error {
		// Re-check under the transaction so two concurrent additions cannot
		// both pass the preview.
		exists, err := s.records.ActiveExists(ctx, childID, plan.Family)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: family %s", ErrSeriesConflict, plan.Family)
		}
		return s.records.CreateBatch(ctx, recs)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("child_id", childID).Str("brand", plan.BrandCode).
		Int("doses", len(recs)).Msg("private series added")
	return recs, nil
}

// RemoveSeries resolves the record's series and deletes every record in it,
// returning the removed records. A vaccination course is removed whole or
// not at all.
func (s *Service) RemoveSeries(ctx context.Context, userID string, recordID uuid.UUID) ([]*schedule.VaccineRecord, error) {
	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		return nil, ErrForbidden
	}
	if !rec.IsPrivate || rec.BrandCode == nil {
		return nil, ErrNotPrivate
	}

	var removed []*schedule.VaccineRecord
	err = s.inTx(ctx, func(ctx context.Context) error {
		// Snapshot the series under the transaction so the response matches
		// exactly what the delete takes out.
		removed, err = s.records.ListSeries(ctx, rec.ChildID, rec.VaccineCode, *rec.BrandCode)
		if err != nil {
			return err
		}
		n, err := s.records.DeleteSeries(ctx, rec.ChildID, rec.VaccineCode, *rec.BrandCode)
		if err != nil {
			return err
		}
		if n == 0 {
			return schedule.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("child_id", rec.ChildID).Str("brand", *rec.BrandCode).
		Str("user_id", userID).Int("deleted", len(removed)).Msg("private series removed")
	return removed, nil
}
