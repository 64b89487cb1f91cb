package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a dose record.
//
// upcoming -> done | skipped | overdue
// overdue  -> done | skipped
// superseded is the terminal outcome applied to non-done records when a
// child's schedule is regenerated; it is never entered through the public
// status API.
type Status string

const (
	StatusUpcoming   Status = "upcoming"
	StatusDone       Status = "done"
	StatusSkipped    Status = "skipped"
	StatusOverdue    Status = "overdue"
	StatusSuperseded Status = "superseded"
)

// ParseStatus maps an external status string onto the enum. "scheduled" is
// accepted as an alias of "upcoming" for compatibility with older clients.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "scheduled", string(StatusUpcoming):
		return StatusUpcoming, nil
	case string(StatusDone):
		return StatusDone, nil
	case string(StatusSkipped):
		return StatusSkipped, nil
	case string(StatusOverdue):
		return StatusOverdue, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Severity grades a recorded side effect.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// ParseSeverity validates a severity string.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityNone, SeverityMild, SeverityModerate, SeveritySevere:
		return Severity(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSeverity, s)
}

// SideEffect is the canonical stored form of one observed reaction.
type SideEffect struct {
	Name   string `json:"name"`
	Detail string `json:"detail,omitempty"`
}

// NormalizeSideEffects accepts the two wire forms clients send, bare string
// tags ("fever") and single-entry objects ({"fever": "38.5C"}), and folds
// both into the canonical SideEffect list.
func NormalizeSideEffects(raw []interface{}) ([]SideEffect, error) {
	var effects []SideEffect
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			if v == "" {
				continue
			}
			effects = append(effects, SideEffect{Name: v})
		case map[string]interface{}:
			for k, val := range v {
				detail := ""
				if s, ok := val.(string); ok {
					detail = s
				} else if val != nil {
					detail = fmt.Sprintf("%v", val)
				}
				effects = append(effects, SideEffect{Name: k, Detail: detail})
			}
		default:
			return nil, fmt.Errorf("%w: side effect entry must be a string or object, got %T", ErrInvalidInput, item)
		}
	}
	return effects, nil
}

// VaccineRecord maps to the vaccine_records table: one row per child,
// vaccine and dose.
type VaccineRecord struct {
	ID              uuid.UUID `db:"id" json:"id"`
	UserID          string    `db:"user_id" json:"user_id"`
	ChildID         string    `db:"child_id" json:"child_id"`
	VaccineCode     string    `db:"vaccine_code" json:"vaccine_code"`
	VaccineName     string    `db:"vaccine_name" json:"vaccine_name"`
	DoseNumber      int       `db:"dose_number" json:"dose_number"`
	ScheduleVersion string    `db:"schedule_version" json:"schedule_version"`

	// BirthDate is the schedule anchor captured at generation time; it makes
	// the done-before-birth validation self-contained.
	BirthDate     time.Time  `db:"birth_date" json:"birth_date"`
	ScheduledDate time.Time  `db:"scheduled_date" json:"scheduled_date"`
	ActualDate    *time.Time `db:"actual_date" json:"actual_date,omitempty"`

	Status    Status  `db:"status" json:"status"`
	IsPrivate bool    `db:"is_private" json:"is_private"`
	BrandCode *string `db:"brand_code" json:"brand_code,omitempty"`

	// Idempotency guards for the reminder passes; monotone, never user-visible
	// state.
	ReminderSent3Day bool `db:"reminder_sent_3day" json:"reminder_sent_3day"`
	ReminderSent1Day bool `db:"reminder_sent_1day" json:"reminder_sent_1day"`

	SideEffectSeverity Severity     `db:"side_effect_severity" json:"side_effect_severity"`
	SideEffects        []SideEffect `db:"side_effects" json:"side_effects,omitempty"`
	Notes              string       `db:"notes" json:"notes"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Active reports whether the record still participates in listings, stats
// and reminder passes.
func (r *VaccineRecord) Active() bool {
	return r.Status != StatusSuperseded
}

// CanComplete reports whether the record may transition to done.
func (r *VaccineRecord) CanComplete() bool {
	return r.Status == StatusUpcoming || r.Status == StatusOverdue
}
