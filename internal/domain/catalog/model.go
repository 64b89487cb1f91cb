package catalog

import (
	"time"

	"github.com/google/uuid"
)

// VaccineDefinition maps to the vaccine_catalog table: one row per vaccine
// per schedule version. Definitions are immutable once a version is
// published; revisions ship as a new schedule_version.
type VaccineDefinition struct {
	ID              uuid.UUID `db:"id" json:"id"`
	Code            string    `db:"code" json:"code"`
	Name            string    `db:"name" json:"name"`
	Category        string    `db:"category" json:"category"`
	DoseCount       int       `db:"dose_count" json:"dose_count"`
	Mandatory       bool      `db:"mandatory" json:"mandatory"`
	ScheduleVersion string    `db:"schedule_version" json:"schedule_version"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`

	// Doses holds the per-dose age offsets, ordered by dose number.
	Doses []DoseDefinition `json:"doses"`
}

// DoseDefinition maps to the vaccine_catalog_doses table: the age offset
// (calendar months from birth) at which one dose of a vaccine is due.
type DoseDefinition struct {
	DoseNumber      int `db:"dose_number" json:"dose_number"`
	AgeOffsetMonths int `db:"age_offset_months" json:"age_offset_months"`
}

// OffsetForDose returns the age offset for the given dose number.
func (d *VaccineDefinition) OffsetForDose(doseNumber int) (int, bool) {
	for _, dose := range d.Doses {
		if dose.DoseNumber == doseNumber {
			return dose.AgeOffsetMonths, true
		}
	}
	return 0, false
}
