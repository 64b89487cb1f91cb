package schedule

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vaxtrack/vaxtrack/internal/domain/catalog"
)

// DueDate computes a dose's scheduled date: birth date plus the catalog
// offset in calendar months. time.AddDate carries the normalization rule we
// want (Jan 31 + 1 month = Mar 2/3), so month-end births stay deterministic.
func DueDate(birthDate time.Time, offsetMonths int) time.Time {
	return birthDate.AddDate(0, offsetMonths, 0)
}

// BuildRecords expands catalog definitions into one upcoming record per dose
// for the child. Optional vaccines are skipped unless includeOptional is set.
// Records come back sorted by scheduled date, then vaccine code, then dose
// number.
func BuildRecords(defs []*catalog.VaccineDefinition, userID, childID string, birthDate time.Time, includeOptional bool, now time.Time) []*VaccineRecord {
	var recs []*VaccineRecord
	for _, def := range defs {
		if !def.Mandatory && !includeOptional {
			continue
		}
		for _, dose := range def.Doses {
			recs = append(recs, &VaccineRecord{
				ID:                 uuid.New(),
				UserID:             userID,
				ChildID:            childID,
				VaccineCode:        def.Code,
				VaccineName:        def.Name,
				DoseNumber:         dose.DoseNumber,
				ScheduleVersion:    def.ScheduleVersion,
				BirthDate:          birthDate,
				ScheduledDate:      DueDate(birthDate, dose.AgeOffsetMonths),
				Status:             StatusUpcoming,
				SideEffectSeverity: SeverityNone,
				CreatedAt:          now,
				UpdatedAt:          now,
			})
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if !a.ScheduledDate.Equal(b.ScheduledDate) {
			return a.ScheduledDate.Before(b.ScheduledDate)
		}
		if a.VaccineCode != b.VaccineCode {
			return a.VaccineCode < b.VaccineCode
		}
		return a.DoseNumber < b.DoseNumber
	})
	return recs
}
