package export

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/vaxtrack/vaxtrack/internal/domain/schedule"
)

// Kind selects which sheet an export renders.
type Kind string

const (
	KindUpcoming Kind = "upcoming"
	KindHistory  Kind = "history"
)

var ErrInvalidKind = errors.New("export kind must be upcoming or history")

// ParseKind validates an export kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindUpcoming, KindHistory:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

// Workbook renders the records into a single-sheet xlsx file and returns its
// bytes. Read-only over the records; superseded rows are the caller's
// problem to filter.
func Workbook(records []*schedule.VaccineRecord, kind Kind) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Upcoming Schedule"
	headers := []string{"Vaccine", "Dose", "Scheduled Date", "Status", "Brand", "Notes"}
	if kind == KindHistory {
		sheet = "Vaccination History"
		headers = []string{"Vaccine", "Dose", "Administered", "Severity", "Side Effects", "Notes"}
	}

	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}

	for col, h := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		last, _ := excelize.CoordinatesToCellName(len(headers), 1)
		_ = f.SetCellStyle(sheet, "A1", last, style)
	}

	for i, rec := range records {
		row := rowValues(rec, kind)
		for col, v := range row {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func rowValues(rec *schedule.VaccineRecord, kind Kind) []interface{} {
	if kind == KindHistory {
		administered := ""
		if rec.ActualDate != nil {
			administered = rec.ActualDate.Format("2006-01-02")
		}
		effects := ""
		for i, eff := range rec.SideEffects {
			if i > 0 {
				effects += "; "
			}
			effects += eff.Name
			if eff.Detail != "" {
				effects += " (" + eff.Detail + ")"
			}
		}
		return []interface{}{
			rec.VaccineName, rec.DoseNumber, administered,
			string(rec.SideEffectSeverity), effects, rec.Notes,
		}
	}

	brand := ""
	if rec.BrandCode != nil {
		brand = *rec.BrandCode
	}
	return []interface{}{
		rec.VaccineName, rec.DoseNumber, rec.ScheduledDate.Format("2006-01-02"),
		string(rec.Status), brand, rec.Notes,
	}
}
