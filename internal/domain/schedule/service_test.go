package schedule

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vaxtrack/vaxtrack/internal/domain/catalog"
)

type mockRepo struct {
	records map[uuid.UUID]*VaccineRecord
}

func newMockRepo() *mockRepo {
	return &mockRepo{records: make(map[uuid.UUID]*VaccineRecord)}
}

func (m *mockRepo) Create(_ context.Context, rec *VaccineRecord) error {
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *mockRepo) CreateBatch(ctx context.Context, recs []*VaccineRecord) error {
	for _, rec := range recs {
		if err := m.Create(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*VaccineRecord, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, rec *VaccineRecord) error {
	if _, ok := m.records[rec.ID]; !ok {
		return ErrNotFound
	}
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *mockRepo) ListByChild(_ context.Context, childID string, status Status) ([]*VaccineRecord, error) {
	var out []*VaccineRecord
	for _, rec := range m.records {
		if rec.ChildID != childID || rec.Status == StatusSuperseded {
			continue
		}
		if status != "" && rec.Status != status {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledDate.Equal(out[j].ScheduledDate) {
			return out[i].ScheduledDate.Before(out[j].ScheduledDate)
		}
		if out[i].VaccineCode != out[j].VaccineCode {
			return out[i].VaccineCode < out[j].VaccineCode
		}
		return out[i].DoseNumber < out[j].DoseNumber
	})
	return out, nil
}

func (m *mockRepo) OwnerOf(_ context.Context, childID string) (string, error) {
	for _, rec := range m.records {
		if rec.ChildID == childID {
			return rec.UserID, nil
		}
	}
	return "", nil
}

func (m *mockRepo) SupersedeActive(_ context.Context, childID string) (int, error) {
	n := 0
	for _, rec := range m.records {
		if rec.ChildID == childID && rec.Status != StatusDone && rec.Status != StatusSuperseded {
			rec.Status = StatusSuperseded
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) ActiveExists(_ context.Context, childID, vaccineCode string) (bool, error) {
	for _, rec := range m.records {
		if rec.ChildID == childID && rec.VaccineCode == vaccineCode &&
			(rec.Status == StatusUpcoming || rec.Status == StatusOverdue) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) ListSeries(_ context.Context, childID, vaccineCode, brandCode string) ([]*VaccineRecord, error) {
	var out []*VaccineRecord
	for _, rec := range m.records {
		if rec.ChildID == childID && rec.VaccineCode == vaccineCode &&
			rec.BrandCode != nil && *rec.BrandCode == brandCode && rec.Status != StatusSuperseded {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DoseNumber < out[j].DoseNumber })
	return out, nil
}

func (m *mockRepo) DeleteSeries(_ context.Context, childID, vaccineCode, brandCode string) (int, error) {
	n := 0
	for id, rec := range m.records {
		if rec.ChildID == childID && rec.VaccineCode == vaccineCode &&
			rec.BrandCode != nil && *rec.BrandCode == brandCode {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) CountByStatus(_ context.Context, childID string) (map[Status]int, error) {
	counts := make(map[Status]int)
	for _, rec := range m.records {
		if rec.ChildID == childID && rec.Status != StatusSuperseded {
			counts[rec.Status]++
		}
	}
	return counts, nil
}

func (m *mockRepo) DueWithUnsentReminder(_ context.Context, on time.Time, window ReminderWindow) ([]*VaccineRecord, error) {
	due := on.AddDate(0, 0, window.Days())
	var out []*VaccineRecord
	for _, rec := range m.records {
		if rec.Status != StatusUpcoming || !rec.ScheduledDate.Equal(due) {
			continue
		}
		sent := rec.ReminderSent3Day
		if window == Window1Day {
			sent = rec.ReminderSent1Day
		}
		if !sent {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) OverdueCandidates(_ context.Context, asOf time.Time) ([]*VaccineRecord, error) {
	cutoff := asOf.AddDate(0, 0, -3)
	var out []*VaccineRecord
	for _, rec := range m.records {
		if rec.Status == StatusUpcoming && !rec.ScheduledDate.After(cutoff) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) FollowUpCandidates(_ context.Context, asOf time.Time) ([]*VaccineRecord, error) {
	day := asOf.AddDate(0, 0, -1)
	var out []*VaccineRecord
	for _, rec := range m.records {
		if rec.Status == StatusDone && rec.ActualDate != nil && rec.ActualDate.Equal(day) &&
			rec.SideEffectSeverity == SeverityNone && len(rec.SideEffects) == 0 {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) MarkReminderSent(_ context.Context, id uuid.UUID, window ReminderWindow) (bool, error) {
	rec, ok := m.records[id]
	if !ok {
		return false, nil
	}
	if window == Window1Day {
		if rec.ReminderSent1Day {
			return false, nil
		}
		rec.ReminderSent1Day = true
		return true, nil
	}
	if rec.ReminderSent3Day {
		return false, nil
	}
	rec.ReminderSent3Day = true
	return true, nil
}

func (m *mockRepo) TransitionStatus(_ context.Context, id uuid.UUID, from, to Status) (bool, error) {
	rec, ok := m.records[id]
	if !ok || rec.Status != from {
		return false, nil
	}
	rec.Status = to
	return true, nil
}

func (m *mockRepo) DigestForUser(_ context.Context, userID string, today time.Time) (*Digest, error) {
	digest := &Digest{}
	for _, rec := range m.records {
		if rec.UserID != userID || rec.Status == StatusSuperseded {
			continue
		}
		cp := *rec
		switch {
		case rec.Status == StatusDone && rec.ActualDate != nil &&
			rec.ActualDate.After(today.AddDate(0, 0, -7)) && !rec.ActualDate.After(today):
			digest.Done = append(digest.Done, &cp)
		case rec.Status == StatusUpcoming && !rec.ScheduledDate.Before(today) &&
			!rec.ScheduledDate.After(today.AddDate(0, 0, 7)):
			digest.Upcoming = append(digest.Upcoming, &cp)
		case rec.Status == StatusOverdue:
			digest.Overdue = append(digest.Overdue, &cp)
		}
	}
	return digest, nil
}

type mockCatalog struct {
	defs []*catalog.VaccineDefinition
}

func (m *mockCatalog) ActiveVersion() string { return "2024" }

func (m *mockCatalog) ListActive(_ context.Context) ([]*catalog.VaccineDefinition, error) {
	return m.defs, nil
}

func testCatalog() *mockCatalog {
	return &mockCatalog{defs: []*catalog.VaccineDefinition{
		{
			Code: "BCG", Name: "BCG", DoseCount: 1, Mandatory: true, ScheduleVersion: "2024",
			Doses: []catalog.DoseDefinition{{DoseNumber: 1, AgeOffsetMonths: 0}},
		},
		{
			Code: "HEPB", Name: "Hepatitis B", DoseCount: 3, Mandatory: true, ScheduleVersion: "2024",
			Doses: []catalog.DoseDefinition{
				{DoseNumber: 1, AgeOffsetMonths: 0},
				{DoseNumber: 2, AgeOffsetMonths: 1},
				{DoseNumber: 3, AgeOffsetMonths: 6},
			},
		},
		{
			Code: "FLU", Name: "Influenza", DoseCount: 1, Mandatory: false, ScheduleVersion: "2024",
			Doses: []catalog.DoseDefinition{{DoseNumber: 1, AgeOffsetMonths: 6}},
		},
	}}
}

func passthroughTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestService(repo *mockRepo) *Service {
	svc := NewService(repo, testCatalog(), passthroughTx)
	svc.nowFn = func() time.Time { return date(2024, 6, 15) }
	return svc
}

func TestGenerate(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	recs, err := svc.Generate(context.Background(), "user-1", "child-1", date(2024, 1, 10), false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(recs) != 4 {
		t.Fatalf("expected 4 records, got %d", len(recs))
	}
	// Sorted by scheduled date: BCG-1 and HEPB-1 at birth, then HEPB-2, HEPB-3.
	if recs[0].VaccineCode != "BCG" || !recs[0].ScheduledDate.Equal(date(2024, 1, 10)) {
		t.Errorf("first record = %s on %v", recs[0].VaccineCode, recs[0].ScheduledDate)
	}
	last := recs[3]
	if last.VaccineCode != "HEPB" || last.DoseNumber != 3 || !last.ScheduledDate.Equal(date(2024, 7, 10)) {
		t.Errorf("last record = %s dose %d on %v", last.VaccineCode, last.DoseNumber, last.ScheduledDate)
	}
	for _, rec := range recs {
		if rec.Status != StatusUpcoming {
			t.Errorf("record %s status = %s", rec.VaccineCode, rec.Status)
		}
		if !rec.BirthDate.Equal(date(2024, 1, 10)) {
			t.Errorf("record %s birth date = %v", rec.VaccineCode, rec.BirthDate)
		}
	}
}

func TestGenerate_IncludeOptional(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	recs, err := svc.Generate(context.Background(), "user-1", "child-1", date(2024, 1, 10), true)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(recs) != 5 {
		t.Fatalf("expected 5 records with optional vaccines, got %d", len(recs))
	}
	found := false
	for _, rec := range recs {
		if rec.VaccineCode == "FLU" {
			found = true
		}
	}
	if !found {
		t.Error("optional vaccine missing from schedule")
	}
}

func TestGenerate_FutureBirthDate(t *testing.T) {
	svc := newTestService(newMockRepo())
	if _, err := svc.Generate(context.Background(), "user-1", "child-1", date(2025, 1, 1), false); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestGenerate_SupersedesButKeepsDone(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	first, err := svc.Generate(ctx, "user-1", "child-1", date(2024, 1, 10), false)
	if err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	done, err := svc.MarkDone(ctx, first[0].ID, nil, "")
	if err != nil {
		t.Fatalf("MarkDone: %v", err)
	}

	if _, err := svc.Generate(ctx, "user-1", "child-1", date(2024, 1, 12), false); err != nil {
		t.Fatalf("second Generate: %v", err)
	}

	recs, err := svc.ListByChild(ctx, "child-1", "")
	if err != nil {
		t.Fatalf("ListByChild: %v", err)
	}
	// 4 fresh records plus the preserved done one.
	if len(recs) != 5 {
		t.Fatalf("expected 5 active records, got %d", len(recs))
	}
	kept, err := svc.Get(ctx, done.ID)
	if err != nil {
		t.Fatalf("Get done record: %v", err)
	}
	if kept.Status != StatusDone {
		t.Errorf("done record status after regeneration = %s", kept.Status)
	}
	for _, rec := range first[1:] {
		old, err := repo.GetByID(ctx, rec.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if old.Status != StatusSuperseded {
			t.Errorf("old record %s dose %d status = %s", old.VaccineCode, old.DoseNumber, old.Status)
		}
	}
}

func TestDueDate_MonthEndNormalization(t *testing.T) {
	// Jan 31 + 1 month lands in early March, not on a clamped Feb date.
	got := DueDate(date(2024, 1, 31), 1)
	if !got.Equal(date(2024, 3, 2)) {
		t.Errorf("DueDate(Jan 31 2024, 1) = %v, want 2024-03-02", got)
	}
	if got := DueDate(date(2024, 1, 15), 6); !got.Equal(date(2024, 7, 15)) {
		t.Errorf("DueDate(Jan 15 2024, 6) = %v, want 2024-07-15", got)
	}
}

func TestMarkDone_Validation(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	recs, err := svc.Generate(ctx, "user-1", "child-1", date(2024, 1, 10), false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	id := recs[0].ID

	before := date(2024, 1, 5)
	if _, err := svc.MarkDone(ctx, id, &before, ""); !errors.Is(err, ErrDateBeforeBirth) {
		t.Errorf("date before birth: got %v", err)
	}
	future := date(2024, 12, 1)
	if _, err := svc.MarkDone(ctx, id, &future, ""); !errors.Is(err, ErrDateInFuture) {
		t.Errorf("future date: got %v", err)
	}

	actual := date(2024, 2, 1)
	rec, err := svc.MarkDone(ctx, id, &actual, "clinic visit")
	if err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	if rec.Status != StatusDone || rec.ActualDate == nil || !rec.ActualDate.Equal(actual) {
		t.Errorf("record after MarkDone = %+v", rec)
	}
	if rec.Notes != "clinic visit" {
		t.Errorf("notes = %q", rec.Notes)
	}

	if _, err := svc.MarkDone(ctx, id, &actual, ""); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("double MarkDone: got %v", err)
	}
}

func TestUpdateStatus_Transitions(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	recs, err := svc.Generate(ctx, "user-1", "child-1", date(2024, 1, 10), false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	id := recs[0].ID

	// "scheduled" is accepted as an alias of upcoming.
	rec, err := svc.UpdateStatus(ctx, id, "scheduled", "")
	if err != nil {
		t.Fatalf("alias: %v", err)
	}
	if rec.Status != StatusUpcoming {
		t.Errorf("status after alias = %s", rec.Status)
	}

	if rec, err = svc.UpdateStatus(ctx, id, "skipped", "parental refusal"); err != nil {
		t.Fatalf("skip: %v", err)
	}
	if rec.Status != StatusSkipped {
		t.Errorf("status = %s", rec.Status)
	}

	// Skipped is terminal.
	if _, err := svc.UpdateStatus(ctx, id, "scheduled", ""); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("skipped -> upcoming: got %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, id, "done", ""); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("skipped -> done: got %v", err)
	}

	if _, err := svc.UpdateStatus(ctx, id, "superseded", ""); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("superseded via API: got %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, id, "bogus", ""); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("bogus status: got %v", err)
	}

	id2 := recs[1].ID
	if _, err := svc.MarkDone(ctx, id2, nil, ""); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, id2, "skipped", ""); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("done -> skipped: got %v", err)
	}
}

func TestRecordSideEffects(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	recs, err := svc.Generate(ctx, "user-1", "child-1", date(2024, 1, 10), false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	id := recs[0].ID

	raw := []interface{}{"fever", map[string]interface{}{"rash": "left arm"}}
	early, err := svc.RecordSideEffects(ctx, id, raw, "mild")
	if err != nil {
		t.Fatalf("side effects on upcoming dose: %v", err)
	}
	if early.Status != StatusUpcoming || len(early.SideEffects) != 2 {
		t.Errorf("upcoming report not kept: status=%s effects=%d", early.Status, len(early.SideEffects))
	}

	if _, err := svc.MarkDone(ctx, id, nil, ""); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	rec, err := svc.RecordSideEffects(ctx, id, raw, "moderate")
	if err != nil {
		t.Fatalf("RecordSideEffects: %v", err)
	}
	if len(rec.SideEffects) != 2 {
		t.Fatalf("expected 2 side effects, got %d", len(rec.SideEffects))
	}
	if rec.SideEffects[0].Name != "fever" || rec.SideEffects[0].Detail != "" {
		t.Errorf("first effect = %+v", rec.SideEffects[0])
	}
	if rec.SideEffects[1].Name != "rash" || rec.SideEffects[1].Detail != "left arm" {
		t.Errorf("second effect = %+v", rec.SideEffects[1])
	}
	if rec.SideEffectSeverity != SeverityModerate {
		t.Errorf("severity = %s", rec.SideEffectSeverity)
	}

	if _, err := svc.RecordSideEffects(ctx, id, raw, "catastrophic"); !errors.Is(err, ErrInvalidSeverity) {
		t.Errorf("bad severity: got %v", err)
	}
	if _, err := svc.RecordSideEffects(ctx, id, []interface{}{42}, "mild"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("numeric effect entry: got %v", err)
	}
}

func TestStats(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	recs, err := svc.Generate(ctx, "user-1", "child-1", date(2024, 1, 10), false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	st, err := svc.Stats(ctx, "child-1")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Total != 4 || st.Upcoming != 4 || st.Compliance != 0 {
		t.Errorf("fresh stats = %+v", st)
	}

	empty, err := svc.Stats(ctx, "child-without-schedule")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if empty.Total != 0 || empty.Compliance != 0 {
		t.Errorf("empty stats = %+v", empty)
	}

	if _, err := svc.MarkDone(ctx, recs[0].ID, nil, ""); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	if _, err := repo.TransitionStatus(ctx, recs[1].ID, StatusUpcoming, StatusOverdue); err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}

	st, err = svc.Stats(ctx, "child-1")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Done != 1 || st.Overdue != 1 || st.Upcoming != 2 {
		t.Errorf("stats = %+v", st)
	}
	if st.Compliance != 0.25 {
		t.Errorf("compliance = %v, want 0.25", st.Compliance)
	}
}

func TestUpcomingAndHistory(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	recs, err := svc.Generate(ctx, "user-1", "child-1", date(2024, 1, 10), false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := svc.MarkDone(ctx, recs[0].ID, nil, ""); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	if _, err := repo.TransitionStatus(ctx, recs[1].ID, StatusUpcoming, StatusOverdue); err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}

	up, err := svc.Upcoming(ctx, "child-1")
	if err != nil {
		t.Fatalf("Upcoming: %v", err)
	}
	if len(up) != 3 {
		t.Errorf("upcoming count = %d, want 3 (overdue included)", len(up))
	}

	hist, err := svc.History(ctx, "child-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 1 || hist[0].Status != StatusDone {
		t.Errorf("history = %d records", len(hist))
	}
}

func TestDirectory(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	dir := NewDirectory(repo)
	ok, err := dir.ChildBelongsTo(ctx, "child-1", "user-1")
	if err != nil || !ok {
		t.Errorf("unclaimed child: ok=%v err=%v", ok, err)
	}

	if _, err := svc.Generate(ctx, "user-1", "child-1", date(2024, 1, 10), false); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if ok, _ := dir.ChildBelongsTo(ctx, "child-1", "user-1"); !ok {
		t.Error("owner rejected")
	}
	if ok, _ := dir.ChildBelongsTo(ctx, "child-1", "user-2"); ok {
		t.Error("stranger accepted")
	}
}

func TestNormalizeSideEffects_Empty(t *testing.T) {
	effects, err := NormalizeSideEffects(nil)
	if err != nil {
		t.Fatalf("NormalizeSideEffects(nil): %v", err)
	}
	if len(effects) != 0 {
		t.Errorf("expected no effects, got %d", len(effects))
	}
	effects, err = NormalizeSideEffects([]interface{}{""})
	if err != nil {
		t.Fatalf("NormalizeSideEffects: %v", err)
	}
	if len(effects) != 0 {
		t.Errorf("empty tag should be dropped, got %d effects", len(effects))
	}
}
