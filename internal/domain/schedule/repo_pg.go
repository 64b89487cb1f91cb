package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaxtrack/vaxtrack/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type repoPG struct {
	pool *pgxpool.Pool
}

// NewRepoPG returns the Postgres-backed record repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *repoPG) exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const recordCols = `id, user_id, child_id, vaccine_code, vaccine_name, dose_number,
	schedule_version, birth_date, scheduled_date, actual_date, status, is_private,
	brand_code, reminder_sent_3day, reminder_sent_1day, side_effect_severity,
	side_effects, notes, created_at, updated_at`

func scanRecord(row pgx.Row) (*VaccineRecord, error) {
	var rec VaccineRecord
	var effects []byte
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.ChildID, &rec.VaccineCode, &rec.VaccineName,
		&rec.DoseNumber, &rec.ScheduleVersion, &rec.BirthDate, &rec.ScheduledDate,
		&rec.ActualDate, &rec.Status, &rec.IsPrivate, &rec.BrandCode,
		&rec.ReminderSent3Day, &rec.ReminderSent1Day, &rec.SideEffectSeverity,
		&effects, &rec.Notes, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(effects) > 0 {
		if err := json.Unmarshal(effects, &rec.SideEffects); err != nil {
			return nil, fmt.Errorf("decode side effects: %w", err)
		}
	}
	return &rec, nil
}

func collectRecords(rows pgx.Rows) ([]*VaccineRecord, error) {
	defer rows.Close()
	var recs []*VaccineRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (r *repoPG) Create(ctx context.Context, rec *VaccineRecord) error {
	effects, err := json.Marshal(rec.SideEffects)
	if err != nil {
		return fmt.Errorf("encode side effects: %w", err)
	}
	_, err = r.exec(ctx, `
		INSERT INTO vaccine_records (
			id, user_id, child_id, vaccine_code, vaccine_name, dose_number,
			schedule_version, birth_date, scheduled_date, actual_date, status,
			is_private, brand_code, reminder_sent_3day, reminder_sent_1day,
			side_effect_severity, side_effects, notes, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		rec.ID, rec.UserID, rec.ChildID, rec.VaccineCode, rec.VaccineName,
		rec.DoseNumber, rec.ScheduleVersion, rec.BirthDate, rec.ScheduledDate,
		rec.ActualDate, rec.Status, rec.IsPrivate, rec.BrandCode,
		rec.ReminderSent3Day, rec.ReminderSent1Day, rec.SideEffectSeverity,
		effects, rec.Notes, rec.CreatedAt, rec.UpdatedAt,
	)
	return err
}

func (r *repoPG) CreateBatch(ctx context.Context, recs []*VaccineRecord) error {
	for _, rec := range recs {
		if err := r.Create(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*VaccineRecord, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+recordCols+` FROM vaccine_records WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (r *repoPG) Update(ctx context.Context, rec *VaccineRecord) error {
	effects, err := json.Marshal(rec.SideEffects)
	if err != nil {
		return fmt.Errorf("encode side effects: %w", err)
	}
	n, err := r.exec(ctx, `
		UPDATE vaccine_records SET
			actual_date = $2, status = $3, side_effect_severity = $4,
			side_effects = $5, notes = $6, updated_at = now()
		WHERE id = $1`,
		rec.ID, rec.ActualDate, rec.Status, rec.SideEffectSeverity, effects, rec.Notes,
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListByChild(ctx context.Context, childID string, status Status) ([]*VaccineRecord, error) {
	q := `SELECT ` + recordCols + ` FROM vaccine_records
		WHERE child_id = $1 AND status <> 'superseded'`
	args := []any{childID}
	if status != "" {
		q += ` AND status = $2`
		args = append(args, status)
	}
	q += ` ORDER BY scheduled_date, vaccine_code, dose_number`
	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

func (r *repoPG) OwnerOf(ctx context.Context, childID string) (string, error) {
	var userID string
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT user_id FROM vaccine_records WHERE child_id = $1 LIMIT 1`, childID).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return userID, err
}

func (r *repoPG) SupersedeActive(ctx context.Context, childID string) (int, error) {
	n, err := r.exec(ctx, `
		UPDATE vaccine_records SET status = 'superseded', updated_at = now()
		WHERE child_id = $1 AND status NOT IN ('done', 'superseded')`, childID)
	return int(n), err
}

func (r *repoPG) ActiveExists(ctx context.Context, childID, vaccineCode string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM vaccine_records
			WHERE child_id = $1 AND vaccine_code = $2 AND status IN ('upcoming', 'overdue')
		)`, childID, vaccineCode).Scan(&exists)
	return exists, err
}

func (r *repoPG) ListSeries(ctx context.Context, childID, vaccineCode, brandCode string) ([]*VaccineRecord, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+recordCols+` FROM vaccine_records
		WHERE child_id = $1 AND vaccine_code = $2 AND brand_code = $3
			AND status <> 'superseded'
		ORDER BY dose_number`, childID, vaccineCode, brandCode)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

func (r *repoPG) DeleteSeries(ctx context.Context, childID, vaccineCode, brandCode string) (int, error) {
	n, err := r.exec(ctx, `
		DELETE FROM vaccine_records
		WHERE child_id = $1 AND vaccine_code = $2 AND brand_code = $3`,
		childID, vaccineCode, brandCode)
	return int(n), err
}

func (r *repoPG) CountByStatus(ctx context.Context, childID string) (map[Status]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT status, count(*) FROM vaccine_records
		WHERE child_id = $1 AND status <> 'superseded'
		GROUP BY status`, childID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[Status]int)
	for rows.Next() {
		var st Status
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		counts[st] = n
	}
	return counts, rows.Err()
}

func (r *repoPG) DueWithUnsentReminder(ctx context.Context, on time.Time, window ReminderWindow) ([]*VaccineRecord, error) {
	flag := "reminder_sent_3day"
	if window == Window1Day {
		flag = "reminder_sent_1day"
	}
	due := on.AddDate(0, 0, window.Days())
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+recordCols+` FROM vaccine_records
		WHERE status = 'upcoming' AND scheduled_date = $1 AND `+flag+` = FALSE
		ORDER BY child_id, vaccine_code, dose_number`, due)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

func (r *repoPG) OverdueCandidates(ctx context.Context, asOf time.Time) ([]*VaccineRecord, error) {
	cutoff := asOf.AddDate(0, 0, -3)
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+recordCols+` FROM vaccine_records
		WHERE status = 'upcoming' AND scheduled_date <= $1
		ORDER BY child_id, scheduled_date`, cutoff)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

func (r *repoPG) FollowUpCandidates(ctx context.Context, asOf time.Time) ([]*VaccineRecord, error) {
	day := asOf.AddDate(0, 0, -1)
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+recordCols+` FROM vaccine_records
		WHERE status = 'done' AND actual_date = $1 AND side_effect_severity = 'none'
			AND (side_effects IS NULL OR side_effects = 'null'::jsonb OR jsonb_array_length(side_effects) = 0)
		ORDER BY child_id, vaccine_code`, day)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

func (r *repoPG) MarkReminderSent(ctx context.Context, id uuid.UUID, window ReminderWindow) (bool, error) {
	flag := "reminder_sent_3day"
	if window == Window1Day {
		flag = "reminder_sent_1day"
	}
	n, err := r.exec(ctx, `
		UPDATE vaccine_records SET `+flag+` = TRUE, updated_at = now()
		WHERE id = $1 AND `+flag+` = FALSE`, id)
	return n > 0, err
}

func (r *repoPG) TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error) {
	n, err := r.exec(ctx, `
		UPDATE vaccine_records SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`, id, from, to)
	return n > 0, err
}

func (r *repoPG) DigestForUser(ctx context.Context, userID string, today time.Time) (*Digest, error) {
	digest := &Digest{}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+recordCols+` FROM vaccine_records
		WHERE user_id = $1 AND status = 'done' AND actual_date > $2 AND actual_date <= $3
		ORDER BY actual_date`, userID, today.AddDate(0, 0, -7), today)
	if err != nil {
		return nil, err
	}
	if digest.Done, err = collectRecords(rows); err != nil {
		return nil, err
	}

	rows, err = r.conn(ctx).Query(ctx, `
		SELECT `+recordCols+` FROM vaccine_records
		WHERE user_id = $1 AND status = 'upcoming' AND scheduled_date >= $2 AND scheduled_date <= $3
		ORDER BY scheduled_date`, userID, today, today.AddDate(0, 0, 7))
	if err != nil {
		return nil, err
	}
	if digest.Upcoming, err = collectRecords(rows); err != nil {
		return nil, err
	}

	rows, err = r.conn(ctx).Query(ctx, `
		SELECT `+recordCols+` FROM vaccine_records
		WHERE user_id = $1 AND status = 'overdue'
		ORDER BY scheduled_date`, userID)
	if err != nil {
		return nil, err
	}
	if digest.Overdue, err = collectRecords(rows); err != nil {
		return nil, err
	}

	return digest, nil
}
