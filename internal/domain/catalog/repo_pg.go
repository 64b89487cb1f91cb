package catalog

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaxtrack/vaxtrack/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const defCols = `id, code, name, category, dose_count, mandatory, schedule_version, created_at`

func (r *repoPG) scanDef(row pgx.Row) (*VaccineDefinition, error) {
	var d VaccineDefinition
	err := row.Scan(&d.ID, &d.Code, &d.Name, &d.Category, &d.DoseCount,
		&d.Mandatory, &d.ScheduleVersion, &d.CreatedAt)
	return &d, err
}

func (r *repoPG) loadDoses(ctx context.Context, d *VaccineDefinition) error {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT dose_number, age_offset_months
		FROM vaccine_catalog_doses
		WHERE definition_id = $1
		ORDER BY dose_number`, d.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var dose DoseDefinition
		if err := rows.Scan(&dose.DoseNumber, &dose.AgeOffsetMonths); err != nil {
			return err
		}
		d.Doses = append(d.Doses, dose)
	}
	return rows.Err()
}

func (r *repoPG) ListByVersion(ctx context.Context, version string) ([]*VaccineDefinition, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+defCols+` FROM vaccine_catalog WHERE schedule_version = $1 ORDER BY code`, version)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []*VaccineDefinition
	for rows.Next() {
		d, err := r.scanDef(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, d := range defs {
		if err := r.loadDoses(ctx, d); err != nil {
			return nil, err
		}
	}
	return defs, nil
}

func (r *repoPG) GetByCode(ctx context.Context, version, code string) (*VaccineDefinition, error) {
	d, err := r.scanDef(r.conn(ctx).QueryRow(ctx,
		`SELECT `+defCols+` FROM vaccine_catalog WHERE schedule_version = $1 AND code = $2`, version, code))
	if err != nil {
		return nil, err
	}
	if err := r.loadDoses(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *repoPG) ListVersions(ctx context.Context) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT DISTINCT schedule_version FROM vaccine_catalog ORDER BY schedule_version DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}
