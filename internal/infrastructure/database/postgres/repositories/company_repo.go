package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/turtacn/BizAtlas/internal/config"
	"github.com/turtacn/BizAtlas/internal/domain/geoentity"
	"github.com/turtacn/BizAtlas/internal/infrastructure/database/postgres"
	"github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/logging"
	prom "github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/BizAtlas/pkg/errors"
)

const companyColumns = `id, name, address, sector, parroquia, status_id, owner_id, product_ids,
	lat, lng, turnover, margin, updated_at`

// CompanyRepository reads map entities from the company table.
type CompanyRepository struct {
	base
	table string
	log   logging.Logger
}

var _ geoentity.EntityRepository = (*CompanyRepository)(nil)

// NewCompanyRepository reads from table; empty means the default table.
func NewCompanyRepository(conn *postgres.Connection, table string, metrics *prom.AppMetrics, log logging.Logger) *CompanyRepository {
	if table == "" {
		table = config.DefaultCompanyTable
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &CompanyRepository{
		base:  base{conn: conn, metrics: metrics},
		table: pgx.Identifier{table}.Sanitize(),
		log:   log,
	}
}

// ListAll returns every live company ordered by id, coordinates or not.
func (r *CompanyRepository) ListAll(ctx context.Context) (out []geoentity.Entity, err error) {
	defer r.observe("companies.list", time.Now(), &err)

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE deleted_at IS NULL ORDER BY id`, companyColumns, r.table)
	rows, err := r.executor().QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list companies")
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate companies")
	}
	r.log.Debug("companies loaded", logging.Int("count", len(out)))
	return out, nil
}

// FindByID returns one live company or GEO_007.
func (r *CompanyRepository) FindByID(ctx context.Context, id string) (e *geoentity.Entity, err error) {
	defer r.observe("companies.get", time.Now(), &err)

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 AND deleted_at IS NULL`, companyColumns, r.table)
	e, err = scanCompany(r.executor().QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.New(errors.ErrCodeEntityNotFound, "company not found").WithDetail("id=" + id)
	}
	return e, err
}

func scanCompany(row scanner) (*geoentity.Entity, error) {
	var (
		e                          geoentity.Entity
		products                   []string
		lat, lng, turnover, margin sql.NullFloat64
	)
	err := row.Scan(
		&e.ID, &e.Name, &e.Address, &e.Sector, &e.Parroquia, &e.StatusID, &e.OwnerID,
		pq.Array(&products), &lat, &lng, &turnover, &margin, &e.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan company")
	}
	e.ProductIDs = products
	e.Lat = nullableFloat(lat)
	e.Lng = nullableFloat(lng)
	e.Turnover = nullableFloat(turnover)
	e.Margin = nullableFloat(margin)
	return &e, nil
}

// ScoreRepository reads the relationship-percentage side table.
type ScoreRepository struct {
	base
}

var _ geoentity.ScoreRepository = (*ScoreRepository)(nil)

func NewScoreRepository(conn *postgres.Connection, metrics *prom.AppMetrics) *ScoreRepository {
	return &ScoreRepository{base: base{conn: conn, metrics: metrics}}
}

// LoadScores returns every score keyed by company id.
func (r *ScoreRepository) LoadScores(ctx context.Context) (scores geoentity.Scores, err error) {
	defer r.observe("scores.load", time.Now(), &err)

	rows, err := r.executor().QueryContext(ctx, `SELECT company_id, vinculacion FROM company_scores`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load scores")
	}
	defer rows.Close()

	scores = geoentity.Scores{}
	for rows.Next() {
		var (
			id string
			v  float64
		)
		if err = rows.Scan(&id, &v); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan score")
		}
		scores[id] = v
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate scores")
	}
	return scores, nil
}

//Personal.AI order the ending
