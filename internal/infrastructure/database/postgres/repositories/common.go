// Package repositories implements the domain read ports over PostgreSQL.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/turtacn/BizAtlas/internal/infrastructure/database/postgres"
	prom "github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/prometheus"
)

// queryExecutor abstracts sql.DB and sql.Tx
type queryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// scanner abstracts sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// base carries what every repository needs.
type base struct {
	conn    *postgres.Connection
	metrics *prom.AppMetrics
}

func (b base) executor() queryExecutor {
	return b.conn.DB()
}

// observe records one query; call as `defer b.observe(op, time.Now(), &err)`.
func (b base) observe(op string, start time.Time, err *error) {
	b.metrics.RecordDBQuery(op, time.Since(start), *err)
}

func nullableFloat(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

//Personal.AI order the ending
