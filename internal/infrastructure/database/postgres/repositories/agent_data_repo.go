package repositories

import (
	"context"
	"time"

	"github.com/turtacn/BizAtlas/internal/application/agents"
	"github.com/turtacn/BizAtlas/internal/domain/geoentity"
	"github.com/turtacn/BizAtlas/internal/infrastructure/database/postgres"
	prom "github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/BizAtlas/pkg/errors"
)

// AgentDataRepository serves the read-only business data agents reason over.
type AgentDataRepository struct {
	base
	companies geoentity.EntityRepository
}

var _ agents.DataReader = (*AgentDataRepository)(nil)

func NewAgentDataRepository(conn *postgres.Connection, companies geoentity.EntityRepository, metrics *prom.AppMetrics) *AgentDataRepository {
	return &AgentDataRepository{base: base{conn: conn, metrics: metrics}, companies: companies}
}

func (r *AgentDataRepository) Company(ctx context.Context, id string) (*geoentity.Entity, error) {
	return r.companies.FindByID(ctx, id)
}

// Financials returns up to years fiscal years, oldest first.
func (r *AgentDataRepository) Financials(ctx context.Context, companyID string, years int) (out []agents.FinancialYear, err error) {
	defer r.observe("financials.list", time.Now(), &err)

	const query = `
		SELECT year, revenue, expenses, assets, liabilities, equity, current_assets, current_liabilities
		FROM financial_years
		WHERE company_id = $1
		ORDER BY year DESC
		LIMIT $2`
	rows, err := r.executor().QueryContext(ctx, query, companyID, years)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list financial years")
	}
	defer rows.Close()

	for rows.Next() {
		var f agents.FinancialYear
		if err = rows.Scan(&f.Year, &f.Revenue, &f.Expenses, &f.Assets, &f.Liabilities, &f.Equity,
			&f.CurrentAssets, &f.CurrentLiabilities); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan financial year")
		}
		out = append(out, f)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate financial years")
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Obligations returns open and closed obligations ordered by due date.
func (r *AgentDataRepository) Obligations(ctx context.Context, companyID string) (out []agents.Obligation, err error) {
	defer r.observe("obligations.list", time.Now(), &err)

	const query = `
		SELECT kind, description, due_date, status
		FROM obligations
		WHERE company_id = $1
		ORDER BY due_date, id`
	rows, err := r.executor().QueryContext(ctx, query, companyID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list obligations")
	}
	defer rows.Close()

	for rows.Next() {
		var o agents.Obligation
		if err = rows.Scan(&o.Kind, &o.Description, &o.DueDate, &o.Status); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan obligation")
		}
		out = append(out, o)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate obligations")
	}
	return out, nil
}

// Interactions returns the latest limit interactions, newest first.
func (r *AgentDataRepository) Interactions(ctx context.Context, companyID string, limit int) (out []agents.Interaction, err error) {
	defer r.observe("interactions.list", time.Now(), &err)

	const query = `
		SELECT at, channel, author, note
		FROM interactions
		WHERE company_id = $1
		ORDER BY at DESC
		LIMIT $2`
	rows, err := r.executor().QueryContext(ctx, query, companyID, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list interactions")
	}
	defer rows.Close()

	for rows.Next() {
		var in agents.Interaction
		if err = rows.Scan(&in.At, &in.Channel, &in.Author, &in.Note); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan interaction")
		}
		out = append(out, in)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate interactions")
	}
	return out, nil
}

//Personal.AI order the ending
