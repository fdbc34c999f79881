package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/BizAtlas/internal/application/agents"
	"github.com/turtacn/BizAtlas/internal/infrastructure/database/postgres"
	"github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/BizAtlas/pkg/errors"
)

var companyCols = []string{
	"id", "name", "address", "sector", "parroquia", "status_id", "owner_id", "product_ids",
	"lat", "lng", "turnover", "margin", "updated_at",
}

type RepositoriesTestSuite struct {
	suite.Suite
	db        *sql.DB
	mock      sqlmock.Sqlmock
	companies *CompanyRepository
	scores    *ScoreRepository
	data      *AgentDataRepository
}

func (s *RepositoriesTestSuite) SetupTest() {
	var err error
	s.db, s.mock, err = sqlmock.New()
	s.Require().NoError(err)

	conn := postgres.NewConnectionWithDB(s.db, logging.NewNopLogger())
	s.companies = NewCompanyRepository(conn, "", nil, nil)
	s.scores = NewScoreRepository(conn, nil)
	s.data = NewAgentDataRepository(conn, s.companies, nil)
}

func (s *RepositoriesTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	s.db.Close()
}

func (s *RepositoriesTestSuite) TestListAll() {
	now := time.Now()
	rows := sqlmock.NewRows(companyCols).
		AddRow("a", "Alfa", "Rua 1", "2562", "P01", "active", "u1", "{x,y}", 43.36, -8.41, "125000.50", nil, now).
		AddRow("b", "Beta", "", "4711", "", "lead", "", "{}", nil, nil, nil, nil, now)
	s.mock.ExpectQuery(`SELECT .+ FROM "companies" WHERE deleted_at IS NULL ORDER BY id`).WillReturnRows(rows)

	got, err := s.companies.ListAll(context.Background())
	s.Require().NoError(err)
	s.Require().Len(got, 2)

	s.Equal([]string{"x", "y"}, got[0].ProductIDs)
	s.True(got[0].Clusterable())
	s.InDelta(125000.5, *got[0].Turnover, 1e-9)
	s.Nil(got[0].Margin)

	s.False(got[1].Clusterable())
	s.Empty(got[1].ProductIDs)
	s.Nil(got[1].Turnover)
}

func (s *RepositoriesTestSuite) TestListAll_QueryError() {
	s.mock.ExpectQuery(`SELECT .+ FROM "companies"`).WillReturnError(errors.New("boom"))

	_, err := s.companies.ListAll(context.Background())
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeDatabaseError))
}

func (s *RepositoriesTestSuite) TestFindByID() {
	s.mock.ExpectQuery(`SELECT .+ FROM "companies" WHERE id = \$1`).
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows(companyCols).
			AddRow("a", "Alfa", "", "", "", "", "", "{}", nil, nil, nil, nil, time.Now()))

	e, err := s.companies.FindByID(context.Background(), "a")
	s.Require().NoError(err)
	s.Equal("Alfa", e.Name)
}

func (s *RepositoriesTestSuite) TestFindByID_NotFound() {
	s.mock.ExpectQuery(`SELECT .+ FROM "companies" WHERE id = \$1`).
		WithArgs("zz").
		WillReturnRows(sqlmock.NewRows(companyCols))

	_, err := s.companies.FindByID(context.Background(), "zz")
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeEntityNotFound))
}

func (s *RepositoriesTestSuite) TestCustomTableIsQuoted() {
	conn := postgres.NewConnectionWithDB(s.db, nil)
	repo := NewCompanyRepository(conn, `empresas"; drop`, nil, nil)
	s.mock.ExpectQuery(`FROM "empresas""; drop"`).WillReturnRows(sqlmock.NewRows(companyCols))

	got, err := repo.ListAll(context.Background())
	s.NoError(err)
	s.Empty(got)
}

func (s *RepositoriesTestSuite) TestLoadScores() {
	s.mock.ExpectQuery(`SELECT company_id, vinculacion FROM company_scores`).
		WillReturnRows(sqlmock.NewRows([]string{"company_id", "vinculacion"}).AddRow("a", 75.0).AddRow("b", 10.5))

	scores, err := s.scores.LoadScores(context.Background())
	s.Require().NoError(err)
	v, ok := scores.Vinculacion("b")
	s.True(ok)
	s.Equal(10.5, v)
}

func (s *RepositoriesTestSuite) TestFinancials_OldestFirst() {
	cols := []string{"year", "revenue", "expenses", "assets", "liabilities", "equity", "current_assets", "current_liabilities"}
	s.mock.ExpectQuery(`FROM financial_years`).
		WithArgs("a", 2).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(2025, 1000.0, 900.0, 2000.0, 500.0, 1500.0, 300.0, 150.0).
			AddRow(2024, 800.0, 780.0, 1900.0, 600.0, 1300.0, 250.0, 200.0))

	got, err := s.data.Financials(context.Background(), "a", 2)
	s.Require().NoError(err)
	s.Equal([]int{2024, 2025}, []int{got[0].Year, got[1].Year})
}

func (s *RepositoriesTestSuite) TestObligationsAndInteractions() {
	due := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)
	s.mock.ExpectQuery(`FROM obligations`).
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"kind", "description", "due_date", "status"}).
			AddRow("tax", "Modelo 303", due, "pending"))
	s.mock.ExpectQuery(`FROM interactions`).
		WithArgs("a", 5).
		WillReturnRows(sqlmock.NewRows([]string{"at", "channel", "author", "note"}).
			AddRow(due, "email", "ana", "Asked for a quote"))

	obs, err := s.data.Obligations(context.Background(), "a")
	s.Require().NoError(err)
	s.Equal([]agents.Obligation{{Kind: "tax", Description: "Modelo 303", DueDate: due, Status: "pending"}}, obs)

	ins, err := s.data.Interactions(context.Background(), "a", 5)
	s.Require().NoError(err)
	s.Require().Len(ins, 1)
	s.Equal("email", ins[0].Channel)
}

func (s *RepositoriesTestSuite) TestInteractions_ScanError() {
	s.mock.ExpectQuery(`FROM interactions`).
		WillReturnRows(sqlmock.NewRows([]string{"at", "channel", "author", "note"}).
			AddRow("not a time", "email", "ana", "x"))

	_, err := s.data.Interactions(context.Background(), "a", 5)
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeDatabaseError))
}

func TestRepositoriesTestSuite(t *testing.T) {
	suite.Run(t, new(RepositoriesTestSuite))
}

//Personal.AI order the ending
