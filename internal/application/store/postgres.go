package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"formflow/internal/application/models"
	"formflow/internal/externaldata"
	"formflow/internal/form/answers"
	"formflow/internal/lifecycle"
	id "formflow/pkg/domain"
	"formflow/pkg/platform/sentinel"
)

// Postgres persists applications in PostgreSQL. Answers, external data and
// history live in JSONB columns; the assignee list is a text array so
// ListByActor can index into it.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const applicationColumns = `
	id, template, applicant, assignees, state, status,
	answers, external_data, history, created_at, modified_at
`

func (s *Postgres) Create(ctx context.Context, app *models.Application) error {
	row, err := newApplicationRow(app)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO applications (` + applicationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = s.db.ExecContext(ctx, query,
		row.id, row.template, row.applicant, pq.Array(row.assignees),
		row.state, row.status, row.answers, row.externalData, row.history,
		app.CreatedAt, app.ModifiedAt,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`
	app, err := scanApplication(s.db.QueryRowContext(ctx, query, appID.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select application: %w", err)
	}
	return app, nil
}

func (s *Postgres) Update(ctx context.Context, app *models.Application) error {
	row, err := newApplicationRow(app)
	if err != nil {
		return err
	}
	query := `
		UPDATE applications SET
			assignees = $2, state = $3, status = $4,
			answers = $5, external_data = $6, history = $7, modified_at = $8
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		row.id, pq.Array(row.assignees), row.state, row.status,
		row.answers, row.externalData, row.history, app.ModifiedAt,
	)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update application rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) ListByActor(ctx context.Context, actor id.NationalID) ([]*models.Application, error) {
	query := `
		SELECT ` + applicationColumns + `
		FROM applications
		WHERE applicant = $1 OR $1 = ANY(assignees)
		ORDER BY modified_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, actor.String())
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var out []*models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		out = append(out, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applications: %w", err)
	}
	return out, nil
}

// applicationRow is the flat, marshaled shape of the aggregate.
type applicationRow struct {
	id           string
	template     string
	applicant    string
	assignees    []string
	state        string
	status       string
	answers      []byte
	externalData []byte
	history      []byte
}

func newApplicationRow(app *models.Application) (applicationRow, error) {
	ans, err := json.Marshal(app.Answers)
	if err != nil {
		return applicationRow{}, fmt.Errorf("marshal answers: %w", err)
	}
	ext, err := json.Marshal(app.ExternalData)
	if err != nil {
		return applicationRow{}, fmt.Errorf("marshal external data: %w", err)
	}
	hist, err := json.Marshal(app.History)
	if err != nil {
		return applicationRow{}, fmt.Errorf("marshal history: %w", err)
	}
	assignees := make([]string, len(app.Assignees))
	for i, a := range app.Assignees {
		assignees[i] = a.String()
	}
	return applicationRow{
		id:           app.ID.String(),
		template:     app.Template.String(),
		applicant:    app.Applicant.String(),
		assignees:    assignees,
		state:        string(app.State),
		status:       string(app.Status),
		answers:      ans,
		externalData: ext,
		history:      hist,
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(r rowScanner) (*models.Application, error) {
	var (
		row       applicationRow
		app       models.Application
		assignees pq.StringArray
	)
	err := r.Scan(
		&row.id, &row.template, &row.applicant, &assignees,
		&row.state, &row.status, &row.answers, &row.externalData, &row.history,
		&app.CreatedAt, &app.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}

	appID, err := id.ParseApplicationID(row.id)
	if err != nil {
		return nil, fmt.Errorf("parse stored application id: %w", err)
	}
	app.ID = appID
	app.Template = id.TemplateID(row.template)
	app.Applicant = id.NationalID(row.applicant)
	app.State = lifecycle.StateName(row.state)
	app.Status = lifecycle.Status(row.status)
	app.Assignees = make([]id.NationalID, len(assignees))
	for i, a := range assignees {
		app.Assignees[i] = id.NationalID(a)
	}

	if err := json.Unmarshal(row.answers, &app.Answers); err != nil {
		return nil, fmt.Errorf("unmarshal answers: %w", err)
	}
	if err := json.Unmarshal(row.externalData, &app.ExternalData); err != nil {
		return nil, fmt.Errorf("unmarshal external data: %w", err)
	}
	if err := json.Unmarshal(row.history, &app.History); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	if app.Answers == nil {
		app.Answers = answers.Map{}
	}
	if app.ExternalData == nil {
		app.ExternalData = externaldata.Set{}
	}
	return &app, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
