package repositories

import (
	"context"
	_ "embed"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"videogenie/internal/httpkit"
	"videogenie/internal/models"
	"videogenie/internal/pkg/errors"
)

//go:embed schema.sql
var schemaSQL string

// DB is the part of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

const jobColumns = `id, kind, state, payload, artifact_ref, error, created_at, updated_at, started_at, completed_at`

type PostgresJobStore struct {
	db  DB
	now func() time.Time
}

func NewPostgresJobStore(db DB) *PostgresJobStore {
	return &PostgresJobStore{db: db, now: time.Now}
}

// EnsureSchema creates the jobs table and indexes if they are missing.
func (s *PostgresJobStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return errors.Wrap(err, "jobs.ensure_schema", "apply schema")
	}
	return nil
}

func (s *PostgresJobStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresJobStore) Create(ctx context.Context, j *models.Job) error {
	payload := j.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO jobs (id, kind, state, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, j.ID, string(j.Kind), string(j.State), payload, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		if httpkit.IsUniqueViolation(err) {
			return errors.DuplicateJob(j.ID)
		}
		return s.wrap(err, "jobs.create")
	}
	return nil
}

// Transition applies the edge in one conditional UPDATE. When no row
// matches, a follow-up read tells an unknown id from an illegal edge.
func (s *PostgresJobStore) Transition(ctx context.Context, jobID string, to models.JobState, d models.Detail) (*models.Job, error) {
	if err := models.CheckDetail(to, d); err != nil {
		return nil, err
	}

	sources := models.SourcesOf(to)
	from := make([]string, len(sources))
	for i, st := range sources {
		from[i] = string(st)
	}

	row := s.db.QueryRow(ctx, `
		UPDATE jobs SET
			state        = $2::text,
			updated_at   = $3,
			started_at   = CASE WHEN $2::text = 'rendering' THEN COALESCE(started_at, $3) ELSE started_at END,
			completed_at = CASE WHEN $2::text IN ('completed', 'failed') THEN $3 ELSE completed_at END,
			artifact_ref = CASE WHEN $2::text = 'completed' THEN $4 ELSE artifact_ref END,
			error        = CASE WHEN $2::text = 'failed' THEN $5 ELSE error END
		WHERE id = $1 AND state = ANY($6::text[])
		RETURNING `+jobColumns,
		jobID, string(to), s.now().UTC(), d.ArtifactRef, models.TruncateError(d.Error), from)

	j, err := scanJob(row)
	if err == nil {
		return j, nil
	}
	if !stderrors.Is(err, pgx.ErrNoRows) {
		return nil, s.wrap(err, "jobs.transition")
	}

	cur, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return nil, errors.InvalidTransition(jobID, string(cur.State), string(to))
}

func (s *PostgresJobStore) Get(ctx context.Context, jobID string) (*models.Job, error) {
	row := s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID)
	j, err := scanJob(row)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.JobNotFound(jobID)
		}
		return nil, s.wrap(err, "jobs.get")
	}
	return j, nil
}

func (s *PostgresJobStore) List(ctx context.Context, f models.ListFilter) ([]*models.Job, error) {
	limit := clampLimit(f.Limit)

	var (
		rows pgx.Rows
		err  error
	)
	if f.State != "" {
		rows, err = s.db.Query(ctx, `
			SELECT `+jobColumns+` FROM jobs
			WHERE state = $1
			ORDER BY created_at DESC
			LIMIT $2
		`, string(f.State), limit)
	} else {
		rows, err = s.db.Query(ctx, `
			SELECT `+jobColumns+` FROM jobs
			ORDER BY created_at DESC
			LIMIT $1
		`, limit)
	}
	if err != nil {
		return nil, s.wrap(err, "jobs.list")
	}
	defer rows.Close()

	out := make([]*models.Job, 0, limit)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, s.wrap(err, "jobs.list")
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap(err, "jobs.list")
	}
	return out, nil
}

func (s *PostgresJobStore) wrap(err error, op string) error {
	if httpkit.IsUndefinedTable(err) {
		return errors.WrapWithCode(err, errors.CodeUnavailable, op, "jobs table missing; schema not applied")
	}
	return errors.Wrap(err, op, "job store query failed")
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var (
		j     models.Job
		kind  string
		state string
	)
	err := row.Scan(
		&j.ID,
		&kind,
		&state,
		&j.Payload,
		&j.ArtifactRef,
		&j.Error,
		&j.CreatedAt,
		&j.UpdatedAt,
		&j.StartedAt,
		&j.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Kind = models.JobKind(kind)
	j.State = models.JobState(state)
	return &j, nil
}
