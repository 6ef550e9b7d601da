package repositories

import (
	"context"
	stderrors "errors"

	"mediafactory/internal/httpkit"
	"mediafactory/internal/jobs"
	"mediafactory/internal/pkg/errors"
	"mediafactory/internal/publish"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobsSchema = `
CREATE TABLE IF NOT EXISTS media_jobs (
	id             TEXT PRIMARY KEY,
	kind           TEXT NOT NULL,
	state          TEXT NOT NULL,
	message        TEXT NOT NULL,
	privacy_status TEXT NOT NULL,
	tags           TEXT[] NOT NULL DEFAULT '{}',
	category_id    TEXT NOT NULL DEFAULT '',
	publish_at     TIMESTAMPTZ,
	video_id       TEXT NOT NULL DEFAULT '',
	video_url      TEXT NOT NULL DEFAULT '',
	warning        TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
)`

const jobColumns = `id, kind, state, message, privacy_status, tags, category_id, publish_at,
	video_id, video_url, warning, created_at, updated_at`

// JobRepository is a jobs.Store backed by PostgreSQL. Updates lock the row
// with SELECT ... FOR UPDATE inside a transaction.
type JobRepository struct {
	db *pgxpool.Pool
}

func NewJobRepository(db *pgxpool.Pool) *JobRepository {
	return &JobRepository{db: db}
}

// EnsureSchema creates the jobs table when missing.
func (r *JobRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, jobsSchema); err != nil {
		return errors.Wrap(err, "jobs.postgres.schema", "failed to create jobs table")
	}
	return nil
}

func (r *JobRepository) Create(ctx context.Context, j *jobs.Job) error {
	tags := j.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO media_jobs (`+jobColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, j.ID, string(j.Kind), string(j.State), j.Message, string(j.Privacy), tags, j.CategoryID, j.PublishAt,
		j.VideoID, j.VideoURL, j.Warning, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		if httpkit.IsUniqueViolation(err) {
			return errors.AlreadyExists("job", j.ID)
		}
		return errors.WrapWithCode(err, errors.CodeUnavailable, "jobs.postgres.create", "failed to insert job")
	}
	return nil
}

func (r *JobRepository) Get(ctx context.Context, id string) (*jobs.Job, error) {
	row := r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM media_jobs WHERE id=$1`, id)
	j, err := scanJob(row)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("job", id)
	}
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "jobs.postgres.get", "failed to read job")
	}
	return j, nil
}

func (r *JobRepository) Update(ctx context.Context, id string, fn func(*jobs.Job) error) (*jobs.Job, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "jobs.postgres.update", "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	j, err := scanJob(tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM media_jobs WHERE id=$1 FOR UPDATE`, id))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("job", id)
	}
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "jobs.postgres.update", "failed to lock job")
	}

	if err := fn(j); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE media_jobs
		SET state=$2, message=$3, video_id=$4, video_url=$5, warning=$6, updated_at=$7
		WHERE id=$1
	`, j.ID, string(j.State), j.Message, j.VideoID, j.VideoURL, j.Warning, j.UpdatedAt)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "jobs.postgres.update", "failed to update job")
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "jobs.postgres.update", "failed to commit job update")
	}
	return j, nil
}

func (r *JobRepository) Check(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `SELECT 1 FROM media_jobs LIMIT 1`)
	if httpkit.IsUndefinedTable(err) {
		return errors.New(errors.CodeFailedPrecond, "jobs table is missing")
	}
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "jobs.postgres.check", "database unreachable")
	}
	return nil
}

func scanJob(row pgx.Row) (*jobs.Job, error) {
	var (
		j       jobs.Job
		kind    string
		state   string
		privacy string
	)
	err := row.Scan(
		&j.ID,
		&kind,
		&state,
		&j.Message,
		&privacy,
		&j.Tags,
		&j.CategoryID,
		&j.PublishAt,
		&j.VideoID,
		&j.VideoURL,
		&j.Warning,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Kind = jobs.Kind(kind)
	j.State = jobs.State(state)
	j.Privacy = publish.Privacy(privacy)
	if len(j.Tags) == 0 {
		j.Tags = nil
	}
	return &j, nil
}
