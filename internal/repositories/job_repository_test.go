package repositories

import (
	"context"
	"os"
	"testing"
	"time"

	"mediafactory/internal/jobs"
	"mediafactory/internal/pkg/errors"
	"mediafactory/internal/publish"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Runs only when TEST_DATABASE_URL points at a disposable database.
func newTestRepository(t *testing.T) *JobRepository {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	repo := NewJobRepository(pool)
	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return repo
}

func TestJobRepository(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	id := uuid.NewString()
	at := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	job := jobs.New(id, jobs.KindComposition, publish.Options{
		Privacy:    publish.PrivacyPrivate,
		Tags:       []string{"a", "b"},
		CategoryID: "22",
		PublishAt:  &at,
	}, time.Now())
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.Create(ctx, job); !errors.IsConflict(err) {
		t.Errorf("expected duplicate create to fail, got %v", err)
	}

	_, err := repo.Update(ctx, id, func(j *jobs.Job) error {
		return j.Transition(jobs.StateProcessing, "p", time.Now())
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = repo.Update(ctx, id, func(j *jobs.Job) error {
		if err := j.Transition(jobs.StateCompleted, jobs.MessageCompleted, time.Now()); err != nil {
			return err
		}
		j.VideoID = "vid"
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.State != jobs.StateCompleted || got.VideoID != "vid" || got.CategoryID != "22" || len(got.Tags) != 2 {
		t.Errorf("unexpected job %+v", got)
	}
	if got.PublishAt == nil || !got.PublishAt.Equal(at) {
		t.Errorf("expected publish time %v, got %v", at, got.PublishAt)
	}

	if _, err := repo.Get(ctx, uuid.NewString()); !errors.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	if err := repo.Check(ctx); err != nil {
		t.Errorf("unexpected check error: %v", err)
	}
}
