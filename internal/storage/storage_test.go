package storage_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/charlesparmar/kenko/internal/model"
	"github.com/charlesparmar/kenko/internal/storage"
)

// testDB holds a shared test database connection for all tests in this package.
var testDB *storage.DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg17",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "kenko",
			"POSTGRES_PASSWORD": "kenko",
			"POSTGRES_DB":       "kenko",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start container: %v\n", err)
		os.Exit(1)
	}

	host, err := container.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get container host: %v\n", err)
		os.Exit(1)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get container port: %v\n", err)
		os.Exit(1)
	}

	dsn := fmt.Sprintf("postgres://kenko:kenko@%s:%s/kenko?sslmode=disable", host, port.Port())

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	testDB, err = storage.New(ctx, dsn, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create DB: %v\n", err)
		os.Exit(1)
	}

	if err := testDB.RunMigrations(ctx, os.DirFS("../../migrations")); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func embeddingOf(first float32) *pgvector.Vector {
	vec := make([]float32, 8)
	vec[0] = first
	v := pgvector.NewVector(vec)
	return &v
}

func weeklyDocument(week int, date time.Time, weight float64) model.Document {
	return model.Document{
		Content:      fmt.Sprintf("Week %d (%d): weight %.1f kg", week, date.Year(), weight),
		Type:         model.ContentMeasurement,
		Date:         &date,
		WeekNumber:   fmt.Sprintf("Week %d (%d)", week, date.Year()),
		Measurements: map[string]float64{"weight": weight},
	}
}

func TestCreateAndGetDocument(t *testing.T) {
	ctx := context.Background()
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	created, err := testDB.CreateDocument(ctx, weeklyDocument(11, date, 82.4), embeddingOf(0.1))
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)

	got, err := testDB.GetDocument(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Content, got.Content)
	assert.Equal(t, model.ContentMeasurement, got.Type)
	assert.Equal(t, "Week 11 (2025)", got.WeekNumber)
	require.NotNil(t, got.Date)
	assert.True(t, got.Date.Equal(date))
	assert.Equal(t, 82.4, got.Measurements["weight"])
	assert.Nil(t, got.IndexedAt)
}

func TestGetDocumentNotFound(t *testing.T) {
	_, err := testDB.GetDocument(context.Background(), uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateDocumentRejectsEmptyContent(t *testing.T) {
	_, err := testDB.CreateDocument(context.Background(), model.Document{Type: model.ContentGeneral}, nil)
	assert.Error(t, err)
}

func TestGetDocumentsByIDsPreservesOrder(t *testing.T) {
	ctx := context.Background()
	date := time.Date(2025, 4, 7, 0, 0, 0, 0, time.UTC)

	var ids []uuid.UUID
	for i := range 3 {
		d, err := testDB.CreateDocument(ctx, weeklyDocument(15+i, date.AddDate(0, 0, 7*i), 81.0-float64(i)), embeddingOf(float32(i)))
		require.NoError(t, err)
		ids = append(ids, d.ID)
	}

	// Request in reverse order, with an unknown ID in the middle.
	want := []uuid.UUID{ids[2], ids[0]}
	docs, err := testDB.GetDocumentsByIDs(ctx, []uuid.UUID{ids[2], uuid.New(), ids[0]})
	require.NoError(t, err)
	require.Len(t, docs, 2, "unknown IDs are skipped, not errors")
	assert.Equal(t, want[0], docs[0].ID)
	assert.Equal(t, want[1], docs[1].ID)
}

func TestUnindexedLifecycle(t *testing.T) {
	ctx := context.Background()
	date := time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC)

	d, err := testDB.CreateDocument(ctx, weeklyDocument(19, date, 80.2), embeddingOf(0.5))
	require.NoError(t, err)

	pending, err := testDB.ListUnindexed(ctx, 100)
	require.NoError(t, err)
	var found bool
	for _, p := range pending {
		if p.ID == d.ID {
			found = true
			assert.Equal(t, model.ContentMeasurement, p.Type)
			require.NotNil(t, p.WeekNumber)
			assert.Equal(t, "Week 19 (2025)", *p.WeekNumber)
			assert.Len(t, p.Embedding, 8)
		}
	}
	require.True(t, found, "new document must appear as unindexed")

	require.NoError(t, testDB.MarkIndexed(ctx, []uuid.UUID{d.ID}))

	pending, err = testDB.ListUnindexed(ctx, 100)
	require.NoError(t, err)
	for _, p := range pending {
		assert.NotEqual(t, d.ID, p.ID, "marked document must leave the unindexed set")
	}

	got, err := testDB.GetDocument(ctx, d.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.IndexedAt)
}

func TestCountByType(t *testing.T) {
	ctx := context.Background()

	_, err := testDB.CreateDocument(ctx, model.Document{
		Content: "Overall: lost 4.2 kg across 12 weeks",
		Type:    model.ContentOverallSummary,
	}, embeddingOf(0.9))
	require.NoError(t, err)

	counts, err := testDB.CountByType(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, counts[model.ContentOverallSummary], 1)
	assert.GreaterOrEqual(t, counts[model.ContentMeasurement], 1)
}

func TestDeleteDocument(t *testing.T) {
	ctx := context.Background()

	d, err := testDB.CreateDocument(ctx, model.Document{
		Content: "to be removed",
		Type:    model.ContentGeneral,
	}, nil)
	require.NoError(t, err)

	require.NoError(t, testDB.DeleteDocument(ctx, d.ID))
	assert.ErrorIs(t, testDB.DeleteDocument(ctx, d.ID), storage.ErrNotFound)
}
