package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/charlesparmar/kenko/internal/model"
)

const documentColumns = `id, content, content_type, doc_date, week_number, measurements, metadata, created_at, indexed_at`

// CreateDocument inserts a document together with its embedding and returns
// it with generated fields filled in.
func (db *DB) CreateDocument(ctx context.Context, d model.Document, embedding *pgvector.Vector) (model.Document, error) {
	if err := d.Validate(); err != nil {
		return model.Document{}, err
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if d.Measurements == nil {
		d.Measurements = map[string]float64{}
	}
	if d.Metadata == nil {
		d.Metadata = map[string]any{}
	}

	err := writeRetry(ctx, func() error {
		_, err := db.pool.Exec(ctx,
			`INSERT INTO documents (id, content, content_type, doc_date, week_number,
			 measurements, metadata, embedding, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			d.ID, d.Content, string(d.Type), d.Date, nullableString(d.WeekNumber),
			d.Measurements, d.Metadata, embedding, d.CreatedAt,
		)
		return err
	})
	if err != nil {
		return model.Document{}, fmt.Errorf("storage: create document: %w", err)
	}
	return d, nil
}

// GetDocument retrieves a single document by ID.
func (db *DB) GetDocument(ctx context.Context, id uuid.UUID) (model.Document, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	d, err := scanDocument(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.Document{}, fmt.Errorf("storage: document %s: %w", id, ErrNotFound)
		}
		return model.Document{}, fmt.Errorf("storage: get document: %w", err)
	}
	return d, nil
}

// GetDocumentsByIDs hydrates documents for the given IDs, preserving the
// input order. IDs with no matching row are silently skipped, so the result
// may be shorter than ids.
func (db *DB) GetDocumentsByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := db.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("storage: get documents by ids: %w", err)
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]model.Document, len(ids))
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan document: %w", err)
		}
		byID[d.ID] = d
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: get documents by ids: %w", err)
	}

	out := make([]model.Document, 0, len(ids))
	for _, id := range ids {
		if d, ok := byID[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// ListUnindexed returns up to limit documents not yet synced to the vector
// index, oldest first, together with their embeddings.
func (db *DB) ListUnindexed(ctx context.Context, limit int) ([]DocumentForIndex, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, content_type, doc_date, week_number, embedding
		 FROM documents
		 WHERE indexed_at IS NULL AND embedding IS NOT NULL
		 ORDER BY created_at
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list unindexed: %w", err)
	}
	defer rows.Close()

	var out []DocumentForIndex
	for rows.Next() {
		var (
			d         DocumentForIndex
			ctype     string
			embedding pgvector.Vector
		)
		if err := rows.Scan(&d.ID, &ctype, &d.Date, &d.WeekNumber, &embedding); err != nil {
			return nil, fmt.Errorf("storage: scan unindexed: %w", err)
		}
		d.Type = model.ParseContentType(ctype)
		d.Embedding = embedding.Slice()
		out = append(out, d)
	}
	return out, rows.Err()
}

// MarkIndexed stamps indexed_at on the given documents.
func (db *DB) MarkIndexed(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	err := writeRetry(ctx, func() error {
		_, err := db.pool.Exec(ctx,
			`UPDATE documents SET indexed_at = now() WHERE id = ANY($1)`, ids)
		return err
	})
	if err != nil {
		return fmt.Errorf("storage: mark indexed: %w", err)
	}
	return nil
}

// CountByType returns document counts grouped by content type.
func (db *DB) CountByType(ctx context.Context) (map[model.ContentType]int, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT content_type, count(*) FROM documents GROUP BY content_type`)
	if err != nil {
		return nil, fmt.Errorf("storage: count by type: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.ContentType]int)
	for rows.Next() {
		var (
			ctype string
			n     int
		)
		if err := rows.Scan(&ctype, &n); err != nil {
			return nil, fmt.Errorf("storage: scan count: %w", err)
		}
		counts[model.ParseContentType(ctype)] = n
	}
	return counts, rows.Err()
}

// DeleteDocument removes a document. Deleting a missing ID returns ErrNotFound.
func (db *DB) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	var tag pgconn.CommandTag
	err := writeRetry(ctx, func() error {
		var err error
		tag, err = db.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("storage: delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: document %s: %w", id, ErrNotFound)
	}
	return nil
}

// DocumentForIndex holds the fields needed to build a vector index point.
type DocumentForIndex struct {
	ID         uuid.UUID
	Type       model.ContentType
	Date       *time.Time
	WeekNumber *string
	Embedding  []float32
}

func scanDocument(row pgx.Row) (model.Document, error) {
	var (
		d          model.Document
		ctype      string
		weekNumber *string
	)
	err := row.Scan(&d.ID, &d.Content, &ctype, &d.Date, &weekNumber,
		&d.Measurements, &d.Metadata, &d.CreatedAt, &d.IndexedAt)
	if err != nil {
		return model.Document{}, err
	}
	d.Type = model.ParseContentType(ctype)
	if weekNumber != nil {
		d.WeekNumber = *weekNumber
	}
	return d, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
