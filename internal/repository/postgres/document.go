package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Rrens/med-analyzer/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const documentColumns = `id, conversation_id, turn_id, category, storage_path, original_filename, mime_type, thumbnail_path, extracted_chars, created_at`

// DocumentRepository implements domain.DocumentRepository
type DocumentRepository struct {
	pool *pgxpool.Pool
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{pool: pool}
}

func (r *DocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	query := `INSERT INTO documents (` + documentColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.pool.Exec(ctx, query,
		d.ID,
		d.ConversationID,
		d.TurnID,
		string(d.Category),
		d.StoragePath,
		d.OriginalFilename,
		d.MimeType,
		d.ThumbnailPath,
		d.ExtractedChars,
		d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	d, err := scanDocument(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return d, nil
}

func (r *DocumentRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE conversation_id = $1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []domain.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var d domain.Document
	var category string
	if err := row.Scan(
		&d.ID,
		&d.ConversationID,
		&d.TurnID,
		&category,
		&d.StoragePath,
		&d.OriginalFilename,
		&d.MimeType,
		&d.ThumbnailPath,
		&d.ExtractedChars,
		&d.CreatedAt,
	); err != nil {
		return nil, err
	}
	d.Category = domain.DocumentCategory(category)
	d.CreatedAt = d.CreatedAt.UTC()
	return &d, nil
}
