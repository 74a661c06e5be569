package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Rrens/med-analyzer/internal/domain"
	"github.com/google/uuid"
)

const documentColumns = `id, conversation_id, turn_id, category, storage_path, original_filename, mime_type, thumbnail_path, extracted_chars, created_at`

// DocumentRepository implements domain.DocumentRepository
type DocumentRepository struct {
	db *DB
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	_, err := r.db.SQL.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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
	row := r.db.SQL.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	d, err := scanDocument(row)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return d, nil
}

func (r *DocumentRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]domain.Document, error) {
	rows, err := r.db.SQL.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE conversation_id = ? ORDER BY created_at ASC`,
		conversationID)
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

func scanDocument(row scanner) (*domain.Document, error) {
	var d domain.Document
	var category string
	var thumbnail sql.NullString
	if err := row.Scan(
		&d.ID,
		&d.ConversationID,
		&d.TurnID,
		&category,
		&d.StoragePath,
		&d.OriginalFilename,
		&d.MimeType,
		&thumbnail,
		&d.ExtractedChars,
		&d.CreatedAt,
	); err != nil {
		return nil, err
	}
	d.Category = domain.DocumentCategory(category)
	d.ThumbnailPath = nullString(thumbnail)
	d.CreatedAt = d.CreatedAt.UTC()
	return &d, nil
}
