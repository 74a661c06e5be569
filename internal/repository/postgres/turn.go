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

const turnColumns = `id, conversation_id, role, content, status, is_error, audio_file_path, created_at`

// TurnRepository implements domain.TurnRepository
type TurnRepository struct {
	pool *pgxpool.Pool
}

// NewTurnRepository creates a new turn repository
func NewTurnRepository(pool *pgxpool.Pool) *TurnRepository {
	return &TurnRepository{pool: pool}
}

func (r *TurnRepository) Create(ctx context.Context, t *domain.Turn) error {
	query := `
		INSERT INTO turns (id, conversation_id, role, content, status, is_error, audio_file_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		t.ID,
		t.ConversationID,
		string(t.Role),
		t.Content,
		string(t.Status),
		t.Error,
		t.AudioFilePath,
		t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create turn: %w", err)
	}
	return nil
}

func (r *TurnRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Turn, error) {
	query := `SELECT ` + turnColumns + ` FROM turns WHERE id = $1`
	t, err := scanTurn(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get turn: %w", err)
	}
	return t, nil
}

func (r *TurnRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]domain.Turn, error) {
	query := `SELECT ` + turnColumns + ` FROM turns WHERE conversation_id = $1 ORDER BY seq ASC`
	args := []any{conversationID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return r.list(ctx, query, args...)
}

func (r *TurnRepository) ListRecent(ctx context.Context, conversationID uuid.UUID, n int) ([]domain.Turn, error) {
	if n <= 0 {
		return []domain.Turn{}, nil
	}
	query := `SELECT ` + turnColumns + ` FROM turns WHERE conversation_id = $1 ORDER BY seq DESC LIMIT $2`
	turns, err := r.list(ctx, query, conversationID, n)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// UpdateContent replaces the content of a turn that is still streaming
func (r *TurnRepository) UpdateContent(ctx context.Context, id uuid.UUID, content string) error {
	query := `UPDATE turns SET content = $1 WHERE id = $2 AND status = $3`
	tag, err := r.pool.Exec(ctx, query, content, id, string(domain.TurnStreaming))
	if err != nil {
		return fmt.Errorf("failed to update turn content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Finalize freezes the content and sets the terminal status
func (r *TurnRepository) Finalize(ctx context.Context, id uuid.UUID, content string, status domain.TurnStatus, isError bool) error {
	query := `UPDATE turns SET content = $1, status = $2, is_error = $3 WHERE id = $4 AND status = $5`
	tag, err := r.pool.Exec(ctx, query, content, string(status), isError, id, string(domain.TurnStreaming))
	if err != nil {
		return fmt.Errorf("failed to finalize turn: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *TurnRepository) SetAudioPath(ctx context.Context, id uuid.UUID, path string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE turns SET audio_file_path = $1 WHERE id = $2`, path, id)
	if err != nil {
		return fmt.Errorf("failed to set audio path: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *TurnRepository) list(ctx context.Context, query string, args ...any) ([]domain.Turn, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	defer rows.Close()

	turns := []domain.Turn{}
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, *t)
	}
	return turns, rows.Err()
}

func scanTurn(row pgx.Row) (*domain.Turn, error) {
	var t domain.Turn
	var role, status string
	if err := row.Scan(
		&t.ID,
		&t.ConversationID,
		&role,
		&t.Content,
		&status,
		&t.Error,
		&t.AudioFilePath,
		&t.CreatedAt,
	); err != nil {
		return nil, err
	}
	t.Role = domain.Role(role)
	t.Status = domain.TurnStatus(status)
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}
