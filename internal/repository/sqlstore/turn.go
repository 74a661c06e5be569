package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Rrens/med-analyzer/internal/domain"
	"github.com/google/uuid"
)

const turnColumns = `id, conversation_id, role, content, status, is_error, audio_file_path, created_at`

// TurnRepository implements domain.TurnRepository
type TurnRepository struct {
	db *DB
}

// NewTurnRepository creates a new turn repository
func NewTurnRepository(db *DB) *TurnRepository {
	return &TurnRepository{db: db}
}

func (r *TurnRepository) Create(ctx context.Context, t *domain.Turn) error {
	_, err := r.db.SQL.ExecContext(ctx,
		`INSERT INTO turns (`+turnColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
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
	row := r.db.SQL.QueryRowContext(ctx, `SELECT `+turnColumns+` FROM turns WHERE id = ?`, id)
	t, err := scanTurn(row)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get turn: %w", err)
	}
	return t, nil
}

func (r *TurnRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]domain.Turn, error) {
	query := `SELECT ` + turnColumns + ` FROM turns WHERE conversation_id = ? ORDER BY ` + r.db.insertOrder() + ` ASC`
	args := []any{conversationID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.list(ctx, query, args...)
}

func (r *TurnRepository) ListRecent(ctx context.Context, conversationID uuid.UUID, n int) ([]domain.Turn, error) {
	if n <= 0 {
		return []domain.Turn{}, nil
	}
	query := `SELECT ` + turnColumns + ` FROM turns WHERE conversation_id = ? ORDER BY ` + r.db.insertOrder() + ` DESC LIMIT ?`
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
	res, err := r.db.SQL.ExecContext(ctx,
		`UPDATE turns SET content = ? WHERE id = ? AND status = ?`,
		content, id, string(domain.TurnStreaming))
	if err != nil {
		return fmt.Errorf("failed to update turn content: %w", err)
	}
	return expectOne(res, domain.ErrNotFound)
}

// Finalize freezes the content and sets the terminal status
func (r *TurnRepository) Finalize(ctx context.Context, id uuid.UUID, content string, status domain.TurnStatus, isError bool) error {
	res, err := r.db.SQL.ExecContext(ctx,
		`UPDATE turns SET content = ?, status = ?, is_error = ? WHERE id = ? AND status = ?`,
		content, string(status), isError, id, string(domain.TurnStreaming))
	if err != nil {
		return fmt.Errorf("failed to finalize turn: %w", err)
	}
	return expectOne(res, domain.ErrNotFound)
}

func (r *TurnRepository) SetAudioPath(ctx context.Context, id uuid.UUID, path string) error {
	res, err := r.db.SQL.ExecContext(ctx, `UPDATE turns SET audio_file_path = ? WHERE id = ?`, path, id)
	if err != nil {
		return fmt.Errorf("failed to set audio path: %w", err)
	}
	return expectOne(res, domain.ErrNotFound)
}

func (r *TurnRepository) list(ctx context.Context, query string, args ...any) ([]domain.Turn, error) {
	rows, err := r.db.SQL.QueryContext(ctx, query, args...)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanTurn(row scanner) (*domain.Turn, error) {
	var t domain.Turn
	var role, status string
	var audio sql.NullString
	if err := row.Scan(
		&t.ID,
		&t.ConversationID,
		&role,
		&t.Content,
		&status,
		&t.Error,
		&audio,
		&t.CreatedAt,
	); err != nil {
		return nil, err
	}
	t.Role = domain.Role(role)
	t.Status = domain.TurnStatus(status)
	t.AudioFilePath = nullString(audio)
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
