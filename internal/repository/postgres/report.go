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

const reportColumns = `id, conversation_id, language, audience, status, report_type, raw_text, summary_text,
	original_file_path, original_filename, mime_type, audio_file_path, thumbnail_path, created_at`

// ReportRepository implements domain.ReportRepository
type ReportRepository struct {
	pool *pgxpool.Pool
}

// NewReportRepository creates a new report repository
func NewReportRepository(pool *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{pool: pool}
}

func (r *ReportRepository) Create(ctx context.Context, rep *domain.Report) error {
	query := `INSERT INTO reports (` + reportColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.pool.Exec(ctx, query,
		rep.ID,
		rep.ConversationID,
		rep.Language,
		string(rep.Audience),
		string(rep.Status),
		string(rep.ReportType),
		rep.RawText,
		rep.SummaryText,
		rep.OriginalFilePath,
		rep.OriginalFilename,
		rep.MimeType,
		rep.AudioFilePath,
		rep.ThumbnailPath,
		rep.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	return nil
}

func (r *ReportRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`
	rep, err := scanReport(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return rep, nil
}

func (r *ReportRepository) List(ctx context.Context, limit, offset int) ([]domain.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	reports := []domain.Report{}
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, *rep)
	}
	return reports, rows.Err()
}

func (r *ReportRepository) Update(ctx context.Context, rep *domain.Report) error {
	query := `
		UPDATE reports
		SET status = $1, raw_text = $2, summary_text = $3, original_file_path = $4,
			original_filename = $5, mime_type = $6, audio_file_path = $7, thumbnail_path = $8
		WHERE id = $9
	`
	tag, err := r.pool.Exec(ctx, query,
		string(rep.Status),
		rep.RawText,
		rep.SummaryText,
		rep.OriginalFilePath,
		rep.OriginalFilename,
		rep.MimeType,
		rep.AudioFilePath,
		rep.ThumbnailPath,
		rep.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanReport(row pgx.Row) (*domain.Report, error) {
	var rep domain.Report
	var audience, status, reportType string
	if err := row.Scan(
		&rep.ID,
		&rep.ConversationID,
		&rep.Language,
		&audience,
		&status,
		&reportType,
		&rep.RawText,
		&rep.SummaryText,
		&rep.OriginalFilePath,
		&rep.OriginalFilename,
		&rep.MimeType,
		&rep.AudioFilePath,
		&rep.ThumbnailPath,
		&rep.CreatedAt,
	); err != nil {
		return nil, err
	}
	rep.Audience = domain.Audience(audience)
	rep.Status = domain.ReportStatus(status)
	rep.ReportType = domain.ReportType(reportType)
	rep.CreatedAt = rep.CreatedAt.UTC()
	return &rep, nil
}
