package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Rrens/med-analyzer/internal/domain"
	"github.com/google/uuid"
)

const reportColumns = `id, conversation_id, language, audience, status, report_type, raw_text, summary_text,
	original_file_path, original_filename, mime_type, audio_file_path, thumbnail_path, created_at`

// ReportRepository implements domain.ReportRepository
type ReportRepository struct {
	db *DB
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *DB) *ReportRepository {
	return &ReportRepository{db: db}
}

func (r *ReportRepository) Create(ctx context.Context, rep *domain.Report) error {
	_, err := r.db.SQL.ExecContext(ctx,
		`INSERT INTO reports (`+reportColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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
	row := r.db.SQL.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)
	rep, err := scanReport(row)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return rep, nil
}

func (r *ReportRepository) List(ctx context.Context, limit, offset int) ([]domain.Report, error) {
	rows, err := r.db.SQL.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM reports ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset)
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
	res, err := r.db.SQL.ExecContext(ctx, `
		UPDATE reports
		SET status = ?, raw_text = ?, summary_text = ?, original_file_path = ?,
			original_filename = ?, mime_type = ?, audio_file_path = ?, thumbnail_path = ?
		WHERE id = ?`,
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
	return expectOne(res, domain.ErrNotFound)
}

func scanReport(row scanner) (*domain.Report, error) {
	var rep domain.Report
	var audience, status, reportType string
	var raw, summary, filePath, filename, mime, audio, thumbnail sql.NullString
	if err := row.Scan(
		&rep.ID,
		&rep.ConversationID,
		&rep.Language,
		&audience,
		&status,
		&reportType,
		&raw,
		&summary,
		&filePath,
		&filename,
		&mime,
		&audio,
		&thumbnail,
		&rep.CreatedAt,
	); err != nil {
		return nil, err
	}
	rep.Audience = domain.Audience(audience)
	rep.Status = domain.ReportStatus(status)
	rep.ReportType = domain.ReportType(reportType)
	rep.RawText = nullString(raw)
	rep.SummaryText = nullString(summary)
	rep.OriginalFilePath = nullString(filePath)
	rep.OriginalFilename = nullString(filename)
	rep.MimeType = nullString(mime)
	rep.AudioFilePath = nullString(audio)
	rep.ThumbnailPath = nullString(thumbnail)
	rep.CreatedAt = rep.CreatedAt.UTC()
	return &rep, nil
}
