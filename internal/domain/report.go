package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Audience selects the summary register
type Audience string

const (
	AudiencePatient Audience = "patient"
	AudienceDoctor  Audience = "doctor"
)

// ParseAudience returns the audience for s, defaulting to patient
func ParseAudience(s string) (Audience, bool) {
	switch Audience(s) {
	case "", AudiencePatient:
		return AudiencePatient, true
	case AudienceDoctor:
		return AudienceDoctor, true
	default:
		return "", false
	}
}

// ReportStatus tracks a batch report
type ReportStatus string

const (
	ReportProcessing ReportStatus = "processing"
	ReportCompleted  ReportStatus = "completed"
	ReportFailed     ReportStatus = "failed"
)

// ReportType is the input kind of a report
type ReportType string

const (
	ReportText  ReportType = "text"
	ReportImage ReportType = "image"
)

// Report is a batch summary of a pasted text or an uploaded file
type Report struct {
	ID               uuid.UUID     `json:"id"`
	ConversationID   uuid.NullUUID `json:"session_id"`
	Language         string        `json:"language"`
	Audience         Audience      `json:"audience"`
	Status           ReportStatus  `json:"status"`
	ReportType       ReportType    `json:"report_type"`
	RawText          *string       `json:"raw_text"`
	SummaryText      *string       `json:"summary_text"`
	OriginalFilePath *string       `json:"original_file_path"`
	OriginalFilename *string       `json:"original_filename"`
	MimeType         *string       `json:"mime_type"`
	AudioFilePath    *string       `json:"audio_file_path"`
	ThumbnailPath    *string       `json:"thumbnail_path"`
	CreatedAt        time.Time     `json:"created_at"`
}

// ReportTextCreate is the input for a pasted-text report
type ReportTextCreate struct {
	TextContent string `validate:"required"`
	Language    string `validate:"required,min=2,max=8"`
	Audience    string `validate:"omitempty,oneof=patient doctor"`
}

// ReportRepository defines the interface for report storage
type ReportRepository interface {
	Create(ctx context.Context, report *Report) error
	Get(ctx context.Context, id uuid.UUID) (*Report, error)
	// List returns reports newest first
	List(ctx context.Context, limit, offset int) ([]Report, error)
	Update(ctx context.Context, report *Report) error
}
