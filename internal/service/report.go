package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Rrens/med-analyzer/internal/domain"
	"github.com/Rrens/med-analyzer/internal/extract"
	"github.com/Rrens/med-analyzer/internal/llm"
	"github.com/Rrens/med-analyzer/internal/observability"
	"github.com/Rrens/med-analyzer/internal/security"
	"github.com/Rrens/med-analyzer/internal/storage"
	"github.com/Rrens/med-analyzer/internal/worker"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultMaxUploadBytes is the per-file upload limit
const DefaultMaxUploadBytes = 10 << 20

const reportTimeout = 10 * time.Minute

// Submitter schedules background work
type Submitter interface {
	Submit(name string, task worker.Task) bool
}

// StatusPublisher delivers report status events
type StatusPublisher interface {
	Publish(id uuid.UUID, ev domain.StatusEvent)
}

// Synthesizer produces stored audio synchronously
type Synthesizer interface {
	Enabled() bool
	SynthesizeNow(ctx context.Context, key, text, language string) (string, error)
}

// Summarizer produces batch summaries
type Summarizer interface {
	Summarize(ctx context.Context, audience domain.Audience, language, text string) (string, error)
	DescribeImage(ctx context.Context, language string, image llm.Image) (string, error)
}

// ReportService runs the batch report pipeline
type ReportService struct {
	reports    domain.ReportRepository
	status     StatusPublisher
	pool       Submitter
	store      storage.Store
	extractor  TextExtractor
	summarizer Summarizer
	speech     Synthesizer
	metrics    *observability.Metrics
	maxUpload  int64
	now        func() time.Time
}

// NewReportService creates a new report service
func NewReportService(
	reports domain.ReportRepository,
	status StatusPublisher,
	pool Submitter,
	store storage.Store,
	extractor TextExtractor,
	summarizer Summarizer,
	speech Synthesizer,
	metrics *observability.Metrics,
	maxUpload int64,
) *ReportService {
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	return &ReportService{
		reports:    reports,
		status:     status,
		pool:       pool,
		store:      store,
		extractor:  extractor,
		summarizer: summarizer,
		speech:     speech,
		metrics:    metrics,
		maxUpload:  maxUpload,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SubmitText creates a report for pasted text and processes it in the
// background. Progress is published on the report's status queue.
func (s *ReportService) SubmitText(ctx context.Context, req domain.ReportTextCreate) (*domain.Report, error) {
	audience, ok := domain.ParseAudience(req.Audience)
	if !ok {
		return nil, fmt.Errorf("%w: audience must be patient or doctor", domain.ErrInvalidInput)
	}
	text := strings.TrimSpace(req.TextContent)
	if text == "" {
		return nil, fmt.Errorf("%w: text_content is required", domain.ErrInvalidInput)
	}

	report := &domain.Report{
		ID:         uuid.New(),
		Language:   req.Language,
		Audience:   audience,
		Status:     domain.ReportProcessing,
		ReportType: domain.ReportText,
		RawText:    &text,
		CreatedAt:  s.now(),
	}
	if err := s.start(ctx, report); err != nil {
		return nil, err
	}

	s.schedule(report, func(ctx context.Context, r *domain.Report) (string, error) {
		return s.summarizeText(ctx, r, security.SanitizeText(text))
	})
	return report, nil
}

// SubmitFiles creates one report per upload. Every file is size-checked
// before any is accepted.
func (s *ReportService) SubmitFiles(ctx context.Context, uploads []domain.Upload, language, audienceHint string) ([]domain.Report, error) {
	audience, ok := domain.ParseAudience(audienceHint)
	if !ok {
		return nil, fmt.Errorf("%w: audience must be patient or doctor", domain.ErrInvalidInput)
	}
	if len(uploads) == 0 {
		return nil, fmt.Errorf("%w: at least one file is required", domain.ErrInvalidInput)
	}
	for _, up := range uploads {
		if int64(len(up.Data)) > s.maxUpload {
			return nil, fmt.Errorf("%w: file %s too large, maximum size is %dMB",
				domain.ErrTooLarge, up.Filename, s.maxUpload>>20)
		}
	}

	reports := make([]domain.Report, 0, len(uploads))
	for _, up := range uploads {
		report, err := s.submitFile(ctx, up, language, audience)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *report)
	}
	return reports, nil
}

func (s *ReportService) submitFile(ctx context.Context, up domain.Upload, language string, audience domain.Audience) (*domain.Report, error) {
	category, mime := extract.Detect(up.Data, up.Filename)

	stored, err := s.store.Put(ctx, UploadKey("reports", up.Filename), up.Data, mime)
	if err != nil {
		return nil, fmt.Errorf("failed to store report file: %w", err)
	}

	filename := up.Filename
	reportType := domain.ReportText
	if category == domain.DocumentImage {
		reportType = domain.ReportImage
	}

	report := &domain.Report{
		ID:               uuid.New(),
		Language:         language,
		Audience:         audience,
		Status:           domain.ReportProcessing,
		ReportType:       reportType,
		OriginalFilePath: &stored,
		OriginalFilename: &filename,
		MimeType:         &mime,
		CreatedAt:        s.now(),
	}
	if err := s.start(ctx, report); err != nil {
		return nil, err
	}

	data := up.Data
	s.schedule(report, func(ctx context.Context, r *domain.Report) (string, error) {
		s.publish(r, domain.StatusEvent{Status: domain.StatusInProgress, Stage: "processing_file", Filename: filename})
		if reportType == domain.ReportImage {
			return s.describeImage(ctx, r, llm.Image{Data: data, MimeType: mime})
		}
		return s.summarizeDocument(ctx, r, data, mime)
	})
	return report, nil
}

// Get returns one report
func (s *ReportService) Get(ctx context.Context, id uuid.UUID) (*domain.Report, error) {
	return s.reports.Get(ctx, id)
}

// List returns reports newest first
func (s *ReportService) List(ctx context.Context, limit, offset int) ([]domain.Report, error) {
	return s.reports.List(ctx, limit, offset)
}

func (s *ReportService) start(ctx context.Context, report *domain.Report) error {
	if err := s.reports.Create(ctx, report); err != nil {
		return err
	}
	s.publish(report, domain.StatusEvent{Status: domain.StatusStarted, Stage: "created"})
	log.Info().
		Str("report_id", report.ID.String()).
		Str("type", string(report.ReportType)).
		Msg("Report accepted")
	return nil
}

// schedule runs produce on the worker pool and records the outcome. The
// task works on its own copy of the report; the caller's value is only
// touched here when the pool refuses the task.
func (s *ReportService) schedule(report *domain.Report, produce func(ctx context.Context, r *domain.Report) (string, error)) {
	working := *report
	submitted := s.pool.Submit("report:"+report.ID.String(), func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, reportTimeout)
		defer cancel()

		summary, err := produce(ctx, &working)
		if err != nil {
			s.finishFailed(ctx, &working, err)
			return nil
		}
		s.finishCompleted(ctx, &working, summary)
		return nil
	})
	if !submitted {
		s.finishFailed(context.Background(), report, domain.ErrBusy)
	}
}

func (s *ReportService) summarizeText(ctx context.Context, report *domain.Report, text string) (string, error) {
	s.publish(report, domain.StatusEvent{Status: domain.StatusInProgress, Stage: "summarize_start"})
	summary, err := s.summarizer.Summarize(ctx, report.Audience, report.Language, text)
	if err != nil {
		return "", fmt.Errorf("failed to summarize report: %w", err)
	}
	s.publish(report, domain.StatusEvent{Status: domain.StatusInProgress, Stage: "summarize_done"})
	return summary, nil
}

func (s *ReportService) summarizeDocument(ctx context.Context, report *domain.Report, data []byte, mime string) (string, error) {
	s.publish(report, domain.StatusEvent{Status: domain.StatusInProgress, Stage: "doc_extract_start"})
	text, err := s.extractor.Extract(ctx, data, mime)
	if err != nil {
		return "", fmt.Errorf("failed to extract document: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no text could be extracted from the document")
	}
	s.publish(report, domain.StatusEvent{Status: domain.StatusInProgress, Stage: "doc_extract_done", Chars: len([]rune(text))})

	report.RawText = &text
	return s.summarizeText(ctx, report, text)
}

func (s *ReportService) describeImage(ctx context.Context, report *domain.Report, image llm.Image) (string, error) {
	s.publish(report, domain.StatusEvent{Status: domain.StatusInProgress, Stage: "image_analysis_start"})
	summary, err := s.summarizer.DescribeImage(ctx, report.Language, image)
	if err != nil {
		return "", fmt.Errorf("failed to analyze image: %w", err)
	}
	s.publish(report, domain.StatusEvent{Status: domain.StatusInProgress, Stage: "image_analysis_done"})
	return summary, nil
}

func (s *ReportService) finishCompleted(ctx context.Context, report *domain.Report, summary string) {
	report.SummaryText = &summary

	if s.speech != nil && s.speech.Enabled() {
		s.publish(report, domain.StatusEvent{Status: domain.StatusInProgress, Stage: "tts_start"})
		key := fmt.Sprintf("audio/report_%s.wav", report.ID)
		audio, err := s.speech.SynthesizeNow(ctx, key, summary, report.Language)
		if err != nil {
			s.finishFailed(ctx, report, fmt.Errorf("failed to synthesize audio: %w", err))
			return
		}
		report.AudioFilePath = &audio
		s.publish(report, domain.StatusEvent{Status: domain.StatusInProgress, Stage: "tts_done", Audio: audio})
	}

	report.Status = domain.ReportCompleted
	if err := s.reports.Update(ctx, report); err != nil {
		s.finishFailed(ctx, report, err)
		return
	}

	ev := domain.StatusEvent{Status: domain.StatusCompleted, Stage: "done"}
	if report.AudioFilePath != nil {
		ev.Audio = *report.AudioFilePath
	}
	s.publish(report, ev)
	s.metrics.ReportFinished(string(domain.ReportCompleted))
	log.Info().Str("report_id", report.ID.String()).Msg("Report completed")
}

func (s *ReportService) finishFailed(ctx context.Context, report *domain.Report, cause error) {
	log.Error().Err(cause).Str("report_id", report.ID.String()).Msg("Report processing failed")

	msg := "An error occurred: " + cause.Error()
	report.Status = domain.ReportFailed
	report.SummaryText = &msg
	if err := s.reports.Update(context.WithoutCancel(ctx), report); err != nil {
		log.Error().Err(err).Str("report_id", report.ID.String()).Msg("Failed to record report failure")
	}

	s.publish(report, domain.StatusEvent{Status: domain.StatusFailed, Error: cause.Error()})
	s.metrics.ReportFinished(string(domain.ReportFailed))
}

func (s *ReportService) publish(report *domain.Report, ev domain.StatusEvent) {
	ev.ReportID = report.ID.String()
	s.status.Publish(report.ID, ev)
}
