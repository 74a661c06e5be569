package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/Rrens/med-analyzer/internal/api/response"
	"github.com/Rrens/med-analyzer/internal/domain"
	"github.com/Rrens/med-analyzer/internal/events"
	"github.com/Rrens/med-analyzer/internal/service"
	"github.com/rs/zerolog/log"
)

// maxReportFiles bounds one batch upload
const maxReportFiles = 10

// ReportHandler handles batch report endpoints
type ReportHandler struct {
	reports   *service.ReportService
	queues    *events.Queues
	maxUpload int64
}

// NewReportHandler creates a new report handler
func NewReportHandler(reports *service.ReportService, queues *events.Queues, maxUpload int64) *ReportHandler {
	if maxUpload <= 0 {
		maxUpload = service.DefaultMaxUploadBytes
	}
	return &ReportHandler{reports: reports, queues: queues, maxUpload: maxUpload}
}

// SubmitText accepts pasted report text and answers 202 while the summary
// is produced in the background.
func (h *ReportHandler) SubmitText(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)
	if err := parseForm(r, h.maxUpload); err != nil {
		if isTooLarge(err) {
			response.TooLarge(w, "request too large")
			return
		}
		response.BadRequest(w, "invalid form")
		return
	}

	input := domain.ReportTextCreate{
		TextContent: r.FormValue("text_content"),
		Language:    r.FormValue("language"),
		Audience:    r.FormValue("audience"),
	}
	if input.Language == "" {
		input.Language = "en"
	}
	if err := validate.Struct(input); err != nil {
		response.BadRequest(w, validationErrors(err))
		return
	}

	report, err := h.reports.SubmitText(r.Context(), input)
	if err != nil {
		writeError(w, err, "failed to submit report")
		return
	}

	response.Accepted(w, report)
}

// SubmitFiles accepts one or more files and creates one report per file
func (h *ReportHandler) SubmitFiles(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxReportFiles*h.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		if isTooLarge(err) {
			response.TooLarge(w, "request too large")
			return
		}
		response.BadRequest(w, "invalid multipart form")
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		response.BadRequest(w, "at least one file is required")
		return
	}
	if len(headers) > maxReportFiles {
		response.BadRequest(w, fmt.Sprintf("at most %d files per request", maxReportFiles))
		return
	}

	uploads := make([]domain.Upload, 0, len(headers))
	for _, header := range headers {
		if header.Size > h.maxUpload {
			response.TooLarge(w, fmt.Sprintf("file %s too large, maximum size is %dMB", header.Filename, h.maxUpload>>20))
			return
		}
		data, err := readPart(header, h.maxUpload)
		if err != nil {
			writeError(w, err, "failed to read upload")
			return
		}
		uploads = append(uploads, domain.Upload{Filename: header.Filename, Data: data})
	}

	language := r.FormValue("language")
	if language == "" {
		language = "en"
	}

	reports, err := h.reports.SubmitFiles(r.Context(), uploads, language, r.FormValue("audience"))
	if err != nil {
		writeError(w, err, "failed to submit reports")
		return
	}

	response.Accepted(w, reports)
}

// List returns reports newest first
func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	reports, err := h.reports.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err, "failed to list reports")
		return
	}

	response.OK(w, reports)
}

// Get returns one report
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "reportID")
	if !ok {
		response.BadRequest(w, "invalid report ID")
		return
	}

	report, err := h.reports.Get(r.Context(), id)
	if err != nil {
		writeError(w, err, "failed to get report")
		return
	}

	response.OK(w, report)
}

// Events streams report status as server-sent events until a terminal
// status is sent or the client goes away.
func (h *ReportHandler) Events(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "reportID")
	if !ok {
		response.BadRequest(w, "invalid report ID")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		response.InternalError(w, "streaming unsupported")
		return
	}

	queue, ok := h.queues.Get(id)
	if !ok {
		report, err := h.reports.Get(r.Context(), id)
		if err != nil {
			writeError(w, err, "failed to get report")
			return
		}
		if report.Status == domain.ReportProcessing {
			queue = h.queues.GetOrCreate(id)
		} else {
			startSSE(w)
			writeSSE(w, flusher, finishedEvent(report))
			return
		}
	}

	startSSE(w)
	flusher.Flush()

	for {
		ev, err := queue.Next(r.Context())
		if err != nil {
			h.queues.Remove(id)
			return
		}
		if !writeSSE(w, flusher, ev) || ev.Terminal() {
			h.queues.Remove(id)
			return
		}
	}
}

func startSSE(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
}

func writeSSE(w io.Writer, flusher http.Flusher, ev domain.StatusEvent) bool {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode status event")
		return false
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return false
	}
	flusher.Flush()
	return true
}

// finishedEvent rebuilds the terminal event of a report whose queue is gone
func finishedEvent(report *domain.Report) domain.StatusEvent {
	ev := domain.StatusEvent{ReportID: report.ID.String()}
	if report.Status == domain.ReportFailed {
		ev.Status = domain.StatusFailed
		if report.SummaryText != nil {
			ev.Error = *report.SummaryText
		}
		return ev
	}

	ev.Status = domain.StatusCompleted
	ev.Stage = "done"
	if report.AudioFilePath != nil {
		ev.Audio = *report.AudioFilePath
	}
	return ev
}

func parseForm(r *http.Request, maxMemory int64) error {
	err := r.ParseMultipartForm(maxMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		return r.ParseForm()
	}
	return err
}

func readPart(header *multipart.FileHeader, maxUpload int64) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUpload+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxUpload {
		return nil, fmt.Errorf("%w: file %s", domain.ErrTooLarge, header.Filename)
	}
	return data, nil
}
