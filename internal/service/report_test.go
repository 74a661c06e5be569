package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/Rrens/med-analyzer/internal/domain"
	"github.com/Rrens/med-analyzer/internal/llm"
	"github.com/Rrens/med-analyzer/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type reportFixture struct {
	*orchestratorFixture
	reports   *MockReportRepository
	status    *recordingStatus
	extractor *MockExtractor
	speech    *fakeSynthesizer

	mu      sync.Mutex
	updates []domain.Report
}

func newReportFixture(t *testing.T, submitter Submitter, maxUpload int64) (*ReportService, *reportFixture) {
	t.Helper()

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	f := &reportFixture{
		orchestratorFixture: newOrchestratorFixture(t),
		reports:             new(MockReportRepository),
		status:              &recordingStatus{},
		extractor:           new(MockExtractor),
		speech:              &fakeSynthesizer{},
	}
	f.reports.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.reports.On("Update", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.updates = append(f.updates, *args.Get(1).(*domain.Report))
	})

	svc := NewReportService(f.reports, f.status, submitter, store, f.extractor, f.orchestrator, f.speech, f.metrics, maxUpload)
	return svc, f
}

func (f *reportFixture) lastUpdate(t *testing.T) domain.Report {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.updates)
	return f.updates[len(f.updates)-1]
}

func chatResponse(content string) *llm.ChatResponse {
	return &llm.ChatResponse{Message: llm.Message{Role: llm.RoleAssistant, Content: content}}
}

func TestReportService_SubmitTextWithAudio(t *testing.T) {
	svc, f := newReportFixture(t, inlineSubmitter{}, 0)
	f.speech.enabled = true
	f.provider.On("Chat", mock.Anything, mock.MatchedBy(func(req llm.ChatRequest) bool {
		return req.Messages[0].Content == llm.SummaryPrompt("patient", "en")
	})).Return(chatResponse("Your cholesterol is slightly high."), nil)

	report, err := svc.SubmitText(context.Background(), domain.ReportTextCreate{
		TextContent: "LDL 160 mg/dL",
		Language:    "en",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.ReportText, report.ReportType)
	assert.Equal(t,
		[]string{"created", "summarize_start", "summarize_done", "tts_start", "tts_done", "done"},
		f.status.stages())

	audio := fmt.Sprintf("media/audio/report_%s.wav", report.ID)
	events := f.status.received()
	assert.Equal(t, domain.StatusStarted, events[0].Status)
	assert.Equal(t, domain.StatusInProgress, events[1].Status)
	last := events[len(events)-1]
	assert.Equal(t, domain.StatusCompleted, last.Status)
	assert.Equal(t, audio, last.Audio)
	assert.Equal(t, report.ID.String(), last.ReportID)

	saved := f.lastUpdate(t)
	assert.Equal(t, domain.ReportCompleted, saved.Status)
	assert.Equal(t, "Your cholesterol is slightly high.", *saved.SummaryText)
	assert.Equal(t, audio, *saved.AudioFilePath)
}

func TestReportService_SubmitTextBackendFailure(t *testing.T) {
	svc, f := newReportFixture(t, inlineSubmitter{}, 0)
	f.provider.On("Chat", mock.Anything, mock.Anything).Return(nil, &llm.StatusError{StatusCode: 500})

	_, err := svc.SubmitText(context.Background(), domain.ReportTextCreate{TextContent: "Hb 13", Language: "en"})
	require.NoError(t, err)

	events := f.status.received()
	last := events[len(events)-1]
	assert.Equal(t, domain.StatusFailed, last.Status)
	assert.Contains(t, last.Error, "backend returned status 500")

	saved := f.lastUpdate(t)
	assert.Equal(t, domain.ReportFailed, saved.Status)
	assert.Equal(t, "An error occurred: "+last.Error, *saved.SummaryText)
}

func TestReportService_SubmitTextValidation(t *testing.T) {
	svc, f := newReportFixture(t, inlineSubmitter{}, 0)

	_, err := svc.SubmitText(context.Background(), domain.ReportTextCreate{TextContent: "  ", Language: "en"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.SubmitText(context.Background(), domain.ReportTextCreate{TextContent: "Hb 13", Language: "en", Audience: "nurse"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	f.reports.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestReportService_PoolRejectionFailsReport(t *testing.T) {
	svc, f := newReportFixture(t, inlineSubmitter{reject: true}, 0)

	report, err := svc.SubmitText(context.Background(), domain.ReportTextCreate{TextContent: "Hb 13", Language: "en"})
	require.NoError(t, err)

	assert.Equal(t, domain.ReportFailed, report.Status)
	events := f.status.received()
	assert.Equal(t, domain.ErrBusy.Error(), events[len(events)-1].Error)
	f.provider.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything)
}

func TestReportService_SubmitFilesTooLarge(t *testing.T) {
	svc, f := newReportFixture(t, inlineSubmitter{}, 8)

	_, err := svc.SubmitFiles(context.Background(), []domain.Upload{
		{Filename: "small.txt", Data: []byte("ok")},
		{Filename: "big.txt", Data: []byte("far too many bytes")},
	}, "en", "")

	assert.ErrorIs(t, err, domain.ErrTooLarge)
	f.reports.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestReportService_SubmitImage(t *testing.T) {
	svc, f := newReportFixture(t, inlineSubmitter{}, 0)
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")
	f.provider.On("Chat", mock.Anything, mock.MatchedBy(func(req llm.ChatRequest) bool {
		return len(req.Messages) == 2 && len(req.Messages[1].Images) == 1
	})).Return(chatResponse("A chest radiograph with clear lung fields."), nil)

	reports, err := svc.SubmitFiles(context.Background(), []domain.Upload{{Filename: "xray.png", Data: png}}, "en", "")

	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, domain.ReportImage, reports[0].ReportType)
	assert.Equal(t, "image/png", *reports[0].MimeType)
	assert.Equal(t,
		[]string{"created", "processing_file", "image_analysis_start", "image_analysis_done", "done"},
		f.status.stages())
	assert.Equal(t, domain.ReportCompleted, f.lastUpdate(t).Status)
	assert.Empty(t, f.speech.keys)
}

func TestReportService_SubmitDocument(t *testing.T) {
	svc, f := newReportFixture(t, inlineSubmitter{}, 0)
	data := []byte("Hemoglobin 13.5 g/dL\n")
	f.extractor.On("Extract", mock.Anything, data, mock.Anything).Return("Hemoglobin 13.5 g/dL", nil)
	f.provider.On("Chat", mock.Anything, mock.MatchedBy(func(req llm.ChatRequest) bool {
		return req.Messages[0].Content == llm.SummaryPrompt("doctor", "en") &&
			req.Messages[1].Content == "Hemoglobin 13.5 g/dL"
	})).Return(chatResponse("Hb within reference interval."), nil)

	reports, err := svc.SubmitFiles(context.Background(), []domain.Upload{{Filename: "labs.txt", Data: data}}, "en", "doctor")

	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t,
		[]string{"created", "processing_file", "doc_extract_start", "doc_extract_done", "summarize_start", "summarize_done", "done"},
		f.status.stages())
	assert.Equal(t, len("Hemoglobin 13.5 g/dL"), f.status.received()[3].Chars)

	saved := f.lastUpdate(t)
	assert.Equal(t, "Hemoglobin 13.5 g/dL", *saved.RawText)
	assert.Equal(t, "Hb within reference interval.", *saved.SummaryText)
}

func TestReportService_ReturnedReportIsNotSharedWithTask(t *testing.T) {
	submitter := &goSubmitter{}
	svc, f := newReportFixture(t, submitter, 0)
	f.provider.On("Chat", mock.Anything, mock.Anything).Return(chatResponse("Hb within reference interval."), nil)
	data := []byte("Hemoglobin 13.5 g/dL\n")
	f.extractor.On("Extract", mock.Anything, data, mock.Anything).Return("Hemoglobin 13.5 g/dL", nil)

	report, err := svc.SubmitText(context.Background(), domain.ReportTextCreate{TextContent: "Hb 13", Language: "en"})
	require.NoError(t, err)
	reports, err := svc.SubmitFiles(context.Background(), []domain.Upload{{Filename: "labs.txt", Data: data}}, "en", "")
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		_, err := json.Marshal(report)
		require.NoError(t, err)
		_, err = json.Marshal(reports)
		require.NoError(t, err)
	}
	submitter.wg.Wait()

	assert.Equal(t, domain.ReportProcessing, report.Status)
	assert.Nil(t, report.SummaryText)
	assert.Equal(t, domain.ReportProcessing, reports[0].Status)
	assert.Nil(t, reports[0].RawText)

	require.Len(t, f.updates, 2)
	for _, saved := range f.updates {
		assert.Equal(t, domain.ReportCompleted, saved.Status)
	}
}
