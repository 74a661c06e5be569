package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Rrens/med-analyzer/internal/config"
	"github.com/rs/zerolog/log"
)

// ErrEmptyText is returned when there is nothing to speak
var ErrEmptyText = errors.New("text input is empty")

const DefaultVoice = "af_heart"

// SampleRate of the WAV produced by the synthesis service
const SampleRate = 24000

// Engine turns text into WAV audio
type Engine interface {
	Synthesize(ctx context.Context, text, language string) ([]byte, error)
	Ready(ctx context.Context) error
}

// HTTPEngine calls an external synthesis service over HTTP
type HTTPEngine struct {
	url    string
	voice  string
	speed  float64
	client *http.Client
}

type synthesisRequest struct {
	Text         string  `json:"text"`
	Voice        string  `json:"voice"`
	Speed        float64 `json:"speed"`
	Language     string  `json:"language"`
	SplitPattern string  `json:"split_pattern"`
	SampleRate   int     `json:"sample_rate"`
}

// NewHTTPEngine creates an engine posting to cfg.URL
func NewHTTPEngine(cfg config.TTSConfig) *HTTPEngine {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	voice := cfg.Voice
	if voice == "" {
		voice = DefaultVoice
	}
	speed := cfg.Speed
	if speed <= 0 {
		speed = 1
	}
	return &HTTPEngine{
		url:    cfg.URL,
		voice:  voice,
		speed:  speed,
		client: &http.Client{Timeout: timeout},
	}
}

func (e *HTTPEngine) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if language != "" && !strings.EqualFold(language, "en") {
		log.Warn().Str("language", language).Msg("Speech engine only supports English, proceeding with English voice")
	}

	body, err := json.Marshal(synthesisRequest{
		Text:         text,
		Voice:        e.voice,
		Speed:        e.speed,
		Language:     language,
		SplitPattern: `\n+`,
		SampleRate:   SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call speech engine: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("speech engine returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("speech engine returned no audio")
	}
	return audio, nil
}

// Ready checks the engine's health endpoint next to the synthesis URL
func (e *HTTPEngine) Ready(ctx context.Context) error {
	u, err := url.Parse(e.url)
	if err != nil {
		return fmt.Errorf("invalid speech engine url: %w", err)
	}
	u.Path = "/health"
	u.RawQuery = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("speech engine unreachable: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("speech engine unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
