// Package speech talks to the external speech engine that performs
// Arabic transcription and synthesis. Audio crossing this boundary is
// always canonical PCM WAV.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"
)

// Spoken fallbacks for turns the engine could not serve. The dialogue
// stays in Arabic even when the pipeline degrades.
const (
	// FallbackNoSpeech is spoken when transcription returns nothing.
	FallbackNoSpeech = "لم أسمع شيئاً بوضوح. هل يمكنك التكلم مرة أخرى؟"

	// FallbackEngineError is spoken when the engine itself failed.
	FallbackEngineError = "عذراً، حدث خطأ تقني. يرجى المحاولة مرة أخرى."
)

// ErrEngineUnavailable indicates the engine endpoint rejected or
// failed the request.
var ErrEngineUnavailable = errors.New("speech: engine unavailable")

// Transcription is the recognized text for one utterance. An empty
// Text means no speech was detected; it is a valid result, not an
// error.
type Transcription struct {
	Text       string
	Confidence float64
}

// Engine converts between canonical PCM audio and Arabic text.
type Engine interface {
	Transcribe(ctx context.Context, wav []byte) (Transcription, error)
	Synthesize(ctx context.Context, text string) ([]byte, error)
	Healthy(ctx context.Context) bool
}

// Config for the HTTP engine client.
type Config struct {
	BaseURL string

	// Timeout bounds each request. Zero means 60s.
	Timeout time.Duration

	// DefaultConfidence is assigned when the engine omits a score.
	DefaultConfidence float64
}

// HTTPEngine is the production Engine, backed by a speech service that
// exposes multipart STT and JSON TTS endpoints.
type HTTPEngine struct {
	baseURL           string
	client            *http.Client
	defaultConfidence float64
	logger            *slog.Logger
}

// NewHTTPEngine builds a client for the configured engine endpoint.
func NewHTTPEngine(cfg Config, logger *slog.Logger) *HTTPEngine {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	confidence := cfg.DefaultConfidence
	if confidence <= 0 {
		confidence = 0.8
	}
	return &HTTPEngine{
		baseURL:           cfg.BaseURL,
		client:            &http.Client{Timeout: timeout},
		defaultConfidence: confidence,
		logger:            logger.With("component", "speech"),
	}
}

type sttResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Transcribe submits a WAV utterance and returns the recognized text.
func (e *HTTPEngine) Transcribe(ctx context.Context, wav []byte) (Transcription, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return Transcription{}, fmt.Errorf("speech: build request: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return Transcription{}, fmt.Errorf("speech: build request: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Transcription{}, fmt.Errorf("speech: build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/stt", &body)
	if err != nil {
		return Transcription{}, fmt.Errorf("speech: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return Transcription{}, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Transcription{}, fmt.Errorf("%w: stt returned %d: %s",
			ErrEngineUnavailable, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var decoded sttResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Transcription{}, fmt.Errorf("speech: decode stt response: %w", err)
	}

	confidence := decoded.Confidence
	if confidence <= 0 {
		confidence = e.defaultConfidence
	}

	e.logger.Debug("transcription complete",
		"chars", len(decoded.Text),
		"confidence", confidence,
		"duration_ms", time.Since(start).Milliseconds())

	return Transcription{Text: decoded.Text, Confidence: confidence}, nil
}

// Synthesize renders Arabic text to canonical PCM WAV.
func (e *HTTPEngine) Synthesize(ctx context.Context, text string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{
		"text":     text,
		"language": "ar",
	})
	if err != nil {
		return nil, fmt.Errorf("speech: build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/tts", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("speech: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: tts returned %d: %s",
			ErrEngineUnavailable, resp.StatusCode, bytes.TrimSpace(msg))
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("speech: read tts response: %w", err)
	}
	if len(wav) == 0 {
		return nil, fmt.Errorf("%w: tts returned empty audio", ErrEngineUnavailable)
	}
	return wav, nil
}

// Healthy probes the engine's health endpoint.
func (e *HTTPEngine) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
