package speech

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stt" {
			t.Errorf("path = %q, want /stt", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if string(data) != "fake-wav" {
			t.Errorf("uploaded %q, want fake-wav", data)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text":"نعم","confidence":0.93}`)
	}))
	defer srv.Close()

	e := NewHTTPEngine(Config{BaseURL: srv.URL}, testLogger())
	tr, err := e.Transcribe(context.Background(), []byte("fake-wav"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "نعم" {
		t.Errorf("Text = %q, want نعم", tr.Text)
	}
	if tr.Confidence != 0.93 {
		t.Errorf("Confidence = %v, want 0.93", tr.Confidence)
	}
}

func TestTranscribe_NoSpeechIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"text":""}`)
	}))
	defer srv.Close()

	e := NewHTTPEngine(Config{BaseURL: srv.URL}, testLogger())
	tr, err := e.Transcribe(context.Background(), []byte("fake-wav"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "" {
		t.Errorf("Text = %q, want empty", tr.Text)
	}
}

func TestTranscribe_DefaultConfidence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"text":"لا"}`)
	}))
	defer srv.Close()

	e := NewHTTPEngine(Config{BaseURL: srv.URL, DefaultConfidence: 0.8}, testLogger())
	tr, err := e.Transcribe(context.Background(), []byte("fake-wav"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Confidence != 0.8 {
		t.Errorf("Confidence = %v, want default 0.8", tr.Confidence)
	}
}

func TestTranscribe_EngineError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := NewHTTPEngine(Config{BaseURL: srv.URL}, testLogger())
	_, err := e.Transcribe(context.Background(), []byte("fake-wav"))
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("err = %v, want ErrEngineUnavailable", err)
	}
}

func TestSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tts" {
			t.Errorf("path = %q, want /tts", r.URL.Path)
		}
		w.Write([]byte("RIFF-wav-bytes"))
	}))
	defer srv.Close()

	e := NewHTTPEngine(Config{BaseURL: srv.URL}, testLogger())
	wav, err := e.Synthesize(context.Background(), FallbackNoSpeech)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(wav) != "RIFF-wav-bytes" {
		t.Errorf("wav = %q", wav)
	}
}

func TestSynthesize_EmptyAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	e := NewHTTPEngine(Config{BaseURL: srv.URL}, testLogger())
	_, err := e.Synthesize(context.Background(), "نص")
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("err = %v, want ErrEngineUnavailable", err)
	}
}

func TestHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	e := NewHTTPEngine(Config{BaseURL: srv.URL}, testLogger())
	if !e.Healthy(context.Background()) {
		t.Error("Healthy = false for OK endpoint")
	}

	srv.Close()
	if e.Healthy(context.Background()) {
		t.Error("Healthy = true for closed endpoint")
	}
}
