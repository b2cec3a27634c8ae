package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

var (
	// ErrToolUnavailable indicates the ffmpeg binary could not be
	// resolved at startup.
	ErrToolUnavailable = errors.New("audio: ffmpeg not available")

	// ErrTranscodeFailed indicates ffmpeg ran but produced no usable
	// output.
	ErrTranscodeFailed = errors.New("audio: transcode failed")

	// ErrUnsupportedFormat indicates the input format cannot be
	// converted to the canonical representation.
	ErrUnsupportedFormat = errors.New("audio: unsupported input format")
)

// TranscoderConfig controls tool resolution and execution limits.
type TranscoderConfig struct {
	// FFmpegPath overrides PATH lookup when set.
	FFmpegPath string

	// Timeout bounds a single conversion. Zero means 30s.
	Timeout time.Duration
}

// Transcoder converts call audio between the telephony codec and the
// canonical PCM representation by piping through ffmpeg. The binary is
// resolved once at construction; the zero value is not usable.
type Transcoder struct {
	path    string
	timeout time.Duration
	logger  *slog.Logger
}

// NewTranscoder resolves the ffmpeg binary and returns a ready
// transcoder. The configured path wins; otherwise PATH is searched.
func NewTranscoder(cfg TranscoderConfig, logger *slog.Logger) (*Transcoder, error) {
	path := cfg.FFmpegPath
	if path == "" {
		found, err := exec.LookPath("ffmpeg")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrToolUnavailable, err)
		}
		path = found
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Transcoder{
		path:    path,
		timeout: timeout,
		logger:  logger.With("component", "transcoder"),
	}, nil
}

// Available probes the resolved binary. Used by health reporting.
func (t *Transcoder) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, t.path, "-version").Run() == nil
}

// ToCanonical converts an inbound payload to canonical PCM WAV
// (16-bit signed, mono, 16kHz). The input format is sniffed; payloads
// already in a container are decoded and resampled, raw companded
// audio is decoded from μ-law at 8kHz.
func (t *Transcoder) ToCanonical(ctx context.Context, data []byte) ([]byte, error) {
	var inputArgs []string
	switch DetectFormat(data) {
	case FormatMuLaw:
		inputArgs = []string{"-f", "mulaw", "-ar", "8000", "-ac", "1"}
	case FormatWebM:
		inputArgs = []string{"-f", "webm"}
	case FormatWAV:
		inputArgs = []string{"-f", "wav"}
	default:
		return nil, ErrUnsupportedFormat
	}

	args := append(inputArgs, "-i", "pipe:0",
		"-f", "wav", "-acodec", "pcm_s16le", "-ar", "16000", "-ac", "1",
		"pipe:1")

	out, err := t.run(ctx, args, data)
	if err != nil {
		return nil, err
	}
	if len(out) < minWAVSize {
		return nil, fmt.Errorf("%w: output too small (%d bytes)", ErrTranscodeFailed, len(out))
	}
	return out, nil
}

// FromCanonical converts canonical PCM WAV back to raw μ-law at 8kHz
// for the telephony leg.
func (t *Transcoder) FromCanonical(ctx context.Context, data []byte) ([]byte, error) {
	args := []string{
		"-f", "wav", "-i", "pipe:0",
		"-f", "mulaw", "-ar", "8000", "-ac", "1",
		"pipe:1",
	}

	out, err := t.run(ctx, args, data)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty output", ErrTranscodeFailed)
	}
	return out, nil
}

func (t *Transcoder) run(ctx context.Context, args []string, input []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, t.path, args...)
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: timed out after %s", ErrTranscodeFailed, t.timeout)
		}
		t.logger.Error("ffmpeg failed",
			"error", err,
			"stderr", truncate(stderr.String(), 512))
		return nil, fmt.Errorf("%w: %v", ErrTranscodeFailed, err)
	}

	t.logger.Debug("transcode complete",
		"in_bytes", len(input),
		"out_bytes", stdout.Len(),
		"duration_ms", time.Since(start).Milliseconds())
	return stdout.Bytes(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
