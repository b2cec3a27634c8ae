package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/a7isss/hana-voice-saas/internal/audio"
	"github.com/a7isss/hana-voice-saas/internal/speech"
	"github.com/a7isss/hana-voice-saas/pkg/models"
)

// healthcareGreeting opens every healthcare relay conversation.
const healthcareGreeting = "أهلاً وسهلاً في خدمة الاستشارة الصحية. كيف يمكنني مساعدتك اليوم؟"

// serveRelay runs the binary relay protocol: each binary frame is one
// caller utterance, answered with one binary frame in the caller's own
// wire codec. Text frames carry degraded-mode fallbacks ("text: ...")
// and error notices ("error: ..."); a turn failure never tears down the
// connection.
func (h *wsHandler) serveRelay(ctx context.Context, conn *websocket.Conn, sess *models.Session) {
	logger := h.logger.With("session_id", sess.ID)
	logger.Info("relay session started", "client", sess.ClientAddr)

	// Telephony peers speak companded 8kHz audio; until their first
	// frame arrives that is the only codec we can assume.
	wire := audio.FormatUnknown
	if h.ep.transport == models.TransportTelephony {
		wire = audio.FormatMuLaw
	}

	if h.ep.profile == profileHealthcare {
		h.speakOrFallback(ctx, conn, sess, healthcareGreeting, wire)
	}

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("relay read error", "error", err)
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			logger.Debug("ignoring non-binary frame", "type", msgType)
			continue
		}
		if len(payload) == 0 {
			continue
		}

		h.relayTurn(ctx, conn, sess, payload)
	}
}

// relayTurn runs one utterance through the pipeline: transcode in,
// transcribe, route, synthesize, reply in the inbound codec.
func (h *wsHandler) relayTurn(ctx context.Context, conn *websocket.Conn, sess *models.Session, payload []byte) {
	deps := h.server.deps
	logger := h.logger.With("session_id", sess.ID)
	start := time.Now()
	status := "ok"
	defer func() {
		deps.Metrics.Turns.WithLabelValues(h.ep.path, status).Inc()
		deps.Metrics.TurnDuration.WithLabelValues(h.ep.path).Observe(time.Since(start).Seconds())
	}()

	wire := audio.DetectFormat(payload)

	wav, err := deps.Transcoder.ToCanonical(ctx, payload)
	if err != nil {
		status = "transcode_error"
		deps.Metrics.TranscodeFailures.Inc()
		logger.Error("inbound transcode failed", "error", err)
		h.writeText(conn, "error: audio processing error")
		return
	}

	sttStart := time.Now()
	tr, err := deps.Speech.Transcribe(ctx, wav)
	deps.Metrics.SpeechDuration.WithLabelValues("stt").Observe(time.Since(sttStart).Seconds())
	if err != nil {
		status = "engine_error"
		logger.Error("transcription failed", "error", err)
		h.speakOrFallback(ctx, conn, sess, speech.FallbackEngineError, wire)
		return
	}

	var response string
	if tr.Text == "" {
		response = speech.FallbackNoSpeech
	} else {
		response = deps.Survey.RouteTurn(tr.Text)
	}

	if err := h.speakOrFallback(ctx, conn, sess, response, wire); err != nil {
		if errors.Is(err, audio.ErrTranscodeFailed) || errors.Is(err, audio.ErrToolUnavailable) {
			status = "transcode_error"
		} else {
			status = "synthesis_error"
		}
	}
}

// speakOrFallback synthesizes text, re-encodes it to the peer's wire
// codec, and sends it as a binary frame, degrading to a "text:" frame
// when either stage fails.
func (h *wsHandler) speakOrFallback(ctx context.Context, conn *websocket.Conn, sess *models.Session, text string, wire audio.Format) error {
	deps := h.server.deps
	logger := h.logger.With("session_id", sess.ID)

	ttsStart := time.Now()
	wav, err := deps.Speech.Synthesize(ctx, text)
	deps.Metrics.SpeechDuration.WithLabelValues("tts").Observe(time.Since(ttsStart).Seconds())
	if err != nil {
		logger.Error("synthesis failed", "error", err)
		h.writeText(conn, "text: "+text)
		return err
	}

	out := wav
	if wire == audio.FormatMuLaw {
		out, err = deps.Transcoder.FromCanonical(ctx, wav)
		if err != nil {
			deps.Metrics.TranscodeFailures.Inc()
			logger.Error("outbound transcode failed", "error", err)
			h.writeText(conn, "text: "+text)
			return err
		}
	}

	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteMessage(websocket.BinaryMessage, out); err != nil {
		logger.Warn("relay write failed", "error", err)
		return err
	}
	return nil
}

func (h *wsHandler) writeText(conn *websocket.Conn, text string) {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		h.logger.Warn("text write failed", "error", err)
	}
}
