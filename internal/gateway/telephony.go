package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/a7isss/hana-voice-saas/internal/audio"
	"github.com/a7isss/hana-voice-saas/internal/speech"
	"github.com/a7isss/hana-voice-saas/pkg/models"
)

// Telephony wire message types.
const (
	msgSessionSetup   = "session.setup"
	msgSessionReady   = "session.ready"
	msgAudioInput     = "audio.input"
	msgResponseStream = "response.stream"
	msgSpeechStarted  = "speech.started"
	msgCallDTMF       = "call.dtmf"
	msgCallMark       = "call.mark"
	msgCallRedirect   = "call.redirect"
	msgCallHangup     = "call.hangup"
	msgError          = "error"
)

// setupWait bounds how long a peer may sit silent before the setup
// message arrives.
const setupWait = 30 * time.Second

// redirectAfterFailures is how many consecutive engine failures we
// tolerate before transferring the caller to a human.
const redirectAfterFailures = 3

// wireMessage is the {type, data} envelope every telephony frame uses.
type wireMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type setupData struct {
	Context struct {
		CallerNumber string            `json:"caller_number"`
		CalleeNumber string            `json:"callee_number"`
		Direction    string            `json:"direction"`
		Custom       map[string]string `json:"custom"`
	} `json:"context"`
}

type audioInputData struct {
	Audio string `json:"audio"`
}

type dtmfData struct {
	Digit string `json:"digit"`
}

type markData struct {
	Label string `json:"label"`
}

// telephonyConn holds the per-call state owned by the handling
// goroutine.
type telephonyConn struct {
	h      *wsHandler
	conn   *websocket.Conn
	sess   *models.Session
	logger *slog.Logger

	// awaitingMark is true between sending a playback mark and the
	// peer echoing it; audio arriving in that window means the caller
	// spoke over playback.
	awaitingMark bool

	engineFailures int
	turn           int
}

// serveTelephony runs the JSON-framed call protocol. The first frame
// must be session.setup; anything else is a fatal protocol violation
// closed with a protocol-error status. After the ready acknowledgment
// the call alternates audio.input / response.stream turns until the
// questionnaire completes or the peer disconnects.
func (h *wsHandler) serveTelephony(ctx context.Context, conn *websocket.Conn, sess *models.Session) {
	t := &telephonyConn{
		h:      h,
		conn:   conn,
		sess:   sess,
		logger: h.logger.With("session_id", sess.ID),
	}

	if !t.handshake() {
		return
	}

	defer t.submitIfComplete(ctx)

	t.logger.Info("call active",
		"caller", sess.Call.CallerNumber,
		"direction", string(sess.Call.Direction))

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Warn("call read error", "error", err)
			}
			return
		}

		var msg wireMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			// Skip the frame; the call goes on.
			t.logger.Error("malformed frame", "error", err)
			continue
		}

		switch msg.Type {
		case msgAudioInput:
			if done := t.handleAudioInput(ctx, msg.Data); done {
				return
			}
		case msgCallDTMF:
			t.handleDTMF(msg.Data)
		case msgCallMark:
			t.handleMark(msg.Data)
		default:
			t.logger.Warn("unhandled message type", "type", msg.Type)
		}
	}
}

// handshake consumes the mandatory session.setup frame. Returns false
// when the connection was closed for a protocol violation.
func (t *telephonyConn) handshake() bool {
	metrics := t.h.server.deps.Metrics

	t.conn.SetReadDeadline(time.Now().Add(setupWait))
	defer t.conn.SetReadDeadline(time.Time{})

	_, payload, err := t.conn.ReadMessage()
	if err != nil {
		metrics.HandshakeFailures.WithLabelValues("read").Inc()
		t.logger.Warn("no setup message received", "error", err)
		return false
	}

	var msg wireMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		metrics.HandshakeFailures.WithLabelValues("malformed").Inc()
		t.closeProtocolError("Invalid JSON format")
		return false
	}
	if msg.Type != msgSessionSetup {
		metrics.HandshakeFailures.WithLabelValues("wrong_type").Inc()
		t.logger.Error("expected setup message", "got", msg.Type)
		t.closeProtocolError("Expected session.setup message")
		return false
	}

	var setup setupData
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &setup); err != nil {
			metrics.HandshakeFailures.WithLabelValues("malformed").Inc()
			t.closeProtocolError("Invalid session.setup payload")
			return false
		}
	}

	t.sess.Call = &models.CallContext{
		CallerNumber: setup.Context.CallerNumber,
		CalleeNumber: setup.Context.CalleeNumber,
		Direction:    models.CallDirection(setup.Context.Direction),
		Custom:       setup.Context.Custom,
	}

	if t.h.ep.profile == profileHealthcare || t.h.ep.profile == profileTest {
		t.initQuestionnaire()
	}

	t.send(msgSessionReady, nil)
	return true
}

// initQuestionnaire seeds the survey script for the call. The template
// and question count come from configuration unless the handshake's
// custom metadata overrides them.
func (t *telephonyConn) initQuestionnaire() {
	cfg := t.h.server.config.Survey

	t.sess.Survey.TemplateID = cfg.TemplateID
	if v := t.sess.Call.Custom["template_id"]; v != "" {
		t.sess.Survey.TemplateID = v
	}
	t.sess.Survey.TotalQuestions = cfg.TotalQuestions
	t.sess.Survey.Current = t.question(1)
}

// question builds the nth scripted question. Every question is yes/no
// except the last, a closing satisfaction rating.
func (t *telephonyConn) question(order int) *models.Question {
	qtype := models.QuestionYesNo
	if order == t.sess.Survey.TotalQuestions {
		qtype = models.QuestionRating
	}
	return &models.Question{
		ID:      fmt.Sprintf("q-%d", order),
		Order:   order,
		Type:    qtype,
		AskedAt: time.Now(),
	}
}

// handleAudioInput runs one full conversation turn. Returns true when
// the call should end (questionnaire complete or caller redirected).
func (t *telephonyConn) handleAudioInput(ctx context.Context, data json.RawMessage) bool {
	deps := t.h.server.deps
	start := time.Now()
	status := "ok"
	defer func() {
		deps.Metrics.Turns.WithLabelValues(t.h.ep.path, status).Inc()
		deps.Metrics.TurnDuration.WithLabelValues(t.h.ep.path).Observe(time.Since(start).Seconds())
	}()

	var in audioInputData
	if len(data) > 0 {
		if err := json.Unmarshal(data, &in); err != nil {
			status = "bad_frame"
			t.sendError("invalid audio.input payload")
			return false
		}
	}
	if in.Audio == "" {
		t.logger.Warn("empty audio data received")
		status = "empty"
		return false
	}

	if t.awaitingMark {
		// Caller spoke before playback finished.
		t.send(msgSpeechStarted, nil)
		t.awaitingMark = false
	}

	ulaw, err := base64.StdEncoding.DecodeString(in.Audio)
	if err != nil {
		status = "bad_frame"
		t.sendError("invalid audio encoding")
		return false
	}

	wav, err := deps.Transcoder.ToCanonical(ctx, ulaw)
	if err != nil {
		status = "transcode_error"
		deps.Metrics.TranscodeFailures.Inc()
		t.logger.Error("inbound transcode failed", "error", err)
		t.sendError("Audio processing error")
		return false
	}

	sttStart := time.Now()
	tr, err := deps.Speech.Transcribe(ctx, wav)
	deps.Metrics.SpeechDuration.WithLabelValues("stt").Observe(time.Since(sttStart).Seconds())
	if err != nil {
		status = "engine_error"
		t.logger.Error("transcription failed", "error", err)
		return t.engineFailed(ctx)
	}
	t.engineFailures = 0

	var response string
	if tr.Text == "" {
		response = speech.FallbackNoSpeech
	} else {
		response = deps.Survey.RouteTurn(tr.Text)

		if t.questionnaireActive() {
			deps.Survey.TrackResponse(t.sess, tr.Text, tr.Confidence, time.Now())
			if deps.Survey.IsComplete(t.sess) {
				t.sess.Survey.Current = nil
				t.submitIfComplete(ctx)
				_ = t.speak(ctx, "شكراً جزيلاً لوقتك. مع السلامة")
				t.send(msgCallHangup, nil)
				t.logger.Info("questionnaire complete, ending call")
				return true
			}
			t.advanceQuestion()
		}
	}

	if err := t.speak(ctx, response); err != nil {
		// One error frame per failed turn. Codec failures are not the
		// speech engine's fault and never count toward the redirect
		// threshold.
		if errors.Is(err, audio.ErrTranscodeFailed) || errors.Is(err, audio.ErrToolUnavailable) {
			status = "transcode_error"
			t.sendError("Audio processing error")
			return false
		}
		status = "synthesis_error"
		t.sendError("No audio response")
		return t.engineFailed(ctx)
	}
	return false
}

func (t *telephonyConn) questionnaireActive() bool {
	return t.sess.Survey.Current != nil
}

func (t *telephonyConn) advanceQuestion() {
	next := t.sess.Survey.Current.Order + 1
	t.sess.Survey.Current = t.question(next)
}

// engineFailed counts consecutive engine failures, speaking the error
// fallback while under the redirect threshold and transferring the
// caller to a human once it is reached. Returns true when the call
// should end.
func (t *telephonyConn) engineFailed(ctx context.Context) bool {
	t.engineFailures++
	if t.engineFailures >= redirectAfterFailures {
		t.logger.Warn("repeated engine failures, redirecting to human agent",
			"failures", t.engineFailures)
		t.send(msgCallRedirect, nil)
		t.send(msgCallHangup, nil)
		return true
	}
	_ = t.speak(ctx, speech.FallbackEngineError)
	return false
}

// speak synthesizes text, converts it to the telephony codec, and
// streams it with a trailing playback mark. Failures are logged and
// returned; the caller decides whether an error frame goes out.
func (t *telephonyConn) speak(ctx context.Context, text string) error {
	deps := t.h.server.deps

	ttsStart := time.Now()
	wav, err := deps.Speech.Synthesize(ctx, text)
	deps.Metrics.SpeechDuration.WithLabelValues("tts").Observe(time.Since(ttsStart).Seconds())
	if err != nil {
		t.logger.Error("synthesis failed", "error", err)
		return fmt.Errorf("synthesize: %w", err)
	}

	ulaw, err := deps.Transcoder.FromCanonical(ctx, wav)
	if err != nil {
		deps.Metrics.TranscodeFailures.Inc()
		t.logger.Error("outbound transcode failed", "error", err)
		return fmt.Errorf("outbound transcode: %w", err)
	}

	t.turn++
	t.send(msgResponseStream, map[string]string{
		"audio": base64.StdEncoding.EncodeToString(ulaw),
	})
	t.send(msgCallMark, map[string]string{
		"label": fmt.Sprintf("turn-%d", t.turn),
	})
	t.awaitingMark = true
	return nil
}

func (t *telephonyConn) handleDTMF(data json.RawMessage) {
	var d dtmfData
	if len(data) > 0 {
		_ = json.Unmarshal(data, &d)
	}
	if d.Digit == "" {
		return
	}
	t.sess.AppendDTMF(d.Digit)
	t.logger.Info("dtmf received", "digit", d.Digit)
}

func (t *telephonyConn) handleMark(data json.RawMessage) {
	var m markData
	if len(data) > 0 {
		_ = json.Unmarshal(data, &m)
	}
	t.awaitingMark = false
	t.sess.Survey.Marks = append(t.sess.Survey.Marks, m.Label)
	t.logger.Info("playback mark reached", "label", m.Label)
}

// submitIfComplete delivers the questionnaire once all questions are
// answered. Safe to call multiple times; the session's submitted flag
// makes delivery at-most-once.
func (t *telephonyConn) submitIfComplete(ctx context.Context) {
	deps := t.h.server.deps
	if !t.sess.Survey.Complete() || t.sess.Survey.Submitted {
		return
	}
	if err := deps.Submitter.Submit(ctx, t.sess, time.Now()); err != nil {
		deps.Metrics.Submissions.WithLabelValues("error").Inc()
		t.logger.Error("survey submission failed", "error", err)
		return
	}
	deps.Metrics.Submissions.WithLabelValues("ok").Inc()
}

func (t *telephonyConn) send(msgType string, data any) {
	out := map[string]any{"type": msgType}
	if data != nil {
		out["data"] = data
	}
	t.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := t.conn.WriteJSON(out); err != nil {
		t.logger.Warn("frame write failed", "type", msgType, "error", err)
	}
}

func (t *telephonyConn) sendError(message string) {
	t.send(msgError, map[string]string{"message": message})
}

func (t *telephonyConn) closeProtocolError(reason string) {
	deadline := time.Now().Add(wsWriteWait)
	msg := websocket.FormatCloseMessage(websocket.CloseProtocolError, reason)
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, deadline)
}
