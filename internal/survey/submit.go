package survey

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/a7isss/hana-voice-saas/internal/auth"
	"github.com/a7isss/hana-voice-saas/pkg/models"
)

// SubmitterConfig locates the survey backend and supplies tenant
// defaults for sessions that did not carry them in the handshake.
type SubmitterConfig struct {
	BackendURL string
	TemplateID string
	HospitalID string

	// Timeout bounds the submission request. Zero means 30s.
	Timeout time.Duration
}

// Submitter posts a completed questionnaire to the survey backend.
// Submission is fire-and-forget: a failed post is logged and the
// responses are dropped, never retried.
type Submitter struct {
	cfg    SubmitterConfig
	tokens *auth.TokenService
	client *http.Client
	logger *slog.Logger
}

func NewSubmitter(cfg SubmitterConfig, tokens *auth.TokenService, logger *slog.Logger) *Submitter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Submitter{
		cfg:    cfg,
		tokens: tokens,
		client: &http.Client{Timeout: timeout},
		logger: logger.With("component", "submitter"),
	}
}

type submitPayload struct {
	TemplateID    string                 `json:"template_id"`
	QuestionCount int                    `json:"question_count"`
	Answers       []models.ResponseEntry `json:"answers"`
	Metadata      submitMetadata         `json:"metadata"`
}

type submitMetadata struct {
	SessionID           string              `json:"session_id"`
	PatientID           string              `json:"patient_id,omitempty"`
	HospitalID          string              `json:"hospital_id"`
	CampaignID          string              `json:"campaign_id,omitempty"`
	CallDurationSeconds int                 `json:"call_duration_seconds"`
	CallContext         *models.CallContext `json:"call_context,omitempty"`
}

// Submit posts the session's collected responses. It marks the session
// submitted before returning so a second call is a no-op; at-most-once
// delivery is the contract, not at-least-once.
func (s *Submitter) Submit(ctx context.Context, sess *models.Session, now time.Time) error {
	if sess.Survey.Submitted {
		return nil
	}
	if len(sess.Survey.Responses) == 0 {
		s.logger.Info("no responses collected, skipping submission", "session_id", sess.ID)
		return nil
	}
	sess.Survey.Submitted = true

	templateID := sess.Survey.TemplateID
	if templateID == "" {
		templateID = s.cfg.TemplateID
	}
	hospitalID := s.cfg.HospitalID
	patientID, campaignID := "", ""
	if sess.Call != nil {
		if v := sess.Call.Custom["hospital_id"]; v != "" {
			hospitalID = v
		}
		patientID = sess.Call.Custom["patient_id"]
		campaignID = sess.Call.Custom["campaign_id"]
	}
	if templateID == "" || hospitalID == "" {
		return fmt.Errorf("survey: session %s missing template or hospital for submission", sess.ID)
	}

	answers := make([]models.ResponseEntry, len(sess.Survey.Responses))
	copy(answers, sess.Survey.Responses)
	sort.SliceStable(answers, func(i, j int) bool {
		return answers[i].QuestionOrder < answers[j].QuestionOrder
	})

	questionCount := sess.Survey.TotalQuestions
	if questionCount == 0 {
		questionCount = len(answers)
	}

	payload := submitPayload{
		TemplateID:    templateID,
		QuestionCount: questionCount,
		Answers:       answers,
		Metadata: submitMetadata{
			SessionID:           sess.ID,
			PatientID:           patientID,
			HospitalID:          hospitalID,
			CampaignID:          campaignID,
			CallDurationSeconds: int(sess.Duration(now).Seconds()),
			CallContext:         sess.Call,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("survey: encode submission: %w", err)
	}

	token, err := s.tokens.ServiceToken(hospitalID)
	if err != nil {
		return fmt.Errorf("survey: mint service token: %w", err)
	}

	url := s.cfg.BackendURL + "/api/responses/submit"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("survey: build submission: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("survey: submit responses: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("survey: backend returned %d: %s",
			resp.StatusCode, bytes.TrimSpace(msg))
	}

	s.logger.Info("responses submitted",
		"session_id", sess.ID,
		"answers", len(answers),
		"hospital_id", hospitalID)
	return nil
}
