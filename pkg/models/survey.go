package models

import (
	"time"
)

// QuestionType distinguishes how a free-text answer is normalized.
type QuestionType string

const (
	QuestionYesNo  QuestionType = "yes_no"
	QuestionRating QuestionType = "rating"
)

// Question identifies the question currently posed to the caller.
type Question struct {
	ID      string       `json:"id"`
	Order   int          `json:"order"`
	Type    QuestionType `json:"type"`
	AskedAt time.Time    `json:"asked_at"`
}

// ResponseEntry is a single recorded answer. Entries are append-only and
// never mutated after creation.
//
// Value encoding for yes/no questions: 1 = yes, 0 = no, 3 = uncertain.
// Rating questions carry the spoken integer in [1,5]. Nil means the
// answer could not be normalized.
type ResponseEntry struct {
	QuestionID    string    `json:"question_id"`
	QuestionOrder int       `json:"question_order"`
	ResponseText  string    `json:"response_text"`
	ResponseValue *int      `json:"response_value"`
	Confidence    float64   `json:"confidence"`
	ResponseTime  float64   `json:"response_time_seconds"`
	Timestamp     time.Time `json:"timestamp"`
}

// SurveyState tracks questionnaire progress for one session.
type SurveyState struct {
	TemplateID     string          `json:"template_id,omitempty"`
	TotalQuestions int             `json:"total_questions"`
	Current        *Question       `json:"current,omitempty"`
	Responses      []ResponseEntry `json:"responses"`
	Submitted      bool            `json:"submitted"`

	// Marks records call.mark labels reached during playback.
	Marks []string `json:"marks,omitempty"`
}

// Complete reports whether every expected question has an answer.
// A survey with no configured questions is never complete.
func (s *SurveyState) Complete() bool {
	return s.TotalQuestions > 0 && len(s.Responses) >= s.TotalQuestions
}
