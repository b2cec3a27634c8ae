// Package survey drives the Arabic healthcare questionnaire: routing a
// caller's utterance to the next prompt, normalizing answers to numeric
// codes, and submitting the completed set to the survey backend.
package survey

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/a7isss/hana-voice-saas/pkg/models"
)

// Numeric codes recorded for yes/no answers.
const (
	ValueNo        = 0
	ValueYes       = 1
	ValueUncertain = 3
)

// route is one entry in the ordered keyword table. First match wins.
type route struct {
	keywords []string
	prompt   string
}

var turnRoutes = []route{
	{
		keywords: []string{"ألم", "وجع", "أعاني من ألم", "أتألم", "pain"},
		prompt:   "درجة الألم من ٠ إلى ١٠؟ (٠ لا ألم و ١٠ ألم شديد)",
	},
	{
		keywords: []string{"دواء", "أدوية", "أتناول", "medicine", "medication"},
		prompt:   "ما هي الأدوية التي تتناولها حالياً؟ يرجى ذكر الأسماء والجرعات إن أمكن",
	},
	{
		keywords: []string{"أعراض", "مشكلة", "مشاكل", "symptoms", "problems"},
		prompt:   "يرجى وصف الأعراض التي تشعر بها بتفصيل أكثر لمساعدتك بشكل أفضل",
	},
	{
		keywords: []string{"موعد", "زيارة", "طبيب", "appointment", "doctor"},
		prompt:   "هل تحتاج إلى جدولة موعد مع الطبيب؟ يمكنني مساعدتك في ذلك",
	},
}

// Spoken pain-scale words grouped by severity band.
var painScaleBands = []struct {
	words  []string
	prompt string
}{
	{
		words:  []string{"صفر", "zero"},
		prompt: "فهمت، لا تشعر بأي ألم. شكراً لك. لديك أسئلة أخرى؟",
	},
	{
		words:  []string{"واحد", "one", "اثنان", "two", "ثلاثة", "three"},
		prompt: "فهمت درجة الألم الخفيفة. إذا استمرت الأعراض، يرجى استشارة الطبيب",
	},
	{
		words:  []string{"أربعة", "four", "خمسة", "five", "ستة", "six"},
		prompt: "درجة الألم متوسطة. يُنصح بزيارة الطبيب لتقييم الحالة",
	},
	{
		words:  []string{"سبعة", "seven", "ثمانية", "eight", "تسعة", "nine", "عشرة", "ten"},
		prompt: "ألم شديد. يرجى طلب المساعدة الطبية فوراً",
	},
}

const (
	promptElaborate = "يرجى التفصيل أكثر في إجابتك لمساعدتك بشكل أفضل"
	promptGeneric   = "شكراً لمعلوماتك. هل يمكنك وصف حالتك الصحية بتفصيل أكثر؟"
)

// Engine holds questionnaire behavior shared by all sessions.
type Engine struct {
	defaultConfidence float64
	logger            *slog.Logger
}

func NewEngine(defaultConfidence float64, logger *slog.Logger) *Engine {
	if defaultConfidence <= 0 {
		defaultConfidence = 0.8
	}
	return &Engine{
		defaultConfidence: defaultConfidence,
		logger:            logger.With("component", "survey"),
	}
}

// RouteTurn picks the spoken response for a caller utterance. Matching
// is ordered: pain, medication, symptoms, appointments, spoken
// pain-scale numbers, then length-based fallbacks.
func (e *Engine) RouteTurn(text string) string {
	lower := strings.ToLower(text)

	for _, r := range turnRoutes {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.prompt
			}
		}
	}

	for _, word := range strings.Fields(lower) {
		for _, band := range painScaleBands {
			for _, w := range band.words {
				if word == w {
					return band.prompt
				}
			}
		}
	}

	if len(strings.Fields(text)) < 2 {
		return promptElaborate
	}
	return promptGeneric
}

var (
	yesPatterns       = []string{"نعم", "اي", "ايوه", "yes", "موافق", "صحيح", "اكيد", "طبعا"}
	noPatterns        = []string{"لا", "no", "غير موافق", "خطأ", "ابدا", "مستحيل"}
	uncertainPatterns = []string{"غير متأكد", "لا اعرف", "uncertain", "maybe", "ربما", "مش متأكد", "مش عارف"}
)

// NormalizeResponse converts a transcribed answer into canonical text
// plus a numeric code. Yes/no answers check affirmative patterns before
// negative ones, so an utterance containing both normalizes as yes.
// Ratings take the first integer in the text, valid only in [1,5];
// Arabic-Indic digits are folded to ASCII first. An unrecognizable
// answer returns the original text and a nil value.
func NormalizeResponse(text string, qtype models.QuestionType) (string, *int) {
	normalized := strings.ToLower(strings.TrimSpace(text))

	switch qtype {
	case models.QuestionYesNo:
		if containsAny(normalized, yesPatterns) {
			return "نعم", intPtr(ValueYes)
		}
		if containsAny(normalized, noPatterns) {
			return "لا", intPtr(ValueNo)
		}
		if containsAny(normalized, uncertainPatterns) {
			return "غير متأكد", intPtr(ValueUncertain)
		}

	case models.QuestionRating:
		if n, ok := firstInteger(foldDigits(normalized)); ok && n >= 1 && n <= 5 {
			return strconv.Itoa(n), intPtr(n)
		}
	}

	return text, nil
}

// TrackResponse normalizes an answer against the current question and
// appends it to the session's collected responses. Without a current
// question the answer is dropped with a warning; there is nothing to
// attribute it to.
func (e *Engine) TrackResponse(sess *models.Session, text string, confidence float64, now time.Time) {
	q := sess.Survey.Current
	if q == nil {
		e.logger.Warn("no current question, dropping response",
			"session_id", sess.ID, "chars", len(text))
		return
	}

	if confidence <= 0 {
		confidence = e.defaultConfidence
	}

	normalized, value := NormalizeResponse(text, q.Type)
	if value == nil {
		e.logger.Warn("could not normalize response",
			"session_id", sess.ID, "question_id", q.ID, "type", q.Type)
	}

	elapsed := 0.0
	if !q.AskedAt.IsZero() {
		elapsed = now.Sub(q.AskedAt).Seconds()
	}

	sess.Survey.Responses = append(sess.Survey.Responses, models.ResponseEntry{
		QuestionID:    q.ID,
		QuestionOrder: q.Order,
		ResponseText:  normalized,
		ResponseValue: value,
		Confidence:    confidence,
		ResponseTime:  elapsed,
		Timestamp:     now,
	})

	e.logger.Info("tracked response",
		"session_id", sess.ID,
		"question_order", q.Order,
		"value", value,
		"confidence", confidence)
}

// IsComplete reports whether every configured question has an answer.
// A session with no configured question count is never complete.
func (e *Engine) IsComplete(sess *models.Session) bool {
	return sess.Survey.Complete()
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// foldDigits maps Arabic-Indic digits (both the U+0660 and U+06F0
// ranges) to their ASCII equivalents.
func foldDigits(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '٠' && r <= '٩':
			return '0' + (r - '٠')
		case r >= '۰' && r <= '۹':
			return '0' + (r - '۰')
		}
		return r
	}, s)
}

// firstInteger returns the first run of ASCII digits in s.
func firstInteger(s string) (int, bool) {
	start := -1
	for i, r := range s {
		if r >= '0' && r <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			n, err := strconv.Atoi(s[start:i])
			return n, err == nil
		}
	}
	if start >= 0 {
		n, err := strconv.Atoi(s[start:])
		return n, err == nil
	}
	return 0, false
}

func intPtr(n int) *int { return &n }
