package survey

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/a7isss/hana-voice-saas/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRouteTurn(t *testing.T) {
	e := NewEngine(0.8, testLogger())

	tests := []struct {
		name string
		text string
		want string
	}{
		{"pain keyword", "أعاني من ألم في ظهري", "درجة الألم من ٠ إلى ١٠؟ (٠ لا ألم و ١٠ ألم شديد)"},
		{"medication keyword", "أتناول دواء الضغط", "ما هي الأدوية التي تتناولها حالياً؟ يرجى ذكر الأسماء والجرعات إن أمكن"},
		{"symptom keyword", "عندي أعراض غريبة", "يرجى وصف الأعراض التي تشعر بها بتفصيل أكثر لمساعدتك بشكل أفضل"},
		{"appointment keyword", "أريد موعد قريب", "هل تحتاج إلى جدولة موعد مع الطبيب؟ يمكنني مساعدتك في ذلك"},
		{"pain beats appointment", "ألم شديد أحتاج طبيب", "درجة الألم من ٠ إلى ١٠؟ (٠ لا ألم و ١٠ ألم شديد)"},
		{"spoken zero", "الدرجة صفر تقريباً", "فهمت، لا تشعر بأي ألم. شكراً لك. لديك أسئلة أخرى؟"},
		{"spoken mild", "أظن ثلاثة فقط", "فهمت درجة الألم الخفيفة. إذا استمرت الأعراض، يرجى استشارة الطبيب"},
		{"spoken moderate", "تقريباً خمسة حالياً", "درجة الألم متوسطة. يُنصح بزيارة الطبيب لتقييم الحالة"},
		{"spoken severe", "عشرة من عشرة", "ألم شديد. يرجى طلب المساعدة الطبية فوراً"},
		{"short input", "شكراً", "يرجى التفصيل أكثر في إجابتك لمساعدتك بشكل أفضل"},
		{"generic fallback", "الحمد لله كل شيء على ما يرام تماماً", "شكراً لمعلوماتك. هل يمكنك وصف حالتك الصحية بتفصيل أكثر؟"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.RouteTurn(tt.text); got != tt.want {
				t.Errorf("RouteTurn(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestNormalizeResponse_YesNo(t *testing.T) {
	tests := []struct {
		text      string
		wantText  string
		wantValue int
	}{
		{"نعم", "نعم", ValueYes},
		{"ايوه طبعا", "نعم", ValueYes},
		{"أكيد موافق", "نعم", ValueYes},
		{"لا", "لا", ValueNo},
		{"مستحيل ابدا", "لا", ValueNo},
		{"ربما", "غير متأكد", ValueUncertain},
		{"مش عارف والله", "غير متأكد", ValueUncertain},
		// An utterance with both polarities resolves affirmative
		// because affirmative patterns are checked first.
		{"نعم لا", "نعم", ValueYes},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			text, value := NormalizeResponse(tt.text, models.QuestionYesNo)
			if text != tt.wantText {
				t.Errorf("text = %q, want %q", text, tt.wantText)
			}
			if value == nil || *value != tt.wantValue {
				t.Errorf("value = %v, want %d", value, tt.wantValue)
			}
		})
	}
}

func TestNormalizeResponse_Unrecognized(t *testing.T) {
	text, value := NormalizeResponse("aeiou", models.QuestionYesNo)
	if value != nil {
		t.Errorf("value = %v, want nil", *value)
	}
	if text != "aeiou" {
		t.Errorf("text = %q, want original preserved", text)
	}
}

func TestNormalizeResponse_Rating(t *testing.T) {
	tests := []struct {
		text      string
		wantValue int
		wantNil   bool
	}{
		{"3", 3, false},
		{"أعطيها 5 من 5", 5, false},
		{"التقييم ٤", 4, false},   // Arabic-Indic digit
		{"درجة ۲ فقط", 2, false},  // extended Arabic-Indic digit
		{"9", 0, true},            // out of the 1..5 scale
		{"0", 0, true},
		{"بدون أرقام", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			_, value := NormalizeResponse(tt.text, models.QuestionRating)
			if tt.wantNil {
				if value != nil {
					t.Errorf("value = %d, want nil", *value)
				}
				return
			}
			if value == nil || *value != tt.wantValue {
				t.Errorf("value = %v, want %d", value, tt.wantValue)
			}
		})
	}
}

func TestTrackResponse(t *testing.T) {
	e := NewEngine(0.8, testLogger())
	now := time.Now()

	sess := &models.Session{
		ID: "s-1",
		Survey: models.SurveyState{
			TotalQuestions: 2,
			Current: &models.Question{
				ID:      "q-1",
				Order:   1,
				Type:    models.QuestionYesNo,
				AskedAt: now.Add(-3 * time.Second),
			},
		},
	}

	e.TrackResponse(sess, "نعم", 0.91, now)

	if len(sess.Survey.Responses) != 1 {
		t.Fatalf("responses = %d, want 1", len(sess.Survey.Responses))
	}
	got := sess.Survey.Responses[0]
	if got.QuestionID != "q-1" || got.QuestionOrder != 1 {
		t.Errorf("question attribution = %q/%d", got.QuestionID, got.QuestionOrder)
	}
	if got.ResponseText != "نعم" || got.ResponseValue == nil || *got.ResponseValue != ValueYes {
		t.Errorf("normalized = %q/%v", got.ResponseText, got.ResponseValue)
	}
	if got.Confidence != 0.91 {
		t.Errorf("confidence = %v, want 0.91", got.Confidence)
	}
	if got.ResponseTime < 2.9 || got.ResponseTime > 3.1 {
		t.Errorf("response time = %v, want ~3s", got.ResponseTime)
	}
}

func TestTrackResponse_NoCurrentQuestion(t *testing.T) {
	e := NewEngine(0.8, testLogger())
	sess := &models.Session{ID: "s-1"}

	e.TrackResponse(sess, "نعم", 0.9, time.Now())

	if len(sess.Survey.Responses) != 0 {
		t.Errorf("responses = %d, want dropped", len(sess.Survey.Responses))
	}
}

func TestTrackResponse_DefaultConfidence(t *testing.T) {
	e := NewEngine(0.8, testLogger())
	sess := &models.Session{
		ID: "s-1",
		Survey: models.SurveyState{
			Current: &models.Question{ID: "q-1", Order: 1, Type: models.QuestionYesNo},
		},
	}

	e.TrackResponse(sess, "لا", 0, time.Now())

	if got := sess.Survey.Responses[0].Confidence; got != 0.8 {
		t.Errorf("confidence = %v, want default 0.8", got)
	}
}

func TestIsComplete(t *testing.T) {
	e := NewEngine(0.8, testLogger())
	sess := &models.Session{Survey: models.SurveyState{TotalQuestions: 2}}

	if e.IsComplete(sess) {
		t.Error("complete with no responses")
	}
	sess.Survey.Responses = make([]models.ResponseEntry, 2)
	if !e.IsComplete(sess) {
		t.Error("not complete with all questions answered")
	}

	// No configured question count never completes.
	empty := &models.Session{}
	empty.Survey.Responses = make([]models.ResponseEntry, 3)
	if e.IsComplete(empty) {
		t.Error("complete with zero configured questions")
	}
}

func TestFoldDigits(t *testing.T) {
	if got := foldDigits("٠١٢٣٤٥٦٧٨٩"); got != "0123456789" {
		t.Errorf("foldDigits = %q", got)
	}
	if got := foldDigits("۰۹ نص"); !strings.HasPrefix(got, "09") {
		t.Errorf("foldDigits = %q", got)
	}
}
