package diagnosis

import "strings"

const (
	// InitialMaxQuestions is the size of the first round of follow-up questions.
	InitialMaxQuestions = 5
	// MaxTotalFollowUps caps the number of follow-ups a patient can request.
	MaxTotalFollowUps = 15

	MoreFollowUpsQuestion   = "Would you like more follow-up questions?"
	AdditionalCountQuestion = "How many additional follow-up questions would you like (enter a number)?"

	// RequestedAdditionalFollowUpsKey marks the pseudo-answer that carries the
	// question budget to the inference service.
	RequestedAdditionalFollowUpsKey = "RequestedAdditionalFollowUps"

	AnswerSkipped         = "Skipped"
	AnswerPrefersNotToSay = "Prefers not to answer"
	AnswerYes             = "Yes"
	AnswerNo              = "No"
)

// FollowUpAnswer records one question/answer exchange.
type FollowUpAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// PatientProfile holds the optional demographic and vitals fields. Values are
// passed through as reported; none of them is range checked.
type PatientProfile struct {
	Age           *int     `json:"age,omitempty"`
	Gender        string   `json:"gender,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	BloodPressure string   `json:"bloodPressure,omitempty"`
	HeartRate     *int     `json:"heartRate,omitempty"`
}

// SymptomRequest is the full conversation state. The client resubmits it on
// every call; the server keeps nothing between calls.
type SymptomRequest struct {
	Symptom string `json:"symptom" validate:"notblank"`
	PatientProfile
	FollowUpAnswers  []FollowUpAnswer `json:"followUpAnswers,omitempty"`
	SkippedQuestions []string         `json:"skippedQuestions,omitempty"`
}

// Clone returns a deep copy that can be extended without touching the original.
func (r SymptomRequest) Clone() SymptomRequest {
	out := r
	out.PatientProfile = r.PatientProfile.clone()
	if r.FollowUpAnswers != nil {
		out.FollowUpAnswers = append([]FollowUpAnswer(nil), r.FollowUpAnswers...)
	}
	if r.SkippedQuestions != nil {
		out.SkippedQuestions = append([]string(nil), r.SkippedQuestions...)
	}
	return out
}

// DiagnosisRequest feeds the terminal analysis step.
type DiagnosisRequest struct {
	Symptom string `json:"symptom" validate:"notblank"`
	PatientProfile
	FollowUpAnswers []FollowUpAnswer `json:"followUpAnswers,omitempty"`
}

func (p PatientProfile) clone() PatientProfile {
	out := p
	if p.Age != nil {
		v := *p.Age
		out.Age = &v
	}
	if p.Temperature != nil {
		v := *p.Temperature
		out.Temperature = &v
	}
	if p.HeartRate != nil {
		v := *p.HeartRate
		out.HeartRate = &v
	}
	return out
}

// IsAnswered reports whether an answer counts toward question thresholds.
// Empty answers and the skip/decline sentinels never count.
func IsAnswered(a FollowUpAnswer) bool {
	answer := strings.TrimSpace(a.Answer)
	if answer == "" {
		return false
	}
	if strings.EqualFold(answer, AnswerSkipped) || strings.EqualFold(answer, AnswerPrefersNotToSay) {
		return false
	}
	return true
}

// Answered filters answers down to the ones that count, keeping their order.
func Answered(answers []FollowUpAnswer) []FollowUpAnswer {
	out := make([]FollowUpAnswer, 0, len(answers))
	for _, a := range answers {
		if IsAnswered(a) {
			out = append(out, a)
		}
	}
	return out
}

// FindAnswer returns the first answer whose question matches, ignoring case
// and surrounding whitespace.
func FindAnswer(answers []FollowUpAnswer, question string) (FollowUpAnswer, bool) {
	want := strings.TrimSpace(question)
	for _, a := range answers {
		if strings.EqualFold(strings.TrimSpace(a.Question), want) {
			return a, true
		}
	}
	return FollowUpAnswer{}, false
}

// IsControlQuestion reports whether the question is one of the two gates or
// the budget hint, i.e. not a clinical follow-up.
func IsControlQuestion(question string) bool {
	q := strings.TrimSpace(question)
	return strings.EqualFold(q, MoreFollowUpsQuestion) ||
		strings.EqualFold(q, AdditionalCountQuestion) ||
		strings.EqualFold(q, RequestedAdditionalFollowUpsKey)
}

// fahrenheitFloor is above any plausible Celsius body temperature.
const fahrenheitFloor = 50.0

// CelsiusOf reads a reported body temperature as Celsius, converting values
// that can only be Fahrenheit.
func CelsiusOf(temperature float64) float64 {
	if temperature >= fahrenheitFloor {
		return (temperature - 32) * 5 / 9
	}
	return temperature
}

// WithoutBudgetHint returns the answers minus any budget pseudo-answers. The
// input slice is returned unchanged when it holds none.
func WithoutBudgetHint(answers []FollowUpAnswer) []FollowUpAnswer {
	found := false
	for _, a := range answers {
		if isBudgetHint(a.Question) {
			found = true
			break
		}
	}
	if !found {
		return answers
	}

	out := make([]FollowUpAnswer, 0, len(answers))
	for _, a := range answers {
		if !isBudgetHint(a.Question) {
			out = append(out, a)
		}
	}
	return out
}

func isBudgetHint(question string) bool {
	return strings.EqualFold(strings.TrimSpace(question), RequestedAdditionalFollowUpsKey)
}
