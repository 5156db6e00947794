package diagnosis

import "fmt"

// ResponseType discriminates the InteractiveResponse variants.
type ResponseType string

const (
	TypeQuestion ResponseType = "question"
	TypeSummary  ResponseType = "summary"
	TypeError    ResponseType = "error"
)

// Error codes carried by the error variant.
const (
	CodeValidation  = "validation_failed"
	CodeRateLimited = "rate_limited"
	CodeInternal    = "internal_error"
	CodeUnavailable = "inference_unavailable"
)

const (
	SummaryFollowUpFinished      = "Follow-up finished."
	SummaryNoAdditionalFollowUps = "No additional follow-ups requested."
)

// InteractiveResponse is a tagged union: Type selects which fields are set.
// Use the New* constructors so only one variant is ever populated.
type InteractiveResponse struct {
	Type ResponseType `json:"type"`

	// question
	Question string   `json:"question,omitempty"`
	Options  []string `json:"options,omitempty"`

	// summary
	Symptom string           `json:"symptom,omitempty"`
	Answers []FollowUpAnswer `json:"answers,omitempty"`
	Summary string           `json:"summary,omitempty"`

	// error
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

func NewQuestion(question string, options ...string) InteractiveResponse {
	resp := InteractiveResponse{Type: TypeQuestion, Question: question}
	if len(options) > 0 {
		resp.Options = append([]string(nil), options...)
	}
	return resp
}

func NewSummary(symptom string, answers []FollowUpAnswer, summary string) InteractiveResponse {
	return InteractiveResponse{
		Type:    TypeSummary,
		Symptom: symptom,
		Answers: append([]FollowUpAnswer(nil), answers...),
		Summary: summary,
	}
}

func NewError(code, message string) InteractiveResponse {
	return InteractiveResponse{Type: TypeError, Code: code, Error: message}
}

// Validate checks that exactly the fields of the tagged variant are set.
func (r InteractiveResponse) Validate() error {
	hasQuestion := r.Question != "" || len(r.Options) > 0
	hasSummary := r.Symptom != "" || len(r.Answers) > 0 || r.Summary != ""
	hasError := r.Code != "" || r.Error != ""

	switch r.Type {
	case TypeQuestion:
		if r.Question == "" || hasSummary || hasError {
			return fmt.Errorf("malformed question response")
		}
	case TypeSummary:
		if r.Summary == "" || hasQuestion || hasError {
			return fmt.Errorf("malformed summary response")
		}
	case TypeError:
		if r.Code == "" || hasQuestion || hasSummary {
			return fmt.Errorf("malformed error response")
		}
	default:
		return fmt.Errorf("unknown response type %q", r.Type)
	}
	return nil
}
