package diagnosis

import (
	"strconv"
	"strings"

	model "github.com/zhouzirui/sympcheck/backend/internal/model/diagnosis"
)

// Action is what the controller does next for a transcript.
type Action int

const (
	// ActionDelegate hands the (possibly extended) request to the inference service.
	ActionDelegate Action = iota
	// ActionAskControl asks one of the two fixed control questions.
	ActionAskControl
	// ActionSummarize ends the conversation with a controller-built summary.
	ActionSummarize
)

func (a Action) String() string {
	switch a {
	case ActionDelegate:
		return "delegate"
	case ActionAskControl:
		return "ask-control"
	case ActionSummarize:
		return "summarize"
	default:
		return "unknown"
	}
}

// Limits bounds the number of follow-up questions.
type Limits struct {
	InitialQuestions int
	MaxTotal         int
}

// DefaultLimits returns the standard five-question round capped at fifteen.
func DefaultLimits() Limits {
	return Limits{InitialQuestions: model.InitialMaxQuestions, MaxTotal: model.MaxTotalFollowUps}
}

func (l Limits) normalized() Limits {
	if l.InitialQuestions <= 0 {
		l.InitialQuestions = model.InitialMaxQuestions
	}
	if l.MaxTotal < l.InitialQuestions {
		l.MaxTotal = l.InitialQuestions
	}
	return l
}

// Decision is the position of a transcript in the conversation.
type Decision struct {
	Phase    model.Phase
	Action   Action
	Answered []model.FollowUpAnswer

	// ActionAskControl
	Question string
	Options  []string

	// ActionSummarize
	Summary string

	// PhaseAskingAdditional: the question budget sent to inference.
	Total int
}

// Decide rebuilds the conversation position from the transcript alone. It is
// pure: the same request always yields the same decision.
func Decide(req model.SymptomRequest, limits Limits) Decision {
	limits = limits.normalized()
	answered := model.Answered(req.FollowUpAnswers)

	if len(answered) < limits.InitialQuestions {
		phase := model.PhaseAskingQuestions
		if len(answered) == 0 {
			phase = model.PhaseInitial
		}
		return Decision{Phase: phase, Action: ActionDelegate, Answered: answered}
	}

	// the gates are looked up in the full transcript: a skipped or empty gate
	// answer is still an answer, and it is not "yes"
	more, ok := model.FindAnswer(req.FollowUpAnswers, model.MoreFollowUpsQuestion)
	if !ok {
		return Decision{
			Phase:    model.PhaseMoreQuestionsPrompt,
			Action:   ActionAskControl,
			Answered: answered,
			Question: model.MoreFollowUpsQuestion,
			Options:  []string{model.AnswerYes, model.AnswerNo},
		}
	}
	if !strings.EqualFold(strings.TrimSpace(more.Answer), model.AnswerYes) {
		return Decision{
			Phase:    model.PhaseComplete,
			Action:   ActionSummarize,
			Answered: answered,
			Summary:  model.SummaryFollowUpFinished,
		}
	}

	count, ok := model.FindAnswer(req.FollowUpAnswers, model.AdditionalCountQuestion)
	if !ok {
		return Decision{
			Phase:    model.PhaseMoreQuestionsCount,
			Action:   ActionAskControl,
			Answered: answered,
			Question: model.AdditionalCountQuestion,
		}
	}

	n, err := strconv.Atoi(strings.TrimSpace(count.Answer))
	if err != nil || n <= 0 {
		return Decision{
			Phase:    model.PhaseComplete,
			Action:   ActionSummarize,
			Answered: answered,
			Summary:  model.SummaryNoAdditionalFollowUps,
		}
	}

	total := limits.InitialQuestions + n
	if total > limits.MaxTotal || total < 0 {
		total = limits.MaxTotal
	}
	return Decision{
		Phase:    model.PhaseAskingAdditional,
		Action:   ActionDelegate,
		Answered: answered,
		Total:    total,
	}
}

// DerivePhase is the phase a client should display for the transcript.
func DerivePhase(req model.SymptomRequest, limits Limits) model.Phase {
	return Decide(req, limits).Phase
}

// WithBudgetHint returns a copy of req with the budget pseudo-answer appended.
// Any hint already in the transcript is dropped, so the server total is the
// only one the inference service sees.
func WithBudgetHint(req model.SymptomRequest, total int) model.SymptomRequest {
	out := req.Clone()
	out.FollowUpAnswers = append(model.WithoutBudgetHint(out.FollowUpAnswers), model.FollowUpAnswer{
		Question: model.RequestedAdditionalFollowUpsKey,
		Answer:   strconv.Itoa(total),
	})
	return out
}
