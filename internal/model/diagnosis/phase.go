package diagnosis

// Phase mirrors the conversation phase the browser flow tracks. It is always
// derived from the transcript, never stored.
type Phase string

const (
	PhaseInitial             Phase = "initial"
	PhaseAskingQuestions     Phase = "asking-questions"
	PhaseMoreQuestionsPrompt Phase = "more-questions-prompt"
	PhaseMoreQuestionsCount  Phase = "more-questions-count"
	PhaseAskingAdditional    Phase = "asking-additional"
	PhaseComplete            Phase = "complete"
)

// Terminal reports whether no further question follows this phase.
func (p Phase) Terminal() bool {
	return p == PhaseComplete
}
