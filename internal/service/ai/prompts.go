package ai

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/zhouzirui/sympcheck/backend/internal/analysis/redflag"
	"github.com/zhouzirui/sympcheck/backend/internal/model/diagnosis"
)

// TemplateName identifies one of the diagnosis prompt templates.
type TemplateName string

const (
	TemplateInteractive TemplateName = "interactive"
	TemplateSummary     TemplateName = "summary"
	TemplateDiagnose    TemplateName = "diagnose"
	TemplateCondition   TemplateName = "condition"
)

// PromptTemplate holds the system instructions and output rules for one call.
type PromptTemplate struct {
	SystemPrompt string
	OutputRules  []string
}

// PromptManager builds system and user prompts for the diagnosis calls.
type PromptManager struct {
	templates map[TemplateName]*PromptTemplate
}

// NewPromptManager creates a prompt manager with the default templates.
func NewPromptManager() *PromptManager {
	pm := &PromptManager{templates: make(map[TemplateName]*PromptTemplate)}
	pm.loadDefaultTemplates()
	return pm
}

// Template returns the template registered under name.
func (pm *PromptManager) Template(name TemplateName) (*PromptTemplate, error) {
	tpl, ok := pm.templates[name]
	if !ok {
		return nil, fmt.Errorf("prompt template not found: %s", name)
	}
	return tpl, nil
}

// System renders the system prompt, appending red-flag guidance when the
// screen matched anything.
func (pm *PromptManager) System(name TemplateName, flags redflag.Assessment) string {
	tpl, err := pm.Template(name)
	if err != nil {
		return baseSystemPrompt
	}

	var b strings.Builder
	b.WriteString(tpl.SystemPrompt)
	if len(tpl.OutputRules) > 0 {
		b.WriteString("\n\nOutput rules:\n- ")
		b.WriteString(strings.Join(tpl.OutputRules, "\n- "))
	}
	if guidance := redFlagGuidance(flags); guidance != "" {
		b.WriteString("\n\n")
		b.WriteString(guidance)
	}
	return b.String()
}

// InteractiveQuery renders the user turn for the next-question call.
func (pm *PromptManager) InteractiveQuery(req diagnosis.SymptomRequest, answered, budget int) string {
	var b strings.Builder
	writeCase(&b, req.Symptom, req.PatientProfile, req.FollowUpAnswers)
	if len(req.SkippedQuestions) > 0 {
		fmt.Fprintf(&b, "Questions the patient chose not to answer (do not repeat them): %s\n", encodeJSON(req.SkippedQuestions))
	}
	fmt.Fprintf(&b, "Questions answered so far: %d of %d.\n", answered, budget)
	b.WriteString("Ask the single most useful next question.")
	return b.String()
}

// SummaryQuery renders the user turn for the summary call.
func (pm *PromptManager) SummaryQuery(req diagnosis.SymptomRequest) string {
	var b strings.Builder
	writeCase(&b, req.Symptom, req.PatientProfile, req.FollowUpAnswers)
	b.WriteString("Write a short clinical summary of this conversation for the patient.")
	return b.String()
}

// DiagnoseQuery renders the user turn for the condition-ranking call.
func (pm *PromptManager) DiagnoseQuery(req diagnosis.DiagnosisRequest) string {
	var b strings.Builder
	writeCase(&b, req.Symptom, req.PatientProfile, req.FollowUpAnswers)
	b.WriteString("List the most likely conditions.")
	return b.String()
}

// ConditionQuery renders the user turn for the condition-detail call.
func (pm *PromptManager) ConditionQuery(id string) string {
	return fmt.Sprintf("Condition identifier: %s\nDescribe this condition for a patient.", id)
}

// promptAnswer is the shape answers take inside prompts.
type promptAnswer struct {
	Question string `json:"Question"`
	Answer   string `json:"Answer"`
}

func writeCase(b *strings.Builder, symptom string, profile diagnosis.PatientProfile, answers []diagnosis.FollowUpAnswer) {
	fmt.Fprintf(b, "Primary symptom: %s\n", strings.TrimSpace(symptom))
	if line := describeProfile(profile); line != "" {
		fmt.Fprintf(b, "Patient: %s\n", line)
	}

	rows := make([]promptAnswer, 0, len(answers))
	for _, a := range diagnosis.Answered(answers) {
		rows = append(rows, promptAnswer{Question: a.Question, Answer: a.Answer})
	}
	fmt.Fprintf(b, "Follow-up answers: %s\n", encodeJSON(rows))
}

func describeProfile(p diagnosis.PatientProfile) string {
	parts := make([]string, 0, 5)
	if p.Age != nil {
		parts = append(parts, fmt.Sprintf("age %d", *p.Age))
	}
	if g := strings.TrimSpace(p.Gender); g != "" {
		parts = append(parts, "gender "+g)
	}
	if p.Temperature != nil {
		parts = append(parts, fmt.Sprintf("temperature %.1f°C", diagnosis.CelsiusOf(*p.Temperature)))
	}
	if bp := strings.TrimSpace(p.BloodPressure); bp != "" {
		parts = append(parts, "blood pressure "+bp)
	}
	if p.HeartRate != nil {
		parts = append(parts, fmt.Sprintf("heart rate %d bpm", *p.HeartRate))
	}
	return strings.Join(parts, ", ")
}

func encodeJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func redFlagGuidance(flags redflag.Assessment) string {
	if !flags.Urgent {
		return ""
	}
	return fmt.Sprintf(`Safety notice: the patient's description matches red-flag categories (%s).
Tell the patient plainly to seek emergency care now, and mark matching conditions as emergencies.`,
		strings.Join(flags.Categories(), ", "))
}

const baseSystemPrompt = `You are a careful clinical triage assistant. You never give a definitive diagnosis and you always encourage professional care when in doubt.`

func (pm *PromptManager) loadDefaultTemplates() {
	pm.templates[TemplateInteractive] = &PromptTemplate{
		SystemPrompt: baseSystemPrompt + `
You interview a patient one question at a time to understand their symptom.`,
		OutputRules: []string{
			`Reply with JSON only: {"type":"question","question":"...","options":["..."]}`,
			"Ask exactly one short question in plain language.",
			"Offer two to six answer options when the question is multiple choice, otherwise an empty list.",
			"Never repeat a question that was already answered or skipped.",
			`If nothing useful remains to ask, reply {"type":"summary","summary":"..."} instead.`,
		},
	}
	pm.templates[TemplateSummary] = &PromptTemplate{
		SystemPrompt: baseSystemPrompt + `
You summarise a finished symptom interview.`,
		OutputRules: []string{
			`Reply with JSON only: {"type":"summary","summary":"..."}`,
			"Keep the summary under 120 words and mention every relevant answer.",
		},
	}
	pm.templates[TemplateDiagnose] = &PromptTemplate{
		SystemPrompt: baseSystemPrompt + `
You rank possible conditions that fit a symptom interview.`,
		OutputRules: []string{
			`Reply with JSON only: {"conditions":[{"name":"...","confidence":0.0,"icdCode":"...","details":"...","physicianNote":"...","reasoning":"...","isEmergency":false}]}`,
			"Return at most five conditions with confidence between 0 and 1.",
			"Set isEmergency to true for anything that needs same-day emergency care.",
		},
	}
	pm.templates[TemplateCondition] = &PromptTemplate{
		SystemPrompt: baseSystemPrompt + `
You explain a medical condition to a patient.`,
		OutputRules: []string{
			`Reply with JSON only: {"found":true,"name":"...","overview":"...","symptoms":["..."],"causes":["..."],"treatments":["..."],"whenToSeekCare":"...","isEmergency":false}`,
			`If the identifier does not name a real condition reply {"found":false}.`,
		},
	}
}
