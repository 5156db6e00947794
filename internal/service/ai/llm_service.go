package ai

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/sympcheck/backend/internal/analysis/redflag"
	"github.com/zhouzirui/sympcheck/backend/internal/config"
	"github.com/zhouzirui/sympcheck/backend/internal/model/diagnosis"
)

// Options tunes the inference service.
type Options struct {
	// InitialQuestions is the question budget when no budget hint is present.
	InitialQuestions int
	// MaxTotal caps any budget read from a hint.
	MaxTotal int
}

// Service implements the diagnosis inference contract on top of an eino chain.
type Service struct {
	chain   compose.Runnable[map[string]any, *schema.Message]
	prompts *PromptManager
	opts    Options
	log     *zap.Logger
}

// NewService creates the Ark chat model from cfg and wraps it.
func NewService(ctx context.Context, cfg config.AIConfig, opts Options, logger *zap.Logger) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel, opts, logger)
}

// NewServiceWithModel wires an already constructed chat model.
func NewServiceWithModel(ctx context.Context, chatModel model.BaseChatModel, opts Options, logger *zap.Logger) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.InitialQuestions <= 0 {
		opts.InitialQuestions = diagnosis.InitialMaxQuestions
	}
	if opts.MaxTotal <= 0 {
		opts.MaxTotal = diagnosis.MaxTotalFollowUps
	}
	if opts.MaxTotal < opts.InitialQuestions {
		opts.MaxTotal = opts.InitialQuestions
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile diagnosis chain: %w", err)
	}

	return &Service{
		chain:   runnable,
		prompts: NewPromptManager(),
		opts:    opts,
		log:     logger,
	}, nil
}

// GetInteractiveResponse asks the model for the next follow-up question, or
// for the summary once the question budget is used up.
func (s *Service) GetInteractiveResponse(ctx context.Context, req diagnosis.SymptomRequest) (diagnosis.InteractiveResponse, error) {
	budget := budgetFromHint(req.FollowUpAnswers, s.opts.InitialQuestions, s.opts.MaxTotal)
	clinical := clinicalAnswers(req.FollowUpAnswers)
	flags := redflag.Analyze(req.Symptom, req.FollowUpAnswers, req.Temperature)

	if len(clinical) >= budget {
		return s.summarize(ctx, req, clinical, flags)
	}

	content, err := s.invoke(ctx, "interactive", map[string]any{
		"system": s.prompts.System(TemplateInteractive, flags),
		"query":  s.prompts.InteractiveQuery(req, len(clinical), budget),
	})
	if err != nil {
		return diagnosis.InteractiveResponse{}, err
	}

	payload, err := parseInteractiveOutput(content)
	if err != nil {
		return diagnosis.InteractiveResponse{}, fmt.Errorf("parse interactive output: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(payload.Type)) {
	case string(diagnosis.TypeSummary):
		summary := strings.TrimSpace(payload.Summary)
		if summary == "" {
			return diagnosis.InteractiveResponse{}, fmt.Errorf("model returned an empty summary")
		}
		return diagnosis.NewSummary(req.Symptom, clinicalAndGates(req.FollowUpAnswers), summary), nil
	default:
		question := strings.TrimSpace(payload.Question)
		if question == "" {
			return diagnosis.InteractiveResponse{}, fmt.Errorf("model returned an empty question")
		}
		return diagnosis.NewQuestion(question, cleanOptions(payload.Options)...), nil
	}
}

func (s *Service) summarize(ctx context.Context, req diagnosis.SymptomRequest, clinical []diagnosis.FollowUpAnswer, flags redflag.Assessment) (diagnosis.InteractiveResponse, error) {
	content, err := s.invoke(ctx, "summary", map[string]any{
		"system": s.prompts.System(TemplateSummary, flags),
		"query":  s.prompts.SummaryQuery(req),
	})
	if err != nil {
		return diagnosis.InteractiveResponse{}, err
	}

	summary := strings.TrimSpace(content)
	if payload, err := parseInteractiveOutput(content); err == nil && strings.TrimSpace(payload.Summary) != "" {
		summary = strings.TrimSpace(payload.Summary)
	}
	if summary == "" {
		return diagnosis.InteractiveResponse{}, fmt.Errorf("model returned an empty summary")
	}

	s.log.Debug("ai.Service.summarize budget reached", zap.Int("answered", len(clinical)))
	return diagnosis.NewSummary(req.Symptom, clinicalAndGates(req.FollowUpAnswers), summary), nil
}

// DiagnoseSymptoms asks the model for candidate conditions.
func (s *Service) DiagnoseSymptoms(ctx context.Context, req diagnosis.DiagnosisRequest) ([]diagnosis.DiagnosisCondition, error) {
	flags := redflag.Analyze(req.Symptom, req.FollowUpAnswers, req.Temperature)

	content, err := s.invoke(ctx, "diagnose", map[string]any{
		"system": s.prompts.System(TemplateDiagnose, flags),
		"query":  s.prompts.DiagnoseQuery(req),
	})
	if err != nil {
		return nil, err
	}

	conditions, err := parseConditionsOutput(content)
	if err != nil {
		return nil, fmt.Errorf("parse diagnosis output: %w", err)
	}
	return conditions, nil
}

// GetConditionDetails asks the model to describe the condition with the given id.
func (s *Service) GetConditionDetails(ctx context.Context, id string) (diagnosis.ConditionDetailResponse, error) {
	content, err := s.invoke(ctx, "condition", map[string]any{
		"system": s.prompts.System(TemplateCondition, redflag.Assessment{}),
		"query":  s.prompts.ConditionQuery(id),
	})
	if err != nil {
		return diagnosis.ConditionDetailResponse{}, err
	}

	detail, err := parseConditionDetailOutput(content, id)
	if err != nil {
		return diagnosis.ConditionDetailResponse{}, err
	}
	return detail, nil
}

func (s *Service) invoke(ctx context.Context, op string, input map[string]any) (string, error) {
	msg, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", classifyError(fmt.Errorf("failed to run %s chain: %w", op, err))
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", fmt.Errorf("%s chain returned empty content", op)
	}

	s.log.Debug("ai.Service.invoke completed", zap.String("op", op), zap.Int("length", len(msg.Content)))
	return msg.Content, nil
}

// budgetFromHint reads the question budget from the last pseudo-answer, if
// present, bounded to [fallback, limit].
func budgetFromHint(answers []diagnosis.FollowUpAnswer, fallback, limit int) int {
	total := fallback
	for i := len(answers) - 1; i >= 0; i-- {
		if !strings.EqualFold(strings.TrimSpace(answers[i].Question), diagnosis.RequestedAdditionalFollowUpsKey) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(answers[i].Answer))
		if err == nil && n > fallback {
			total = n
		}
		break
	}
	if total > limit {
		total = limit
	}
	return total
}

// clinicalAnswers are the answered follow-ups minus the control exchanges.
func clinicalAnswers(answers []diagnosis.FollowUpAnswer) []diagnosis.FollowUpAnswer {
	out := make([]diagnosis.FollowUpAnswer, 0, len(answers))
	for _, a := range diagnosis.Answered(answers) {
		if diagnosis.IsControlQuestion(a.Question) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// clinicalAndGates is the answered list shown back to the patient: everything
// the patient answered, without the budget pseudo-answer.
func clinicalAndGates(answers []diagnosis.FollowUpAnswer) []diagnosis.FollowUpAnswer {
	out := make([]diagnosis.FollowUpAnswer, 0, len(answers))
	for _, a := range diagnosis.Answered(answers) {
		if strings.EqualFold(strings.TrimSpace(a.Question), diagnosis.RequestedAdditionalFollowUpsKey) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func cleanOptions(options []string) []string {
	out := make([]string, 0, len(options))
	seen := make(map[string]struct{}, len(options))
	for _, o := range options {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		key := strings.ToLower(o)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, o)
	}
	return out
}
