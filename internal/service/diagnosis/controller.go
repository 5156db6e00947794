package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	model "github.com/zhouzirui/sympcheck/backend/internal/model/diagnosis"
)

// ErrInferenceUnavailable is returned when no inference backend is configured.
var ErrInferenceUnavailable = errors.New("inference service unavailable")

// Inference generates question, summary and diagnostic content. The controller
// never produces clinical text of its own.
type Inference interface {
	GetInteractiveResponse(ctx context.Context, req model.SymptomRequest) (model.InteractiveResponse, error)
	DiagnoseSymptoms(ctx context.Context, req model.DiagnosisRequest) ([]model.DiagnosisCondition, error)
	GetConditionDetails(ctx context.Context, id string) (model.ConditionDetailResponse, error)
}

// DetailCache stores condition details between calls.
type DetailCache interface {
	Get(ctx context.Context, id string) (model.ConditionDetailResponse, bool, error)
	Set(ctx context.Context, detail model.ConditionDetailResponse, ttl time.Duration) error
}

// Config tunes the controller.
type Config struct {
	Limits   Limits
	CacheTTL time.Duration
}

// Controller runs the interactive diagnosis conversation.
type Controller struct {
	inference Inference
	cache     DetailCache
	limits    Limits
	cacheTTL  time.Duration
	log       *zap.Logger
}

// NewController builds a controller. cache and logger may be nil.
func NewController(inference Inference, cache DetailCache, cfg Config, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Controller{
		inference: inference,
		cache:     cache,
		limits:    cfg.Limits.normalized(),
		cacheTTL:  ttl,
		log:       logger,
	}
}

// Limits returns the question limits in effect.
func (c *Controller) Limits() Limits {
	return c.limits
}

// Next returns the next step of the conversation for the submitted transcript.
// On failure the returned response is the matching error variant.
func (c *Controller) Next(ctx context.Context, req model.SymptomRequest) (model.InteractiveResponse, error) {
	if err := validateStruct(req); err != nil {
		return model.NewError(model.CodeValidation, err.Error()), err
	}

	// client-supplied budget hints are ignored
	if hints := model.WithoutBudgetHint(req.FollowUpAnswers); len(hints) != len(req.FollowUpAnswers) {
		req = req.Clone()
		req.FollowUpAnswers = hints
	}

	decision := Decide(req, c.limits)
	c.log.Debug("diagnosis.Controller.Next decided",
		zap.String("phase", string(decision.Phase)),
		zap.String("action", decision.Action.String()),
		zap.Int("answered", len(decision.Answered)),
	)

	switch decision.Action {
	case ActionAskControl:
		return model.NewQuestion(decision.Question, decision.Options...), nil
	case ActionSummarize:
		return model.NewSummary(req.Symptom, decision.Answered, decision.Summary), nil
	}

	outbound := req
	if decision.Phase == model.PhaseAskingAdditional {
		outbound = WithBudgetHint(req, decision.Total)
	}

	if c.inference == nil {
		return model.NewError(model.CodeUnavailable, "inference service unavailable"), ErrInferenceUnavailable
	}

	resp, err := c.inference.GetInteractiveResponse(ctx, outbound)
	if err != nil {
		return c.inferenceFailure("diagnosis.Controller.Next", decision, err)
	}
	return resp, nil
}

// Analyze runs the terminal analysis and returns conditions ranked by confidence.
func (c *Controller) Analyze(ctx context.Context, req model.DiagnosisRequest) ([]model.DiagnosisCondition, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if c.inference == nil {
		return nil, ErrInferenceUnavailable
	}

	conditions, err := c.inference.DiagnoseSymptoms(ctx, req)
	if err != nil {
		if errors.Is(err, model.ErrRateLimited) {
			c.log.Warn("diagnosis.Controller.Analyze rate limited", zap.Error(err))
			return nil, err
		}
		c.log.Error("diagnosis.Controller.Analyze inference failed", zap.Error(err))
		return nil, fmt.Errorf("diagnose symptoms: %w", err)
	}

	return rankConditions(conditions), nil
}

// ConditionDetails returns the detail view of a condition, served from the
// cache when possible. Cache failures fall through to inference.
func (c *Controller) ConditionDetails(ctx context.Context, id string) (model.ConditionDetailResponse, error) {
	if err := validateConditionID(id); err != nil {
		return model.ConditionDetailResponse{}, err
	}
	id = strings.TrimSpace(id)

	if c.cache != nil {
		detail, ok, err := c.cache.Get(ctx, id)
		switch {
		case err != nil:
			c.log.Warn("diagnosis.Controller.ConditionDetails cache get failed", zap.String("condition_id", id), zap.Error(err))
		case ok:
			return detail, nil
		}
	}

	if c.inference == nil {
		return model.ConditionDetailResponse{}, ErrInferenceUnavailable
	}

	detail, err := c.inference.GetConditionDetails(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrConditionNotFound):
			return model.ConditionDetailResponse{}, err
		case errors.Is(err, model.ErrRateLimited):
			c.log.Warn("diagnosis.Controller.ConditionDetails rate limited", zap.String("condition_id", id), zap.Error(err))
			return model.ConditionDetailResponse{}, err
		}
		c.log.Error("diagnosis.Controller.ConditionDetails inference failed", zap.String("condition_id", id), zap.Error(err))
		return model.ConditionDetailResponse{}, fmt.Errorf("condition details: %w", err)
	}
	if detail.ID == "" {
		detail.ID = id
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, detail, c.cacheTTL); err != nil {
			c.log.Warn("diagnosis.Controller.ConditionDetails cache set failed", zap.String("condition_id", id), zap.Error(err))
		}
	}
	return detail, nil
}

func (c *Controller) inferenceFailure(op string, decision Decision, err error) (model.InteractiveResponse, error) {
	if errors.Is(err, model.ErrRateLimited) {
		c.log.Warn(op+" rate limited", zap.String("phase", string(decision.Phase)), zap.Error(err))
		return model.NewError(model.CodeRateLimited, "too many requests, please retry shortly"), err
	}
	c.log.Error(op+" inference failed",
		zap.String("phase", string(decision.Phase)),
		zap.Int("answered", len(decision.Answered)),
		zap.Error(err),
	)
	return model.NewError(model.CodeInternal, "an internal error occurred"), fmt.Errorf("interactive response: %w", err)
}

// rankConditions orders by confidence, highest first; ties break on name.
func rankConditions(in []model.DiagnosisCondition) []model.DiagnosisCondition {
	out := make([]model.DiagnosisCondition, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Name < out[j].Name
	})
	return out
}
