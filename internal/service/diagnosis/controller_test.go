package diagnosis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/sympcheck/backend/internal/model/diagnosis"
)

type fakeInference struct {
	interactiveCalls []model.SymptomRequest
	interactiveResp  model.InteractiveResponse
	interactiveErr   error

	conditions    []model.DiagnosisCondition
	diagnoseErr   error
	detail        model.ConditionDetailResponse
	detailErr     error
	detailCalls   int
	lastDetailID  string
	lastDiagnosis model.DiagnosisRequest
}

func (f *fakeInference) GetInteractiveResponse(_ context.Context, req model.SymptomRequest) (model.InteractiveResponse, error) {
	f.interactiveCalls = append(f.interactiveCalls, req)
	if f.interactiveErr != nil {
		return model.InteractiveResponse{}, f.interactiveErr
	}
	return f.interactiveResp, nil
}

func (f *fakeInference) DiagnoseSymptoms(_ context.Context, req model.DiagnosisRequest) ([]model.DiagnosisCondition, error) {
	f.lastDiagnosis = req
	return f.conditions, f.diagnoseErr
}

func (f *fakeInference) GetConditionDetails(_ context.Context, id string) (model.ConditionDetailResponse, error) {
	f.detailCalls++
	f.lastDetailID = id
	return f.detail, f.detailErr
}

type fakeCache struct {
	items  map[string]model.ConditionDetailResponse
	getErr error
	sets   int
}

func (c *fakeCache) Get(_ context.Context, id string) (model.ConditionDetailResponse, bool, error) {
	if c.getErr != nil {
		return model.ConditionDetailResponse{}, false, c.getErr
	}
	d, ok := c.items[id]
	return d, ok, nil
}

func (c *fakeCache) Set(_ context.Context, d model.ConditionDetailResponse, _ time.Duration) error {
	if c.items == nil {
		c.items = map[string]model.ConditionDetailResponse{}
	}
	c.items[d.ID] = d
	c.sets++
	return nil
}

func newTestController(inf Inference) *Controller {
	return NewController(inf, nil, Config{Limits: DefaultLimits()}, nil)
}

func TestNextRejectsBlankSymptom(t *testing.T) {
	inf := &fakeInference{}
	ctrl := newTestController(inf)

	for _, symptom := range []string{"", "   "} {
		resp, err := ctrl.Next(context.Background(), model.SymptomRequest{Symptom: symptom})

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrValidation)
		assert.Equal(t, model.TypeError, resp.Type)
		assert.Equal(t, model.CodeValidation, resp.Code)
		assert.Equal(t, "symptom is required", resp.Error)
	}
	assert.Empty(t, inf.interactiveCalls)
}

func TestNextAcceptsAnyReportedVitals(t *testing.T) {
	inf := &fakeInference{interactiveResp: model.NewQuestion("Since when?")}
	age, temp, rate := 400, 101.3, 7

	skipped := make([]model.FollowUpAnswer, 0, 70)
	for i := 0; i < 70; i++ {
		skipped = append(skipped, model.FollowUpAnswer{Question: "Q", Answer: model.AnswerSkipped})
	}

	resp, err := newTestController(inf).Next(context.Background(), model.SymptomRequest{
		Symptom:         "fever",
		PatientProfile:  model.PatientProfile{Age: &age, Temperature: &temp, HeartRate: &rate},
		FollowUpAnswers: skipped,
	})

	require.NoError(t, err)
	assert.Equal(t, model.TypeQuestion, resp.Type)
	assert.Len(t, inf.interactiveCalls, 1)
}

func TestNextDelegatesVerbatimDuringInitialRound(t *testing.T) {
	inf := &fakeInference{interactiveResp: model.NewQuestion("How long have you had it?", "Hours", "Days")}
	ctrl := newTestController(inf)

	req := model.SymptomRequest{Symptom: "cough", FollowUpAnswers: initialRound(3)}
	resp, err := ctrl.Next(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, inf.interactiveResp, resp)
	require.Len(t, inf.interactiveCalls, 1)
	assert.Equal(t, req, inf.interactiveCalls[0])
}

func TestNextPassesThroughInferenceSummary(t *testing.T) {
	inf := &fakeInference{interactiveResp: model.NewSummary("cough", nil, "Likely a cold.")}
	resp, err := newTestController(inf).Next(context.Background(), model.SymptomRequest{Symptom: "cough"})

	require.NoError(t, err)
	assert.Equal(t, model.TypeSummary, resp.Type)
	assert.Equal(t, "Likely a cold.", resp.Summary)
}

func TestNextAsksGateWithoutInference(t *testing.T) {
	inf := &fakeInference{}
	resp, err := newTestController(inf).Next(context.Background(), withAnswers())

	require.NoError(t, err)
	assert.Equal(t, model.NewQuestion(model.MoreFollowUpsQuestion, "Yes", "No"), resp)
	assert.Empty(t, inf.interactiveCalls)
}

func TestNextSummaryEchoesAnsweredList(t *testing.T) {
	req := withAnswers(
		model.FollowUpAnswer{Question: "Extra", Answer: "Skipped"},
		model.FollowUpAnswer{Question: model.MoreFollowUpsQuestion, Answer: "No"},
	)
	resp, err := newTestController(&fakeInference{}).Next(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, model.TypeSummary, resp.Type)
	assert.Equal(t, "headache", resp.Symptom)
	assert.Equal(t, model.SummaryFollowUpFinished, resp.Summary)
	require.Len(t, resp.Answers, 6)
	assert.Equal(t, model.MoreFollowUpsQuestion, resp.Answers[5].Question)
	assert.NoError(t, resp.Validate())
}

func TestNextAppendsBudgetHint(t *testing.T) {
	inf := &fakeInference{interactiveResp: model.NewQuestion("Any nausea?")}
	req := countRequest("7")
	original := req.Clone()

	_, err := newTestController(inf).Next(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, inf.interactiveCalls, 1)
	sent := inf.interactiveCalls[0].FollowUpAnswers
	require.Len(t, sent, len(req.FollowUpAnswers)+1)
	assert.Equal(t, model.FollowUpAnswer{Question: "RequestedAdditionalFollowUps", Answer: "12"}, sent[len(sent)-1])
	assert.Equal(t, original, req, "submitted request must not be mutated")
}

func TestNextReplacesClientBudgetHint(t *testing.T) {
	inf := &fakeInference{interactiveResp: model.NewQuestion("Another?")}
	answers := append([]model.FollowUpAnswer{{Question: model.RequestedAdditionalFollowUpsKey, Answer: "100"}}, initialRound(15)...)
	answers = append(answers,
		model.FollowUpAnswer{Question: model.MoreFollowUpsQuestion, Answer: "Yes"},
		model.FollowUpAnswer{Question: model.AdditionalCountQuestion, Answer: "10"},
	)

	_, err := newTestController(inf).Next(context.Background(), model.SymptomRequest{Symptom: "headache", FollowUpAnswers: answers})
	require.NoError(t, err)

	require.Len(t, inf.interactiveCalls, 1)
	var hints []model.FollowUpAnswer
	for _, a := range inf.interactiveCalls[0].FollowUpAnswers {
		if a.Question == model.RequestedAdditionalFollowUpsKey {
			hints = append(hints, a)
		}
	}
	assert.Equal(t, []model.FollowUpAnswer{{Question: model.RequestedAdditionalFollowUpsKey, Answer: "15"}}, hints)
}

func TestNextDropsClientBudgetHintDuringInitialRound(t *testing.T) {
	inf := &fakeInference{interactiveResp: model.NewQuestion("Any fever?")}
	answers := append(initialRound(2), model.FollowUpAnswer{Question: " requestedadditionalfollowups ", Answer: "100"})

	_, err := newTestController(inf).Next(context.Background(), model.SymptomRequest{Symptom: "cough", FollowUpAnswers: answers})
	require.NoError(t, err)

	require.Len(t, inf.interactiveCalls, 1)
	assert.Equal(t, initialRound(2), inf.interactiveCalls[0].FollowUpAnswers)
	assert.Len(t, answers, 3)
}

func TestNextMapsRateLimit(t *testing.T) {
	inf := &fakeInference{interactiveErr: errors.Join(model.ErrRateLimited, errors.New("429"))}
	resp, err := newTestController(inf).Next(context.Background(), model.SymptomRequest{Symptom: "cough"})

	assert.ErrorIs(t, err, model.ErrRateLimited)
	assert.Equal(t, model.CodeRateLimited, resp.Code)
}

func TestNextHidesInternalErrorDetail(t *testing.T) {
	inf := &fakeInference{interactiveErr: errors.New("dial tcp 10.0.0.1: connection refused")}
	resp, err := newTestController(inf).Next(context.Background(), model.SymptomRequest{Symptom: "cough"})

	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrRateLimited)
	assert.Equal(t, model.CodeInternal, resp.Code)
	assert.NotContains(t, resp.Error, "10.0.0.1")
}

func TestNextWithoutInference(t *testing.T) {
	ctrl := NewController(nil, nil, Config{}, nil)

	resp, err := ctrl.Next(context.Background(), model.SymptomRequest{Symptom: "cough"})
	assert.ErrorIs(t, err, ErrInferenceUnavailable)
	assert.Equal(t, model.CodeUnavailable, resp.Code)

	// the control gates still work without a backend
	resp, err = ctrl.Next(context.Background(), withAnswers())
	require.NoError(t, err)
	assert.Equal(t, model.MoreFollowUpsQuestion, resp.Question)
}

func TestNextIsDeterministic(t *testing.T) {
	inf := &fakeInference{interactiveResp: model.NewQuestion("Where does it hurt?", "Head", "Chest")}
	ctrl := newTestController(inf)
	req := countRequest("3")

	first, err := ctrl.Next(context.Background(), req)
	require.NoError(t, err)
	second, err := ctrl.Next(context.Background(), req)
	require.NoError(t, err)

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, inf.interactiveCalls[0], inf.interactiveCalls[1])
}

func TestNextPropagatesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inf := &ctxInference{}
	_, err := newTestController(inf).Next(ctx, model.SymptomRequest{Symptom: "cough"})
	assert.ErrorIs(t, err, context.Canceled)
}

type ctxInference struct{ fakeInference }

func (c *ctxInference) GetInteractiveResponse(ctx context.Context, _ model.SymptomRequest) (model.InteractiveResponse, error) {
	return model.InteractiveResponse{}, ctx.Err()
}

func TestAnalyzeRanksByConfidence(t *testing.T) {
	inf := &fakeInference{conditions: []model.DiagnosisCondition{
		{ID: "j00", Name: "Common cold", Confidence: 0.4},
		{ID: "j11", Name: "Influenza", Confidence: 0.8},
		{ID: "j20", Name: "Bronchitis", Confidence: 0.4},
	}}
	got, err := newTestController(inf).Analyze(context.Background(), model.DiagnosisRequest{Symptom: "cough"})

	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"Influenza", "Bronchitis", "Common cold"}, []string{got[0].Name, got[1].Name, got[2].Name})
	assert.Equal(t, "Common cold", inf.conditions[0].Name, "inference output must not be reordered in place")
}

func TestAnalyzeValidatesAndMapsErrors(t *testing.T) {
	ctrl := newTestController(&fakeInference{})
	_, err := ctrl.Analyze(context.Background(), model.DiagnosisRequest{})
	assert.ErrorIs(t, err, ErrValidation)

	ctrl = newTestController(&fakeInference{diagnoseErr: model.ErrRateLimited})
	_, err = ctrl.Analyze(context.Background(), model.DiagnosisRequest{Symptom: "cough"})
	assert.ErrorIs(t, err, model.ErrRateLimited)

	empty, err := newTestController(&fakeInference{}).Analyze(context.Background(), model.DiagnosisRequest{Symptom: "cough"})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestConditionDetailsUsesCache(t *testing.T) {
	inf := &fakeInference{detail: model.ConditionDetailResponse{Name: "Influenza", Overview: "Viral infection."}}
	cache := &fakeCache{}
	ctrl := NewController(inf, cache, Config{}, nil)

	first, err := ctrl.ConditionDetails(context.Background(), " j11 ")
	require.NoError(t, err)
	assert.Equal(t, "j11", first.ID)
	assert.Equal(t, "j11", inf.lastDetailID)

	second, err := ctrl.ConditionDetails(context.Background(), "j11")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, inf.detailCalls)
	assert.Equal(t, 1, cache.sets)
}

func TestConditionDetailsCacheErrorFallsThrough(t *testing.T) {
	inf := &fakeInference{detail: model.ConditionDetailResponse{ID: "j11", Name: "Influenza"}}
	ctrl := NewController(inf, &fakeCache{getErr: errors.New("redis down")}, Config{}, nil)

	got, err := ctrl.ConditionDetails(context.Background(), "j11")
	require.NoError(t, err)
	assert.Equal(t, "Influenza", got.Name)
}

func TestConditionDetailsErrors(t *testing.T) {
	_, err := newTestController(&fakeInference{}).ConditionDetails(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = newTestController(&fakeInference{detailErr: model.ErrConditionNotFound}).ConditionDetails(context.Background(), "zzz")
	assert.ErrorIs(t, err, model.ErrConditionNotFound)
}
