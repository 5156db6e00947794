package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/sympcheck/backend/internal/model/diagnosis"
	service "github.com/zhouzirui/sympcheck/backend/internal/service/diagnosis"
)

type stubInference struct {
	next       model.InteractiveResponse
	nextErr    error
	conditions []model.DiagnosisCondition
	detail     model.ConditionDetailResponse
	err        error
}

func (s *stubInference) GetInteractiveResponse(context.Context, model.SymptomRequest) (model.InteractiveResponse, error) {
	return s.next, s.nextErr
}

func (s *stubInference) DiagnoseSymptoms(context.Context, model.DiagnosisRequest) ([]model.DiagnosisCondition, error) {
	return s.conditions, s.err
}

func (s *stubInference) GetConditionDetails(context.Context, string) (model.ConditionDetailResponse, error) {
	return s.detail, s.err
}

func setupRouter(inf service.Inference) *chi.Mux {
	controller := service.NewController(inf, nil, service.Config{Limits: service.DefaultLimits()}, nil)
	r := chi.NewRouter()
	r.Route("/api", func(api chi.Router) {
		New(controller, nil).RegisterRoutes(api)
	})
	return r
}

func post(t *testing.T, r http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func transcript(n int, extra ...string) string {
	parts := make([]string, 0, n+len(extra)/2)
	for i := 0; i < n; i++ {
		parts = append(parts, fmt.Sprintf(`{"question":"Q%d","answer":"A%d"}`, i, i))
	}
	for i := 0; i+1 < len(extra); i += 2 {
		parts = append(parts, fmt.Sprintf(`{"question":%q,"answer":%q}`, extra[i], extra[i+1]))
	}
	return fmt.Sprintf(`{"symptom":"headache","followUpAnswers":[%s]}`, strings.Join(parts, ","))
}

func TestInteractiveReturnsInferenceQuestion(t *testing.T) {
	r := setupRouter(&stubInference{next: model.NewQuestion("Where does it hurt?", "Front", "Back")})

	rec := post(t, r, "/api/diagnosis/interactive", transcript(1))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp model.InteractiveResponse
	decode(t, rec, &resp)
	assert.Equal(t, model.TypeQuestion, resp.Type)
	assert.Equal(t, []string{"Front", "Back"}, resp.Options)
}

func TestInteractiveAsksGateAfterInitialRound(t *testing.T) {
	r := setupRouter(&stubInference{nextErr: errors.New("must not be called")})

	rec := post(t, r, "/api/diagnosis/interactive", transcript(5))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"type":"question","question":"Would you like more follow-up questions?","options":["Yes","No"]}`, rec.Body.String())
}

func TestInteractiveSummaryAfterNo(t *testing.T) {
	r := setupRouter(&stubInference{})

	rec := post(t, r, "/api/diagnosis/interactive", transcript(5, model.MoreFollowUpsQuestion, "No"))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp model.InteractiveResponse
	decode(t, rec, &resp)
	assert.Equal(t, model.TypeSummary, resp.Type)
	assert.Equal(t, model.SummaryFollowUpFinished, resp.Summary)
}

func TestInteractiveValidation(t *testing.T) {
	r := setupRouter(&stubInference{})

	rec := post(t, r, "/api/diagnosis/interactive", `{"symptom":"   "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, "error", body["type"])
	assert.Equal(t, model.CodeValidation, body["code"])
	assert.Equal(t, "symptom is required", body["error"])
}

func TestInteractiveMalformedBody(t *testing.T) {
	rec := post(t, setupRouter(&stubInference{}), "/api/diagnosis/interactive", `{"symptom":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, "invalid request body", body["error"])
}

func TestInteractiveErrorStatuses(t *testing.T) {
	cases := []struct {
		name   string
		inf    service.Inference
		status int
		code   string
	}{
		{"rate limited", &stubInference{nextErr: fmt.Errorf("%w: 429", model.ErrRateLimited)}, http.StatusTooManyRequests, model.CodeRateLimited},
		{"internal", &stubInference{nextErr: errors.New("secret upstream detail")}, http.StatusInternalServerError, model.CodeInternal},
		{"unavailable", nil, http.StatusServiceUnavailable, model.CodeUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := post(t, setupRouter(tc.inf), "/api/diagnosis/interactive", transcript(0))
			require.Equal(t, tc.status, rec.Code)
			assert.NotContains(t, rec.Body.String(), "secret")

			var body map[string]string
			decode(t, rec, &body)
			assert.Equal(t, tc.code, body["code"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestInteractiveBodiesAreByteIdentical(t *testing.T) {
	r := setupRouter(&stubInference{next: model.NewQuestion("Any fever?", "Yes", "No")})
	body := transcript(2)

	first := post(t, r, "/api/diagnosis/interactive", body)
	second := post(t, r, "/api/diagnosis/interactive", body)
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestAnalyzeRanksConditions(t *testing.T) {
	r := setupRouter(&stubInference{conditions: []model.DiagnosisCondition{
		{ID: "b", Name: "Tension headache", Confidence: 0.3},
		{ID: "a", Name: "Migraine", Confidence: 0.8},
	}})

	rec := post(t, r, "/api/diagnosis/analyze", `{"symptom":"headache"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var conditions []model.DiagnosisCondition
	decode(t, rec, &conditions)
	require.Len(t, conditions, 2)
	assert.Equal(t, "a", conditions[0].ID)
}

func TestAnalyzeEmptyIsArray(t *testing.T) {
	rec := post(t, setupRouter(&stubInference{}), "/api/diagnosis/analyze", `{"symptom":"headache"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestAnalyzeErrors(t *testing.T) {
	rec := post(t, setupRouter(&stubInference{}), "/api/diagnosis/analyze", `{"symptom":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(t, setupRouter(&stubInference{err: model.ErrRateLimited}), "/api/diagnosis/analyze", `{"symptom":"x"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = post(t, setupRouter(&stubInference{err: errors.New("boom")}), "/api/diagnosis/analyze", `{"symptom":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"an internal error occurred"}`, rec.Body.String())
}

func TestConditionDetail(t *testing.T) {
	r := setupRouter(&stubInference{detail: model.ConditionDetailResponse{Name: "Migraine", Overview: "Headache disorder."}})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/diagnosis/condition/g43-9", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var detail model.ConditionDetailResponse
	decode(t, rec, &detail)
	assert.Equal(t, "g43-9", detail.ID)
	assert.Equal(t, "Migraine", detail.Name)
}

func TestConditionDetailNotFound(t *testing.T) {
	r := setupRouter(&stubInference{err: fmt.Errorf("%w: x", model.ErrConditionNotFound)})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/diagnosis/condition/x", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"condition not found"}`, rec.Body.String())
}

func TestClassify(t *testing.T) {
	status, code, _ := classify(&service.ValidationError{Field: "id", Message: "id is required"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, model.CodeValidation, code)

	status, _, _ = classify(context.Canceled)
	assert.Equal(t, http.StatusInternalServerError, status)
}
