package ai

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/goccy/go-json"

	"github.com/zhouzirui/sympcheck/backend/internal/model/diagnosis"
)

type interactivePayload struct {
	Type     string   `json:"type"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Summary  string   `json:"summary"`
}

type conditionPayload struct {
	Name          string  `json:"name"`
	Confidence    float64 `json:"confidence"`
	ICDCode       string  `json:"icdCode"`
	Details       string  `json:"details"`
	PhysicianNote string  `json:"physicianNote"`
	Reasoning     string  `json:"reasoning"`
	IsEmergency   bool    `json:"isEmergency"`
}

type conditionsPayload struct {
	Conditions []conditionPayload `json:"conditions"`
}

type conditionDetailPayload struct {
	Found          *bool    `json:"found"`
	Name           string   `json:"name"`
	Overview       string   `json:"overview"`
	Symptoms       []string `json:"symptoms"`
	Causes         []string `json:"causes"`
	Treatments     []string `json:"treatments"`
	WhenToSeekCare string   `json:"whenToSeekCare"`
	IsEmergency    bool     `json:"isEmergency"`
}

// extractJSONObject returns the outermost {...} of the model output; models
// tend to wrap JSON in prose or code fences.
func extractJSONObject(content string) ([]byte, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("missing json object")
	}
	return []byte(trimmed[start : end+1]), nil
}

func parseInteractiveOutput(content string) (*interactivePayload, error) {
	raw, err := extractJSONObject(content)
	if err != nil {
		return nil, err
	}
	payload := &interactivePayload{}
	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// parseConditionsOutput accepts either {"conditions":[...]} or a bare array.
func parseConditionsOutput(content string) ([]diagnosis.DiagnosisCondition, error) {
	payload := &conditionsPayload{}
	trimmed := strings.TrimSpace(content)
	arrayStart := strings.Index(trimmed, "[")
	objectStart := strings.Index(trimmed, "{")

	if arrayStart != -1 && (objectStart == -1 || arrayStart < objectStart) {
		end := strings.LastIndex(trimmed, "]")
		if end <= arrayStart {
			return nil, fmt.Errorf("missing json array")
		}
		if err := json.Unmarshal([]byte(trimmed[arrayStart:end+1]), &payload.Conditions); err != nil {
			return nil, err
		}
	} else {
		raw, err := extractJSONObject(trimmed)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, payload); err != nil {
			return nil, err
		}
	}

	out := make([]diagnosis.DiagnosisCondition, 0, len(payload.Conditions))
	seen := make(map[string]struct{}, len(payload.Conditions))
	for _, c := range payload.Conditions {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		code := strings.TrimSpace(c.ICDCode)
		id := ConditionID(code, name)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		out = append(out, diagnosis.DiagnosisCondition{
			ID:            id,
			Name:          name,
			Confidence:    normalizeConfidence(c.Confidence),
			ICDCode:       code,
			Details:       strings.TrimSpace(c.Details),
			PhysicianNote: strings.TrimSpace(c.PhysicianNote),
			Reasoning:     strings.TrimSpace(c.Reasoning),
			IsEmergency:   c.IsEmergency,
		})
	}
	return out, nil
}

func parseConditionDetailOutput(content, id string) (diagnosis.ConditionDetailResponse, error) {
	raw, err := extractJSONObject(content)
	if err != nil {
		return diagnosis.ConditionDetailResponse{}, fmt.Errorf("parse condition output: %w", err)
	}
	payload := &conditionDetailPayload{}
	if err := json.Unmarshal(raw, payload); err != nil {
		return diagnosis.ConditionDetailResponse{}, fmt.Errorf("parse condition output: %w", err)
	}

	name := strings.TrimSpace(payload.Name)
	if (payload.Found != nil && !*payload.Found) || name == "" {
		return diagnosis.ConditionDetailResponse{}, fmt.Errorf("%w: %s", diagnosis.ErrConditionNotFound, id)
	}

	return diagnosis.ConditionDetailResponse{
		ID:             id,
		Name:           name,
		Overview:       strings.TrimSpace(payload.Overview),
		Symptoms:       trimAll(payload.Symptoms),
		Causes:         trimAll(payload.Causes),
		Treatments:     trimAll(payload.Treatments),
		WhenToSeekCare: strings.TrimSpace(payload.WhenToSeekCare),
		IsEmergency:    payload.IsEmergency,
	}, nil
}

// ConditionID derives a stable, URL-safe id from the ICD code, falling back
// to the condition name.
func ConditionID(icdCode, name string) string {
	source := icdCode
	if strings.TrimSpace(source) == "" {
		source = name
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(source)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// normalizeConfidence accepts both 0..1 and percentage scores.
func normalizeConfidence(v float64) float64 {
	if v > 1 {
		v = v / 100
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func trimAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
