package diagnosis

// DiagnosisCondition is one ranked result of the analysis step.
type DiagnosisCondition struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Confidence    float64 `json:"confidence"`
	ICDCode       string  `json:"icdCode,omitempty"`
	Details       string  `json:"details,omitempty"`
	PhysicianNote string  `json:"physicianNote,omitempty"`
	Reasoning     string  `json:"reasoning,omitempty"`
	IsEmergency   bool    `json:"isEmergency"`
}

// ConditionDetailResponse describes a single condition for the detail view.
type ConditionDetailResponse struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Overview       string   `json:"overview"`
	Symptoms       []string `json:"symptoms,omitempty"`
	Causes         []string `json:"causes,omitempty"`
	Treatments     []string `json:"treatments,omitempty"`
	WhenToSeekCare string   `json:"whenToSeekCare,omitempty"`
	IsEmergency    bool     `json:"isEmergency"`
}
