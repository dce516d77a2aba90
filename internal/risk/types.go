package risk

import (
	"fmt"
	"strings"
)

// Schema is the ordered list of feature names the classifier was trained
// on. It defines both the columns and the exact output order the encoder
// must produce. Loaded once from the feature-order artifact and treated as
// immutable afterwards.
type Schema []string

// FeatureVector holds one encoded row. Names mirrors the schema order;
// Values is the same length with every entry finite and numeric.
type FeatureVector struct {
	Names  []string  `json:"names"`
	Values []float64 `json:"values"`
}

// Get returns the value for a feature name, scanning in schema order.
func (fv FeatureVector) Get(name string) (float64, bool) {
	for i, n := range fv.Names {
		if n == name {
			return fv.Values[i], true
		}
	}
	return 0, false
}

// Assessment is the interpreted classifier output for one respondent.
type Assessment struct {
	Probability      float64 `json:"probability"`
	Prediction       int     `json:"prediction"`
	Level            string  `json:"risk_level"`
	RiskScore        int     `json:"risk_score"`
	Message          string  `json:"message"`
	NextReassessment string  `json:"next_reassessment_date"`
}

// SurveyScreening combines the assessment with the rule-engine output for
// one guided-form submission. The recommendation lists depend only on the
// raw answers, never on the probability.
type SurveyScreening struct {
	Assessment
	RecommendedTasks []string `json:"recommended_tasks"`
	MedicalAlerts    []string `json:"medical_alerts"`
}

// ValidationError reports a client answer that violates a documented bound
// or enumeration. The reason is returned to the caller verbatim.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// EncodingError reports a schema-required feature that could not be derived
// from the supplied answers. Distinct from validation: it can occur after
// validation passes when the schema demands a field the validator does not
// check.
type EncodingError struct {
	Reason        string
	MissingFields []string
}

func (e *EncodingError) Error() string {
	if len(e.MissingFields) > 0 {
		return fmt.Sprintf("%s (missing: %s)", e.Reason, strings.Join(e.MissingFields, ", "))
	}
	return e.Reason
}

// UnavailableError reports that the classifier or schema artifact could not
// be loaded. Fatal to the request, never to the process: later requests
// retry the load once the artifact is installed.
type UnavailableError struct {
	Path string
	Err  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("classifier unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}
