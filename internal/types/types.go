package types

// SurveyAnswers holds one respondent's guided-form answers keyed by field
// name. Values arrive as JSON scalars (string, float64, bool) and are
// normalized downstream.
type SurveyAnswers map[string]interface{}

// RecordInput is a raw model-coded record keyed by feature column name.
type RecordInput map[string]interface{}

// SurveySubmitRequest is the request body for the survey submission endpoint
type SurveySubmitRequest struct {
	SurveyData SurveyAnswers `json:"survey_data" binding:"required"`
	Threshold  *float64      `json:"threshold"`
}

// PredictRequest is the request body for raw record inference
type PredictRequest struct {
	Records   []RecordInput `json:"records" binding:"required"`
	Threshold *float64      `json:"threshold"`
}

// PredictFormRequest is the request body for batch guided-form inference
type PredictFormRequest struct {
	Forms     []SurveyAnswers `json:"forms" binding:"required"`
	Threshold *float64        `json:"threshold"`
}

// SignupRequest is the request body for account registration
type SignupRequest struct {
	FullName    string `json:"full_name"`
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
}

// LoginRequest is the request body for authentication
type LoginRequest struct {
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
}

// PreferencesRequest updates user preferences
type PreferencesRequest struct {
	PreferredLanguage string `json:"preferred_language"`
}

// RemindersRequest toggles reassessment reminders. Enabled is a pointer so
// an absent field fails binding instead of reading as false.
type RemindersRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}
