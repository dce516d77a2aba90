package risk

import "github.com/ossopulse/ossopulse/internal/types"

// Fixed lifestyle task texts surfaced to respondents.
const (
	taskNutrition = "Increase protein and calorie intake daily"
	taskAlcohol   = "Limit alcohol intake to protect bone strength"
	taskSmoking   = "Stop smoking to prevent further bone loss"
	taskExercise  = "Perform 20–30 min weight-bearing exercise daily"
)

// Fixed medical alert texts surfaced to respondents.
const (
	alertCondition     = "Existing medical condition may increase bone risk. Clinical screening recommended."
	alertGeneralHealth = "Overall health concerns noted. Consider discussing bone health with your clinician."
)

const underweightBMI = 18.5

// Condition fields that individually justify a clinical screening alert.
var alertConditionFields = []string{
	"arthritis",
	"thyroid",
	"lung_disease",
	"heart_failure",
}

// DeriveRecommendations inspects raw survey answers and returns lifestyle
// tasks and medical alerts. It works on the answers as submitted, not on
// the encoded feature vector, so it never fails: answers it cannot read
// simply produce no recommendation.
func DeriveRecommendations(answers types.SurveyAnswers) (tasks, alerts []string) {
	tasks = []string{}
	alerts = []string{}

	if bmi, ok := surveyBMI(answers); ok && bmi < underweightBMI {
		tasks = append(tasks, taskNutrition)
	}

	switch normalizeToken(answers["alcohol"]) {
	case "occasionally", "frequently":
		tasks = append(tasks, taskAlcohol)
	}

	if normalizeToken(answers["smoking"]) == "yes" {
		tasks = append(tasks, taskSmoking)
	}

	if isPositive(answers["activity_limited"]) || isPositive(answers["mobility_climb"]) {
		tasks = append(tasks, taskExercise)
	}

	for _, field := range alertConditionFields {
		if isPositive(answers[field]) {
			alerts = append(alerts, alertCondition)
			break
		}
	}

	switch normalizeToken(answers["general_health"]) {
	case "fair", "poor":
		alerts = append(alerts, alertGeneralHealth)
	}

	return tasks, alerts
}

// isPositive reports whether an answer affirms a condition: boolean true
// or the token "yes".
func isPositive(value interface{}) bool {
	if b, ok := value.(bool); ok {
		return b
	}
	return normalizeToken(value) == "yes"
}

// surveyBMI computes BMI from whichever height fields the answers carry:
// a direct height_cm value, or the guided form's feet and inches pair.
// It returns false when height or weight is absent or non-positive.
func surveyBMI(answers types.SurveyAnswers) (float64, bool) {
	weight, ok := toFloat(answers["weight_kg"])
	if !ok || weight <= 0 {
		return 0, false
	}

	if cm, ok := toFloat(answers["height_cm"]); ok && cm > 0 {
		bmi, err := ComputeBMI(cm, weight)
		if err != nil {
			return 0, false
		}
		return bmi, true
	}

	feet, feetOK := toFloat(answers["height_feet"])
	inches, inchesOK := toFloat(answers["height_inches"])
	if !feetOK || !inchesOK {
		return 0, false
	}

	bmi, err := ComputeBMI(HeightCm(feet, inches), weight)
	if err != nil {
		return 0, false
	}
	return bmi, true
}
