package risk

import (
	"fmt"

	"github.com/ossopulse/ossopulse/internal/types"
)

// Bounds enforced before any encoding happens. BMI is recomputed here from
// the raw height/weight rather than reusing the encoder so validation can
// reject cheaply before the pipeline runs.
const (
	minAge = 18
	maxAge = 100
	minBMI = 10
	maxBMI = 60
)

// yesNoFields are the guided-form fields validated against the flexible
// yes/no token set, in the order violations are reported.
var yesNoFields = []string{
	"memory_issue",
	"mobility_climb",
	"stand_long",
	"activity_limited",
	"arthritis",
	"thyroid",
	"lung_disease",
	"heart_failure",
	"smoking",
}

// validYesNoTokens deliberately includes the empty string: an unanswered
// optional question is valid and defaults to No downstream.
var validYesNoTokens = map[string]struct{}{
	"": {}, "yes": {}, "no": {}, "y": {}, "n": {},
	"true": {}, "false": {}, "1": {}, "0": {},
}

// validAlcoholTokens is wider than the three canonical survey labels to
// tolerate free-text-like answers; the encoder collapses them all to the
// binary model feature.
var validAlcoholTokens = map[string]struct{}{
	"none": {}, "no": {}, "never": {},
	"occasionally": {}, "sometimes": {}, "frequently": {},
	"yes": {}, "maybe": {}, "rarely": {}, "daily": {},
}

var validGenderTokens = map[string]struct{}{
	"male": {}, "female": {}, "m": {}, "f": {}, "1": {}, "2": {},
}

// ValidateSurvey checks one guided-form answer set against the documented
// bounds and enumerations. Any violation returns a ValidationError with a
// human-readable reason and the pipeline must stop before encoding.
func ValidateSurvey(answers types.SurveyAnswers) error {
	age := 0.0
	if raw, ok := answers["age"]; ok && raw != nil {
		parsed, numeric := toFloat(raw)
		if !numeric {
			return &ValidationError{Reason: "numeric fields invalid"}
		}
		age = parsed
	}
	if age < minAge || age > maxAge {
		return &ValidationError{Reason: fmt.Sprintf("age must be between %d and %d", minAge, maxAge)}
	}

	feet, feetPresent := answers["height_feet"]
	inches, inchesPresent := answers["height_inches"]
	weight, weightPresent := answers["weight_kg"]
	if !feetPresent || feet == nil || !inchesPresent || inches == nil || !weightPresent || weight == nil {
		return &ValidationError{Reason: "height (feet and inches) and weight are required"}
	}
	feetVal, feetOK := toFloat(feet)
	inchesVal, inchesOK := toFloat(inches)
	weightVal, weightOK := toFloat(weight)
	if !feetOK || !inchesOK || !weightOK {
		return &ValidationError{Reason: "numeric fields invalid"}
	}

	heightCm := HeightCm(feetVal, inchesVal)
	bmi := 0.0
	if heightCm > 0 {
		heightM := heightCm / 100.0
		bmi = weightVal / (heightM * heightM)
	}
	if bmi < minBMI || bmi > maxBMI {
		return &ValidationError{Reason: fmt.Sprintf("BMI must be between %d and %d", minBMI, maxBMI)}
	}

	for _, field := range yesNoFields {
		raw, ok := answers[field]
		if !ok || raw == nil {
			continue
		}
		if _, isBool := raw.(bool); isBool {
			continue
		}
		if _, valid := validYesNoTokens[normalizeToken(raw)]; !valid {
			return &ValidationError{Reason: fmt.Sprintf("%s must be Yes, No, or boolean", field)}
		}
	}

	if alcohol := normalizeToken(answers["alcohol"]); alcohol != "" {
		if _, valid := validAlcoholTokens[alcohol]; !valid {
			return &ValidationError{Reason: "alcohol must be None, Occasionally, or Frequently"}
		}
	}

	if gender := normalizeToken(answers["gender"]); gender != "" {
		if _, valid := validGenderTokens[gender]; !valid {
			return &ValidationError{Reason: "gender must be Male or Female"}
		}
	}

	return nil
}

// recordBinaryColumns are the model columns validated as 0/1 on the raw
// record path. MCQ550 and MCQ025 are included: by the time a record is
// model-coded, alcohol and general health are already binary.
var recordBinaryColumns = []string{
	"MCQ366A", "MCQ371A", "MCQ371D", "MCQ092",
	"MCQ160G", "MCQ160L", "MCQ160K", "MCQ160B", "MCQ230A",
	"MCQ550", "MCQ025",
}

// ValidateRecord checks an already model-coded record against the same
// domain bounds, keyed by model column names.
func ValidateRecord(record types.RecordInput) error {
	if raw, ok := record[colAge]; ok {
		age, numeric := toFloat(raw)
		if !numeric {
			return &ValidationError{Reason: "numeric fields invalid"}
		}
		if age < minAge || age > maxAge {
			return &ValidationError{Reason: fmt.Sprintf("age must be between %d and %d", minAge, maxAge)}
		}
	}

	if raw, ok := record[colBMI]; ok {
		bmi, numeric := toFloat(raw)
		if !numeric {
			return &ValidationError{Reason: "numeric fields invalid"}
		}
		if bmi < minBMI || bmi > maxBMI {
			return &ValidationError{Reason: fmt.Sprintf("BMI must be between %d and %d", minBMI, maxBMI)}
		}
	}

	for _, col := range recordBinaryColumns {
		raw, ok := record[col]
		if !ok {
			continue
		}
		if !isBinaryCode(raw) {
			return &ValidationError{Reason: fmt.Sprintf("%s must be 0 or 1", col)}
		}
	}

	if raw, ok := record[colGender]; ok {
		gender, numeric := toFloat(raw)
		if !numeric {
			return &ValidationError{Reason: "numeric fields invalid"}
		}
		if code := int(gender); code != 1 && code != 2 {
			return &ValidationError{Reason: "RIAGENDR must be 1 (male) or 2 (female)"}
		}
	}

	return nil
}

// isBinaryCode accepts the numeric values 0 and 1 plus their string forms.
func isBinaryCode(value interface{}) bool {
	switch v := value.(type) {
	case string:
		return v == "0" || v == "1"
	case bool:
		return true
	}
	if f, ok := toFloat(value); ok {
		return f == 0 || f == 1
	}
	return false
}
