package risk

import (
	"fmt"
	"strconv"
	"strings"
)

// Guided-form height arrives as feet plus inches.
const (
	cmPerFoot = 30.48
	cmPerInch = 2.54
)

var yesTokens = map[string]struct{}{
	"yes": {}, "y": {}, "true": {}, "1": {},
}

var noAlcoholTokens = map[string]struct{}{
	"none": {}, "no": {}, "never": {},
}

// EncodeYesNo maps a yes/no style answer to the model's 0/1 code.
// Unrecognized text maps to 0 rather than failing, keeping the guided form
// forgiving of phrasing variance.
func EncodeYesNo(value interface{}) int {
	switch v := value.(type) {
	case nil:
		return 0
	case bool:
		if v {
			return 1
		}
		return 0
	case float64:
		if v != 0 {
			return 1
		}
		return 0
	case int:
		if v != 0 {
			return 1
		}
		return 0
	}
	if _, ok := yesTokens[normalizeToken(value)]; ok {
		return 1
	}
	return 0
}

// EncodeGender maps gender answers to the model's coding: 1 for male-like
// tokens, 2 for female-like, 0 for unknown. Numeric answers pass through
// unchanged; rejection of out-of-range values happens in the validator, not
// here.
func EncodeGender(value interface{}) int {
	switch v := value.(type) {
	case bool:
		if v {
			return 1
		}
		return 0
	case float64:
		return int(v)
	case int:
		return v
	}
	switch normalizeToken(value) {
	case "male", "m":
		return 1
	case "female", "f":
		return 2
	}
	return 0
}

// EncodeAlcohol collapses the survey's three frequency levels into the
// binary feature the model was trained on. The recommendation rules still
// see the original levels.
func EncodeAlcohol(value interface{}) int {
	if value == nil {
		return 0
	}
	text := normalizeToken(value)
	if text == "" {
		return 0
	}
	if _, ok := noAlcoholTokens[text]; ok {
		return 0
	}
	return 1
}

// EncodeGeneralHealth maps self-rated health to 0 (excellent/good) or
// 1 (fair/poor), defaulting to 0 for anything unmatched.
func EncodeGeneralHealth(value interface{}) int {
	switch normalizeToken(value) {
	case "fair", "poor":
		return 1
	}
	return 0
}

// EncodeCalcium reproduces the training-time tertile binning as a
// three-level ordinal: 0 rarely/low, 2 daily/high, 1 for everything else
// including an unanswered question (the mid bucket).
func EncodeCalcium(value interface{}) int {
	if value == nil {
		return 1
	}
	switch normalizeToken(value) {
	case "rarely", "low", "0":
		return 0
	case "daily", "high", "2":
		return 2
	}
	return 1
}

// HeightCm converts a feet-plus-inches height to centimeters.
func HeightCm(feet, inches float64) float64 {
	return feet*cmPerFoot + inches*cmPerInch
}

// ComputeBMI derives body mass index from height in centimeters and weight
// in kilograms. Non-positive height is an error, never a silent zero: BMI
// is a required model feature whenever the schema includes it.
func ComputeBMI(heightCm, weightKg float64) (float64, error) {
	heightM := heightCm / 100.0
	if heightM <= 0 {
		return 0, fmt.Errorf("height must be positive, got %.2f cm", heightCm)
	}
	return weightKg / (heightM * heightM), nil
}

// toFloat coerces the JSON scalar types a survey answer can arrive as.
func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// normalizeToken renders an answer as a trimmed lowercase token for
// membership checks. JSON numbers format without a trailing ".0" so a
// numeric 1 matches the token "1".
func normalizeToken(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", value)))
}
