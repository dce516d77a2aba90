package risk

import (
	"fmt"
	"strings"

	"github.com/ossopulse/ossopulse/internal/types"
)

// Model feature columns with special handling in the encoder.
const (
	colAge     = "RIDAGEYR"
	colAgeSq   = "AGE_SQUARED"
	colGender  = "RIAGENDR"
	colBMI     = "BMXBMI"
	colAlcohol = "MCQ550"
	colHealth  = "MCQ025"
	colCalcium = "calcium_level"
)

// binaryFeatureFields binds binary model columns to the guided-form fields
// they are derived from. Order matters only for deterministic iteration.
var binaryFeatureFields = []struct {
	Column string
	Field  string
}{
	{"MCQ366A", "memory_issue"},
	{"MCQ371A", "mobility_climb"},
	{"MCQ371D", "stand_long"},
	{"MCQ092", "activity_limited"},
	{"MCQ160G", "arthritis"},
	{"MCQ160L", "thyroid"},
	{"MCQ160K", "lung_disease"},
	{"MCQ160B", "heart_failure"},
	{"MCQ230A", "smoking"},
}

// Encode assembles the model feature vector for one guided-form answer set.
// Every schema feature starts at zero and is overlaid only when the form
// supplies it; schema features the form never collects stay at their zero
// default so forward-compatible schemas keep working. Age is always
// required, and height/weight become required when the schema includes the
// BMI column.
func Encode(answers types.SurveyAnswers, schema Schema) (FeatureVector, error) {
	row := make(map[string]float64, len(schema))
	for _, name := range schema {
		row[name] = 0
	}

	ageRaw, ok := answers["age"]
	if !ok || ageRaw == nil {
		return FeatureVector{}, &EncodingError{
			Reason:        "'age' is required",
			MissingFields: []string{"age"},
		}
	}
	age, ok := toFloat(ageRaw)
	if !ok {
		return FeatureVector{}, &EncodingError{Reason: fmt.Sprintf("'age' must be numeric, got %v", ageRaw)}
	}
	if _, present := row[colAge]; present {
		row[colAge] = age
	}
	if _, present := row[colAgeSq]; present {
		row[colAgeSq] = age * age
	}

	if _, present := row[colGender]; present {
		row[colGender] = float64(EncodeGender(answers["gender"]))
	}

	if _, present := row[colBMI]; present {
		bmi, err := bmiFromForm(answers)
		if err != nil {
			return FeatureVector{}, err
		}
		row[colBMI] = bmi
	}

	for _, bind := range binaryFeatureFields {
		if _, present := row[bind.Column]; present {
			row[bind.Column] = float64(EncodeYesNo(answers[bind.Field]))
		}
	}

	if _, present := row[colAlcohol]; present {
		row[colAlcohol] = float64(EncodeAlcohol(answers["alcohol"]))
	}
	if _, present := row[colHealth]; present {
		row[colHealth] = float64(EncodeGeneralHealth(answers["general_health"]))
	}
	if _, present := row[colCalcium]; present {
		row[colCalcium] = float64(EncodeCalcium(answers["calcium_frequency"]))
	}

	return vectorFromRow(row, schema), nil
}

// EncodeRecord assembles the feature vector from an already model-coded
// record. Unlike the guided-form path, every schema column must be present;
// missing columns are reported together so the caller can fix the record in
// one pass. Null values fall back to zero.
func EncodeRecord(record types.RecordInput, schema Schema) (FeatureVector, error) {
	var missing []string
	for _, name := range schema {
		if _, ok := record[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return FeatureVector{}, &EncodingError{
			Reason:        fmt.Sprintf("missing features: %s", strings.Join(missing, ", ")),
			MissingFields: missing,
		}
	}

	row := make(map[string]float64, len(schema))
	for _, name := range schema {
		value := record[name]
		if value == nil {
			row[name] = 0
			continue
		}
		f, ok := toFloat(value)
		if !ok {
			return FeatureVector{}, &EncodingError{
				Reason: fmt.Sprintf("feature %s must be numeric, got %v", name, value),
			}
		}
		row[name] = f
	}

	return vectorFromRow(row, schema), nil
}

// bmiFromForm computes BMI from the form's feet/inches/kg fields, reporting
// exactly which of the three are absent.
func bmiFromForm(answers types.SurveyAnswers) (float64, error) {
	var missing []string
	for _, field := range []string{"height_feet", "height_inches", "weight_kg"} {
		if v, ok := answers[field]; !ok || v == nil {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return 0, &EncodingError{
			Reason:        "'height_feet', 'height_inches', and 'weight_kg' are required to compute BMI",
			MissingFields: missing,
		}
	}

	feet, feetOK := toFloat(answers["height_feet"])
	inches, inchesOK := toFloat(answers["height_inches"])
	weight, weightOK := toFloat(answers["weight_kg"])
	if !feetOK || !inchesOK || !weightOK {
		return 0, &EncodingError{Reason: "invalid height/weight: values must be numeric"}
	}

	bmi, err := ComputeBMI(HeightCm(feet, inches), weight)
	if err != nil {
		return 0, &EncodingError{Reason: fmt.Sprintf("invalid height/weight: %v", err)}
	}
	return bmi, nil
}

// vectorFromRow freezes the overlaid row into schema order.
func vectorFromRow(row map[string]float64, schema Schema) FeatureVector {
	vec := FeatureVector{
		Names:  append([]string(nil), schema...),
		Values: make([]float64, len(schema)),
	}
	for i, name := range schema {
		vec.Values[i] = row[name]
	}
	return vec
}
