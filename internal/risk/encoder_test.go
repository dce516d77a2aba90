package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossopulse/ossopulse/internal/types"
)

// testSchema mirrors the production feature order artifact.
func testSchema() Schema {
	return Schema{
		"RIDAGEYR", "AGE_SQUARED", "RIAGENDR", "BMXBMI",
		"MCQ366A", "MCQ371A", "MCQ371D", "MCQ092",
		"MCQ160G", "MCQ160L", "MCQ160K", "MCQ160B",
		"MCQ230A", "MCQ550", "MCQ025", "calcium_level",
	}
}

func fullSurveyAnswers() types.SurveyAnswers {
	return types.SurveyAnswers{
		"age":               float64(62),
		"gender":            "Female",
		"height_feet":       float64(5),
		"height_inches":     float64(4),
		"weight_kg":         float64(58),
		"memory_issue":      "No",
		"mobility_climb":    "Yes",
		"stand_long":        "No",
		"activity_limited":  "No",
		"arthritis":         "Yes",
		"thyroid":           "No",
		"lung_disease":      "No",
		"heart_failure":     "No",
		"smoking":           "No",
		"alcohol":           "Occasionally",
		"general_health":    "Fair",
		"calcium_frequency": "Rarely",
	}
}

func TestEncodeOrdersVectorPerSchema(t *testing.T) {
	schema := testSchema()

	vector, err := Encode(fullSurveyAnswers(), schema)
	require.NoError(t, err)

	require.Len(t, vector.Names, len(schema))
	require.Len(t, vector.Values, len(schema))
	for i, name := range schema {
		assert.Equal(t, name, vector.Names[i])
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	first, err := Encode(fullSurveyAnswers(), testSchema())
	require.NoError(t, err)

	second, err := Encode(fullSurveyAnswers(), testSchema())
	require.NoError(t, err)

	assert.Equal(t, first.Names, second.Names)
	assert.Equal(t, first.Values, second.Values)
}

func TestEncodeComputesDerivedFeatures(t *testing.T) {
	vector, err := Encode(fullSurveyAnswers(), testSchema())
	require.NoError(t, err)

	age, ok := vector.Get("RIDAGEYR")
	require.True(t, ok)
	assert.Equal(t, 62.0, age)

	ageSq, ok := vector.Get("AGE_SQUARED")
	require.True(t, ok)
	assert.Equal(t, 3844.0, ageSq)

	gender, ok := vector.Get("RIAGENDR")
	require.True(t, ok)
	assert.Equal(t, 2.0, gender)

	// 5'4" = 162.56 cm, 58 kg
	bmi, ok := vector.Get("BMXBMI")
	require.True(t, ok)
	assert.InDelta(t, 21.95, bmi, 0.01)

	mobility, ok := vector.Get("MCQ371A")
	require.True(t, ok)
	assert.Equal(t, 1.0, mobility)

	arthritis, ok := vector.Get("MCQ160G")
	require.True(t, ok)
	assert.Equal(t, 1.0, arthritis)

	alcohol, ok := vector.Get("MCQ550")
	require.True(t, ok)
	assert.Equal(t, 1.0, alcohol)

	health, ok := vector.Get("MCQ025")
	require.True(t, ok)
	assert.Equal(t, 1.0, health)

	calcium, ok := vector.Get("calcium_level")
	require.True(t, ok)
	assert.Equal(t, 0.0, calcium)
}

func TestEncodeZeroFillsAbsentFeatures(t *testing.T) {
	answers := types.SurveyAnswers{
		"age":           float64(45),
		"height_feet":   float64(5),
		"height_inches": float64(10),
		"weight_kg":     float64(80),
	}

	vector, err := Encode(answers, testSchema())
	require.NoError(t, err)

	for _, name := range []string{"MCQ366A", "MCQ160G", "MCQ230A", "MCQ550", "MCQ025"} {
		value, ok := vector.Get(name)
		require.True(t, ok, name)
		assert.Equal(t, 0.0, value, name)
	}

	// Unanswered calcium lands in the mid bucket, not zero.
	calcium, ok := vector.Get("calcium_level")
	require.True(t, ok)
	assert.Equal(t, 1.0, calcium)
}

func TestEncodeUnknownSchemaColumnStaysZero(t *testing.T) {
	schema := append(testSchema(), "FUTURE_FEATURE")

	vector, err := Encode(fullSurveyAnswers(), schema)
	require.NoError(t, err)

	value, ok := vector.Get("FUTURE_FEATURE")
	require.True(t, ok)
	assert.Equal(t, 0.0, value)
	assert.Len(t, vector.Values, len(schema))
}

func TestEncodeRequiresAge(t *testing.T) {
	answers := fullSurveyAnswers()
	delete(answers, "age")

	_, err := Encode(answers, testSchema())
	require.Error(t, err)

	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, "'age' is required", encErr.Reason)
	assert.Equal(t, []string{"age"}, encErr.MissingFields)
}

func TestEncodeRequiresHeightWeightForBMI(t *testing.T) {
	answers := fullSurveyAnswers()
	delete(answers, "height_feet")
	delete(answers, "weight_kg")

	_, err := Encode(answers, testSchema())
	require.Error(t, err)

	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, "'height_feet', 'height_inches', and 'weight_kg' are required to compute BMI", encErr.Reason)
	assert.Equal(t, []string{"height_feet", "weight_kg"}, encErr.MissingFields)
}

func TestEncodeSkipsHeightWeightWithoutBMIColumn(t *testing.T) {
	schema := Schema{"RIDAGEYR", "AGE_SQUARED", "RIAGENDR"}
	answers := types.SurveyAnswers{
		"age":    float64(50),
		"gender": "Male",
	}

	vector, err := Encode(answers, schema)
	require.NoError(t, err)

	age, _ := vector.Get("RIDAGEYR")
	assert.Equal(t, 50.0, age)
	gender, _ := vector.Get("RIAGENDR")
	assert.Equal(t, 1.0, gender)
}

func TestEncodeRejectsNonNumericAge(t *testing.T) {
	answers := fullSurveyAnswers()
	answers["age"] = "sixty"

	_, err := Encode(answers, testSchema())
	require.Error(t, err)

	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.Contains(t, encErr.Reason, "'age' must be numeric")
}

func TestEncodeRejectsZeroHeight(t *testing.T) {
	answers := fullSurveyAnswers()
	answers["height_feet"] = float64(0)
	answers["height_inches"] = float64(0)

	_, err := Encode(answers, testSchema())
	require.Error(t, err)

	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.Contains(t, encErr.Reason, "invalid height/weight")
}

func TestEncodeRecordAllColumns(t *testing.T) {
	record := types.RecordInput{
		"RIDAGEYR": float64(70), "AGE_SQUARED": float64(4900),
		"RIAGENDR": float64(2), "BMXBMI": float64(24.5),
		"MCQ366A": float64(0), "MCQ371A": float64(1), "MCQ371D": float64(0),
		"MCQ092": float64(0), "MCQ160G": float64(1), "MCQ160L": float64(0),
		"MCQ160K": float64(0), "MCQ160B": float64(0), "MCQ230A": float64(0),
		"MCQ550": float64(1), "MCQ025": float64(0), "calcium_level": float64(1),
	}

	vector, err := EncodeRecord(record, testSchema())
	require.NoError(t, err)

	require.Len(t, vector.Values, 16)
	assert.Equal(t, []float64{70, 4900, 2, 24.5, 0, 1, 0, 0, 1, 0, 0, 0, 0, 1, 0, 1}, vector.Values)
}

func TestEncodeRecordReportsAllMissingColumns(t *testing.T) {
	record := types.RecordInput{
		"RIDAGEYR": float64(70),
	}

	_, err := EncodeRecord(record, Schema{"RIDAGEYR", "BMXBMI", "MCQ550"})
	require.Error(t, err)

	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, "missing features: BMXBMI, MCQ550", encErr.Reason)
	assert.Equal(t, []string{"BMXBMI", "MCQ550"}, encErr.MissingFields)
}

func TestEncodeRecordNullFallsBackToZero(t *testing.T) {
	record := types.RecordInput{
		"RIDAGEYR": float64(70),
		"BMXBMI":   nil,
	}

	vector, err := EncodeRecord(record, Schema{"RIDAGEYR", "BMXBMI"})
	require.NoError(t, err)

	bmi, _ := vector.Get("BMXBMI")
	assert.Equal(t, 0.0, bmi)
}

func TestEncodeRecordRejectsNonNumeric(t *testing.T) {
	record := types.RecordInput{
		"RIDAGEYR": "old",
		"BMXBMI":   float64(22),
	}

	_, err := EncodeRecord(record, Schema{"RIDAGEYR", "BMXBMI"})
	require.Error(t, err)

	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.Contains(t, encErr.Reason, "feature RIDAGEYR must be numeric")
}
