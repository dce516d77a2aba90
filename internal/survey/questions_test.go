package survey

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuestionsCatalog(t *testing.T) {
	qs := Questions()
	require.Len(t, qs, 15)

	// IDs are sequential and field names unique.
	seen := make(map[string]bool, len(qs))
	for i, q := range qs {
		assert.Equal(t, i+1, q.ID)
		assert.NotEmpty(t, q.FieldName)
		assert.False(t, seen[q.FieldName], "duplicate field %s", q.FieldName)
		seen[q.FieldName] = true
		assert.NotEmpty(t, q.Question)
		assert.NotEmpty(t, q.HelpText)
	}
}

func TestQuestionsRequiredFields(t *testing.T) {
	required := map[string]bool{}
	for _, q := range Questions() {
		if q.Required {
			required[q.FieldName] = true
		}
	}

	assert.Equal(t, map[string]bool{
		"age":           true,
		"gender":        true,
		"height_weight": true,
	}, required)
}

func TestHeightWeightSubFields(t *testing.T) {
	qs := Questions()
	var composite *Question
	for i := range qs {
		if qs[i].FieldName == "height_weight" {
			composite = &qs[i]
			break
		}
	}
	require.NotNil(t, composite)

	require.Len(t, composite.SubFields, 3)
	assert.Equal(t, "height_feet", composite.SubFields[0].FieldName)
	assert.Equal(t, []int{4, 5, 6, 7}, composite.SubFields[0].Options)
	assert.Equal(t, "height_inches", composite.SubFields[1].FieldName)
	assert.Len(t, composite.SubFields[1].Options, 12)
	assert.Equal(t, "weight_kg", composite.SubFields[2].FieldName)
	assert.Nil(t, composite.SubFields[2].Options)
}

func TestQuestionsSerializeWithEmptyOptionArrays(t *testing.T) {
	data, err := json.Marshal(Questions()[0])
	require.NoError(t, err)

	// The age question has no options but clients expect an empty array,
	// not null.
	assert.Contains(t, string(data), `"options":[]`)
	assert.NotContains(t, string(data), `"sub_fields"`)
	assert.NotContains(t, string(data), `"note_text"`)
}

func TestYesNoQuestionsShareOptionSet(t *testing.T) {
	for _, q := range Questions() {
		if q.Type != "yes_no" {
			continue
		}
		require.Len(t, q.Options, 2, q.FieldName)
		assert.Equal(t, "Yes", q.Options[0].Value)
		assert.Equal(t, "No", q.Options[1].Value)
	}
}

func TestPublicAppInfo(t *testing.T) {
	info := PublicAppInfo()

	assert.Equal(t, "OssoPulse", info.AppName)
	assert.Equal(t, "1.0.0", info.Version)
	assert.Equal(t, "AI-based osteoporosis risk screening tool", info.Description)
	assert.Contains(t, info.Disclaimer, "does not provide medical diagnosis")
	assert.Equal(t, "support@ossopulse.app", info.Contact)
	assert.Equal(t, "/privacy", info.PrivacyURL)
	assert.Equal(t, "/terms", info.TermsURL)
}

func TestVoiceScript(t *testing.T) {
	assert.Contains(t, VoiceScript, "Hello and welcome to OssoPulse.")
	assert.Contains(t, VoiceScript, "does not diagnose osteoporosis")
	assert.Contains(t, VoiceScript, "Thank you for choosing OssoPulse.")
}
