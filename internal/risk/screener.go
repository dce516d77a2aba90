package risk

import (
	"fmt"
	"time"

	"github.com/ossopulse/ossopulse/internal/types"
)

// Screener runs the full pipeline for one or more respondents: validate
// the raw answers, encode them against the loaded schema, score them with
// the shared classifier, and interpret the probabilities. The survey path
// additionally derives lifestyle tasks and medical alerts.
//
// Validation always runs before the artifact load, so malformed input is
// reported even while the model is not yet installed.
type Screener struct {
	store *ModelStore
}

// NewScreener wraps a model store.
func NewScreener(store *ModelStore) *Screener {
	return &Screener{store: store}
}

// ScreenSurvey processes a single guided survey submission.
func (s *Screener) ScreenSurvey(answers types.SurveyAnswers, threshold float64, now time.Time) (*SurveyScreening, error) {
	if err := ValidateSurvey(answers); err != nil {
		return nil, err
	}

	classifier, schema, err := s.store.Load()
	if err != nil {
		return nil, err
	}

	vector, err := Encode(answers, schema)
	if err != nil {
		return nil, err
	}

	probability, err := classifier.PredictProbability(vector.Values)
	if err != nil {
		return nil, fmt.Errorf("classifier prediction failed: %w", err)
	}

	tasks, alerts := DeriveRecommendations(answers)
	return &SurveyScreening{
		Assessment:       Interpret(probability, threshold, now),
		RecommendedTasks: tasks,
		MedicalAlerts:    alerts,
	}, nil
}

// ScreenForms processes a batch of guided form submissions. All forms are
// validated up front; the first invalid one aborts the batch.
func (s *Screener) ScreenForms(forms []types.SurveyAnswers, threshold float64, now time.Time) ([]*SurveyScreening, error) {
	for _, form := range forms {
		if err := ValidateSurvey(form); err != nil {
			return nil, err
		}
	}

	classifier, schema, err := s.store.Load()
	if err != nil {
		return nil, err
	}

	results := make([]*SurveyScreening, 0, len(forms))
	for _, form := range forms {
		vector, err := Encode(form, schema)
		if err != nil {
			return nil, err
		}

		probability, err := classifier.PredictProbability(vector.Values)
		if err != nil {
			return nil, fmt.Errorf("classifier prediction failed: %w", err)
		}

		tasks, alerts := DeriveRecommendations(form)
		results = append(results, &SurveyScreening{
			Assessment:       Interpret(probability, threshold, now),
			RecommendedTasks: tasks,
			MedicalAlerts:    alerts,
		})
	}
	return results, nil
}

// ScreenRecords processes pre-coded records keyed by schema column names.
// All records are validated up front; the first invalid one aborts the
// batch.
func (s *Screener) ScreenRecords(records []types.RecordInput, threshold float64, now time.Time) ([]Assessment, error) {
	for _, record := range records {
		if err := ValidateRecord(record); err != nil {
			return nil, err
		}
	}

	classifier, schema, err := s.store.Load()
	if err != nil {
		return nil, err
	}

	assessments := make([]Assessment, 0, len(records))
	for _, record := range records {
		vector, err := EncodeRecord(record, schema)
		if err != nil {
			return nil, err
		}

		probability, err := classifier.PredictProbability(vector.Values)
		if err != nil {
			return nil, fmt.Errorf("classifier prediction failed: %w", err)
		}

		assessments = append(assessments, Interpret(probability, threshold, now))
	}
	return assessments, nil
}
