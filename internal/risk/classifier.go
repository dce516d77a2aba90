package risk

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Classifier scores a feature vector ordered per the loaded schema and
// returns the probability of the positive condition in [0,1]. The rest of
// the pipeline treats implementations as opaque.
type Classifier interface {
	PredictProbability(features []float64) (float64, error)
}

// CalibrationCurve is a monotone piecewise-linear mapping applied to the
// raw model output. Knots come from offline probability calibration.
type CalibrationCurve struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

func (c *CalibrationCurve) validate() error {
	if len(c.X) != len(c.Y) {
		return fmt.Errorf("calibration curve has %d x knots and %d y knots", len(c.X), len(c.Y))
	}
	for i := 1; i < len(c.X); i++ {
		if c.X[i] <= c.X[i-1] {
			return fmt.Errorf("calibration curve x knots must be strictly increasing")
		}
	}
	return nil
}

// Apply interpolates the curve at p. Values outside the knot range clamp
// to the endpoint y values.
func (c *CalibrationCurve) Apply(p float64) float64 {
	n := len(c.X)
	if n == 0 {
		return p
	}
	if p <= c.X[0] {
		return c.Y[0]
	}
	if p >= c.X[n-1] {
		return c.Y[n-1]
	}

	i := sort.SearchFloat64s(c.X, p)
	x0, x1 := c.X[i-1], c.X[i]
	y0, y1 := c.Y[i-1], c.Y[i]
	t := (p - x0) / (x1 - x0)
	return y0 + t*(y1-y0)
}

// ModelArtifact is the on-disk JSON layout of a trained model.
type ModelArtifact struct {
	ModelType   string             `json:"model_type"`
	Intercept   float64            `json:"intercept"`
	Weights     map[string]float64 `json:"weights"`
	Calibration *CalibrationCurve  `json:"calibration,omitempty"`
}

// LogisticModel scores feature vectors with logistic regression
// coefficients aligned to a fixed schema order at construction.
type LogisticModel struct {
	intercept    float64
	coefficients []float64
	calibration  *CalibrationCurve
}

// NewLogisticModel aligns artifact weights to the schema order. Every
// schema feature must have a weight; extra weights are ignored.
func NewLogisticModel(artifact *ModelArtifact, schema Schema) (*LogisticModel, error) {
	if artifact.ModelType != "" && artifact.ModelType != "logistic" {
		return nil, fmt.Errorf("unsupported model_type %q", artifact.ModelType)
	}

	coefficients := make([]float64, len(schema))
	var missing []string
	for i, name := range schema {
		w, ok := artifact.Weights[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		coefficients[i] = w
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("model weights missing schema features: %s", strings.Join(missing, ", "))
	}

	if artifact.Calibration != nil {
		if err := artifact.Calibration.validate(); err != nil {
			return nil, err
		}
	}

	return &LogisticModel{
		intercept:    artifact.Intercept,
		coefficients: coefficients,
		calibration:  artifact.Calibration,
	}, nil
}

// PredictProbability computes the calibrated probability for one feature
// vector. The vector length must match the coefficient count.
func (m *LogisticModel) PredictProbability(features []float64) (float64, error) {
	if len(features) != len(m.coefficients) {
		return 0, fmt.Errorf("feature vector has %d values, model expects %d", len(features), len(m.coefficients))
	}

	z := m.intercept
	for i, v := range features {
		z += m.coefficients[i] * v
	}

	p := sigmoid(z)
	if m.calibration != nil {
		p = m.calibration.Apply(p)
	}
	return clampUnit(p), nil
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func clampUnit(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
