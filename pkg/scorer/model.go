package scorer

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/Ramsey-B/clover/pkg/models"
)

// LinearModel is a logistic scoring function materialized from a
// model_metadata parameters payload. Feature values are standardized
// with the training means/scales before the weights apply.
type LinearModel struct {
	Bias       float64                       `json:"bias"`
	Weights    map[string]float64            `json:"weights"`
	Means      map[string]float64            `json:"means"`
	Scales     map[string]float64            `json:"scales"`
	Categories map[string]map[string]float64 `json:"categories"`
}

// ParseModel materializes the scoring function from model parameters.
func ParseModel(parameters json.RawMessage) (*LinearModel, error) {
	var m LinearModel
	if err := json.Unmarshal(parameters, &m); err != nil {
		return nil, errors.Wrap(err, "failed to parse model parameters")
	}
	if len(m.Weights) == 0 {
		return nil, errors.New("model parameters carry no weights")
	}
	return &m, nil
}

// encode resolves a feature value to a float. Categorical values go
// through the model's category codes; missing/unknown resolve to 0.
func (m *LinearModel) encode(feature string, value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case bool:
		if v {
			return 1.0
		}
		return 0.0
	case string:
		if codes, ok := m.Categories[feature]; ok {
			return codes[v]
		}
		return 0.0
	default:
		return 0.0
	}
}

// Score computes the churn probability and the per-feature
// contributions for a feature vector.
func (m *LinearModel) Score(vector models.FeatureVector) (float64, []models.RiskFactor) {
	logit := m.Bias
	factors := make([]models.RiskFactor, 0, len(m.Weights))

	for feature, weight := range m.Weights {
		value := m.encode(feature, vector[feature])

		standardized := value - m.Means[feature]
		if scale, ok := m.Scales[feature]; ok && scale != 0 {
			standardized /= scale
		}

		contribution := weight * standardized
		logit += contribution
		factors = append(factors, models.RiskFactor{
			Feature:      feature,
			Value:        value,
			Contribution: contribution,
		})
	}

	// Rank by absolute contribution; ties break by feature name so the
	// ordering is deterministic.
	sort.Slice(factors, func(i, j int) bool {
		ai, aj := math.Abs(factors[i].Contribution), math.Abs(factors[j].Contribution)
		if ai != aj {
			return ai > aj
		}
		return factors[i].Feature < factors[j].Feature
	})

	return sigmoid(logit), factors
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
