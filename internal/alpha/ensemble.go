package alpha

import "fmt"

// ensemble averages predictions across a ridge, an elastic net and a random
// forest — the robustness blend the research configuration ships with.
type ensemble struct {
	models []Model
}

func newEnsemble(cfg ModelConfig) (*ensemble, error) {
	families := []Family{FamilyRidge, FamilyElasticNet, FamilyRandomForest}
	models := make([]Model, 0, len(families))
	for _, fam := range families {
		sub := DefaultModelConfig(fam)
		sub.Seed = cfg.Seed
		m, err := NewModel(sub)
		if err != nil {
			return nil, fmt.Errorf("ensemble member %s: %w", fam, err)
		}
		models = append(models, m)
	}
	return &ensemble{models: models}, nil
}

func (e *ensemble) Fit(X [][]float64, y []float64) error {
	for i, m := range e.models {
		if err := m.Fit(X, y); err != nil {
			return fmt.Errorf("ensemble member %d: %w", i, err)
		}
	}
	return nil
}

func (e *ensemble) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for _, m := range e.models {
		for i, v := range m.Predict(X) {
			out[i] += v
		}
	}
	for i := range out {
		out[i] /= float64(len(e.models))
	}
	return out
}

// FeatureImportance averages the normalized importances of every member
// that reports one.
func (e *ensemble) FeatureImportance() []float64 {
	var agg []float64
	count := 0
	for _, m := range e.models {
		imp := m.FeatureImportance()
		if len(imp) == 0 {
			continue
		}
		norm := append([]float64(nil), imp...)
		normalize(norm)
		if agg == nil {
			agg = make([]float64, len(norm))
		}
		for j, v := range norm {
			agg[j] += v
		}
		count++
	}
	if count == 0 {
		return nil
	}
	for j := range agg {
		agg[j] /= float64(count)
	}
	return agg
}
