package automation

import (
	"sort"

	"github.com/san-kum/dipsmc/internal/dynamo"
	"github.com/san-kum/dipsmc/internal/physics"
	"github.com/san-kum/dipsmc/internal/regularize"
)

// WithParams returns base with the named plant parameters replaced.
// Parameters are applied in name order and each one is validated against
// the whole set.
func WithParams(base physics.Params, reg regularize.Regularizer, params map[string]float64) (physics.Params, error) {
	if len(params) == 0 {
		return base, nil
	}
	plant, err := physics.NewDoubleInvertedPendulum(base, reg)
	if err != nil {
		return base, err
	}
	var knobs dynamo.Configurable = plant

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := knobs.SetParam(name, params[name]); err != nil {
			return base, err
		}
	}
	return plant.Params(), nil
}
