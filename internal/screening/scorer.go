package screening

import "context"

// DeviationScorer is a deterministic statistical scorer usable when no
// external ML scorer is wired in. It scores a trade by how far its notional
// sits from the buyer's rolling average, so fat-finger entries several
// multiples above normal activity score high.
//
// The pipeline only ever depends on the Scorer interface; this implementation
// carries no special status.
type DeviationScorer struct{}

// Score returns the relative deviation feature directly. With the default
// threshold of 3.0 a trade is flagged when its notional is more than four
// times the buyer's rolling average.
func (DeviationScorer) Score(_ context.Context, features FeatureVector) (float64, error) {
	return features.AvgDeviation, nil
}
