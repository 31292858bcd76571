package rating

// DefaultMaxRatingChange bounds the rating movement of one entity per match.
const DefaultMaxRatingChange = 100.0

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithTau sets the system constant constraining volatility change.
func WithTau(tau float64) Option {
	return func(e *Engine) {
		e.tau = tau
	}
}

// WithMaxRatingChange sets the per-match rating change limit.
func WithMaxRatingChange(limit float64) Option {
	return func(e *Engine) {
		e.maxChange = limit
	}
}
