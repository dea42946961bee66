package optim

import "go.uber.org/zap"

type options struct {
	logger      *zap.Logger
	constraints []Constraint
}

type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithConstraints adds admissibility checks; violating candidates cost +Inf
// and are never evaluated.
func WithConstraints(c ...Constraint) Option {
	return func(o *options) {
		o.constraints = append(o.constraints, c...)
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
