package gosm

import (
	"log/slog"
)

// Configures `Build()`, `BuildWithDB()` and `NewFactory()`.
type Option func(*options)

type options struct {
	log         *slog.Logger
	resolver    Resolver
	types       *Types
	strict      bool
	placeholder *Placeholder
}

// Structured logger for registration, execution and skipped columns. Logs are
// discarded by default.
func WithLogger(log *slog.Logger) Option {
	return func(opts *options) { opts.log = log }
}

// Where mapper resources are loaded from. Defaults to the working directory.
func WithResolver(res Resolver) Option {
	return func(opts *options) { opts.resolver = res }
}

// Result types available to statements. Without it, every select fails with
// `ErrInstantiation`.
func WithTypes(types *Types) Option {
	return func(opts *options) { opts.types = types }
}

// Fail with `ErrUnsupportedParameter` instead of binding NULL when a named
// parameter is missing or of an unsupported type.
func WithStrictParams() Option {
	return func(opts *options) { opts.strict = true }
}

// Overrides the placeholder style otherwise derived from the driver.
func WithPlaceholder(style Placeholder) Option {
	return func(opts *options) { opts.placeholder = &style }
}

func makeOptions(opts []Option) options {
	var out options
	for _, opt := range opts {
		if opt != nil {
			opt(&out)
		}
	}
	if out.log == nil {
		out.log = discardLogger()
	}
	if out.resolver == nil {
		out.resolver = FSResolver{}
	}
	if out.types == nil {
		out.types = NewTypes()
	}
	return out
}
