package miner

import (
	"github.com/bft-labs/walminer/pkg/catalog"
	"github.com/bft-labs/walminer/pkg/log"
)

// Option configures optional behavior of a Session.
type Option func(*options)

type options struct {
	logger   log.Logger
	resolver catalog.Resolver
}

func defaultOptions() options {
	return options{
		logger:   log.Nop,
		resolver: catalog.Passthrough{},
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithResolver sets how relation file numbers map to relation ids. The
// default reports the relation file number itself.
func WithResolver(r catalog.Resolver) Option {
	return func(o *options) {
		if r != nil {
			o.resolver = r
		}
	}
}
