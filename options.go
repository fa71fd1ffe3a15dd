package walminer

import (
	"github.com/bft-labs/walminer/pkg/catalog"
	"github.com/bft-labs/walminer/pkg/log"
	"github.com/bft-labs/walminer/pkg/sink"
)

// Option configures optional behavior of a Miner.
type Option func(*options)

type options struct {
	logger     log.Logger
	sink       sink.Sink
	httpClient sink.HTTPClient
	resolver   catalog.Resolver
	events     eventEmitter
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

// WithSink sets where changes are delivered. It overrides ServiceURL.
func WithSink(s sink.Sink) Option {
	return func(o *options) {
		o.sink = s
	}
}

// WithHTTPClient sets the client of the HTTP sink. If not provided, a
// client with Config.HTTPTimeout is used.
func WithHTTPClient(client sink.HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithResolver sets the relation resolver. The default maps every
// relfilenode to itself.
func WithResolver(r catalog.Resolver) Option {
	return func(o *options) {
		if r != nil {
			o.resolver = r
		}
	}
}

// WithEventHandler sets a handler for Miner events.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.events.handler = handler
	}
}
