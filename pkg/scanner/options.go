package scanner

import "github.com/robotalks/barscan/pkg/protocol"

// Options configures a Scanner.
type Options struct {
	// Wire is the wire-format configuration, protocol.ConfigA if zero.
	Wire protocol.Config
	// Observer receives driver events, a LogObserver if nil.
	Observer Observer
	// FailFast makes a request fail with ErrBusy instead of waiting
	// for the slot.
	FailFast bool
	// ReadChunk is the decoder read size.
	ReadChunk int
}

// Option modifies Options.
type Option func(*Options)

// WithConfig selects the wire format.
func WithConfig(conf protocol.Config) Option {
	return func(o *Options) {
		o.Wire = conf
	}
}

// WithObserver installs the event observer.
func WithObserver(observer Observer) Option {
	return func(o *Options) {
		o.Observer = observer
	}
}

// WithFailFast rejects concurrent requests with ErrBusy.
func WithFailFast() Option {
	return func(o *Options) {
		o.FailFast = true
	}
}

// WithReadChunk sets the number of bytes requested per channel read.
func WithReadChunk(n int) Option {
	return func(o *Options) {
		o.ReadChunk = n
	}
}

func makeOptions(opts []Option) Options {
	o := Options{Wire: protocol.ConfigA, ReadChunk: protocol.DefaultReadChunk}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Observer == nil {
		o.Observer = LogObserver{}
	}
	if o.ReadChunk <= 0 {
		o.ReadChunk = protocol.DefaultReadChunk
	}
	return o
}
