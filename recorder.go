package recorderd

import (
	"github.com/DistributedClocks/tracing"
)

// Recorder records protocol actions. *tracing.Tracer satisfies it.
type Recorder interface {
	RecordAction(action interface{})
}

type nopRecorder struct{}

func (nopRecorder) RecordAction(interface{}) {}

// NopRecorder discards every action.
var NopRecorder Recorder = nopRecorder{}

// TraceRecorder forwards actions to a tracing server.
type TraceRecorder struct {
	tracer *tracing.Tracer
}

// NewRecorder connects to the tracing server named in config. With no
// server address it returns NopRecorder and a no-op close function.
func NewRecorder(config TracingConfig, identity string) (Recorder, func() error) {
	if config.ServerAddress == "" {
		return NopRecorder, func() error { return nil }
	}
	if config.Identity != "" {
		identity = config.Identity
	}
	tracer := tracing.NewTracer(tracing.TracerConfig{
		ServerAddress:  config.ServerAddress,
		TracerIdentity: identity,
		Secret:         config.Secret,
	})
	r := &TraceRecorder{tracer: tracer}
	return r, r.Close
}

func (r *TraceRecorder) RecordAction(action interface{}) {
	r.tracer.RecordAction(action)
}

func (r *TraceRecorder) Close() error {
	return r.tracer.Close()
}
