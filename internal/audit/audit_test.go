package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type captureSink struct {
	entries []Entry
	err     error
}

func (c *captureSink) Record(_ context.Context, e Entry) error {
	c.entries = append(c.entries, e)
	return c.err
}

func TestRecorderFillsDefaults(t *testing.T) {
	sink := &captureSink{}
	r := NewRecorder(sink, "order-service", zap.NewNop())
	r.Record(context.Background(), Entry{Action: ActionOrderCreated, EntityID: "o-1"})

	assert.Len(t, sink.entries, 1)
	assert.Equal(t, "order-service", sink.entries[0].Service)
	assert.False(t, sink.entries[0].CreatedAt.IsZero())
}

func TestRecorderSwallowsErrors(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := NewRecorder(&captureSink{err: errors.New("mongo down")}, "svc", zap.New(core))

	assert.NotPanics(t, func() {
		r.Record(context.Background(), Entry{Action: ActionStatusChanged, EntityID: "o-1"})
	})
	assert.Equal(t, 1, logs.FilterMessage("audit write failed").Len())
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() { r.Record(context.Background(), Entry{}) })
}
