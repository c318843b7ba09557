package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingWorker struct {
	name     string
	startErr error
	started  bool
	stops    *[]string
}

func (w *recordingWorker) Start(context.Context) error {
	if w.startErr != nil {
		return w.startErr
	}
	w.started = true
	return nil
}

func (w *recordingWorker) Stop() {
	*w.stops = append(*w.stops, w.name)
}

func (w *recordingWorker) Name() string { return w.name }

func TestManagerStartAndStopOrder(t *testing.T) {
	var stops []string
	m := NewManager(zap.NewNop())
	first := &recordingWorker{name: "first", stops: &stops}
	second := &recordingWorker{name: "second", stops: &stops}
	m.Register(first)
	m.Register(second)
	assert.Equal(t, 2, m.Count())

	require.NoError(t, m.StartAll(context.Background()))
	assert.True(t, first.started)
	assert.True(t, second.started)

	m.StopAll()
	assert.Equal(t, []string{"second", "first"}, stops, "workers stop in reverse registration order")
}

func TestManagerStartFailsFast(t *testing.T) {
	var stops []string
	m := NewManager(zap.NewNop())
	boom := errors.New("listener busy")
	m.Register(&recordingWorker{name: "broken", startErr: boom, stops: &stops})
	notReached := &recordingWorker{name: "after", stops: &stops}
	m.Register(notReached)

	err := m.StartAll(context.Background())
	require.ErrorIs(t, err, boom)
	assert.False(t, notReached.started, "workers after the failure never start")
}
