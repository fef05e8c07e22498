package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCycle struct {
	prepareErr error
	getErr     error
	sendErr    error
	cycles     int32
	sent       []interface{}
	errorData  []interface{}
}

func (f *fakeCycle) Prepare(ctx context.Context) error { return f.prepareErr }

func (f *fakeCycle) GetData(ctx context.Context) (interface{}, error) {
	atomic.AddInt32(&f.cycles, 1)
	if f.getErr != nil {
		return nil, f.getErr
	}
	return "data", nil
}

func (f *fakeCycle) SendData(ctx context.Context, data interface{}) error {
	f.sent = append(f.sent, data)
	return f.sendErr
}

func (f *fakeCycle) NewErrorData(err error) interface{} {
	f.errorData = append(f.errorData, err)
	return "error:" + err.Error()
}

func TestIntervalWorkerOneShotSuccess(t *testing.T) {
	cycle := &fakeCycle{}
	w := NewIntervalWorker("test", time.Hour, true, cycle, NewSignal(), zerolog.Nop())

	err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), cycle.cycles)
	assert.True(t, w.Terminated())
}

func TestIntervalWorkerOneShotErrorEmitsErrorData(t *testing.T) {
	cycle := &fakeCycle{getErr: errors.New("boom")}
	w := NewIntervalWorker("test", time.Hour, true, cycle, NewSignal(), zerolog.Nop())

	err := w.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, cycle.errorData, 1)
	assert.True(t, w.Terminated())
}

func TestIntervalWorkerPrepareErrorPropagates(t *testing.T) {
	cycle := &fakeCycle{prepareErr: errors.New("login failed")}
	w := NewIntervalWorker("test", time.Hour, true, cycle, NewSignal(), zerolog.Nop())

	err := w.Run(context.Background())
	assert.Error(t, err)
	assert.Equal(t, int32(0), cycle.cycles)
}

func TestIntervalWorkerStopsOnExternalSignal(t *testing.T) {
	cycle := &fakeCycle{}
	external := NewSignal()
	w := NewIntervalWorker("test", time.Hour, false, cycle, external, zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	// give it time to run the first cycle and enter its wait.
	time.Sleep(50 * time.Millisecond)
	external.Set()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not stop within 3s of external signal")
	}
}

func TestIntervalWorkerStopStopsOnlyThatWorker(t *testing.T) {
	external := NewSignal()
	cycle := &fakeCycle{}
	w := NewIntervalWorker("test", time.Hour, false, cycle, external, zerolog.Nop())

	go func() {
		time.Sleep(20 * time.Millisecond)
		w.Stop()
	}()

	err := w.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, external.IsSet())
	assert.True(t, w.Terminated())
}

func TestIntervalWorkerRetriesAfterRecoverableError(t *testing.T) {
	cycle := &fakeCycle{getErr: NewVirtError(errors.New("transient"))}
	external := NewSignal()
	w := NewIntervalWorker("test", 100*time.Millisecond, false, cycle, external, zerolog.Nop())

	go func() {
		time.Sleep(350 * time.Millisecond)
		external.Set()
	}()

	err := w.Run(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&cycle.cycles), int32(2))
}

func TestSignalSetIsIdempotent(t *testing.T) {
	s := NewSignal()
	s.Set()
	s.Set()
	assert.True(t, s.IsSet())
}
