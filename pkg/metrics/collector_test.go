package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSamplerCollectsOnStart(t *testing.T) {
	calls := make(chan struct{}, 1)
	s := NewSampler(
		func() int { calls <- struct{}{}; return 2 },
		func() int { return 1 },
	)
	s.Start()
	defer s.Stop()

	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("sampler did not collect immediately on Start")
	}

	if v := testutil.ToFloat64(WorkersActive.WithLabelValues("source")); v != 2 {
		t.Errorf("expected WorkersActive{role=source}=2, got %v", v)
	}
	if v := testutil.ToFloat64(WorkersActive.WithLabelValues("destination")); v != 1 {
		t.Errorf("expected WorkersActive{role=destination}=1, got %v", v)
	}
}
