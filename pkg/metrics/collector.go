package metrics

import "time"

// Sampler periodically samples worker liveness counts into
// WorkersActive. It is driven by closures rather than a concrete
// executor type so this package never imports the executor that in
// turn depends on it.
type Sampler struct {
	sourceCount func() int
	destCount   func() int
	stopCh      chan struct{}
}

// NewSampler creates a Sampler. sourceCount and destCount should return
// the current number of live source/destination workers.
func NewSampler(sourceCount, destCount func() int) *Sampler {
	return &Sampler{
		sourceCount: sourceCount,
		destCount:   destCount,
		stopCh:      make(chan struct{}),
	}
}

// Start begins sampling on a 15-second tick, collecting once immediately.
func (s *Sampler) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		s.collect()
		for {
			select {
			case <-ticker.C:
				s.collect()
			case <-s.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the sampler.
func (s *Sampler) Stop() {
	close(s.stopCh)
}

func (s *Sampler) collect() {
	WorkersActive.WithLabelValues("source").Set(float64(s.sourceCount()))
	WorkersActive.WithLabelValues("destination").Set(float64(s.destCount()))
}
