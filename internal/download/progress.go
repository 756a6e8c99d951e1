package download

import (
	"time"

	"golang.org/x/time/rate"

	"pocketlm/pkg/types"
)

// sampler turns raw byte counts into throttled progress samples.
// It is used from a single goroutine.
type sampler struct {
	model     string
	fallback  int64
	sometimes rate.Sometimes
	now       func() time.Time
	emit      func(types.Progress)

	lastBytes int64
	lastAt    time.Time
	lastFrac  float64
	sampled   bool
}

func newSampler(model string, fallback int64, interval time.Duration, now func() time.Time, emit func(types.Progress)) *sampler {
	s := &sampler{model: model, fallback: fallback, now: now, emit: emit}
	if interval > 0 {
		s.sometimes = rate.Sometimes{Interval: interval}
	} else {
		s.sometimes = rate.Sometimes{Every: 1}
	}
	return s
}

func (s *sampler) observe(written, expected int64) {
	s.sometimes.Do(func() { s.sample(written, expected, false) })
}

// finish emits the terminal sample with fraction exactly 1, unless the last
// sample already reported the same completed transfer.
func (s *sampler) finish(written int64) {
	if s.sampled && s.lastFrac == 1 && s.lastBytes == written {
		return
	}
	s.sample(written, written, true)
}

func (s *sampler) sample(written, expected int64, done bool) {
	if expected <= 0 {
		expected = s.fallback
	}
	p := types.Progress{Model: s.model, BytesWritten: written, BytesExpected: expected}
	switch {
	case done:
		p.Fraction = 1
	case expected > 0:
		p.Fraction = clamp01(float64(written) / float64(expected))
	}
	at := s.now()
	if s.sampled {
		if elapsed := at.Sub(s.lastAt).Seconds(); elapsed > 0 {
			mbps := float64(written-s.lastBytes) * 8 / elapsed / 1e6
			p.SpeedMbps = &mbps
		}
	}
	s.sampled = true
	s.lastBytes, s.lastAt, s.lastFrac = written, at, p.Fraction
	s.emit(p)
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
