package logger

import "sync/atomic"

// sampler lets num out of every den calls through. den <= 0 lets everything through.
type sampler struct {
	num     atomic.Int64
	den     atomic.Int64
	counter atomic.Uint64
}

func newSampler(num, den int) *sampler {
	s := &sampler{}
	s.set(num, den)
	return s
}

func (s *sampler) set(num, den int) {
	s.num.Store(int64(num))
	s.den.Store(int64(den))
}

func (s *sampler) allow() bool {
	den := s.den.Load()
	if den <= 0 {
		return true
	}
	n := s.counter.Add(1) - 1
	return int64(n%uint64(den)) < s.num.Load()
}
