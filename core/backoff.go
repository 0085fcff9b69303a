package core

import "time"

// BackoffPolicy spaces webhook retries exponentially with a ceiling. The
// orchestrator's failed first attempt waits Initial; retry n (zero based
// count of retries already made) then waits Next(n).
type BackoffPolicy struct {
	Base time.Duration
	Max  time.Duration
}

func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{Base: time.Minute, Max: time.Hour}
}

func (p BackoffPolicy) normalized() BackoffPolicy {
	if p.Base <= 0 {
		p.Base = time.Minute
	}
	if p.Max < p.Base {
		p.Max = p.Base
	}
	return p
}

func (p BackoffPolicy) Initial() time.Duration {
	return p.normalized().Base
}

// Next returns min(Base * 2^(retryCount+1), Max).
func (p BackoffPolicy) Next(retryCount int) time.Duration {
	p = p.normalized()
	if retryCount < 0 {
		retryCount = 0
	}
	delay := p.Base
	for i := 0; i <= retryCount; i++ {
		delay *= 2
		if delay >= p.Max || delay <= 0 {
			return p.Max
		}
	}
	return delay
}
