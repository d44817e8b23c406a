package signal

import "golang.org/x/time/rate"

// commandLimiter throttles one connection's commands with a token bucket.
type commandLimiter struct {
	lim *rate.Limiter
}

func newCommandLimiter(perSecond float64, burst int) *commandLimiter {
	return &commandLimiter{lim: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l *commandLimiter) Allow() bool {
	return l.lim.Allow()
}
