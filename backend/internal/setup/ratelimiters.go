package setup

import (
	"time"

	"github.com/itchan-dev/accounts/shared/config"
	"github.com/itchan-dev/accounts/shared/middleware/ratelimiter"
)

// limiterExpiration is how long an idle identity keeps its bucket.
const limiterExpiration = time.Hour

// RateLimiters holds one limiter per rate limited route and identity kind.
type RateLimiters struct {
	RegisterPerIP    *ratelimiter.Limiter
	RegisterPerEmail *ratelimiter.Limiter
	LoginPerIP       *ratelimiter.Limiter
	ConfirmPerEmail  *ratelimiter.Limiter
	ResendPerIP      *ratelimiter.Limiter
	ResendPerEmail   *ratelimiter.Limiter
}

func NewRateLimiters(cfg config.RateLimits, expiration time.Duration) *RateLimiters {
	return &RateLimiters{
		RegisterPerIP:    ratelimiter.PerMinute(cfg.RegisterPerIP, expiration),
		RegisterPerEmail: ratelimiter.PerMinute(cfg.RegisterPerEmail, expiration),
		LoginPerIP:       ratelimiter.PerMinute(cfg.LoginPerIP, expiration),
		ConfirmPerEmail:  ratelimiter.PerMinute(cfg.ConfirmPerEmail, expiration),
		ResendPerIP:      ratelimiter.PerMinute(cfg.ResendPerIP, expiration),
		ResendPerEmail:   ratelimiter.PerMinute(cfg.ResendPerEmail, expiration),
	}
}

func (l *RateLimiters) all() []*ratelimiter.Limiter {
	return []*ratelimiter.Limiter{
		l.RegisterPerIP, l.RegisterPerEmail, l.LoginPerIP,
		l.ConfirmPerEmail, l.ResendPerIP, l.ResendPerEmail,
	}
}

// Stop cancels pending bucket expirations of every limiter.
func (l *RateLimiters) Stop() {
	for _, rl := range l.all() {
		rl.Stop()
	}
}
