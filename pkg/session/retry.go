package session

import (
	cryptorand "crypto/rand"
	"math"
	"math/big"
	"time"
)

// secureRandFloat64 returns a cryptographically random float64 in [0, 1).
// Grounded on pkg/transport/reliability_middleware.go's function of the
// same name and shape.
func secureRandFloat64() (float64, error) {
	max := big.NewInt(1 << 53)
	n, err := cryptorand.Int(cryptorand.Reader, max)
	if err != nil {
		return 0, err
	}
	return float64(n.Int64()) / float64(1<<53), nil
}

// retryDelay implements spec §4.5's retry policy: after a NACK carrying
// retry_after_ms, wait that interval plus jitter rand(0, base*2^attempt),
// with attempt capped at 6. Grounded on reliability_middleware.go's
// calculateBackoff, adapted from a fixed-jitter percentage to the spec's
// explicit rand(0, base*2^attempt) formula.
func retryDelay(retryAfterMS uint64, baseMS uint64, attempt int) time.Duration {
	if attempt > 6 {
		attempt = 6
	}
	jitterCeiling := float64(baseMS) * math.Pow(2, float64(attempt))

	jitter := 0.0
	if r, err := secureRandFloat64(); err == nil {
		jitter = r * jitterCeiling
	}

	return time.Duration(retryAfterMS)*time.Millisecond + time.Duration(jitter)*time.Millisecond
}
