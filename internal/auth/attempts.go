package auth

import (
	"sync"
	"time"
)

// staleAttemptAge is how long a failed-attempt record is kept after the
// last attempt before CleanupStale drops it.
const staleAttemptAge = time.Hour

type attempt struct {
	count        int
	lastAttempt  time.Time
	blockedUntil time.Time
}

// LoginAttempts tracks failed logins per client IP for brute-force
// protection. After maxAttempts failures the IP is locked out for the
// configured duration.
type LoginAttempts struct {
	maxAttempts int
	lockout     time.Duration
	now         func() time.Time

	mu       sync.Mutex
	attempts map[string]*attempt
}

func NewLoginAttempts(maxAttempts int, lockout time.Duration) *LoginAttempts {
	return &LoginAttempts{
		maxAttempts: maxAttempts,
		lockout:     lockout,
		now:         time.Now,
		attempts:    make(map[string]*attempt),
	}
}

// Failed records a failed login for ip, locking it out once the limit is
// reached.
func (la *LoginAttempts) Failed(ip string) {
	la.mu.Lock()
	defer la.mu.Unlock()

	now := la.now()
	a, ok := la.attempts[ip]
	if !ok {
		a = &attempt{}
		la.attempts[ip] = a
	}
	a.count++
	a.lastAttempt = now
	if a.count >= la.maxAttempts {
		a.blockedUntil = now.Add(la.lockout)
	}
}

// Blocked reports whether ip is locked out and for how much longer.
func (la *LoginAttempts) Blocked(ip string) (bool, time.Duration) {
	la.mu.Lock()
	defer la.mu.Unlock()

	a, ok := la.attempts[ip]
	if !ok || a.blockedUntil.IsZero() {
		return false, 0
	}
	remaining := a.blockedUntil.Sub(la.now())
	if remaining <= 0 {
		return false, 0
	}
	return true, remaining
}

// Remaining returns how many attempts ip has left before lockout.
func (la *LoginAttempts) Remaining(ip string) int {
	la.mu.Lock()
	defer la.mu.Unlock()

	a, ok := la.attempts[ip]
	if !ok {
		return la.maxAttempts
	}
	remaining := la.maxAttempts - a.count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Clear drops the record for ip, typically after a successful login.
func (la *LoginAttempts) Clear(ip string) {
	la.mu.Lock()
	delete(la.attempts, ip)
	la.mu.Unlock()
}

// CleanupStale removes records whose last attempt is older than an hour.
func (la *LoginAttempts) CleanupStale() {
	la.mu.Lock()
	defer la.mu.Unlock()

	cutoff := la.now().Add(-staleAttemptAge)
	for ip, a := range la.attempts {
		if a.lastAttempt.Before(cutoff) {
			delete(la.attempts, ip)
		}
	}
}
