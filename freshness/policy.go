package freshness

import "time"

const DefaultTTL = 5 * time.Minute

// NeedsFetch reports whether a record whose cached copy expires at expiresAt
// must be refreshed from the remote source before use.
func NeedsFetch(expiresAt *time.Time, force bool, now time.Time) bool {
	if force {
		return true
	}
	if expiresAt == nil || expiresAt.IsZero() {
		return true
	}
	return !expiresAt.After(now)
}

type Policy struct {
	TTL time.Duration
	Now func() time.Time
}

func NewPolicy(ttl time.Duration) Policy {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return Policy{TTL: ttl, Now: time.Now}
}

func (p Policy) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

func (p Policy) NeedsFetch(expiresAt *time.Time, force bool) bool {
	return NeedsFetch(expiresAt, force, p.now())
}

// NextExpiry returns the expiration stamped on a record fetched right now.
func (p Policy) NextExpiry() time.Time {
	ttl := p.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return p.now().Add(ttl).UTC()
}
