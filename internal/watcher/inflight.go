package watcher

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// inFlight marks syncs that are running in this process. A marker expires after
// its TTL so a crashed run cannot block its sync forever.
type inFlight struct {
	markers *cache.Cache
}

func newInFlight(ttl time.Duration) *inFlight {
	if ttl <= 0 {
		return &inFlight{markers: cache.New(cache.NoExpiration, 0)}
	}
	return &inFlight{markers: cache.New(ttl, ttl/2)}
}

// acquire sets the marker for key and reports false if it was already set.
func (f *inFlight) acquire(key string) bool {
	return f.markers.Add(key, struct{}{}, cache.DefaultExpiration) == nil
}

func (f *inFlight) release(key string) {
	f.markers.Delete(key)
}
