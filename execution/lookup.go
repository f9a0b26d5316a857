package execution

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/spetersoncode/aguibridge/session"
)

// lookupCache maps thread ids to the session they were run under, so tool
// result requests can find pending calls without recomputing identity.
type lookupCache struct {
	cache *lru.Cache[string, session.Ref]
}

func newLookupCache(size int) (*lookupCache, error) {
	c, err := lru.New[string, session.Ref](size)
	if err != nil {
		return nil, err
	}
	return &lookupCache{cache: c}, nil
}

func (l *lookupCache) put(ref session.Ref) { l.cache.Add(ref.ID, ref) }

func (l *lookupCache) get(threadID string) (session.Ref, bool) { return l.cache.Get(threadID) }

func (l *lookupCache) purge() { l.cache.Purge() }

// resolve returns the session a thread belongs to: from the cache, then
// from the sessions the manager tracks under appName.
func (l *lookupCache) resolve(sessions *session.Manager, appName, threadID string) (session.Ref, bool) {
	if ref, ok := l.get(threadID); ok {
		return ref, true
	}
	ref, ok := sessions.Lookup(appName, threadID)
	if ok {
		l.put(ref)
	}
	return ref, ok
}
