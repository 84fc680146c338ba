package loadbalancer

import (
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zalando/gateway/discovery"
	"github.com/zalando/gateway/routing"
)

type stickySession struct {
	instance discovery.Instance
	expiry   time.Time
	timer    *time.Timer
}

// cookieStickySessions binds the value of a cookie to the instance leased
// for the first request carrying it. The sessions expire after the
// configured time without requests; expired sessions are released to the
// inner load balancer.
type cookieStickySessions struct {
	inner    LoadBalancer
	cookie   string
	key      string
	duration time.Duration

	mx       sync.Mutex
	sessions map[string]*stickySession
	closed   bool
}

func newCookieStickySessions(route *routing.DownstreamRoute, services Services) LoadBalancer {
	return newCookieStickySessionsWith(route, newRoundRobin(route, services))
}

func newCookieStickySessionsWith(route *routing.DownstreamRoute, inner LoadBalancer) *cookieStickySessions {
	d := route.LoadBalancer.Expiry
	if d <= 0 {
		d = DefaultStickySessionExpiry
	}

	return &cookieStickySessions{
		inner:    inner,
		cookie:   route.LoadBalancer.Key,
		key:      route.LoadBalancerKey,
		duration: d,
		sessions: make(map[string]*stickySession),
	}
}

func (s *cookieStickySessions) sessionKey(r *http.Request) (string, bool) {
	if s.cookie == "" {
		return "", false
	}

	c, err := r.Cookie(s.cookie)
	if err != nil || c.Value == "" {
		return "", false
	}

	return s.key + ":" + c.Value, true
}

// Lease returns the instance of the session, when the request has the
// session cookie and the session has not expired. Otherwise it leases an
// instance from the inner load balancer, and stores it for the session.
func (s *cookieStickySessions) Lease(r *http.Request) (discovery.Instance, error) {
	key, ok := s.sessionKey(r)
	if !ok {
		return s.inner.Lease(r)
	}

	now := time.Now()

	s.mx.Lock()
	if ss, ok := s.sessions[key]; ok {
		if now.Before(ss.expiry) {
			ss.expiry = now.Add(s.duration)
			i := ss.instance
			s.mx.Unlock()
			return i, nil
		}

		// expired, but not evicted yet
		s.removeLocked(key, ss)
		s.mx.Unlock()
		s.inner.Release(ss.instance)
	} else {
		s.mx.Unlock()
	}

	i, err := s.inner.Lease(r)
	if err != nil {
		return discovery.Instance{}, err
	}

	s.mx.Lock()
	if s.closed {
		s.mx.Unlock()
		return i, nil
	}

	// a concurrent request of the same session stored it first
	var expired *stickySession
	if ss, ok := s.sessions[key]; ok {
		if now.Before(ss.expiry) {
			ss.expiry = now.Add(s.duration)
			stored := ss.instance
			s.mx.Unlock()
			s.inner.Release(i)
			return stored, nil
		}

		expired = ss
		s.removeLocked(key, ss)
	}

	ss := &stickySession{instance: i, expiry: now.Add(s.duration)}
	s.sessions[key] = ss
	s.scheduleLocked(key, ss, s.duration)
	s.mx.Unlock()

	if expired != nil {
		s.inner.Release(expired.instance)
	}

	return i, nil
}

func (s *cookieStickySessions) scheduleLocked(key string, ss *stickySession, d time.Duration) {
	ss.timer = time.AfterFunc(d, func() { s.evict(key, ss) })
}

func (s *cookieStickySessions) removeLocked(key string, ss *stickySession) {
	if ss.timer != nil {
		ss.timer.Stop()
	}

	delete(s.sessions, key)
}

// evict removes the session if it has expired, and releases its instance
// to the inner load balancer. If the session was refreshed in the
// meantime, it checks it again at the new expiry.
func (s *cookieStickySessions) evict(key string, ss *stickySession) {
	s.mx.Lock()
	if current, ok := s.sessions[key]; !ok || current != ss {
		s.mx.Unlock()
		return
	}

	if d := time.Until(ss.expiry); d > 0 {
		s.scheduleLocked(key, ss, d)
		s.mx.Unlock()
		return
	}

	delete(s.sessions, key)
	s.mx.Unlock()

	log.Debugf("sticky session %s expired", key)
	s.inner.Release(ss.instance)
}

// Release is a no-op, the sessions are released when they expire.
func (s *cookieStickySessions) Release(discovery.Instance) {}

// Close stops the eviction of the sessions.
func (s *cookieStickySessions) Close() error {
	s.mx.Lock()
	defer s.mx.Unlock()

	s.closed = true
	for key, ss := range s.sessions {
		s.removeLocked(key, ss)
	}

	return nil
}
