package httpdriver

import (
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/debugbar-collector/pkg/requestid"
)

// DefaultCookieName 会话 cookie 名
const DefaultCookieName = "DEBUGBAR_SESSID"

// Session 单个浏览器会话的键值数据
// 同一会话的并发请求按整值读改写，后写覆盖先写
type Session struct {
	ID string

	mu       sync.Mutex
	values   map[string]any
	lastSeen time.Time
}

func (s *Session) Set(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
}

func (s *Session) Get(name string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[name]
}

func (s *Session) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.values[name]
	return ok
}

func (s *Session) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, name)
}

// MemorySessionStore 基于 cookie 的进程内会话存储
type MemorySessionStore struct {
	CookieName string
	TTL        time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
	clock    clockwork.Clock
	ids      requestid.Generator
}

// NewMemorySessionStore 创建会话存储，ttl<=0 表示会话不过期
func NewMemorySessionStore(ttl time.Duration, clock clockwork.Clock) *MemorySessionStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemorySessionStore{
		CookieName: DefaultCookieName,
		TTL:        ttl,
		sessions:   make(map[string]*Session),
		clock:      clock,
		ids:        requestid.Default,
	}
}

// Start 读取或创建会话，新会话通过 Set-Cookie 下发
func (m *MemorySessionStore) Start(w http.ResponseWriter, r *http.Request) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	m.expire(now)

	if c, err := r.Cookie(m.CookieName); err == nil {
		if s, ok := m.sessions[c.Value]; ok {
			s.lastSeen = now
			return s
		}
	}

	s := &Session{ID: m.ids.Generate(), values: make(map[string]any), lastSeen: now}
	m.sessions[s.ID] = s
	http.SetCookie(w, &http.Cookie{
		Name:     m.CookieName,
		Value:    s.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return s
}

// Len 当前存活的会话数
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *MemorySessionStore) expire(now time.Time) {
	if m.TTL <= 0 {
		return
	}
	for id, s := range m.sessions {
		if now.Sub(s.lastSeen) > m.TTL {
			delete(m.sessions, id)
		}
	}
}
