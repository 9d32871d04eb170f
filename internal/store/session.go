package store

import (
	"sync"

	"collaborative-grid/internal/domain"
)

// SessionStore 保存用户列表、频道码和本地用户名。
type SessionStore struct {
	mu      sync.RWMutex
	session domain.Session
	feeds   *broadcaster[domain.Session]
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		session: domain.Session{Users: []domain.User{}},
		feeds:   newBroadcaster[domain.Session](),
	}
}

// SetUsers 整体替换用户列表
func (s *SessionStore) SetUsers(users []domain.User) {
	s.update(func(sess *domain.Session) {
		sess.Users = make([]domain.User, len(users))
		copy(sess.Users, users)
	})
}

func (s *SessionStore) SetChannelCode(code string) {
	s.update(func(sess *domain.Session) { sess.ChannelCode = code })
}

func (s *SessionStore) SetLocalUsername(username string) {
	s.update(func(sess *domain.Session) { sess.LocalUsername = username })
}

func (s *SessionStore) update(fn func(*domain.Session)) {
	s.mu.Lock()
	fn(&s.session)
	s.feeds.publish(s.session.Clone())
	s.mu.Unlock()
}

// Snapshot 返回会话信息的深拷贝
func (s *SessionStore) Snapshot() domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Clone()
}

// LocalUser 返回本地用户在用户列表中的条目
func (s *SessionStore) LocalUser() (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.LocalUser()
}

func (s *SessionStore) Subscribe() (<-chan domain.Session, func()) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feeds.subscribe(s.session.Clone())
}
