package session

import "sync"

// Session outlives its connection: the token is fixed, the address moves on reconnect.
type Session struct {
	token string

	mu       sync.RWMutex
	nickname string
	address  string
}

type View struct {
	AccessToken string  `json:"access_token"`
	Nickname    *string `json:"nickname"`
}

func New(token, address, nickname string) *Session {
	return &Session{
		token:    token,
		nickname: nickname,
		address:  address,
	}
}

// Token never changes after creation, so it is readable without the lock.
func (s *Session) Token() string {
	return s.token
}

func (s *Session) Nickname() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nickname, s.nickname != ""
}

// An empty nickname clears it.
func (s *Session) SetNickname(nickname string) {
	s.mu.Lock()
	s.nickname = nickname
	s.mu.Unlock()
}

func (s *Session) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

// SetAddress returns the previous address.
func (s *Session) SetAddress(address string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.address
	s.address = address
	return previous
}

func (s *Session) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := View{AccessToken: s.token}
	if s.nickname != "" {
		nickname := s.nickname
		v.Nickname = &nickname
	}
	return v
}
