// Package state is the shared root of the server: it owns every session and lobby and the
// indexes between them, and is the only place cross-entity transitions happen.
//
// Locking: AppState.mu guards the four index maps and is held only for in-memory work. Lobby
// and Session carry their own locks. The acquisition order is always
//
//	AppState.mu -> Lobby.mu -> Session.mu
//
// and no lock is taken while a later one in that order is held. Membership changes (create,
// join, leave) run entirely under AppState.mu, so a reader resolving a session's lobby through
// the index never sees it in two lobbies or, mid-transition, in none. Lobby-scoped actions
// (start, move, hover) resolve the lobby under AppState.mu, release it, then work under the
// lobby's lock only. Notification channels are published to and closed outside AppState.mu.
package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cameroncuttingedge/tic_tac_toe_lobby/events"
	"github.com/cameroncuttingedge/tic_tac_toe_lobby/game"
	"github.com/cameroncuttingedge/tic_tac_toe_lobby/lobby"
	"github.com/cameroncuttingedge/tic_tac_toe_lobby/session"
	"github.com/cameroncuttingedge/tic_tac_toe_lobby/utils"
	"github.com/rs/zerolog/log"
)

const maxCodeAttempts = 64

var (
	ErrUnknownToken  = errors.New("unknown session token")
	ErrUnknownLobby  = errors.New("unknown lobby code")
	ErrUnknownSocket = errors.New("no session for this connection")
	ErrNoLobbyCodes  = errors.New("no free lobby codes")
)

type AppState struct {
	mu          sync.Mutex
	sockets     map[string]*session.Session // transport address -> session
	sessions    map[string]*session.Session // token -> session
	lobbies     map[string]*lobby.Lobby     // code -> lobby
	memberships map[string]*lobby.Lobby     // token -> lobby the session is in

	newToken  func() string
	newCode   func() string
	lobbyOpts []lobby.Option
}

// Stats is a point-in-time count of the indexes.
type Stats struct {
	Sessions    int `json:"sessions"`
	Sockets     int `json:"sockets"`
	Lobbies     int `json:"lobbies"`
	Memberships int `json:"memberships"`
}

type Option func(*AppState)

func WithTokenGenerator(gen func() string) Option {
	return func(s *AppState) {
		s.newToken = gen
	}
}

// WithCodeGenerator replaces the random 4-digit lobby code source. Codes already in use are
// retried, so the generator may repeat itself.
func WithCodeGenerator(gen func() string) Option {
	return func(s *AppState) {
		s.newCode = gen
	}
}

// WithLobbyOptions is applied to every lobby the state creates.
func WithLobbyOptions(opts ...lobby.Option) Option {
	return func(s *AppState) {
		s.lobbyOpts = append(s.lobbyOpts, opts...)
	}
}

func NewAppState(opts ...Option) *AppState {
	s := &AppState{
		sockets:     make(map[string]*session.Session),
		sessions:    make(map[string]*session.Session),
		lobbies:     make(map[string]*lobby.Lobby),
		memberships: make(map[string]*lobby.Lobby),
		newToken:    utils.GenerateUUIDString,
		newCode:     utils.GenerateLobbyCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSession registers a fresh session reachable at address. A session that address belonged
// to is displaced: it leaves its lobby and stays resumable by token.
func (s *AppState) NewSession(address, nickname string) *session.Session {
	s.mu.Lock()

	token := s.newToken()
	for {
		if _, taken := s.sessions[token]; !taken {
			break
		}
		token = s.newToken()
	}

	sess := session.New(token, address, nickname)
	s.sessions[token] = sess
	left, destroyed := s.displaceLocked(address, sess)
	s.sockets[address] = sess
	count := len(s.sessions)
	s.mu.Unlock()

	log.Info().Str("token", token).Str("address", address).Int("sessions", count).Msg("Session created")
	s.afterLeave(left, destroyed)
	return sess
}

// MoveSession re-points the session owning token at address. Nickname and lobby membership
// are untouched; the old address stops resolving to the session and is returned if it was
// still attached, so the transport can drop it. A different session on address is displaced
// as in NewSession.
func (s *AppState) MoveSession(address, token string) (*session.Session, string, error) {
	s.mu.Lock()

	sess, ok := s.sessions[token]
	if !ok {
		s.mu.Unlock()
		return nil, "", ErrUnknownToken
	}

	left, destroyed := s.displaceLocked(address, sess)
	previous := sess.SetAddress(address)
	detached := ""
	if previous != address && s.sockets[previous] == sess {
		delete(s.sockets, previous)
		detached = previous
	}
	s.sockets[address] = sess
	s.mu.Unlock()

	log.Info().Str("token", token).Str("from", previous).Str("address", address).Msg("Session resumed")
	s.afterLeave(left, destroyed)
	return sess, detached, nil
}

// displaceLocked must be called with s.mu held. The caller runs afterLeave on the result.
func (s *AppState) displaceLocked(address string, next *session.Session) (*lobby.Lobby, bool) {
	prev, ok := s.sockets[address]
	if !ok || prev == next {
		return nil, false
	}
	log.Info().Str("token", prev.Token()).Str("address", address).Msg("Session displaced from socket")
	return s.leaveLocked(prev)
}

// Rename sets the nickname of the session owning token.
func (s *AppState) Rename(token, nickname string) (*session.Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[token]
	s.mu.Unlock()
	if !ok {
		return nil, ErrUnknownToken
	}

	sess.SetNickname(nickname)
	log.Info().Str("token", token).Str("nickname", nickname).Msg("Session renamed")
	return sess, nil
}

// DisconnectSocket forgets the address of a closed connection. The session itself stays
// registered so it can be resumed by token.
func (s *AppState) DisconnectSocket(address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sockets[address]
	if !ok {
		return false
	}
	delete(s.sockets, address)
	log.Info().Str("token", sess.Token()).Str("address", address).Msg("Socket detached")
	return true
}

func (s *AppState) SessionBySocket(address string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sockets[address]
	if !ok {
		return nil, ErrUnknownSocket
	}
	return sess, nil
}

func (s *AppState) SessionByToken(token string) (*session.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	return sess, ok
}

// NewLobby creates a lobby with sess as its first occupant. If sess was already in a lobby it
// leaves it first, in the same critical section.
func (s *AppState) NewLobby(sess *session.Session) (*lobby.Lobby, error) {
	s.mu.Lock()

	code, err := s.freeCodeLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	left, destroyed := s.leaveLocked(sess)
	l := lobby.New(code, sess, s.lobbyOpts...)
	s.lobbies[code] = l
	s.memberships[sess.Token()] = l
	count := len(s.lobbies)
	s.mu.Unlock()

	log.Info().Str("token", sess.Token()).Str("code", code).Int("lobbies", count).Msg("Lobby created")
	s.afterLeave(left, destroyed)
	return l, nil
}

// JoinLobby moves sess into the lobby with code, leaving its current lobby first. Joining the
// lobby sess is already in is a no-op. A full lobby is refused before anything is left.
func (s *AppState) JoinLobby(code string, sess *session.Session) (*lobby.Lobby, error) {
	s.mu.Lock()

	target, ok := s.lobbies[code]
	if !ok {
		s.mu.Unlock()
		return nil, ErrUnknownLobby
	}
	if s.memberships[sess.Token()] == target {
		s.mu.Unlock()
		return target, nil
	}
	if target.PlayerCount() >= lobby.Capacity {
		s.mu.Unlock()
		return nil, lobby.ErrLobbyFull
	}

	left, destroyed := s.leaveLocked(sess)
	if _, err := target.AddPlayer(sess); err != nil {
		s.mu.Unlock()
		s.afterLeave(left, destroyed)
		return nil, fmt.Errorf("join lobby %s: %w", code, err)
	}
	s.memberships[sess.Token()] = target
	s.mu.Unlock()

	log.Info().Str("token", sess.Token()).Str("code", code).Msg("Lobby joined")
	s.afterLeave(left, destroyed)
	target.PublishView()
	return target, nil
}

// LeaveLobby removes sess from its lobby, destroying the lobby if it is now empty. It returns
// the lobby that was left, or false if sess was in none.
func (s *AppState) LeaveLobby(sess *session.Session) (*lobby.Lobby, bool) {
	s.mu.Lock()
	left, destroyed := s.leaveLocked(sess)
	s.mu.Unlock()

	if left == nil {
		return nil, false
	}
	s.afterLeave(left, destroyed)
	return left, true
}

// leaveLocked must be called with s.mu held. Closing the channel of a destroyed lobby is left to
// afterLeave, outside the lock.
func (s *AppState) leaveLocked(sess *session.Session) (*lobby.Lobby, bool) {
	token := sess.Token()
	l, ok := s.memberships[token]
	if !ok {
		return nil, false
	}

	l.RemovePlayer(sess)
	delete(s.memberships, token)

	destroyed := false
	if l.PlayerCount() == 0 {
		delete(s.lobbies, l.Code())
		destroyed = true
	}
	log.Info().Str("token", token).Str("code", l.Code()).Bool("destroyed", destroyed).Msg("Lobby left")
	return l, destroyed
}

func (s *AppState) afterLeave(l *lobby.Lobby, destroyed bool) {
	if l == nil {
		return
	}
	if destroyed {
		l.Close()
		return
	}
	l.PublishView()
}

// freeCodeLocked must be called with s.mu held.
func (s *AppState) freeCodeLocked() (string, error) {
	if len(s.lobbies) >= utils.LobbyCodeSpace {
		return "", ErrNoLobbyCodes
	}
	for i := 0; i < maxCodeAttempts; i++ {
		code := s.newCode()
		if _, taken := s.lobbies[code]; !taken {
			return code, nil
		}
		log.Debug().Str("code", code).Msg("Lobby code collision, retrying")
	}
	for n := 0; n < utils.LobbyCodeSpace; n++ {
		code := utils.FormatLobbyCode(n)
		if _, taken := s.lobbies[code]; !taken {
			return code, nil
		}
	}
	return "", ErrNoLobbyCodes
}

// Lobby resolves a live lobby by code.
func (s *AppState) Lobby(code string) (*lobby.Lobby, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lobbies[code]
	return l, ok
}

// LobbyOf returns the lobby sess is a member of.
func (s *AppState) LobbyOf(sess *session.Session) (*lobby.Lobby, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.memberships[sess.Token()]
	return l, ok
}

func (s *AppState) memberLobby(sess *session.Session) (*lobby.Lobby, error) {
	l, ok := s.LobbyOf(sess)
	if !ok {
		return nil, lobby.ErrNotInLobby
	}
	return l, nil
}

// StartGame starts a fresh game in sess's lobby.
func (s *AppState) StartGame(sess *session.Session) (lobby.View, error) {
	l, err := s.memberLobby(sess)
	if err != nil {
		return lobby.View{}, err
	}
	return l.StartGame()
}

// Move plays sess's symbol at position in its lobby's game.
func (s *AppState) Move(sess *session.Session, position int) (events.MoveEvent, error) {
	l, err := s.memberLobby(sess)
	if err != nil {
		return events.MoveEvent{}, err
	}
	move, err := l.Move(sess, position)
	if err != nil {
		return move, err
	}
	log.Info().
		Str("token", sess.Token()).
		Str("code", l.Code()).
		Int("position", position).
		Str("symbol", string(move.Symbol)).
		Msg("Move played")
	return move, nil
}

// Hover broadcasts a move preview to sess's lobby.
func (s *AppState) Hover(sess *session.Session, position int) (events.HoverEvent, error) {
	l, err := s.memberLobby(sess)
	if err != nil {
		return events.HoverEvent{}, err
	}
	return l.Hover(sess, position)
}

// Symbol returns the symbol sess holds in its current lobby.
func (s *AppState) Symbol(sess *session.Session) (game.Player, bool) {
	l, ok := s.LobbyOf(sess)
	if !ok {
		return game.None, false
	}
	return l.Symbol(sess)
}

func (s *AppState) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Sessions:    len(s.sessions),
		Sockets:     len(s.sockets),
		Lobbies:     len(s.lobbies),
		Memberships: len(s.memberships),
	}
}
