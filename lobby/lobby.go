package lobby

import (
	"errors"
	"math/rand/v2"
	"sync"

	"github.com/cameroncuttingedge/tic_tac_toe_lobby/events"
	"github.com/cameroncuttingedge/tic_tac_toe_lobby/game"
	"github.com/cameroncuttingedge/tic_tac_toe_lobby/session"
	"github.com/rs/zerolog/log"
)

const Capacity = 2

var (
	ErrLobbyFull        = errors.New("lobby is full")
	ErrNotEnoughPlayers = errors.New("a game needs two players")
	ErrGameNotStarted   = errors.New("game has not started")
	ErrNotInLobby       = errors.New("session is not in this lobby")
)

// SymbolPicker chooses the symbol for a player entering an empty lobby.
type SymbolPicker func() game.Player

func RandomSymbol() game.Player {
	if rand.IntN(2) == 0 {
		return game.PlayerX
	}
	return game.PlayerO
}

type slot struct {
	session *session.Session
	symbol  game.Player
}

// Lobby pairs up to two sessions around one game.
type Lobby struct {
	code    string
	channel *events.Channel
	pick    SymbolPicker

	mu    sync.Mutex
	game  *game.Game
	slots [Capacity]*slot
}

type PlayerView struct {
	Nickname *string     `json:"nickname"`
	Symbol   game.Player `json:"symbol"`
}

type View struct {
	Code    string       `json:"code"`
	Players []PlayerView `json:"players"`
	Game    *game.Game   `json:"game"`
}

type Option func(*Lobby)

// WithSymbolPicker replaces the uniform random choice of the first occupant's symbol.
func WithSymbolPicker(pick SymbolPicker) Option {
	return func(l *Lobby) {
		l.pick = pick
	}
}

func WithChannelBuffer(buffer int) Option {
	return func(l *Lobby) {
		l.channel = events.NewChannel(l.code, buffer)
	}
}

func New(code string, first *session.Session, opts ...Option) *Lobby {
	l := &Lobby{
		code: code,
		pick: RandomSymbol,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.channel == nil {
		l.channel = events.NewChannel(code, events.DefaultBuffer)
	}
	l.slots[0] = &slot{session: first, symbol: l.pick()}
	return l
}

func (l *Lobby) Code() string {
	return l.code
}

func (l *Lobby) Channel() *events.Channel {
	return l.channel
}

// AddPlayer puts s in the first empty slot. The symbol is the complement of the other
// occupant's, or a fresh pick when the lobby is empty. Adding a session that is already
// present returns its current symbol.
func (l *Lobby) AddPlayer(s *session.Session) (game.Player, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if sl := l.find(s); sl != nil {
		return sl.symbol, nil
	}

	free := -1
	var other *slot
	for i, sl := range l.slots {
		if sl == nil {
			if free < 0 {
				free = i
			}
			continue
		}
		other = sl
	}
	if free < 0 {
		return game.None, ErrLobbyFull
	}

	symbol := l.pick()
	if other != nil {
		symbol = other.symbol.Opponent()
	}
	l.slots[free] = &slot{session: s, symbol: symbol}
	return symbol, nil
}

// RemovePlayer matches by identity and reports whether s was present.
func (l *Lobby) RemovePlayer(s *session.Session) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, sl := range l.slots {
		if sl != nil && sl.session == s {
			l.slots[i] = nil
			return true
		}
	}
	return false
}

func (l *Lobby) HasPlayer(s *session.Session) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.find(s) != nil
}

func (l *Lobby) PlayerCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count()
}

func (l *Lobby) Symbol(s *session.Session) (game.Player, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if sl := l.find(s); sl != nil {
		return sl.symbol, true
	}
	return game.None, false
}

// StartGame replaces the current game with a fresh board. Both slots must be filled.
func (l *Lobby) StartGame() (View, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count() < Capacity {
		return l.view(), ErrNotEnoughPlayers
	}
	l.game = game.NewGame()
	view := l.view()

	log.Info().Str("code", l.code).Msg("Game started")
	l.channel.Publish(events.Event{Type: events.KindLobby, Data: view})
	return view, nil
}

// Move publishes the resulting board before the lobby is unlocked.
func (l *Lobby) Move(s *session.Session, position int) (events.MoveEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sl := l.find(s)
	if sl == nil {
		return events.MoveEvent{}, ErrNotInLobby
	}
	if l.game == nil {
		return events.MoveEvent{}, ErrGameNotStarted
	}

	board, err := l.game.MakeMove(sl.symbol, position)
	if err != nil {
		return events.MoveEvent{}, err
	}
	move := events.MoveEvent{
		Position: position,
		Symbol:   sl.symbol,
		Board:    board,
		Turn:     l.game.Turn,
	}

	log.Debug().Str("code", l.code).Str("board", l.game.String()).Msg("Move applied")
	l.channel.Publish(events.Event{Type: events.KindMove, Data: move})
	return move, nil
}

func (l *Lobby) Hover(s *session.Session, position int) (events.HoverEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sl := l.find(s)
	if sl == nil {
		return events.HoverEvent{}, ErrNotInLobby
	}
	if l.game == nil {
		return events.HoverEvent{}, ErrGameNotStarted
	}
	if !game.ValidPosition(position) {
		return events.HoverEvent{}, game.ErrOutOfBounds
	}

	hover := events.HoverEvent{Position: position, Symbol: sl.symbol}
	l.channel.Publish(events.Event{Type: events.KindHover, Data: hover})
	return hover, nil
}

// Game returns a copy of the current game, or nil before StartGame.
func (l *Lobby) Game() *game.Game {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.game == nil {
		return nil
	}
	g := *l.game
	return &g
}

func (l *Lobby) View() View {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.view()
}

func (l *Lobby) PublishView() View {
	l.mu.Lock()
	defer l.mu.Unlock()
	view := l.view()
	l.channel.Publish(events.Event{Type: events.KindLobby, Data: view})
	return view
}

// Close is called once the lobby has left every index.
func (l *Lobby) Close() {
	l.channel.Close()
}

func (l *Lobby) Closed() bool {
	return l.channel.Closed()
}

func (l *Lobby) find(s *session.Session) *slot {
	for _, sl := range l.slots {
		if sl != nil && sl.session == s {
			return sl
		}
	}
	return nil
}

func (l *Lobby) count() int {
	n := 0
	for _, sl := range l.slots {
		if sl != nil {
			n++
		}
	}
	return n
}

func (l *Lobby) view() View {
	v := View{Code: l.code, Players: make([]PlayerView, 0, Capacity)}
	for _, sl := range l.slots {
		if sl == nil {
			continue
		}
		v.Players = append(v.Players, PlayerView{
			Nickname: sl.session.View().Nickname,
			Symbol:   sl.symbol,
		})
	}
	if l.game != nil {
		g := *l.game
		v.Game = &g
	}
	return v
}
