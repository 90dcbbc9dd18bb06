package lobby_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/cameroncuttingedge/tic_tac_toe_lobby/events"
	"github.com/cameroncuttingedge/tic_tac_toe_lobby/game"
	"github.com/cameroncuttingedge/tic_tac_toe_lobby/lobby"
	"github.com/cameroncuttingedge/tic_tac_toe_lobby/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(port int, nickname string) *session.Session {
	return session.New(fmt.Sprintf("token-%d", port), fmt.Sprintf("127.0.0.1:%d", port), nickname)
}

func alwaysX() game.Player { return game.PlayerX }

func TestNewLobby(t *testing.T) {
	s := newSession(1111, "keedrin")
	l := lobby.New("4821", s)

	assert.Equal(t, "4821", l.Code())
	assert.True(t, l.HasPlayer(s))
	assert.Nil(t, l.Game())
	assert.Equal(t, 1, l.PlayerCount())

	symbol, ok := l.Symbol(s)
	require.True(t, ok)
	assert.True(t, symbol.Valid())
}

func TestAddPlayerTakesComplementSymbol(t *testing.T) {
	for _, first := range []game.Player{game.PlayerX, game.PlayerO} {
		t.Run(string(first), func(t *testing.T) {
			host := newSession(1111, "host")
			guest := newSession(2222, "guest")
			l := lobby.New("4821", host, lobby.WithSymbolPicker(func() game.Player { return first }))

			symbol, err := l.AddPlayer(guest)
			require.NoError(t, err)
			assert.Equal(t, first.Opponent(), symbol)
			assert.Equal(t, 2, l.PlayerCount())
		})
	}
}

func TestAddPlayerFull(t *testing.T) {
	l := lobby.New("4821", newSession(1111, "a"))
	_, err := l.AddPlayer(newSession(2222, "b"))
	require.NoError(t, err)

	_, err = l.AddPlayer(newSession(3333, "c"))
	assert.ErrorIs(t, err, lobby.ErrLobbyFull)
	assert.Equal(t, 2, l.PlayerCount())
}

func TestAddPlayerTwice(t *testing.T) {
	host := newSession(1111, "a")
	l := lobby.New("4821", host, lobby.WithSymbolPicker(alwaysX))

	symbol, err := l.AddPlayer(host)
	require.NoError(t, err)
	assert.Equal(t, game.PlayerX, symbol)
	assert.Equal(t, 1, l.PlayerCount())
}

func TestRemovePlayerByIdentity(t *testing.T) {
	host := newSession(1111, "same")
	lookalike := session.New(host.Token(), host.Address(), "same")
	l := lobby.New("4821", host)

	assert.False(t, l.RemovePlayer(lookalike), "a session with equal fields is a different session")
	assert.Equal(t, 1, l.PlayerCount())

	assert.True(t, l.RemovePlayer(host))
	assert.Equal(t, 0, l.PlayerCount())
	assert.False(t, l.HasPlayer(host))
}

func TestRefillAfterRemove(t *testing.T) {
	host := newSession(1111, "a")
	guest := newSession(2222, "b")
	late := newSession(3333, "c")
	l := lobby.New("4821", host, lobby.WithSymbolPicker(alwaysX))
	_, err := l.AddPlayer(guest)
	require.NoError(t, err)

	require.True(t, l.RemovePlayer(host))
	symbol, err := l.AddPlayer(late)
	require.NoError(t, err)
	assert.Equal(t, game.PlayerX, symbol, "late joiner takes the symbol the remaining player does not hold")

	view := l.View()
	require.Len(t, view.Players, 2)
	assert.NotEqual(t, view.Players[0].Symbol, view.Players[1].Symbol)
}

func TestStartGameNeedsTwoPlayers(t *testing.T) {
	host := newSession(1111, "a")
	l := lobby.New("4821", host)

	_, err := l.StartGame()
	assert.ErrorIs(t, err, lobby.ErrNotEnoughPlayers)
	assert.Nil(t, l.Game())

	_, err = l.AddPlayer(newSession(2222, "b"))
	require.NoError(t, err)
	view, err := l.StartGame()
	require.NoError(t, err)
	require.NotNil(t, view.Game)
	assert.Equal(t, game.PlayerX, view.Game.Turn)
}

func TestStartGameResetsBoard(t *testing.T) {
	host := newSession(1111, "a")
	guest := newSession(2222, "b")
	l := lobby.New("4821", host, lobby.WithSymbolPicker(alwaysX))
	_, err := l.AddPlayer(guest)
	require.NoError(t, err)
	_, err = l.StartGame()
	require.NoError(t, err)
	_, err = l.Move(host, 0)
	require.NoError(t, err)

	view, err := l.StartGame()
	require.NoError(t, err)
	assert.Equal(t, game.None, view.Game.Board[0])
	assert.Equal(t, game.PlayerX, view.Game.Turn)
}

func TestMove(t *testing.T) {
	host := newSession(1111, "a")
	guest := newSession(2222, "b")
	outsider := newSession(3333, "c")
	l := lobby.New("4821", host, lobby.WithSymbolPicker(alwaysX))
	_, err := l.AddPlayer(guest)
	require.NoError(t, err)

	_, err = l.Move(host, 0)
	assert.ErrorIs(t, err, lobby.ErrGameNotStarted)

	_, err = l.StartGame()
	require.NoError(t, err)

	_, err = l.Move(outsider, 0)
	assert.ErrorIs(t, err, lobby.ErrNotInLobby)

	move, err := l.Move(host, 0)
	require.NoError(t, err)
	assert.Equal(t, game.PlayerX, move.Board[0])
	assert.Equal(t, game.PlayerO, move.Turn)

	_, err = l.Move(guest, 0)
	assert.ErrorIs(t, err, game.ErrCellOccupied)
	_, err = l.Move(host, 4)
	assert.ErrorIs(t, err, game.ErrNotYourTurn)
}

func TestMovePublishesCommittedBoard(t *testing.T) {
	host := newSession(1111, "a")
	guest := newSession(2222, "b")
	l := lobby.New("4821", host, lobby.WithSymbolPicker(alwaysX))
	_, err := l.AddPlayer(guest)
	require.NoError(t, err)
	_, err = l.StartGame()
	require.NoError(t, err)

	sub, err := l.Channel().Subscribe()
	require.NoError(t, err)
	defer sub.Unsubscribe()

	_, err = l.Move(host, 4)
	require.NoError(t, err)

	event := <-sub.Events()
	require.Equal(t, events.KindMove, event.Type)
	move := event.Data.(events.MoveEvent)
	assert.Equal(t, l.Game().Board, move.Board)
	assert.Equal(t, game.PlayerX, move.Symbol)
}

func TestHover(t *testing.T) {
	host := newSession(1111, "a")
	guest := newSession(2222, "b")
	l := lobby.New("4821", host, lobby.WithSymbolPicker(alwaysX))
	_, err := l.AddPlayer(guest)
	require.NoError(t, err)

	_, err = l.Hover(guest, 2)
	assert.ErrorIs(t, err, lobby.ErrGameNotStarted)

	_, err = l.StartGame()
	require.NoError(t, err)
	sub, err := l.Channel().Subscribe()
	require.NoError(t, err)

	_, err = l.Hover(guest, 12)
	assert.ErrorIs(t, err, game.ErrOutOfBounds)

	hover, err := l.Hover(guest, 2)
	require.NoError(t, err)
	assert.Equal(t, events.HoverEvent{Position: 2, Symbol: game.PlayerO}, hover)
	event := <-sub.Events()
	assert.Equal(t, events.KindHover, event.Type)
	assert.Equal(t, game.None, l.Game().Board[2], "hover leaves the board alone")
}

func TestViewReflectsRename(t *testing.T) {
	host := newSession(1111, "before")
	l := lobby.New("4821", host)

	host.SetNickname("after")

	view := l.View()
	require.Len(t, view.Players, 1)
	require.NotNil(t, view.Players[0].Nickname)
	assert.Equal(t, "after", *view.Players[0].Nickname)
}

func TestClose(t *testing.T) {
	l := lobby.New("4821", newSession(1111, "a"))
	sub, err := l.Channel().Subscribe()
	require.NoError(t, err)

	l.Close()

	assert.True(t, l.Closed())
	_, ok := <-sub.Events()
	assert.False(t, ok)
}

func TestConcurrentAddNeverExceedsCapacity(t *testing.T) {
	l := lobby.New("4821", newSession(1000, "host"))

	var wg sync.WaitGroup
	var mu sync.Mutex
	added := 0
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := l.AddPlayer(newSession(1000+i, "")); err == nil {
				mu.Lock()
				added++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, added)
	assert.Equal(t, 2, l.PlayerCount())
	view := l.View()
	assert.NotEqual(t, view.Players[0].Symbol, view.Players[1].Symbol)
}
