package messages

import (
	"errors"

	"github.com/cameroncuttingedge/tic_tac_toe_lobby/game"
	"github.com/cameroncuttingedge/tic_tac_toe_lobby/lobby"
	"github.com/cameroncuttingedge/tic_tac_toe_lobby/state"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{state.ErrUnknownToken, "UnknownToken"},
	{state.ErrUnknownLobby, "UnknownLobby"},
	{state.ErrNoLobbyCodes, "NoLobbyCodes"},
	{game.ErrCellOccupied, "CellOccupied"},
	{game.ErrOutOfBounds, "OutOfBounds"},
	{game.ErrNotYourTurn, "NotYourTurn"},
	{lobby.ErrGameNotStarted, "GameNotStarted"},
	{lobby.ErrNotInLobby, "NotInLobby"},
	{lobby.ErrLobbyFull, "LobbyFull"},
	{lobby.ErrNotEnoughPlayers, "NotEnoughPlayers"},
	{ErrDecode, "BadRequest"},
}

// ErrorCode maps err to the code sent to clients. Unrecognised errors are "Internal".
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "Internal"
}
