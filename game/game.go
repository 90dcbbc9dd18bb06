package game

import (
	"encoding/json"
	"errors"
	"strings"
)

type Player string

const (
	PlayerX Player = "X"
	PlayerO Player = "O"
	None    Player = ""
)

// Cells is the number of squares on the 3x3 board.
const Cells = 9

var (
	ErrOutOfBounds  = errors.New("position is out of bounds")
	ErrCellOccupied = errors.New("a player is already at this location")
	ErrNotYourTurn  = errors.New("it is not your turn")
)

// Opponent returns the other symbol. None has no opponent.
func (p Player) Opponent() Player {
	switch p {
	case PlayerX:
		return PlayerO
	case PlayerO:
		return PlayerX
	}
	return None
}

func (p Player) Valid() bool {
	return p == PlayerX || p == PlayerO
}

// Board is indexed row-major, 0 is the top left cell and 8 the bottom right.
type Board [Cells]Player

// MarshalJSON encodes empty cells as null so the wire format is a 9-slot array of symbol-or-null.
func (b Board) MarshalJSON() ([]byte, error) {
	cells := make([]*string, Cells)
	for i, cell := range b {
		if cell == None {
			continue
		}
		s := string(cell)
		cells[i] = &s
	}
	return json.Marshal(cells)
}

func (b *Board) UnmarshalJSON(data []byte) error {
	var cells []*string
	if err := json.Unmarshal(data, &cells); err != nil {
		return err
	}
	if len(cells) != Cells {
		return errors.New("board must have 9 cells")
	}
	for i, cell := range cells {
		if cell == nil {
			b[i] = None
			continue
		}
		b[i] = Player(*cell)
	}
	return nil
}

// Game holds the board and whose turn it is. It knows nothing about sessions or lobbies;
// three in a row or a full board does not end it.
type Game struct {
	Board Board  `json:"board"`
	Turn  Player `json:"turn"`
}

// NewGame returns an empty board with X to move.
func NewGame() *Game {
	return &Game{Turn: PlayerX}
}

// MakeMove places player's symbol at position and passes the turn to the opponent.
func (g *Game) MakeMove(player Player, position int) (Board, error) {
	if position < 0 || position >= Cells {
		return g.Board, ErrOutOfBounds
	}
	if g.Board[position] != None {
		return g.Board, ErrCellOccupied
	}
	if player != g.Turn {
		return g.Board, ErrNotYourTurn
	}

	g.Board[position] = player
	g.Turn = player.Opponent()
	return g.Board, nil
}

// ValidPosition reports whether position addresses a cell on the board.
func ValidPosition(position int) bool {
	return position >= 0 && position < Cells
}

// String renders the board as a 3x3 grid, used for debug logging.
func (g *Game) String() string {
	var sb strings.Builder
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			cell := g.Board[row*3+col]
			if cell == None {
				sb.WriteString("-")
			} else {
				sb.WriteString(string(cell))
			}
			if col < 2 {
				sb.WriteString(" ")
			}
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Turn: ")
	sb.WriteString(string(g.Turn))
	return sb.String()
}
