package messages

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cameroncuttingedge/tic_tac_toe_lobby/game"
	"github.com/cameroncuttingedge/tic_tac_toe_lobby/lobby"
	"github.com/cameroncuttingedge/tic_tac_toe_lobby/utils"
)

type Kind string

// Requests.
const (
	KindConnection  Kind = "Connection"
	KindNickname    Kind = "Nickname"
	KindCreateLobby Kind = "CreateLobby"
	KindJoinLobby   Kind = "JoinLobby"
	KindLeaveLobby  Kind = "LeaveLobby"
	KindStartGame   Kind = "StartGame"
	KindMove        Kind = "Move"
	KindHover       Kind = "Hover"
)

// Responses. Move and Hover replies reuse the request kind.
const (
	KindSession Kind = "Session"
	KindLobby   Kind = "Lobby"
	KindLeft    Kind = "Left"
	KindError   Kind = "Error"
)

var ErrDecode = errors.New("malformed request")

type envelope struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type connectionData struct {
	Nickname    *string `json:"nickname"`
	AccessToken *string `json:"access_token"`
}

type nicknameData struct {
	Nickname string `json:"nickname"`
}

type joinLobbyData struct {
	Code string `json:"code"`
}

type positionData struct {
	Position *int `json:"position"`
}

// Request is one decoded client message. Only the fields relevant to Kind are set.
type Request struct {
	Kind        Kind
	Nickname    string
	AccessToken string
	Code        string
	Position    int
}

type Response struct {
	Type Kind `json:"type"`
	Data any  `json:"data"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// LobbyData is a lobby view sent to one of its members, with the symbol that member plays.
type LobbyData struct {
	lobby.View
	Player game.Player `json:"player,omitempty"`
}

type LeftData struct {
	Code *string `json:"code"`
}

// Decode parses a tagged {"type": ..., "data": ...} message.
func Decode(raw []byte) (Request, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	req := Request{Kind: env.Type}
	switch env.Type {
	case KindConnection:
		var data connectionData
		if err := decodeData(env.Data, &data, true); err != nil {
			return Request{}, err
		}
		if data.Nickname != nil {
			req.Nickname = *data.Nickname
		}
		if data.AccessToken != nil {
			req.AccessToken = *data.AccessToken
		}
	case KindNickname:
		var data nicknameData
		if err := decodeData(env.Data, &data, false); err != nil {
			return Request{}, err
		}
		if data.Nickname == "" {
			return Request{}, fmt.Errorf("%w: nickname is required", ErrDecode)
		}
		req.Nickname = data.Nickname
	case KindJoinLobby:
		var data joinLobbyData
		if err := decodeData(env.Data, &data, false); err != nil {
			return Request{}, err
		}
		if !utils.ValidLobbyCode(data.Code) {
			return Request{}, fmt.Errorf("%w: lobby code must be 4 digits", ErrDecode)
		}
		req.Code = data.Code
	case KindMove, KindHover:
		var data positionData
		if err := decodeData(env.Data, &data, false); err != nil {
			return Request{}, err
		}
		if data.Position == nil {
			return Request{}, fmt.Errorf("%w: position is required", ErrDecode)
		}
		req.Position = *data.Position
	case KindCreateLobby, KindLeaveLobby, KindStartGame:
	case "":
		return Request{}, fmt.Errorf("%w: missing type", ErrDecode)
	default:
		return Request{}, fmt.Errorf("%w: unknown type %q", ErrDecode, env.Type)
	}
	return req, nil
}

func decodeData(raw json.RawMessage, v any, optional bool) error {
	if len(raw) == 0 || string(raw) == "null" {
		if optional {
			return nil
		}
		return fmt.Errorf("%w: missing data", ErrDecode)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

func Encode(resp Response) ([]byte, error) {
	return json.Marshal(resp)
}

// NewError builds the error reply for err with its stable wire code.
func NewError(err error) Response {
	return Response{
		Type: KindError,
		Data: ErrorData{Code: ErrorCode(err), Message: err.Error()},
	}
}
