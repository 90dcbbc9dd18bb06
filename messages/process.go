package messages

import (
	"errors"
	"fmt"

	"github.com/cameroncuttingedge/tic_tac_toe_lobby/lobby"
	"github.com/cameroncuttingedge/tic_tac_toe_lobby/session"
	"github.com/cameroncuttingedge/tic_tac_toe_lobby/state"
	"github.com/rs/zerolog/log"
)

// Processor turns decoded requests from one transport address into AppState calls.
type Processor struct {
	state    *state.AppState
	onDetach func(address string)
}

type ProcessorOption func(*Processor)

// WithDetachHook is called with the address a session was attached to before it was resumed
// on another connection.
func WithDetachHook(fn func(address string)) ProcessorOption {
	return func(p *Processor) {
		p.onDetach = fn
	}
}

func NewProcessor(s *state.AppState, opts ...ProcessorOption) *Processor {
	p := &Processor{state: s}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle decodes raw, processes it and always returns a reply; failures become Error replies.
func (p *Processor) Handle(address string, raw []byte) Response {
	req, err := Decode(raw)
	if err != nil {
		log.Warn().Err(err).Str("address", address).Msg("Failed to decode request")
		return NewError(err)
	}
	resp, err := p.Process(address, req)
	if err != nil {
		log.Info().Err(err).Str("address", address).Str("type", string(req.Kind)).Msg("Request failed")
		return NewError(err)
	}
	return resp
}

func (p *Processor) Process(address string, req Request) (Response, error) {
	if req.Kind == KindConnection {
		return p.connect(address, req)
	}

	sess, err := p.session(address)
	if err != nil {
		return Response{}, err
	}

	switch req.Kind {
	case KindNickname:
		if err := p.rename(sess, req.Nickname); err != nil {
			return Response{}, err
		}
		return Response{Type: KindSession, Data: sess.View()}, nil

	case KindCreateLobby:
		l, err := p.state.NewLobby(sess)
		if err != nil {
			return Response{}, err
		}
		return p.lobbyReply(KindLobby, l.View(), sess), nil

	case KindJoinLobby:
		l, err := p.state.JoinLobby(req.Code, sess)
		if err != nil {
			return Response{}, err
		}
		return p.lobbyReply(KindLobby, l.View(), sess), nil

	case KindLeaveLobby:
		var left LeftData
		if l, ok := p.state.LeaveLobby(sess); ok {
			code := l.Code()
			left.Code = &code
		}
		return Response{Type: KindLeft, Data: left}, nil

	case KindStartGame:
		view, err := p.state.StartGame(sess)
		if err != nil {
			return Response{}, err
		}
		return p.lobbyReply(KindStartGame, view, sess), nil

	case KindMove:
		move, err := p.state.Move(sess, req.Position)
		if err != nil {
			return Response{}, err
		}
		return Response{Type: KindMove, Data: move}, nil

	case KindHover:
		hover, err := p.state.Hover(sess, req.Position)
		if err != nil {
			return Response{}, err
		}
		return Response{Type: KindHover, Data: hover}, nil
	}
	return Response{}, fmt.Errorf("%w: unknown type %q", ErrDecode, req.Kind)
}

// connect creates a session, or resumes one when an access token is given. A tokenless
// handshake on a connection that already has a session keeps that session. A nickname sent
// along renames the session.
func (p *Processor) connect(address string, req Request) (Response, error) {
	var sess *session.Session
	if req.AccessToken == "" {
		existing, err := p.state.SessionBySocket(address)
		if err != nil {
			sess = p.state.NewSession(address, req.Nickname)
			return Response{Type: KindSession, Data: sess.View()}, nil
		}
		sess = existing
	} else {
		resumed, detached, err := p.state.MoveSession(address, req.AccessToken)
		if err != nil {
			return Response{}, err
		}
		if detached != "" && p.onDetach != nil {
			p.onDetach(detached)
		}
		sess = resumed
	}

	if req.Nickname != "" {
		if err := p.rename(sess, req.Nickname); err != nil {
			return Response{}, err
		}
	}
	return Response{Type: KindSession, Data: sess.View()}, nil
}

func (p *Processor) rename(sess *session.Session, nickname string) error {
	if _, err := p.state.Rename(sess.Token(), nickname); err != nil {
		return err
	}
	if l, ok := p.state.LobbyOf(sess); ok {
		l.PublishView()
	}
	return nil
}

func (p *Processor) lobbyReply(kind Kind, view lobby.View, sess *session.Session) Response {
	data := LobbyData{View: view}
	if symbol, ok := p.state.Symbol(sess); ok {
		data.Player = symbol
	}
	return Response{Type: kind, Data: data}
}

// session resolves the caller, registering an anonymous session if the connection skipped
// the Connection handshake.
func (p *Processor) session(address string) (*session.Session, error) {
	sess, err := p.state.SessionBySocket(address)
	if errors.Is(err, state.ErrUnknownSocket) {
		return p.state.NewSession(address, ""), nil
	}
	return sess, err
}
