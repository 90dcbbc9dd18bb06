package events

import (
	"errors"
	"sync"

	"github.com/cameroncuttingedge/tic_tac_toe_lobby/game"
	"github.com/rs/zerolog/log"
)

type Kind string

const (
	KindLobby Kind = "Lobby"
	KindMove  Kind = "Move"
	KindHover Kind = "Hover"
)

const DefaultBuffer = 64

var ErrClosed = errors.New("notification channel is closed")

type Event struct {
	Type Kind `json:"type"`
	Data any  `json:"data"`
}

type MoveEvent struct {
	Position int         `json:"position"`
	Symbol   game.Player `json:"symbol"`
	Board    game.Board  `json:"board"`
	Turn     game.Player `json:"turn"`
}

type HoverEvent struct {
	Position int         `json:"position"`
	Symbol   game.Player `json:"symbol"`
}

// Channel fans every published event out to all current subscribers.
type Channel struct {
	name   string
	buffer int

	mu          sync.Mutex
	subscribers map[*Subscription]struct{}
	closed      bool
}

type Subscription struct {
	ch      chan Event
	channel *Channel
	once    sync.Once
}

func NewChannel(name string, buffer int) *Channel {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Channel{
		name:        name,
		buffer:      buffer,
		subscribers: make(map[*Subscription]struct{}),
	}
}

// Events published before Subscribe are not replayed.
func (c *Channel) Subscribe() (*Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	sub := &Subscription{ch: make(chan Event, c.buffer), channel: c}
	c.subscribers[sub] = struct{}{}
	log.Debug().Str("channel", c.name).Int("subscribers", len(c.subscribers)).Msg("Subscriber attached")
	return sub, nil
}

// Publish never blocks: a subscriber whose queue is full misses the event. It returns the
// number of subscribers the event was queued for.
func (c *Channel) Publish(event Event) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0
	}
	delivered := 0
	for sub := range c.subscribers {
		select {
		case sub.ch <- event:
			delivered++
		default:
			log.Warn().Str("channel", c.name).Str("event", string(event.Type)).Msg("Subscriber queue full, dropping event")
		}
	}
	return delivered
}

func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for sub := range c.subscribers {
		close(sub.ch)
		delete(c.subscribers, sub)
	}
	log.Debug().Str("channel", c.name).Msg("Notification channel closed")
}

func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Channel) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscribers)
}

// Events is closed when the subscription ends, either by Unsubscribe or by the channel closing.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		c := s.channel
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subscribers[s]; ok {
			delete(c.subscribers, s)
			close(s.ch)
		}
	})
}
