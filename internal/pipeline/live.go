package internal

import (
	"net/http"

	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"
)

// Hub streams dispatch outcomes to connected websocket clients.
type Hub struct {
	register   chan *liveClient
	unregister chan *liveClient
	outcomes   chan Outcome

	connections map[*liveClient]bool

	wsUpgrader websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		register:    make(chan *liveClient),
		unregister:  make(chan *liveClient),
		outcomes:    make(chan Outcome, 64),
		connections: map[*liveClient]bool{},
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Broadcast queues an outcome for every connected client. Never
// blocks the dispatcher; the stream is best effort.
func (hub *Hub) Broadcast(outcome Outcome) {
	select {
	case hub.outcomes <- outcome:
	default:
	}
}

func (hub *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := hub.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		zlog.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	c := &liveClient{
		hub:  hub,
		ws:   ws,
		send: make(chan Outcome, 16),
	}
	hub.register <- c

	go c.listenWrite()
	c.listenRead()
}

func (hub *Hub) Run() {
	for {
		select {
		case c := <-hub.register:
			hub.connections[c] = true
		case c := <-hub.unregister:
			if _, ok := hub.connections[c]; ok {
				delete(hub.connections, c)
				close(c.send)
			}
		case outcome := <-hub.outcomes:
			for c := range hub.connections {
				select {
				case c.send <- outcome:
				default:
				}
			}
		}
	}
}

type liveClient struct {
	hub  *Hub
	ws   *websocket.Conn
	send chan Outcome
}

func (c *liveClient) listenWrite() {
	for outcome := range c.send {
		if err := c.ws.WriteJSON(outcome); err != nil {
			break
		}
	}
	c.ws.Close()
}

// listenRead drains the connection so close frames are seen.
func (c *liveClient) listenRead() {
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			break
		}
	}
	c.hub.unregister <- c
}
