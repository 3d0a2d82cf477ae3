package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/conduit-ucpi/webapp-sub000/pkg/logging"
)

// ErrRelayClosed is returned for requests outstanding when the socket drops.
var ErrRelayClosed = errors.New("relay connection closed")

const writeWait = 10 * time.Second

type conn struct {
	ws     *websocket.Conn
	logger logging.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan Message
	onEvent func(Message)

	control chan Message
	done    chan struct{}
	once    sync.Once
}

func dial(ctx context.Context, relayURL, projectID string, logger logging.Logger) (*conn, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	q := u.Query()
	q.Set("projectId", projectID)
	u.RawQuery = q.Encode()

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	c := &conn{
		ws:      ws,
		logger:  logger,
		pending: make(map[uint64]chan Message),
		control: make(chan Message, 4),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *conn) setEventHandler(fn func(Message)) {
	c.mu.Lock()
	c.onEvent = fn
	c.mu.Unlock()
}

func (c *conn) readLoop() {
	defer c.shutdown()
	for {
		var m Message
		if err := c.ws.ReadJSON(&m); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.WithError(err).Debug("Relay read ended")
			}
			return
		}
		switch m.Type {
		case MsgResponse:
			c.mu.Lock()
			if ch, ok := c.pending[m.ID]; ok {
				delete(c.pending, m.ID)
				ch <- m // buffered, never blocks
			}
			c.mu.Unlock()
		case MsgApprove, MsgReject:
			select {
			case c.control <- m:
			default:
				c.logger.WithField("type", m.Type).Warn("Dropping unexpected relay control message")
			}
		case MsgEvent, MsgDelete:
			c.mu.Lock()
			fn := c.onEvent
			c.mu.Unlock()
			if fn != nil {
				fn(m)
			}
		}
	}
}

func (c *conn) shutdown() {
	c.once.Do(func() {
		close(c.done)
		c.mu.Lock()
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.mu.Unlock()
	})
}

func (c *conn) send(m Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(m)
}

// await blocks for the wallet's answer to a pair or resume message.
func (c *conn) await(ctx context.Context) (Message, error) {
	select {
	case m := <-c.control:
		return m, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-c.done:
		return Message{}, ErrRelayClosed
	}
}

func (c *conn) request(ctx context.Context, topic, method string, params []any) (json.RawMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}

	ch := make(chan Message, 1)
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.send(Message{Type: MsgRequest, Topic: topic, ID: id, Method: method, Params: raw}); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("relay send: %w", err)
	}

	select {
	case m, ok := <-ch:
		if !ok {
			return nil, ErrRelayClosed
		}
		if m.Error != nil {
			return nil, m.Error
		}
		return m.Result, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrRelayClosed
	}
}

func (c *conn) close() {
	c.writeMu.Lock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	_ = c.ws.Close()
	c.shutdown()
}
