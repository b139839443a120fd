package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/harun/oracle/pkg/gateway"
)

// DefaultURL is the local server's chat endpoint
const DefaultURL = "ws://localhost:8000/chat"

// Renderer turns chunk markdown into terminal text
type Renderer interface {
	Render(markdown string) (string, error)
}

// Client is a chat connection to an oracle server
type Client struct {
	url         string
	dialTimeout time.Duration
	renderer    Renderer
	logger      zerolog.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  atomic.Bool
}

// Option configures a Client
type Option func(*Client)

func WithRenderer(r Renderer) Option {
	return func(c *Client) { c.renderer = r }
}

func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) { c.dialTimeout = d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for url. An empty url means DefaultURL.
func New(url string, opts ...Option) *Client {
	if url == "" {
		url = DefaultURL
	}
	c := &Client{
		url:         url,
		dialTimeout: 10 * time.Second,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the server endpoint
func (c *Client) URL() string {
	return c.url
}

// Connect dials the server.
func (c *Client) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.dialTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return &TransportError{URL: c.url, Err: err}
	}
	c.conn = conn
	c.closed.Store(false)
	c.logger.Debug().Str("url", c.url).Msg("Connected")
	return nil
}

// Send sends one prompt.
func (c *Client) Send(prompt string) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(gateway.PromptMessage{Content: prompt})
}

// Listen reads events until the connection ends and hands each to handle.
// It returns nil once the client itself closed the connection.
func (c *Client) Listen(handle func(gateway.Event)) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	for {
		var evt gateway.Event
		if err := c.conn.ReadJSON(&evt); err != nil {
			if c.closed.Load() {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrConnectionLost, err)
		}
		handle(evt)
	}
}

// Close closes the connection with a normal close frame.
func (c *Client) Close() error {
	if c.conn == nil || !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}

// Chat runs the interactive loop: read a line, send it, print the answer
// as it streams in. "quit" in any case ends the loop. A turn ends on done,
// error or rejected; an invalid notice is printed without ending it. Chat
// closes the connection before returning.
func (c *Client) Chat(ctx context.Context, lines LineReader, out io.Writer) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	defer c.Close()

	w := &syncWriter{w: out}
	turnDone := make(chan struct{}, 1)
	listenErr := make(chan error, 1)

	go func() {
		listenErr <- c.Listen(func(evt gateway.Event) {
			switch evt.Type {
			case gateway.EventChunk:
				c.printChunk(w, evt.Data)
			case gateway.EventError:
				fmt.Fprintf(w, "✗ %s\n", evt.Data)
				signal(turnDone)
			case gateway.EventRejected:
				fmt.Fprintf(w, "✗ Rejected: %s\n", evt.Data)
				signal(turnDone)
			case gateway.EventInvalid:
				fmt.Fprintf(w, "✗ %s\n", evt.Data)
			case gateway.EventDone:
				fmt.Fprintln(w)
				signal(turnDone)
			}
		})
	}()

	for {
		line, err := lines.ReadLine("You: ")
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, ErrInterrupted) {
				fmt.Fprintln(w, "Goodbye!")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "quit") {
			fmt.Fprintln(w, "Goodbye!")
			return nil
		}

		fmt.Fprintln(w, "\nOracle:")
		if err := c.Send(line); err != nil {
			return fmt.Errorf("%w: %v", ErrConnectionLost, err)
		}

		select {
		case <-turnDone:
		case err := <-listenErr:
			if err == nil {
				err = ErrConnectionLost
			}
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) printChunk(w io.Writer, chunk string) {
	if c.renderer == nil {
		fmt.Fprintln(w, chunk)
		return
	}
	rendered, err := c.renderer.Render(chunk)
	if err != nil {
		fmt.Fprintf(w, "✗ Error rendering markdown: %v\n%s\n", err, chunk)
		return
	}
	fmt.Fprint(w, rendered)
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
