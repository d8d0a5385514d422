// Package client runs one replica: it keeps a local store and history, mirrors
// the store to durable storage, and keeps a websocket to the relay alive,
// re-offering the mirror every time the connection comes back.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/astromechza/rectangle-sync/pkg/history"
	"github.com/astromechza/rectangle-sync/pkg/mirror"
	"github.com/astromechza/rectangle-sync/pkg/protocol"
	"github.com/astromechza/rectangle-sync/pkg/rect"
	"github.com/astromechza/rectangle-sync/pkg/replica"
)

var (
	ErrTransportUnavailable = errors.New("transport unavailable")
	ErrUnknownRectangle     = errors.New("unknown rectangle")
)

// errOutboundFull reports a change the relay never received because the
// connection could not keep up.
var errOutboundFull = fmt.Errorf("%w: outbound queue is full", ErrTransportUnavailable)

const (
	noticeUnreachable = "Unable to connect to websocket!"
	noticeDropped     = "Unable to send your change, please try again."
)

// Storage is the durable mirror. *mirror.Mirror satisfies it.
type Storage interface {
	Load(ctx context.Context) ([]rect.Rectangle, error)
	Save(ctx context.Context, rects []rect.Rectangle) error
}

type Config struct {
	// URL is the relay's websocket endpoint, e.g. ws://localhost:8080/sync.
	URL      string
	Mirror   Storage
	Notifier mirror.Notifier
	// ReconnectAttempts is how many consecutive failed connections are
	// tolerated before the client gives up and stays offline.
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	Timeout           time.Duration
	// OnNotice receives user-facing, non-fatal messages.
	OnNotice func(message string)
	Logger   *slog.Logger
}

type Client struct {
	cfg     Config
	logger  *slog.Logger
	store   *replica.Store
	history *history.Stack

	mu   sync.Mutex
	out  chan []byte
	done chan struct{}

	// persistMu orders mirror writes so a stale snapshot never lands last.
	persistMu sync.Mutex
	adopted   []rect.Rectangle
}

// New builds a client seeded from the mirror, if one is configured.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("relay url is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ReconnectAttempts < 0 {
		cfg.ReconnectAttempts = 0
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	var seed []rect.Rectangle
	if cfg.Mirror != nil {
		rects, err := cfg.Mirror.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load mirror: %w", err)
		}
		seed = rects
	}

	c := &Client{cfg: cfg, logger: cfg.Logger, store: replica.New(seed...)}
	c.history = history.New(c.store, history.EmitterFunc(c.Emit))
	c.store.Subscribe(func(replica.Change) { c.persist() })
	return c, nil
}

// Store is the local replica, for rendering.
func (c *Client) Store() *replica.Store {
	return c.store
}

func (c *Client) History() *history.Stack {
	return c.history
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out != nil
}

// setOutbound publishes the queue of the current connection. done is closed
// once nothing reads out any more.
func (c *Client) setOutbound(out chan []byte, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out, c.done = out, done
}

// Emit queues m for the relay. It fails with ErrTransportUnavailable while
// disconnected; nothing is queued for later. A full queue is waited on for up
// to the configured timeout.
func (c *Client) Emit(m protocol.Mutation) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	c.mu.Lock()
	out, done := c.out, c.done
	c.mu.Unlock()
	if out == nil {
		return ErrTransportUnavailable
	}
	select {
	case out <- data:
		return nil
	default:
	}
	t := time.NewTimer(c.cfg.Timeout)
	defer t.Stop()
	select {
	case out <- data:
		return nil
	case <-done:
		return ErrTransportUnavailable
	case <-t.C:
		return errOutboundFull
	}
}

func (c *Client) notice(message string) {
	c.logger.Warn("notice", "message", message)
	if c.cfg.OnNotice != nil {
		c.cfg.OnNotice(message)
	}
}

// Run keeps the connection alive and watches the mirror until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if c.cfg.Notifier != nil {
		g.Go(func() error {
			if err := c.cfg.Notifier.Watch(ctx, c.pickUpMirror); err != nil {
				c.logger.Warn("stopped watching mirror", "err", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		c.connectContinuously(ctx)
		return nil
	})
	return g.Wait()
}

func (c *Client) connectContinuously(ctx context.Context) {
	failures := 0
	for {
		connected, err := c.connectAndServe(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			failures = 0
		}
		failures++
		c.logger.Warn("relay connection failed", "err", err, "attempt", failures)
		if failures > c.cfg.ReconnectAttempts {
			c.notice(noticeUnreachable)
			c.logger.Info("staying offline")
			<-ctx.Done()
			return
		}
		t := time.NewTimer(c.cfg.ReconnectDelay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
}

// connectAndServe dials the relay and serves the connection until it breaks.
// connected reports whether the dial itself succeeded.
func (c *Client) connectAndServe(ctx context.Context) (connected bool, err error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.Timeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to dial: %w", err)
	}
	defer conn.Close()

	if err := c.offerSnapshot(ctx, conn); err != nil {
		return true, err
	}

	out, done := make(chan []byte, 64), make(chan struct{})
	c.setOutbound(out, done)
	defer func() {
		c.setOutbound(nil, nil)
		close(done)
	}()
	c.logger.Info("connected to relay", "url", c.cfg.URL)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		_ = conn.Close()
		return nil
	})
	g.Go(func() error {
		return c.writeLoop(gctx, conn, out)
	})
	g.Go(func() error {
		return c.readLoop(conn)
	})
	return true, g.Wait()
}

// offerSnapshot re-offers what this replica knows so that rectangles created
// while offline reach the relay. The relay only adds ids it does not have.
func (c *Client) offerSnapshot(ctx context.Context, conn *websocket.Conn) error {
	rects := c.store.All()
	if c.cfg.Mirror != nil {
		stored, err := c.cfg.Mirror.Load(ctx)
		if err != nil {
			c.logger.Warn("failed to load mirror for reconcile", "err", err)
		} else {
			rects = stored
		}
	}
	if len(rects) == 0 {
		return nil
	}
	data, err := protocol.Encode(protocol.Init{Rectangles: rects})
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.Timeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to offer snapshot: %w", err)
	}
	c.logger.Info("offered snapshot", "rectangles", len(rects))
	return nil
}

func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan []byte) error {
	for {
		select {
		case data := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.Timeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return fmt.Errorf("failed to write message: %w", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read message: %w", err)
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			c.logger.Warn("dropping invalid frame", "err", err)
			continue
		}
		c.dispatch(msg)
	}
}

// dispatch applies one message pushed by the relay.
func (c *Client) dispatch(msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.Failure:
		c.reconcile(m)
	case protocol.Init:
		c.store.ReplaceAll(m.Rectangles)
	case protocol.Clear:
		c.store.Clear()
		c.history.Reset()
	case protocol.Add, protocol.Delete:
		c.store.Apply(m.(protocol.Mutation))
	case protocol.Mutation:
		if !c.store.Apply(m) {
			c.notice(protocol.NotFound(m).Message)
		}
	}
}

// reconcile handles a rejection from the relay. A NotFound means canonical
// state no longer has the rectangle, so neither should this replica or its
// history.
func (c *Client) reconcile(f *protocol.Failure) {
	c.logger.Warn("relay rejected mutation", "code", f.Code, "id", f.ID, "message", f.Message)
	if f.Code != protocol.CodeNotFound {
		c.notice("Something unexpected occurred!")
		return
	}
	if f.ID != "" {
		c.store.Delete(f.ID)
		if n := c.history.Forget(f.ID); n > 0 {
			c.logger.Info("dropped history for missing rectangle", "id", f.ID, "entries", n)
		}
	}
	c.notice(f.Message)
}

// persist writes the latest store content to the mirror and announces it,
// unless it is exactly what was just adopted from another replica.
func (c *Client) persist() {
	if c.cfg.Mirror == nil && c.cfg.Notifier == nil {
		return
	}
	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()

	rects := c.store.All()
	if c.cfg.Mirror != nil {
		if err := c.cfg.Mirror.Save(ctx, rects); err != nil {
			c.logger.Error("failed to persist mirror", "err", err)
			return
		}
	}
	echo := c.adopted != nil && slices.Equal(rects, c.adopted)
	c.adopted = nil
	if c.cfg.Notifier != nil && !echo {
		if err := c.cfg.Notifier.Notify(ctx, rects); err != nil {
			c.logger.Warn("failed to announce mirror write", "err", err)
		}
	}
}

// pickUpMirror adopts a mirror written by another replica, but only while
// there is no relay to tell us the truth.
func (c *Client) pickUpMirror(u mirror.Update) {
	if c.Connected() {
		return
	}
	rects := u.Rectangles
	if rects == nil {
		if c.cfg.Mirror == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
		defer cancel()
		stored, err := c.cfg.Mirror.Load(ctx)
		if err != nil {
			c.logger.Warn("failed to load mirror", "err", err)
			return
		}
		rects = stored
	}
	if slices.Equal(rects, c.store.All()) {
		return
	}
	c.logger.Info("picked up mirror from another replica", "rectangles", len(rects))
	c.persistMu.Lock()
	c.adopted = rects
	c.persistMu.Unlock()
	c.store.ReplaceAll(rects)
}
