// Package relay implements the broadcast relay. A single event loop owns the
// canonical registry and the set of connected peers; connection goroutines only
// decode frames and hand them to the loop, so no two mutations ever run
// concurrently against the registry.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/astromechza/rectangle-sync/pkg/protocol"
	"github.com/astromechza/rectangle-sync/pkg/rect"
	"github.com/astromechza/rectangle-sync/pkg/registry"
)

var ErrClosed = errors.New("relay is not running")

type Options struct {
	Logger *slog.Logger
	// PeerBuffer is the number of outbound frames queued per peer before the
	// peer is considered too slow and dropped.
	PeerBuffer   int
	WriteTimeout time.Duration
}

type Relay struct {
	logger       *slog.Logger
	registry     *registry.Registry
	peers        map[*peer]struct{}
	requests     chan request
	done         chan struct{}
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	peerBuffer   int
}

type peer struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// request is one unit of work for the event loop. Exactly one field is set.
type request struct {
	join     *peer
	leave    *peer
	from     *peer
	mutation protocol.Mutation
	snapshot chan<- []rect.Rectangle
}

func New(opts Options) *Relay {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PeerBuffer <= 0 {
		opts.PeerBuffer = 256
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	return &Relay{
		logger:   opts.Logger,
		registry: registry.New(),
		peers:    make(map[*peer]struct{}),
		requests: make(chan request),
		done:     make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		writeTimeout: opts.WriteTimeout,
		peerBuffer:   opts.PeerBuffer,
	}
}

// Run processes requests until ctx is cancelled, then disconnects every peer.
// It must be called exactly once.
func (r *Relay) Run(ctx context.Context) error {
	defer close(r.done)
	for {
		select {
		case req := <-r.requests:
			r.handle(req)
		case <-ctx.Done():
			for p := range r.peers {
				r.drop(p)
			}
			r.logger.Info("relay stopped", "rectangles", r.registry.Len())
			return nil
		}
	}
}

// Snapshot returns the canonical collection in insertion order.
func (r *Relay) Snapshot(ctx context.Context) ([]rect.Rectangle, error) {
	out := make(chan []rect.Rectangle, 1)
	if err := r.submit(ctx, request{snapshot: out}); err != nil {
		return nil, err
	}
	select {
	case rects := <-out:
		return rects, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Relay) submit(ctx context.Context, req request) error {
	select {
	case r.requests <- req:
		return nil
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Relay) handle(req request) {
	switch {
	case req.join != nil:
		r.peers[req.join] = struct{}{}
		r.logger.Info("peer connected", "peer", req.join.id, "peers", len(r.peers))
		r.enqueue(req.join, protocol.Init{Rectangles: r.registry.Snapshot()})
	case req.leave != nil:
		if _, ok := r.peers[req.leave]; ok {
			r.drop(req.leave)
			r.logger.Info("peer disconnected", "peer", req.leave.id, "peers", len(r.peers))
		}
	case req.snapshot != nil:
		req.snapshot <- r.registry.Snapshot()
	case req.mutation != nil:
		r.apply(req.from, req.mutation)
	}
}

func (r *Relay) apply(from *peer, m protocol.Mutation) {
	out := r.registry.Apply(m)
	r.logger.Debug("applied event",
		"peer", from.id, "event", m.Event(), "target", m.Target(),
		"broadcast", len(out.Broadcast), "rejected", out.Reply != nil)
	if out.Reply != nil {
		if _, ok := r.peers[from]; ok {
			r.enqueue(from, out.Reply)
		}
		return
	}
	for _, msg := range out.Broadcast {
		data, err := protocol.Encode(msg)
		if err != nil {
			r.logger.Error("failed to encode broadcast", "event", msg.Event(), "err", err)
			continue
		}
		for p := range r.peers {
			r.enqueueRaw(p, data)
		}
	}
}

func (r *Relay) enqueue(p *peer, msg protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		r.logger.Error("failed to encode message", "event", msg.Event(), "err", err)
		return
	}
	r.enqueueRaw(p, data)
}

// enqueueRaw never blocks the loop: a peer whose queue is full is dropped and
// has to reconnect.
func (r *Relay) enqueueRaw(p *peer, data []byte) {
	select {
	case p.send <- data:
	default:
		r.logger.Warn("dropping slow peer", "peer", p.id)
		r.drop(p)
	}
}

func (r *Relay) drop(p *peer) {
	delete(r.peers, p)
	close(p.send)
}

// ServeHTTP upgrades the request to a websocket and serves it until either
// side goes away.
func (r *Relay) ServeHTTP(writer http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(writer, req, nil)
	if err != nil {
		r.logger.Error("failed to upgrade", "err", err)
		return
	}
	p := &peer{id: uuid.NewString(), conn: conn, send: make(chan []byte, r.peerBuffer)}

	// The initial snapshot is queued by the loop before the read pump starts,
	// so it is always the first frame the peer sees.
	if err := r.submit(req.Context(), request{join: p}); err != nil {
		r.logger.Warn("rejecting peer", "peer", p.id, "err", err)
		_ = conn.Close()
		return
	}
	go r.writePump(p)
	r.readPump(p)
	_ = r.submit(context.Background(), request{leave: p})
}

func (r *Relay) readPump(p *peer) {
	for {
		mt, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.logger.Warn("peer read failed", "peer", p.id, "err", err)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			r.logger.Warn("dropping invalid frame", "peer", p.id, "err", err)
			continue
		}
		m, ok := msg.(protocol.Mutation)
		if !ok {
			r.logger.Warn("dropping non-mutation frame", "peer", p.id, "event", msg.Event())
			continue
		}
		if err := r.submit(context.Background(), request{from: p, mutation: m}); err != nil {
			return
		}
	}
}

func (r *Relay) writePump(p *peer) {
	defer p.conn.Close()
	for data := range p.send {
		_ = p.conn.SetWriteDeadline(time.Now().Add(r.writeTimeout))
		if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			r.logger.Warn("peer write failed", "peer", p.id, "err", err)
			return
		}
	}
	_ = p.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(r.writeTimeout),
	)
}
