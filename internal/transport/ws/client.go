package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"kashimo.ai/internal/protocol"
	"kashimo.ai/internal/sim/catalogs"
)

var (
	ErrHandshake       = errors.New("handshake failed")
	ErrCatalogMismatch = errors.New("block palette digest mismatch")
)

type FeedConfig struct {
	URL        string
	Name       string
	MaxQueue   int
	ViewRadius int
	// Blocks is the locally known palette. It is used as is when the server
	// advertises the same digest; otherwise the server's CATALOG is adopted.
	Blocks      *catalogs.BlockCatalog
	ReadTimeout time.Duration
	// Reconnect keeps Run dialing with backoff after a dropped connection.
	Reconnect bool
	Logger    *log.Logger
}

// Session is delivered first on every new connection. Anything mirrored from an
// earlier connection is stale once it arrives.
type Session struct {
	Welcome protocol.WelcomeMsg
	Blocks  *catalogs.BlockCatalog
}

// Feed is a websocket client that turns the server's stream into decoded messages.
type Feed struct {
	cfg  FeedConfig
	log  *log.Logger
	msgs chan any
}

func NewFeed(cfg FeedConfig) *Feed {
	if cfg.Name == "" {
		cfg.Name = "farmer"
	}
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = 256
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Feed{cfg: cfg, log: logger, msgs: make(chan any, cfg.MaxQueue)}
}

// Messages yields a Session followed by protocol message values. It is closed when Run
// returns.
func (f *Feed) Messages() <-chan any { return f.msgs }

// Run connects and streams until ctx is cancelled, or until the first failure when
// reconnecting is off.
func (f *Feed) Run(ctx context.Context) error {
	defer close(f.msgs)
	backoff := 250 * time.Millisecond
	for {
		err := f.connectAndReadLoop(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !f.cfg.Reconnect {
			return err
		}
		f.log.Printf("feed: %v; reconnecting in %s", err, backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 5*time.Second {
			backoff *= 2
			if backoff > 5*time.Second {
				backoff = 5 * time.Second
			}
		}
	}
}

func (f *Feed) connectAndReadLoop(ctx context.Context) error {
	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := d.DialContext(ctx, f.cfg.URL, http.Header{})
	if err != nil {
		return err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	hello := protocol.NewHello(f.cfg.Name, protocol.HelloCapabilities{
		MaxQueue:   f.cfg.MaxQueue,
		ViewRadius: f.cfg.ViewRadius,
	})
	if err := writeJSON(conn, hello); err != nil {
		return err
	}

	sess, err := f.handshake(conn)
	if err != nil {
		return err
	}
	f.log.Printf("feed: connected session=%s palette=%d states", sess.Welcome.SessionID, len(sess.Blocks.States))
	if err := f.deliver(ctx, sess); err != nil {
		return err
	}

	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	for {
		_ = conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		m, err := protocol.Decode(msg)
		if err != nil {
			f.log.Printf("feed: drop message: %v", err)
			continue
		}
		if e, ok := m.(protocol.ErrorMsg); ok {
			f.log.Printf("feed: server error %s: %s", e.Code, e.Message)
		}
		if err := f.deliver(ctx, m); err != nil {
			return err
		}
	}
}

// handshake reads the WELCOME and settles on a block palette.
func (f *Feed) handshake(conn *websocket.Conn) (Session, error) {
	var welcome protocol.WelcomeMsg
	if err := readJSON(conn, protocol.TypeWelcome, &welcome); err != nil {
		return Session{}, err
	}
	if welcome.ProtocolVersion != protocol.Version {
		return Session{}, fmt.Errorf("%w: server speaks protocol %q", ErrHandshake, welcome.ProtocolVersion)
	}
	sess := Session{Welcome: welcome}
	want := welcome.Catalogs.BlockPalette.Digest
	if f.cfg.Blocks != nil && f.cfg.Blocks.Digest == want {
		sess.Blocks = f.cfg.Blocks
		return sess, nil
	}

	var cat protocol.CatalogMsg
	if err := readJSON(conn, protocol.TypeCatalog, &cat); err != nil {
		return Session{}, err
	}
	if cat.Name != protocol.CatalogBlockPalette {
		return Session{}, fmt.Errorf("%w: expected %s catalog, got %q", ErrHandshake, protocol.CatalogBlockPalette, cat.Name)
	}
	blocks, err := catalogs.ParseBlocks(cat.Data)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if blocks.Digest != want {
		return Session{}, fmt.Errorf("%w: advertised %s, received %s", ErrCatalogMismatch, want, blocks.Digest)
	}
	sess.Blocks = blocks
	return sess, nil
}

func readJSON(conn *websocket.Conn, typ string, v any) error {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if base.Type == protocol.TypeError {
		var e protocol.ErrorMsg
		_ = json.Unmarshal(msg, &e)
		return fmt.Errorf("%w: %s %s", ErrHandshake, e.Code, e.Message)
	}
	if base.Type != typ {
		return fmt.Errorf("%w: expected %s, got %s", ErrHandshake, typ, base.Type)
	}
	return json.Unmarshal(msg, v)
}

func (f *Feed) deliver(ctx context.Context, v any) error {
	select {
	case f.msgs <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
