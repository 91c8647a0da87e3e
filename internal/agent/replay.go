package agent

import (
	"errors"
	"fmt"

	feedlog "kashimo.ai/internal/persistence/log"
	"kashimo.ai/internal/protocol"
	"kashimo.ai/internal/sim/catalogs"
	"kashimo.ai/internal/transport/ws"
)

var ErrNoSession = errors.New("feed log: message before any session")

// Replayer feeds a recorded feed log back into a Runner. A WELCOME followed by the
// block palette CATALOG becomes a Session, the way the live feed delivers it.
type Replayer struct {
	run *Runner

	welcome *protocol.WelcomeMsg
	started bool

	Entries  int
	Sessions int
}

func NewReplayer(r *Runner) *Replayer {
	return &Replayer{run: r}
}

// Entry applies one log entry.
func (p *Replayer) Entry(e feedlog.FeedEntry) error {
	msg, err := protocol.Decode(e.Msg)
	if err != nil {
		return fmt.Errorf("entry %d: %w", e.Seq, err)
	}
	p.Entries++
	switch m := msg.(type) {
	case protocol.WelcomeMsg:
		p.welcome = &m
		return nil
	case protocol.CatalogMsg:
		if p.welcome == nil || m.Name != protocol.CatalogBlockPalette {
			return nil
		}
		blocks, err := catalogs.ParseBlocks(m.Data)
		if err != nil {
			return fmt.Errorf("entry %d: %w", e.Seq, err)
		}
		if want := p.welcome.Catalogs.BlockPalette.Digest; blocks.Digest != want {
			return fmt.Errorf("entry %d: %w: advertised %s, logged %s", e.Seq, ws.ErrCatalogMismatch, want, blocks.Digest)
		}
		p.run.Apply(ws.Session{Welcome: *p.welcome, Blocks: blocks})
		p.welcome = nil
		p.started = true
		p.Sessions++
		return nil
	}
	if p.welcome != nil {
		return fmt.Errorf("entry %d: WELCOME without a block palette", e.Seq)
	}
	if !p.started {
		return fmt.Errorf("entry %d: %w", e.Seq, ErrNoSession)
	}
	p.run.Apply(msg)
	return nil
}

func (p *Replayer) File(path string) error {
	return feedlog.ReadFeedFile(path, p.Entry)
}

// Dir replays every feed log in dir, oldest first, and scans what is still pending.
func (p *Replayer) Dir(dir string) error {
	files, err := feedlog.ListFeedFiles(dir)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := p.File(f); err != nil {
			return err
		}
	}
	p.run.Flush()
	return nil
}
