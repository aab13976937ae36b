package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/igolaizola/tradehook/pkg/exchange"
	"github.com/igolaizola/tradehook/pkg/exchange/catalog"
	"go.uber.org/zap"
)

var ErrNotSupported = errors.New("exchange not supported")

// Pool keeps the opened exchanges and shares them among every sequence that
// references the same (name, credentials) identity. An exchange stays in the
// pool while its reference count is above zero.
//
// Identity is decided by the exchanges through Matches. A new exchange is
// registered as pending before Init runs, and any opener matching it waits
// until Init has finished, so a handle is never initialized twice and is
// never returned half initialized.
type Pool struct {
	catalog catalog.Catalog
	log     *zap.Logger

	lock   sync.Mutex
	opened []*slot
}

type slot struct {
	ex    exchange.Exchange
	ready chan struct{}
}

func (s *slot) initialized() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

func New(c catalog.Catalog, log *zap.Logger) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{
		catalog: c,
		log:     log,
	}
}

// FindOpened returns the opened exchange matching name and creds, or nil.
// Equality is decided by the exchange itself.
func (p *Pool) FindOpened(name string, creds exchange.Credentials) exchange.Exchange {
	p.lock.Lock()
	defer p.lock.Unlock()
	if s := p.find(name, creds); s != nil {
		return s.ex
	}
	return nil
}

// Open returns a referenced exchange for name and creds, reusing an opened one
// when possible. A new exchange is resolved from the catalog by
// creds.Exchange, or name when empty, and initialized for symbol. If Init
// fails the exchange is destroyed regardless of its reference count.
func (p *Pool) Open(ctx context.Context, name string, creds exchange.Credentials, symbol string) (exchange.Exchange, error) {
	for {
		p.lock.Lock()
		s := p.find(name, creds)
		if s == nil {
			return p.create(ctx, name, creds, symbol)
		}
		if s.initialized() {
			s.ex.AddReference()
			p.lock.Unlock()
			return s.ex, nil
		}
		p.lock.Unlock()

		// Wait for the pending exchange and look it up again, it is gone if
		// its Init failed.
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("pool: couldn't open %s: %w", name, ctx.Err())
		case <-s.ready:
		}
	}
}

// create is called with the pool lock held and releases it.
func (p *Pool) create(ctx context.Context, name string, creds exchange.Credentials, symbol string) (exchange.Exchange, error) {
	kind := creds.Exchange
	if kind == "" {
		kind = name
	}
	entry, ok := p.catalog.Lookup(kind)
	if !ok {
		p.lock.Unlock()
		return nil, fmt.Errorf("pool: %w: %s", ErrNotSupported, kind)
	}
	ex, err := entry.New(name, creds, p.log)
	if err != nil {
		p.lock.Unlock()
		return nil, fmt.Errorf("pool: couldn't create %s: %w", name, err)
	}
	s := &slot{ex: ex, ready: make(chan struct{})}
	p.opened = append(p.opened, s)
	p.lock.Unlock()

	if err := ex.Init(ctx, symbol); err != nil {
		p.log.Error("exchange initialization failed",
			zap.String("exchange", name),
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		p.lock.Lock()
		p.remove(s)
		p.lock.Unlock()
		close(s.ready)
		if err := ex.Terminate(ctx); err != nil {
			p.log.Warn("couldn't terminate exchange", zap.String("exchange", ex.Name()), zap.Error(err))
		}
		return nil, fmt.Errorf("pool: couldn't init %s for %s: %w", name, symbol, err)
	}
	close(s.ready)
	p.log.Debug("exchange opened", zap.String("exchange", name), zap.String("symbol", symbol))
	return ex, nil
}

// Close releases a reference of ex. When no references are left the exchange
// is terminated and removed from the pool. Closing nil or an exchange that is
// no longer in the pool does nothing.
func (p *Pool) Close(ctx context.Context, ex exchange.Exchange) error {
	if ex == nil {
		return nil
	}
	name, creds := ex.Name(), ex.Credentials()

	p.lock.Lock()
	s := p.find(name, creds)
	if s == nil || !s.initialized() {
		p.lock.Unlock()
		return nil
	}
	if s.ex.RemoveReference() > 0 {
		p.lock.Unlock()
		return nil
	}
	p.remove(s)
	p.lock.Unlock()

	if err := s.ex.Terminate(ctx); err != nil {
		return fmt.Errorf("pool: couldn't terminate %s: %w", name, err)
	}
	p.log.Debug("exchange closed", zap.String("exchange", name))
	return nil
}

// Shutdown terminates every exchange left in the pool.
func (p *Pool) Shutdown(ctx context.Context) {
	p.lock.Lock()
	opened := p.opened
	p.opened = nil
	p.lock.Unlock()
	for _, s := range opened {
		if err := s.ex.Terminate(ctx); err != nil {
			p.log.Warn("couldn't terminate exchange", zap.String("exchange", s.ex.Name()), zap.Error(err))
		}
	}
}

// Len returns the number of opened exchanges, pending ones included.
func (p *Pool) Len() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return len(p.opened)
}

func (p *Pool) find(name string, creds exchange.Credentials) *slot {
	for _, s := range p.opened {
		if s.ex.Matches(name, creds) {
			return s
		}
	}
	return nil
}

func (p *Pool) remove(s *slot) {
	for i, o := range p.opened {
		if o == s {
			p.opened = append(p.opened[:i], p.opened[i+1:]...)
			return
		}
	}
}
