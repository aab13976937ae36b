package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/igolaizola/tradehook/pkg/alert"
	"github.com/igolaizola/tradehook/pkg/command"
	"github.com/igolaizola/tradehook/pkg/exchange"
	"github.com/igolaizola/tradehook/pkg/pool"
	"github.com/igolaizola/tradehook/pkg/sequence"
	"go.uber.org/zap"
)

// DefaultCooldown is how long an exchange reference is kept after a block has
// finished, so following blocks for the same identity reuse the session.
const DefaultCooldown = 500 * time.Millisecond

var ErrNoCredentials = errors.New("no credentials")

// Completion tracks the execution of a single block.
type Completion struct {
	Block command.Block
	done  chan struct{}
	err   error
}

func newCompletion(b command.Block) *Completion {
	return &Completion{Block: b, done: make(chan struct{})}
}

func (c *Completion) finish(err error) {
	c.err = err
	close(c.done)
}

// Done is closed once the block has been executed or has failed to start.
func (c *Completion) Done() <-chan struct{} { return c.done }

// Err returns the block error, only meaningful after Done is closed.
func (c *Completion) Err() error { return c.err }

// Wait blocks until the block finishes or ctx is done.
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return c.err
	}
}

// Dispatcher turns messages into command sequences run against pooled
// exchanges.
type Dispatcher struct {
	pool     *pool.Pool
	executor *sequence.Executor
	notifier alert.Notifier
	log      *zap.Logger

	// Cooldown delays the release of an exchange after its block.
	Cooldown time.Duration
	// Reporter, when set, receives a line for every reported failure.
	Reporter alert.Notifier

	lock    sync.Mutex
	closed  bool
	pending sync.WaitGroup
}

func New(p *pool.Pool, executor *sequence.Executor, notifier alert.Notifier, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		pool:     p,
		executor: executor,
		notifier: notifier,
		log:      log,
		Cooldown: DefaultCooldown,
	}
}

// Execute dispatches every block of msg without waiting for them and then
// forwards the alert text of msg, if any. ctx must outlive the blocks: it is
// used to open exchanges and run their actions. Messages received after Close
// are dropped.
func (d *Dispatcher) Execute(ctx context.Context, msg string, creds []exchange.Credentials) []*Completion {
	d.lock.Lock()
	if d.closed {
		d.lock.Unlock()
		d.log.Warn("dispatcher closed, message dropped", zap.Int("bytes", len(msg)))
		return nil
	}
	var completions []*Completion
	command.ExtractBlocks(msg, func(name, symbol, actions string) {
		block := command.Block{Exchange: name, Symbol: symbol, Actions: actions}
		c, ok := exchange.Find(creds, name)
		if !ok {
			d.report(fmt.Errorf("dispatch: %w for %s", ErrNoCredentials, name), block)
			return
		}
		completion := newCompletion(block)
		completions = append(completions, completion)
		d.pending.Add(1)
		go d.run(ctx, block, c, completion)
	})
	d.lock.Unlock()

	if d.notifier != nil {
		alert.Handle(msg, d.notifier)
	}
	return completions
}

// Wait blocks until every dispatched block has finished and released its
// exchange.
func (d *Dispatcher) Wait() {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.pending.Wait()
}

// Close stops accepting messages and waits for the dispatched blocks.
func (d *Dispatcher) Close() {
	d.lock.Lock()
	d.closed = true
	d.lock.Unlock()
	d.pending.Wait()
}

func (d *Dispatcher) run(ctx context.Context, block command.Block, creds exchange.Credentials, completion *Completion) {
	ex, err := d.pool.Open(ctx, block.Exchange, creds, block.Symbol)
	if err != nil {
		err = fmt.Errorf("dispatch: couldn't open %s: %w", block.Exchange, err)
		d.report(err, block)
		completion.finish(err)
		d.pending.Done()
		return
	}

	err = d.executor.Run(ctx, ex, block.Symbol, block.Actions)
	if err != nil {
		d.report(fmt.Errorf("dispatch: sequence failed: %w", err), block)
	}
	completion.finish(err)

	go func() {
		defer d.pending.Done()
		d.release(ex, block)
	}()
}

// release closes ex after the cool-down. Its failures are only logged, the
// block completion is already resolved.
func (d *Dispatcher) release(ex exchange.Exchange, block command.Block) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("exchange release panicked", zap.String("exchange", block.Exchange), zap.Any("panic", r))
		}
	}()
	time.Sleep(d.Cooldown)
	if err := d.pool.Close(context.Background(), ex); err != nil {
		d.log.Warn("couldn't close exchange", zap.String("exchange", block.Exchange), zap.Error(err))
	}
}

func (d *Dispatcher) report(err error, block command.Block) {
	d.log.Error("block failed",
		zap.String("exchange", block.Exchange),
		zap.String("symbol", block.Symbol),
		zap.Error(err),
	)
	if d.Reporter != nil {
		d.Reporter.Send(fmt.Sprintf("⚠️ %s(%s): %v", block.Exchange, block.Symbol, err))
	}
}
