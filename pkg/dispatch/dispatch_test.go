package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/igolaizola/tradehook/pkg/command"
	"github.com/igolaizola/tradehook/pkg/exchange"
	"github.com/igolaizola/tradehook/pkg/exchange/catalog"
	"github.com/igolaizola/tradehook/pkg/pool"
	"github.com/igolaizola/tradehook/pkg/sequence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockExchange struct {
	*exchange.Base
	lock       sync.Mutex
	executed   []string
	terminated int
}

func (e *mockExchange) Init(context.Context, string) error { return nil }

func (e *mockExchange) Terminate(context.Context) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.terminated++
	return nil
}

func (e *mockExchange) Execute(ctx context.Context, symbol, name string, params []command.Param, session string) (interface{}, error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.executed = append(e.executed, symbol+":"+name)
	if name == "fail" {
		return nil, errors.New("rejected")
	}
	return nil, nil
}

type env struct {
	lock     sync.Mutex
	created  []*mockExchange
	alerts   *recorder
	reports  *recorder
	pool     *pool.Pool
	dispatch *Dispatcher
}

type recorder struct {
	lock sync.Mutex
	sent []string
}

func (r *recorder) Send(text string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.sent = append(r.sent, text)
}

func (r *recorder) all() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string(nil), r.sent...)
}

func newEnv() *env {
	e := &env{alerts: &recorder{}, reports: &recorder{}}
	c := catalog.Catalog{{
		Name: "mock",
		New: func(name string, creds exchange.Credentials, _ *zap.Logger) (exchange.Exchange, error) {
			e.lock.Lock()
			defer e.lock.Unlock()
			ex := &mockExchange{Base: exchange.NewBase(name, creds)}
			e.created = append(e.created, ex)
			return ex, nil
		},
	}}
	e.pool = pool.New(c, nil)
	e.dispatch = New(e.pool, sequence.New(nil), e.alerts, nil)
	e.dispatch.Cooldown = 50 * time.Millisecond
	e.dispatch.Reporter = e.reports
	return e
}

var creds = []exchange.Credentials{
	{Name: "main", Exchange: "mock", Key: "k", Secret: "s"},
	{Name: "kraken", Key: "k"},
}

func waitAll(t *testing.T, completions []*Completion) []error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var errs []error
	for _, c := range completions {
		errs = append(errs, c.Wait(ctx))
	}
	return errs
}

func TestExecuteSharesExchange(t *testing.T) {
	e := newEnv()
	msg := "main(BTCUSDT){buy(1) sell(1)} main(ETHUSDT){buy(2)}"

	completions := e.dispatch.Execute(context.Background(), msg, creds)
	require.Len(t, completions, 2)
	for _, err := range waitAll(t, completions) {
		assert.NoError(t, err)
	}
	e.dispatch.Wait()

	require.Len(t, e.created, 1)
	ex := e.created[0]
	assert.ElementsMatch(t, []string{"BTCUSDT:buy", "BTCUSDT:sell", "ETHUSDT:buy"}, ex.executed)
	assert.Equal(t, 1, ex.terminated)
	assert.Equal(t, 0, e.pool.Len())
	assert.Empty(t, e.reports.all())
}

func TestExecuteKeepsOpenDuringCooldown(t *testing.T) {
	e := newEnv()
	completions := e.dispatch.Execute(context.Background(), "main(BTCUSDT){buy(1)}", creds)
	waitAll(t, completions)
	assert.Equal(t, 1, e.pool.Len())
	e.dispatch.Wait()
	assert.Equal(t, 0, e.pool.Len())
}

func TestExecuteSkipsBlocks(t *testing.T) {
	e := newEnv()
	msg := "unknown(BTCUSDT){buy(1)} kraken(XBTUSD){buy(1)} main(BTCUSDT){fail() buy(1)}"

	completions := e.dispatch.Execute(context.Background(), msg, creds)
	require.Len(t, completions, 2)
	errs := waitAll(t, completions)
	assert.Equal(t, "kraken", completions[0].Block.Exchange)
	assert.True(t, errors.Is(errs[0], pool.ErrNotSupported))
	assert.NoError(t, errs[1])
	e.dispatch.Wait()

	require.Len(t, e.created, 1)
	assert.Equal(t, []string{"BTCUSDT:fail", "BTCUSDT:buy"}, e.created[0].executed)

	reports := e.reports.all()
	require.Len(t, reports, 2)
	assert.Contains(t, reports[0], "no credentials")
	assert.Contains(t, reports[1], "exchange not supported")
}

func TestExecuteAlerts(t *testing.T) {
	e := newEnv()
	completions := e.dispatch.Execute(context.Background(), "Breakout {!} main(BTCUSDT){buy(1)}", creds)
	assert.Equal(t, []string{"Breakout"}, e.alerts.all())
	waitAll(t, completions)
	e.dispatch.Wait()

	e.dispatch.Execute(context.Background(), "Breakout main(BTCUSDT){buy(1)}", creds)
	e.dispatch.Wait()
	assert.Len(t, e.alerts.all(), 1)
}

func TestExecuteNoBlocks(t *testing.T) {
	e := newEnv()
	assert.Empty(t, e.dispatch.Execute(context.Background(), "just text", creds))
	assert.Empty(t, e.alerts.all())
}

func TestExecuteAfterClose(t *testing.T) {
	e := newEnv()
	completions := e.dispatch.Execute(context.Background(), "main(BTCUSDT){buy(1)}", creds)
	require.Len(t, completions, 1)
	e.dispatch.Close()
	assert.NoError(t, completions[0].Err())
	assert.Equal(t, 0, e.pool.Len())

	assert.Empty(t, e.dispatch.Execute(context.Background(), "{!} late main(ETHUSDT){buy(1)}", creds))
	assert.Len(t, e.created, 1)
	assert.Empty(t, e.alerts.all())
}
