package sequence

import (
	"context"
	"errors"
	"testing"

	"github.com/igolaizola/tradehook/pkg/command"
	"github.com/igolaizola/tradehook/pkg/exchange"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type call struct {
	symbol  string
	name    string
	params  []command.Param
	session string
}

type mockExchange struct {
	*exchange.Base
	calls []call
	fail  map[string]error
	panic map[string]bool
}

func newMock() *mockExchange {
	return &mockExchange{
		Base:  exchange.NewBase("mock", exchange.Credentials{Name: "mock"}),
		fail:  map[string]error{},
		panic: map[string]bool{},
	}
}

func (e *mockExchange) Init(context.Context, string) error { return nil }
func (e *mockExchange) Terminate(context.Context) error    { return nil }

func (e *mockExchange) Execute(ctx context.Context, symbol, name string, params []command.Param, session string) (interface{}, error) {
	e.calls = append(e.calls, call{symbol: symbol, name: name, params: params, session: session})
	if e.panic[name] {
		panic("kaboom")
	}
	return nil, e.fail[name]
}

func (e *mockExchange) names() []string {
	var names []string
	for _, c := range e.calls {
		names = append(names, c.name)
	}
	return names
}

func TestRunInOrder(t *testing.T) {
	ex := newMock()
	e := New(nil)
	e.newID = func() string { return "session-1" }

	err := e.Run(context.Background(), ex, "BTCUSDT", `buy(quantity=1) wait(2) sell(1, price="3")`)
	require.NoError(t, err)
	assert.Equal(t, []string{"buy", "wait", "sell"}, ex.names())
	for _, c := range ex.calls {
		assert.Equal(t, "BTCUSDT", c.symbol)
		assert.Equal(t, "session-1", c.session)
	}
	assert.Equal(t, []command.Param{{Value: "1", Index: 0}, {Name: "price", Value: "3", Index: 1}}, ex.calls[2].params)
}

func TestRunContinuesAfterFailure(t *testing.T) {
	ex := newMock()
	ex.fail["second"] = errors.New("rejected")
	core, logs := observer.New(zap.ErrorLevel)
	e := New(zap.New(core))
	var failures []Failure
	e.OnFailure = func(f Failure) { failures = append(failures, f) }

	err := e.Run(context.Background(), ex, "BTCUSDT", "first() second() third()")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, ex.names())
	require.Len(t, failures, 1)
	assert.Equal(t, "second", failures[0].Action.Name)
	assert.Equal(t, 1, logs.FilterMessage("action failed").Len())
}

func TestRunRecoversPanic(t *testing.T) {
	ex := newMock()
	ex.panic["boom"] = true
	e := New(nil)
	var failures []Failure
	e.OnFailure = func(f Failure) { failures = append(failures, f) }

	require.NoError(t, e.Run(context.Background(), ex, "BTCUSDT", "boom() after()"))
	assert.Equal(t, []string{"boom", "after"}, ex.names())
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Err.Error(), "kaboom")
}

func TestRunNoop(t *testing.T) {
	ex := newMock()
	e := New(nil)
	require.NoError(t, e.Run(context.Background(), ex, "", "buy(1)"))
	require.NoError(t, e.Run(context.Background(), ex, "BTCUSDT", ""))
	assert.Empty(t, ex.calls)
}

func TestRunSessionPerRun(t *testing.T) {
	ex := newMock()
	e := New(nil)
	require.NoError(t, e.Run(context.Background(), ex, "BTCUSDT", "a()"))
	require.NoError(t, e.Run(context.Background(), ex, "BTCUSDT", "b()"))
	require.Len(t, ex.calls, 2)
	assert.NotEmpty(t, ex.calls[0].session)
	assert.NotEqual(t, ex.calls[0].session, ex.calls[1].session)
}

func TestRunCanceled(t *testing.T) {
	ex := newMock()
	e := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := e.Run(ctx, ex, "BTCUSDT", "a() b()")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, ex.calls)
}
