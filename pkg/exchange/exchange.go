package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/igolaizola/tradehook/pkg/command"
	"github.com/shopspring/decimal"
)

// Exchange is an opened session against a trading back-end. Its identity is
// the pair (name, credentials) and it is shared by every sequence that
// references it.
type Exchange interface {
	Init(ctx context.Context, symbol string) error
	Execute(ctx context.Context, symbol, name string, params []command.Param, session string) (interface{}, error)
	Terminate(ctx context.Context) error
	Matches(name string, creds Credentials) bool
	AddReference()
	RemoveReference() int
	Name() string
	Credentials() Credentials
}

// Credentials configures one exchange alias. Exchange selects the catalog
// entry and defaults to Name.
type Credentials struct {
	Name     string            `yaml:"name" json:"name"`
	Exchange string            `yaml:"exchange,omitempty" json:"exchange,omitempty"`
	Key      string            `yaml:"key,omitempty" json:"key,omitempty"`
	Secret   string            `yaml:"secret,omitempty" json:"secret,omitempty"`
	Options  map[string]string `yaml:"options,omitempty" json:"options,omitempty"`
}

// Kind returns the catalog name the credentials resolve to.
func (c Credentials) Kind() string {
	if c.Exchange != "" {
		return strings.ToLower(c.Exchange)
	}
	return strings.ToLower(c.Name)
}

// Same reports whether c and o authenticate the same account.
func (c Credentials) Same(o Credentials) bool {
	return c.Kind() == o.Kind() && c.Key == o.Key && c.Secret == o.Secret
}

// Find returns the credentials whose name matches name, ignoring case.
func Find(list []Credentials, name string) (Credentials, bool) {
	for _, c := range list {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Credentials{}, false
}

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrMissingParam   = errors.New("missing param")
	ErrInvalidParam   = errors.New("invalid param")
)

// MaxWait is the longest pause accepted by the wait command.
const MaxWait = 24 * time.Hour

// Base carries the identity and reference count shared by all exchanges.
// A new Base starts with one reference, owned by whoever created it.
type Base struct {
	name  string
	creds Credentials
	refs  atomic.Int64
}

func NewBase(name string, creds Credentials) *Base {
	b := &Base{name: strings.ToLower(name), creds: creds}
	b.refs.Store(1)
	return b
}

func (b *Base) Name() string             { return b.name }
func (b *Base) Credentials() Credentials { return b.creds }
func (b *Base) AddReference()            { b.refs.Add(1) }
func (b *Base) RemoveReference() int     { return int(b.refs.Add(-1)) }
func (b *Base) References() int          { return int(b.refs.Load()) }

func (b *Base) Matches(name string, creds Credentials) bool {
	return strings.EqualFold(b.name, name) && b.creds.Same(creds)
}

// Param returns the value of the param called name, or the positional param at
// index when index is not negative.
func Param(params []command.Param, name string, index int) (string, bool) {
	return command.Action{Params: params}.Param(name, index)
}

// Decimal parses a numeric param. ok is false when the param is absent.
func Decimal(params []command.Param, name string, index int) (d decimal.Decimal, ok bool, err error) {
	v, ok := Param(params, name, index)
	if !ok {
		return decimal.Zero, false, nil
	}
	d, err = decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, true, fmt.Errorf("exchange: couldn't parse %s %q: %w", name, v, err)
	}
	return d, true, nil
}

// Wait implements the `wait(seconds)` command common to every exchange.
func Wait(ctx context.Context, params []command.Param) error {
	secs, ok, err := Decimal(params, "seconds", 0)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("exchange: wait: %w: seconds", ErrMissingParam)
	}
	if !secs.IsPositive() || secs.GreaterThan(decimal.NewFromInt(int64(MaxWait/time.Second))) {
		return fmt.Errorf("exchange: wait: %w: seconds %s not in (0, %d]", ErrInvalidParam, secs, int64(MaxWait/time.Second))
	}
	d := time.Duration(secs.Mul(decimal.NewFromInt(int64(time.Second))).IntPart())
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
