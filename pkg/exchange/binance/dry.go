package binance

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/igolaizola/tradehook/pkg/command"
	"github.com/igolaizola/tradehook/pkg/exchange"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Fill is a simulated order execution.
type Fill struct {
	Symbol   string
	Side     string
	Quantity decimal.Decimal
	Price    decimal.Decimal
	QuoteQty decimal.Decimal
}

type binanceExchangeDry struct {
	*binanceExchange
	price func(ctx context.Context, symbol string) (decimal.Decimal, error)

	lock      sync.Mutex
	positions map[string]decimal.Decimal
}

// NewDry returns an exchange that reads public binance prices but only
// simulates orders. Credentials are used for identity, never for trading.
func NewDry(name string, creds exchange.Credentials, log *zap.Logger) (exchange.Exchange, error) {
	ex := newExchange(name, exchange.Credentials{}, log)
	ex.Base = exchange.NewBase(name, creds)
	return &binanceExchangeDry{
		binanceExchange: ex,
		price:           ex.Price,
		positions:       make(map[string]decimal.Decimal),
	}, nil
}

func (e *binanceExchangeDry) Init(ctx context.Context, symbol string) error {
	if _, err := e.price(ctx, symbol); err != nil {
		return err
	}
	return nil
}

func (e *binanceExchangeDry) Execute(ctx context.Context, symbol, name string, params []command.Param, session string) (interface{}, error) {
	log := e.log.With(zap.String("session", session), zap.String("symbol", symbol), zap.String("action", name))
	switch strings.ToLower(name) {
	case "buy", "sell":
		fill, err := e.fill(ctx, symbol, strings.ToLower(name), params)
		if err != nil {
			return nil, err
		}
		log.Info("dry order filled",
			zap.String("quantity", fill.Quantity.String()),
			zap.String("price", fill.Price.String()),
			zap.String("quote_qty", fill.QuoteQty.String()),
		)
		return fill, nil
	case "cancel":
		log.Info("dry orders canceled")
		return nil, nil
	case "price":
		price, err := e.price(ctx, symbol)
		if err != nil {
			return nil, err
		}
		log.Info("price", zap.String("price", price.String()))
		return price, nil
	case "wait":
		return nil, exchange.Wait(ctx, params)
	default:
		return nil, fmt.Errorf("binance: %w: %s", exchange.ErrUnknownCommand, name)
	}
}

func (e *binanceExchangeDry) fill(ctx context.Context, symbol, side string, params []command.Param) (*Fill, error) {
	qty, hasQty, err := exchange.Decimal(params, "quantity", 0)
	if err != nil {
		return nil, err
	}
	quote, hasQuote, err := exchange.Decimal(params, "quote", -1)
	if err != nil {
		return nil, err
	}
	price, hasPrice, err := exchange.Decimal(params, "price", -1)
	if err != nil {
		return nil, err
	}
	if !hasPrice {
		price, err = e.price(ctx, symbol)
		if err != nil {
			return nil, err
		}
	}
	switch {
	case hasQty:
	case hasQuote:
		if price.IsZero() {
			return nil, fmt.Errorf("binance: dry %s: zero price for %s", side, symbol)
		}
		qty = quote.Div(price).Round(decimalPrecision)
	default:
		return nil, fmt.Errorf("binance: dry %s order: %w: quantity or quote", side, exchange.ErrMissingParam)
	}

	e.lock.Lock()
	defer e.lock.Unlock()
	pos := e.positions[symbol]
	if side == "sell" {
		pos = pos.Sub(qty)
	} else {
		pos = pos.Add(qty)
	}
	e.positions[symbol] = pos
	return &Fill{
		Symbol:   symbol,
		Side:     side,
		Quantity: qty,
		Price:    price,
		QuoteQty: qty.Mul(price).Round(decimalPrecision),
	}, nil
}

// Position returns the simulated position held for symbol.
func (e *binanceExchangeDry) Position(symbol string) decimal.Decimal {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.positions[symbol]
}
