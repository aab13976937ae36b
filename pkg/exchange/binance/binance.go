package binance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/adshao/go-binance/v2"
	"github.com/igolaizola/tradehook/pkg/command"
	"github.com/igolaizola/tradehook/pkg/exchange"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type binanceExchange struct {
	*exchange.Base
	client *binance.Client
	log    *zap.Logger
}

const (
	decimalPrecision = 8
)

var zero = decimal.Decimal{}

// New returns a live binance spot exchange authenticated with creds.
func New(name string, creds exchange.Credentials, log *zap.Logger) (exchange.Exchange, error) {
	return newExchange(name, creds, log), nil
}

func newExchange(name string, creds exchange.Credentials, log *zap.Logger) *binanceExchange {
	if log == nil {
		log = zap.NewNop()
	}
	return &binanceExchange{
		Base:   exchange.NewBase(name, creds),
		client: binance.NewClient(creds.Key, creds.Secret),
		log:    log.With(zap.String("exchange", name)),
	}
}

func (e *binanceExchange) Init(ctx context.Context, symbol string) error {
	if _, err := e.client.NewSetServerTimeService().Do(ctx); err != nil {
		return fmt.Errorf("binance: couldn't sync server time: %w", err)
	}
	if _, err := e.symbolInfo(ctx, symbol); err != nil {
		return err
	}
	return nil
}

func (e *binanceExchange) Terminate(ctx context.Context) error {
	e.log.Debug("session terminated")
	return nil
}

func (e *binanceExchange) Execute(ctx context.Context, symbol, name string, params []command.Param, session string) (interface{}, error) {
	log := e.log.With(zap.String("session", session), zap.String("symbol", symbol), zap.String("action", name))
	switch strings.ToLower(name) {
	case "buy":
		return e.order(ctx, log, symbol, binance.SideTypeBuy, params)
	case "sell":
		return e.order(ctx, log, symbol, binance.SideTypeSell, params)
	case "cancel":
		return e.cancel(ctx, symbol)
	case "price":
		price, err := e.Price(ctx, symbol)
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

// order places a market order by quantity or quote quantity, or a GTC limit
// order when a price is given.
func (e *binanceExchange) order(ctx context.Context, log *zap.Logger, symbol string, side binance.SideType, params []command.Param) (*binance.CreateOrderResponse, error) {
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

	svc := e.client.NewCreateOrderService().Symbol(symbol).Side(side)
	switch {
	case hasPrice:
		if !hasQty {
			return nil, fmt.Errorf("binance: limit order: %w: quantity", exchange.ErrMissingParam)
		}
		qtyPrecision, pricePrecision, err := e.precision(ctx, symbol)
		if err != nil {
			return nil, err
		}
		svc = svc.Type(binance.OrderTypeLimit).
			TimeInForce(binance.TimeInForceTypeGTC).
			Quantity(qty.Round(qtyPrecision).String()).
			Price(price.Round(pricePrecision).String())
	case hasQty:
		qtyPrecision, _, err := e.precision(ctx, symbol)
		if err != nil {
			return nil, err
		}
		svc = svc.Type(binance.OrderTypeMarket).Quantity(qty.Round(qtyPrecision).String())
	case hasQuote:
		svc = svc.Type(binance.OrderTypeMarket).QuoteOrderQty(quote.Round(decimalPrecision).String())
	default:
		return nil, fmt.Errorf("binance: %s order: %w: quantity or quote", strings.ToLower(string(side)), exchange.ErrMissingParam)
	}

	order, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance: couldn't create %s order: %w", strings.ToLower(string(side)), err)
	}
	log.Info("order created",
		zap.Int64("order_id", order.OrderID),
		zap.String("status", string(order.Status)),
		zap.String("executed_qty", order.ExecutedQuantity),
	)
	log.Debug("order", zap.Any("response", order))
	return order, nil
}

func (e *binanceExchange) cancel(ctx context.Context, symbol string) (interface{}, error) {
	resp, err := e.client.NewCancelOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance: couldn't cancel open orders for %s: %w", symbol, err)
	}
	return resp, nil
}

func (e *binanceExchange) symbolInfo(ctx context.Context, symbol string) (*binance.Symbol, error) {
	info, err := e.client.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance: couldn't get exchange info for %s: %w", symbol, err)
	}
	for i := range info.Symbols {
		if info.Symbols[i].Symbol == symbol {
			return &info.Symbols[i], nil
		}
	}
	return nil, fmt.Errorf("binance: symbol %s not found", symbol)
}

// precision returns the number of decimals allowed for quantities and prices.
func (e *binanceExchange) precision(ctx context.Context, symbol string) (int32, int32, error) {
	s, err := e.symbolInfo(ctx, symbol)
	if err != nil {
		return 0, 0, err
	}
	qty, price := int32(decimalPrecision), int32(decimalPrecision)
	if f := s.LotSizeFilter(); f != nil {
		p, err := stepPrecision(f.StepSize)
		if err != nil {
			return 0, 0, err
		}
		qty = p
	}
	if f := s.PriceFilter(); f != nil {
		p, err := stepPrecision(f.TickSize)
		if err != nil {
			return 0, 0, err
		}
		price = p
	}
	return qty, price, nil
}

func stepPrecision(step string) (int32, error) {
	split := strings.Split(step, ".")
	switch len(split) {
	case 1:
		return 0, nil
	case 2:
		return int32(len(strings.TrimRight(split[1], "0"))), nil
	default:
		return 0, fmt.Errorf("binance: couldn't parse step size %s", step)
	}
}

func (e *binanceExchange) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	prices, err := e.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return zero, fmt.Errorf("binance: couldn't get price for %s: %w", symbol, err)
	}
	for _, p := range prices {
		if p.Symbol != symbol {
			continue
		}
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return zero, fmt.Errorf("binance: couldn't parse price: %s: %w", p.Price, err)
		}
		return price, nil
	}
	return zero, errors.New("binance: price for " + symbol + " not found")
}
