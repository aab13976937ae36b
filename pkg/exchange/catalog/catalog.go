package catalog

import (
	"errors"
	"strings"

	"github.com/igolaizola/tradehook/pkg/exchange"
	"github.com/igolaizola/tradehook/pkg/exchange/binance"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("catalog: not found")

// Factory creates an exchange for the alias name using creds. It must not
// block: network setup belongs to Init.
type Factory func(name string, creds exchange.Credentials, log *zap.Logger) (exchange.Exchange, error)

type Entry struct {
	Name        string
	Description string
	New         Factory
}

// Catalog is an immutable list of exchange constructors resolved by name.
type Catalog []Entry

func (c Catalog) Lookup(name string) (Entry, bool) {
	for _, e := range c {
		if strings.EqualFold(e.Name, name) {
			return e, true
		}
	}
	return Entry{}, false
}

// Default returns the exchanges shipped with the binary.
func Default() Catalog {
	return Catalog{
		{
			Name:        "binance",
			Description: "binance spot, live orders",
			New:         binance.New,
		},
		{
			Name:        "binance-dry",
			Description: "binance spot prices, simulated orders",
			New:         binance.NewDry,
		},
	}
}
