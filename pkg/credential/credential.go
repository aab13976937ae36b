package credential

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/igolaizola/tradehook/pkg/exchange"
	"gopkg.in/yaml.v3"
)

var ErrNotFound = errors.New("credential: not found")

type Store interface {
	List() ([]exchange.Credentials, error)
	Get(name string) (exchange.Credentials, error)
	Put(exchange.Credentials) error
	Delete(name string) error
}

type file struct {
	Exchanges []exchange.Credentials `yaml:"exchanges"`
}

// LoadFile reads a YAML credentials file:
//
//	exchanges:
//	  - name: main
//	    exchange: binance
//	    key: ...
//	    secret: ...
func LoadFile(path string) ([]exchange.Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("credential: couldn't read %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) ([]exchange.Credentials, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("credential: couldn't decode: %w", err)
	}
	for i, c := range f.Exchanges {
		if err := Validate(c); err != nil {
			return nil, fmt.Errorf("credential: entry %d: %w", i, err)
		}
	}
	return f.Exchanges, nil
}

func Validate(c exchange.Credentials) error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("missing name")
	}
	return nil
}

// Merge appends b to a, entries of b replacing those of a with the same name.
func Merge(a, b []exchange.Credentials) []exchange.Credentials {
	merged := make([]exchange.Credentials, 0, len(a)+len(b))
	for _, c := range a {
		if _, ok := exchange.Find(b, c.Name); ok {
			continue
		}
		merged = append(merged, c)
	}
	return append(merged, b...)
}

// Key normalizes a credentials name for storage.
func Key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
