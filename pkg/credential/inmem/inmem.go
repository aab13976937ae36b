package inmem

import (
	"sort"
	"sync"

	"github.com/igolaizola/tradehook/pkg/credential"
	"github.com/igolaizola/tradehook/pkg/exchange"
)

type Store struct {
	creds sync.Map
}

func (s *Store) List() ([]exchange.Credentials, error) {
	var list []exchange.Credentials
	s.creds.Range(func(key interface{}, value interface{}) bool {
		list = append(list, value.(exchange.Credentials))
		return true
	})
	sort.Slice(list, func(i, j int) bool {
		return credential.Key(list[i].Name) < credential.Key(list[j].Name)
	})
	return list, nil
}

func (s *Store) Get(name string) (exchange.Credentials, error) {
	v, ok := s.creds.Load(credential.Key(name))
	if !ok {
		return exchange.Credentials{}, credential.ErrNotFound
	}
	return v.(exchange.Credentials), nil
}

func (s *Store) Put(c exchange.Credentials) error {
	if err := credential.Validate(c); err != nil {
		return err
	}
	s.creds.Store(credential.Key(c.Name), c)
	return nil
}

func (s *Store) Delete(name string) error {
	s.creds.Delete(credential.Key(name))
	return nil
}
