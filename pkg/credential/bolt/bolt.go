package bolt

import (
	"fmt"

	"github.com/boltdb/bolt"
	"github.com/bytedance/sonic"
	"github.com/igolaizola/tradehook/pkg/credential"
	"github.com/igolaizola/tradehook/pkg/exchange"
)

var bucket = []byte("credentials")

func New(path string) (*Store, error) {
	// It will be created if it doesn't exist.
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("bolt: couldn't open bolt db %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
			return err
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("bolt: couldn't create bucket: %w", err)
	}
	return &Store{db: db}, nil
}

type Store struct {
	db *bolt.DB
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) List() ([]exchange.Credentials, error) {
	var list []exchange.Credentials
	if err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
			var c exchange.Credentials
			if err := sonic.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("couldn't decode %s: %w", k, err)
			}
			list = append(list, c)
			return nil
		})
	}); err != nil {
		return nil, fmt.Errorf("bolt: couldn't list: %w", err)
	}
	return list, nil
}

func (s *Store) Get(name string) (exchange.Credentials, error) {
	var c exchange.Credentials
	key := []byte(credential.Key(name))
	if err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get(key)
		if v == nil {
			return credential.ErrNotFound
		}
		return sonic.Unmarshal(v, &c)
	}); err != nil {
		return exchange.Credentials{}, fmt.Errorf("bolt: couldn't get %s: %w", key, err)
	}
	return c, nil
}

func (s *Store) Put(c exchange.Credentials) error {
	if err := credential.Validate(c); err != nil {
		return fmt.Errorf("bolt: invalid credentials: %w", err)
	}
	key := []byte(credential.Key(c.Name))
	if err := s.db.Update(func(tx *bolt.Tx) error {
		byt, err := sonic.Marshal(c)
		if err != nil {
			return fmt.Errorf("couldn't encode: %w", err)
		}
		return tx.Bucket(bucket).Put(key, byt)
	}); err != nil {
		return fmt.Errorf("bolt: couldn't put %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(name string) error {
	key := []byte(credential.Key(name))
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete(key)
	}); err != nil {
		return fmt.Errorf("bolt: couldn't delete %s: %w", key, err)
	}
	return nil
}
