package inmem

import (
	"errors"
	"testing"

	"github.com/igolaizola/tradehook/pkg/credential"
	"github.com/igolaizola/tradehook/pkg/exchange"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	var s credential.Store = &Store{}

	require.NoError(t, s.Put(exchange.Credentials{Name: "b"}))
	require.NoError(t, s.Put(exchange.Credentials{Name: "A", Key: "k"}))
	assert.Error(t, s.Put(exchange.Credentials{Name: " "}))

	list, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []exchange.Credentials{{Name: "A", Key: "k"}, {Name: "b"}}, list)

	got, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "k", got.Key)

	require.NoError(t, s.Delete("A"))
	_, err = s.Get("a")
	assert.True(t, errors.Is(err, credential.ErrNotFound))
}
