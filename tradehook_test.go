package tradehook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/igolaizola/tradehook/pkg/credential/bolt"
	"github.com/igolaizola/tradehook/pkg/exchange"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBotCredentials(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "credentials.yaml")
	require.NoError(t, os.WriteFile(file, []byte("exchanges:\n  - name: main\n    exchange: binance\n    key: file\n"), 0600))
	dbPath := filepath.Join(dir, "tradehook.db")

	db, err := bolt.New(dbPath)
	require.NoError(t, err)
	require.NoError(t, db.Put(exchange.Credentials{Name: "main", Exchange: "binance", Key: "db"}))
	require.NoError(t, db.Put(exchange.Credentials{Name: "paper", Exchange: "binance-dry"}))
	require.NoError(t, db.Close())

	b, err := NewBot(Config{CredentialsFile: file, DBPath: dbPath}, nil)
	require.NoError(t, err)
	defer b.Close()

	creds, err := b.Credentials()
	require.NoError(t, err)
	require.Len(t, creds, 2)
	main, ok := exchange.Find(creds, "main")
	require.True(t, ok)
	assert.Equal(t, "db", main.Key)
}

func TestBotMemoryStore(t *testing.T) {
	b, err := NewBot(Config{}, nil)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Store().Put(exchange.Credentials{Name: "paper", Exchange: "binance-dry"}))
	creds, err := b.Credentials()
	require.NoError(t, err)
	assert.Equal(t, []exchange.Credentials{{Name: "paper", Exchange: "binance-dry"}}, creds)
}

func TestBotExchanges(t *testing.T) {
	b, err := NewBot(Config{}, nil)
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, "binance: binance spot, live orders\nbinance-dry: binance spot prices, simulated orders", b.Exchanges())
}

func TestBotWebhook(t *testing.T) {
	b, err := NewBot(Config{Listen: "127.0.0.1:0", Path: "/hook"}, nil)
	require.NoError(t, err)
	defer b.Close()

	req := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader("Breakout {!} nowhere(BTCUSDT){buy(1)}"))
	rec := httptest.NewRecorder()
	b.server.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	completions, err := b.Execute(context.Background(), "nowhere(BTCUSDT){buy(1)}")
	require.NoError(t, err)
	assert.Empty(t, completions)
}

func TestBotBadCredentialsFile(t *testing.T) {
	_, err := NewBot(Config{CredentialsFile: filepath.Join(t.TempDir(), "missing.yaml")}, nil)
	assert.Error(t, err)
}

func TestBotClosedDropsMessages(t *testing.T) {
	b, err := NewBot(Config{}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Store().Put(exchange.Credentials{Name: "paper", Exchange: "binance-dry"}))
	b.Close()

	completions, err := b.Execute(context.Background(), "paper(BTCUSDT){buy(1)}")
	require.NoError(t, err)
	assert.Empty(t, completions)
	assert.Equal(t, 0, b.pool.Len())
}
