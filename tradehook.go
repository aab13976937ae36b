package tradehook

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/igolaizola/tradehook/pkg/alert"
	"github.com/igolaizola/tradehook/pkg/credential"
	"github.com/igolaizola/tradehook/pkg/credential/bolt"
	"github.com/igolaizola/tradehook/pkg/credential/inmem"
	"github.com/igolaizola/tradehook/pkg/dispatch"
	"github.com/igolaizola/tradehook/pkg/exchange"
	"github.com/igolaizola/tradehook/pkg/exchange/catalog"
	"github.com/igolaizola/tradehook/pkg/pool"
	"github.com/igolaizola/tradehook/pkg/sequence"
	"github.com/igolaizola/tradehook/pkg/telegram"
	"github.com/igolaizola/tradehook/pkg/webhook"
	"go.uber.org/zap"
)

var version = "v261018a"

type Config struct {
	CredentialsFile string
	DBPath          string
	Listen          string
	Path            string
	TelegramToken   string
	ControlChat     int
	SignalChat      int
	Cooldown        time.Duration
}

type Bot struct {
	ctx        context.Context
	log        *zap.Logger
	catalog    catalog.Catalog
	pool       *pool.Pool
	dispatcher *dispatch.Dispatcher
	fileCreds  []exchange.Credentials
	store      credential.Store
	tgbot      *telegram.Bot
	server     *http.Server
}

func NewBot(cfg Config, log *zap.Logger) (*Bot, error) {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Bot{
		ctx:     context.TODO(),
		log:     log,
		catalog: catalog.Default(),
	}
	if cfg.CredentialsFile != "" {
		creds, err := credential.LoadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("tradehook: couldn't load credentials: %w", err)
		}
		b.fileCreds = creds
	}
	b.store = &inmem.Store{}
	if cfg.DBPath != "" {
		db, err := bolt.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("tradehook: couldn't create db: %w", err)
		}
		b.store = db
	}

	notifiers := alert.Notifiers{alert.LogNotifier{Logger: log}}
	if cfg.TelegramToken != "" {
		tgbot, err := telegram.New(cfg.TelegramToken, cfg.ControlChat, log)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("tradehook: couldn't create telegram bot: %w", err)
		}
		b.tgbot = tgbot
		notifiers = append(notifiers, tgbot)
	}

	b.pool = pool.New(b.catalog, log)
	executor := sequence.New(log)
	b.dispatcher = dispatch.New(b.pool, executor, notifiers, log)
	if cfg.Cooldown > 0 {
		b.dispatcher.Cooldown = cfg.Cooldown
	}
	if b.tgbot != nil {
		b.dispatcher.Reporter = b.tgbot
		executor.OnFailure = func(f sequence.Failure) {
			b.tgbot.Send(fmt.Sprintf("⚠️ action %s failed: %v", f.Action.Name, f.Err))
		}
		b.handleTelegram(int64(cfg.SignalChat))
	}

	if cfg.Listen != "" {
		path := cfg.Path
		if path == "" {
			path = "/"
		}
		mux := http.NewServeMux()
		mux.Handle(path, webhook.New(b.handle, log))
		b.server = &http.Server{
			Addr:              cfg.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return b, nil
}

func (b *Bot) handleTelegram(signalChat int64) {
	b.tgbot.HandleChat(signalChat, true, b.handle)
	b.tgbot.HandleCommand("exchanges", func(_ string) {
		b.tgbot.Send(b.Exchanges())
	})
	b.tgbot.HandleCommand("status", func(_ string) {
		creds, err := b.Credentials()
		if err != nil {
			b.tgbot.Send(err.Error())
			return
		}
		b.tgbot.Send(fmt.Sprintf("open exchanges: %d\nconfigured aliases: %d", b.pool.Len(), len(creds)))
	})
}

// Run serves the webhook and the telegram bot until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	b.ctx = ctx
	b.log.Info("tradehook running", zap.String("version", version))
	defer b.log.Info("tradehook stopped")

	errC := make(chan error, 2)
	if b.server != nil {
		ln, err := net.Listen("tcp", b.server.Addr)
		if err != nil {
			return fmt.Errorf("tradehook: couldn't listen on %s: %w", b.server.Addr, err)
		}
		b.log.Info("webhook listening", zap.String("addr", ln.Addr().String()))
		go func() {
			if err := b.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errC <- fmt.Errorf("tradehook: webhook server failed: %w", err)
			}
		}()
	}
	if b.tgbot != nil {
		b.tgbot.Send(fmt.Sprintf("🤖 tradehook running\n- version: %s", version))
		go func() {
			errC <- b.tgbot.Run(ctx)
		}()
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errC:
	}
	b.shutdown()
	return err
}

// Execute dispatches msg with the configured credentials.
func (b *Bot) Execute(ctx context.Context, msg string) ([]*dispatch.Completion, error) {
	creds, err := b.Credentials()
	if err != nil {
		return nil, err
	}
	return b.dispatcher.Execute(ctx, msg, creds), nil
}

func (b *Bot) handle(msg string) {
	if _, err := b.Execute(b.ctx, msg); err != nil {
		b.log.Error("couldn't execute message", zap.Error(err))
	}
}

// Store returns the credentials store, persistent when a db path is set.
func (b *Bot) Store() credential.Store {
	return b.store
}

// Credentials returns the file credentials overridden by the stored ones.
func (b *Bot) Credentials() ([]exchange.Credentials, error) {
	stored, err := b.store.List()
	if err != nil {
		return nil, fmt.Errorf("tradehook: couldn't list credentials: %w", err)
	}
	return credential.Merge(b.fileCreds, stored), nil
}

// Exchanges describes the catalog.
func (b *Bot) Exchanges() string {
	entries := append(catalog.Catalog(nil), b.catalog...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	sb := &strings.Builder{}
	for _, e := range entries {
		fmt.Fprintf(sb, "%s: %s\n", e.Name, e.Description)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func (b *Bot) shutdown() {
	if b.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.server.Shutdown(ctx); err != nil {
			b.log.Warn("couldn't shutdown webhook server", zap.Error(err))
		}
	}
	b.Close()
}

// Close stops dispatching, waits for the dispatched blocks and releases every
// resource.
func (b *Bot) Close() {
	if b.dispatcher != nil {
		b.dispatcher.Close()
	}
	if b.pool != nil {
		b.pool.Shutdown(context.Background())
	}
	if c, ok := b.store.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			b.log.Warn("couldn't close db", zap.Error(err))
		}
	}
}
