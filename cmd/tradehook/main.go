package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/igolaizola/tradehook"
	"github.com/igolaizola/tradehook/pkg/credential/bolt"
	"github.com/igolaizola/tradehook/pkg/dispatch"
	"github.com/igolaizola/tradehook/pkg/exchange"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	"go.uber.org/zap"
)

func main() {
	// Create signal based context
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		select {
		case <-c:
			cancel()
		case <-ctx.Done():
			cancel()
		}
		signal.Stop(c)
	}()

	// Launch command
	cmd := newCommand()
	if err := cmd.ParseAndRun(ctx, os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func newCommand() *ffcli.Command {
	fs := flag.NewFlagSet("tradehook", flag.ExitOnError)

	return &ffcli.Command{
		ShortUsage: "tradehook [flags] <subcommand>",
		FlagSet:    fs,
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
		Subcommands: []*ffcli.Command{
			newRunCommand(),
			newExecCommand(),
			newExchangesCommand(),
			newCredentialsCommand(),
		},
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func configOptions() []ff.Option {
	return []ff.Option{
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithEnvVarPrefix("TRADEHOOK"),
	}
}

func newRunCommand() *ffcli.Command {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	creds := fs.String("credentials", "", "credentials yaml file")
	db := fs.String("db", "", "credentials database path")
	listen := fs.String("listen", ":8080", "webhook listen address, empty to disable")
	path := fs.String("path", "/webhook", "webhook path")
	token := fs.String("telegram-token", "", "telegram token")
	controlChat := fs.Int("telegram-control-chat", 0, "telegram chat id for alerts, reports and commands")
	signalChat := fs.Int("telegram-signal-chat", 0, "telegram chat id to read messages")
	cooldown := fs.Duration("cooldown", dispatch.DefaultCooldown, "delay before releasing an exchange after a block")
	debug := fs.Bool("debug", false, "enable debug mode")

	return &ffcli.Command{
		Name:       "run",
		ShortUsage: "tradehook run [flags]",
		Options:    configOptions(),
		ShortHelp:  "run tradehook bot",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			if *creds == "" && *db == "" {
				return errors.New("missing credentials file or db path")
			}
			if *token != "" && *controlChat == 0 {
				return errors.New("missing telegram control chat")
			}
			if *listen == "" && *token == "" {
				return errors.New("nothing to run: set a listen address or a telegram token")
			}
			logger, err := newLogger(*debug)
			if err != nil {
				return err
			}
			defer logger.Sync()
			bot, err := tradehook.NewBot(tradehook.Config{
				CredentialsFile: *creds,
				DBPath:          *db,
				Listen:          *listen,
				Path:            *path,
				TelegramToken:   *token,
				ControlChat:     *controlChat,
				SignalChat:      *signalChat,
				Cooldown:        *cooldown,
			}, logger)
			if err != nil {
				return err
			}
			return bot.Run(ctx)
		},
	}
}

func newExecCommand() *ffcli.Command {
	fs := flag.NewFlagSet("exec", flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	creds := fs.String("credentials", "", "credentials yaml file")
	db := fs.String("db", "", "credentials database path")
	cooldown := fs.Duration("cooldown", dispatch.DefaultCooldown, "delay before releasing an exchange after a block")
	timeout := fs.Duration("timeout", time.Minute, "maximum time to wait for the blocks")
	debug := fs.Bool("debug", false, "enable debug mode")

	return &ffcli.Command{
		Name:       "exec",
		ShortUsage: "tradehook exec [flags] <message...>",
		Options:    configOptions(),
		ShortHelp:  "execute a single message and wait for it",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			msg := strings.Join(args, " ")
			if strings.TrimSpace(msg) == "" {
				return errors.New("missing message")
			}
			logger, err := newLogger(*debug)
			if err != nil {
				return err
			}
			defer logger.Sync()
			bot, err := tradehook.NewBot(tradehook.Config{
				CredentialsFile: *creds,
				DBPath:          *db,
				Cooldown:        *cooldown,
			}, logger)
			if err != nil {
				return err
			}
			defer bot.Close()

			ctx, cancel := context.WithTimeout(ctx, *timeout)
			defer cancel()
			completions, err := bot.Execute(ctx, msg)
			if err != nil {
				return err
			}
			var failed int
			for _, c := range completions {
				if err := c.Wait(ctx); err != nil {
					failed++
					fmt.Printf("❌ %s(%s): %v\n", c.Block.Exchange, c.Block.Symbol, err)
					continue
				}
				fmt.Printf("✅ %s(%s)\n", c.Block.Exchange, c.Block.Symbol)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d blocks failed", failed, len(completions))
			}
			return nil
		},
	}
}

func newExchangesCommand() *ffcli.Command {
	fs := flag.NewFlagSet("exchanges", flag.ExitOnError)
	return &ffcli.Command{
		Name:       "exchanges",
		ShortUsage: "tradehook exchanges",
		ShortHelp:  "list supported exchanges",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			bot, err := tradehook.NewBot(tradehook.Config{}, nil)
			if err != nil {
				return err
			}
			defer bot.Close()
			fmt.Println(bot.Exchanges())
			return nil
		},
	}
}

func newCredentialsCommand() *ffcli.Command {
	fs := flag.NewFlagSet("credentials", flag.ExitOnError)
	db := fs.String("db", "tradehook.db", "credentials database path")

	withStore := func(fn func(*bolt.Store) error) error {
		if *db == "" {
			return errors.New("missing db path")
		}
		s, err := bolt.New(*db)
		if err != nil {
			return err
		}
		defer s.Close()
		return fn(s)
	}

	addFS := flag.NewFlagSet("add", flag.ExitOnError)
	name := addFS.String("name", "", "alias used in messages")
	kind := addFS.String("exchange", "", "catalog exchange, defaults to name")
	key := addFS.String("key", "", "api key")
	secret := addFS.String("secret", "", "api secret")

	return &ffcli.Command{
		Name:       "credentials",
		ShortUsage: "tradehook credentials [flags] <subcommand>",
		ShortHelp:  "manage stored exchange credentials",
		FlagSet:    fs,
		Options:    []ff.Option{ff.WithEnvVarPrefix("TRADEHOOK")},
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
		Subcommands: []*ffcli.Command{
			{
				Name:       "add",
				ShortUsage: "tradehook credentials add -name <alias> [flags]",
				ShortHelp:  "add or replace credentials",
				FlagSet:    addFS,
				Exec: func(context.Context, []string) error {
					return withStore(func(s *bolt.Store) error {
						return s.Put(exchange.Credentials{
							Name:     *name,
							Exchange: *kind,
							Key:      *key,
							Secret:   *secret,
						})
					})
				},
			},
			{
				Name:       "list",
				ShortUsage: "tradehook credentials list",
				ShortHelp:  "list stored credentials",
				Exec: func(context.Context, []string) error {
					return withStore(func(s *bolt.Store) error {
						list, err := s.List()
						if err != nil {
							return err
						}
						for _, c := range list {
							fmt.Printf("%s\t%s\t%s\n", c.Name, c.Kind(), mask(c.Key))
						}
						return nil
					})
				},
			},
			{
				Name:       "delete",
				ShortUsage: "tradehook credentials delete <alias>",
				ShortHelp:  "delete stored credentials",
				Exec: func(_ context.Context, args []string) error {
					if len(args) != 1 {
						return errors.New("expected a single alias")
					}
					return withStore(func(s *bolt.Store) error {
						return s.Delete(args[0])
					})
				},
			},
		},
	}
}

func mask(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-4)
}
