package sequence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/igolaizola/tradehook/pkg/command"
	"github.com/igolaizola/tradehook/pkg/exchange"
	"go.uber.org/zap"
)

// Failure describes an action that failed inside a sequence.
type Failure struct {
	Session string
	Action  command.Action
	Err     error
}

// Executor runs the actions of a block against an opened exchange.
type Executor struct {
	log *zap.Logger
	// OnFailure, when set, is called for every failed action.
	OnFailure func(Failure)
	newID     func() string
}

func New(log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		log:   log,
		newID: func() string { return uuid.New().String() },
	}
}

// Run parses actionsText and executes every action in order, each one
// starting after the previous one has finished. A failed action is reported
// and the sequence goes on with the next one. Run only fails when the
// sequence itself can't be driven to the end.
func (e *Executor) Run(ctx context.Context, ex exchange.Exchange, symbol, actionsText string) error {
	if symbol == "" || actionsText == "" {
		return nil
	}
	session := e.newID()
	log := e.log.With(
		zap.String("session", session),
		zap.String("exchange", ex.Name()),
		zap.String("symbol", symbol),
	)
	actions := command.ParseActions(actionsText)
	log.Info("sequence started", zap.Int("actions", len(actions)))

	var failed int
	for i, a := range actions {
		select {
		case <-ctx.Done():
			return fmt.Errorf("sequence: stopped before action %d of %d: %w", i+1, len(actions), ctx.Err())
		default:
		}
		if err := e.execute(ctx, ex, symbol, a, session); err != nil {
			failed++
			log.Error("action failed", zap.String("action", a.Name), zap.Int("index", i), zap.Error(err))
			if e.OnFailure != nil {
				e.OnFailure(Failure{Session: session, Action: a, Err: err})
			}
			continue
		}
		log.Debug("action executed", zap.String("action", a.Name), zap.Int("index", i))
	}
	log.Info("sequence finished", zap.Int("actions", len(actions)), zap.Int("failed", failed))
	return nil
}

// execute runs a single action, turning a panic into an action error.
func (e *Executor) execute(ctx context.Context, ex exchange.Exchange, symbol string, a command.Action, session string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sequence: action %s panicked: %v", a.Name, r)
		}
	}()
	_, err = ex.Execute(ctx, symbol, a.Name, a.Params, session)
	return err
}
