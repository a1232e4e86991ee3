// Package dialogmesh is a high-level façade over the dialog manager and its
// state services. Most applications interact with this package by:
//  1. Creating a Bot via New() around a root dialog (optionally overriding the
//     default in-memory storage) or via NewFromConfig()
//  2. Registering the dialogs the root begins by id through Dialogs()
//  3. Feeding each inbound activity to OnTurn or Process
//
// Defaults are safe for local development and testing; production
// deployments supply durable storage and a structured logger.
package dialogmesh

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/dialogmesh/config"
	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/dialogs"
	"github.com/hupe1980/dialogmesh/internal/metrics"
	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/state"
	"github.com/hupe1980/dialogmesh/storage"
)

// Options configures a Bot.
type Options struct {
	// Storage backs conversation and user state. Defaults to in-memory.
	Storage core.Storage
	// Logger defaults to a NoOp logger.
	Logger logging.Logger
	// Settings is exposed read-only through the "settings" memory scope.
	Settings map[string]any
	// ExpireAfter clears idle conversation state. Zero disables expiry.
	ExpireAfter time.Duration
	// MetricsRegisterer enables Prometheus metrics when set.
	MetricsRegisterer prometheus.Registerer
	// UserTokenClient is registered on turns that do not carry one.
	UserTokenClient core.UserTokenClient
}

// Bot runs a root dialog against persistent state.
type Bot struct {
	opts    Options
	manager *dialogs.DialogManager
	closers []func() error
}

// New creates a Bot for root. Any unset service is initialized with an
// in-memory implementation.
func New(root dialogs.Dialog, optFns ...func(o *Options)) (*Bot, error) {
	opts := Options{
		Storage: storage.NewMemoryStorage(),
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var collector *metrics.Collector
	if opts.MetricsRegisterer != nil {
		collector = metrics.NewCollector(opts.MetricsRegisterer, metrics.DefaultNamespace)
	}

	manager, err := dialogs.NewDialogManager(root, func(o *dialogs.ManagerOptions) {
		o.ConversationState = state.NewConversationState(opts.Storage)
		o.UserState = state.NewUserState(opts.Storage)
		o.Settings = opts.Settings
		o.ExpireAfter = opts.ExpireAfter
		o.Logger = opts.Logger
		o.Metrics = collector
	})
	if err != nil {
		return nil, err
	}

	return &Bot{opts: opts, manager: manager}, nil
}

// NewFromConfig creates a Bot whose logger and storage are built from cfg.
// Close releases them.
func NewFromConfig(ctx context.Context, root dialogs.Dialog, cfg *config.Config, optFns ...func(o *Options)) (*Bot, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, syncLogger, err := config.BuildLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	store, closeStore, err := config.BuildStorage(ctx, cfg.Storage, logger)
	if err != nil {
		_ = syncLogger()
		return nil, err
	}

	fns := append([]func(o *Options){func(o *Options) {
		o.Storage = store
		o.Logger = logger
		o.Settings = cfg.Settings
		o.ExpireAfter = cfg.Dialogs.ExpireAfter
	}}, optFns...)

	bot, err := New(root, fns...)
	if err != nil {
		_ = closeStore()
		_ = syncLogger()
		return nil, err
	}
	bot.closers = []func() error{closeStore, syncLogger}
	return bot, nil
}

// Dialogs returns the registry the root dialog begins child dialogs from.
func (b *Bot) Dialogs() *dialogs.DialogSet { return b.manager.Dialogs() }

// Manager returns the underlying dialog manager.
func (b *Bot) Manager() *dialogs.DialogManager { return b.manager }

// ConversationState returns the conversation state bag.
func (b *Bot) ConversationState() *state.BotState { return b.manager.ConversationState() }

// UserState returns the user state bag.
func (b *Bot) UserState() *state.BotState { return b.manager.UserState() }

// Storage returns the store backing the bot's state.
func (b *Bot) Storage() core.Storage { return b.opts.Storage }

// Logger returns the configured logger.
func (b *Bot) Logger() logging.Logger { return b.opts.Logger }

// OnTurn runs one turn of the root dialog.
func (b *Bot) OnTurn(tc *core.TurnContext) (dialogs.DialogTurnResult, error) {
	if b.opts.UserTokenClient != nil && tc.TurnState().Get(core.UserTokenClientKey) == nil {
		tc.TurnState().Set(core.UserTokenClientKey, b.opts.UserTokenClient)
	}
	return b.manager.OnTurn(tc)
}

// Handler adapts the bot to a core.TurnHandler.
func (b *Bot) Handler() core.TurnHandler {
	return func(tc *core.TurnContext) error {
		_, err := b.OnTurn(tc)
		return err
	}
}

// Process runs activity as a new turn whose replies go to sender and returns
// the invoke response recorded during the turn, if any.
func (b *Bot) Process(ctx context.Context, activity *core.Activity, sender core.ActivitySender) (*core.InvokeResponse, error) {
	tc := core.NewTurnContext(ctx, sender, activity, b.opts.Logger)
	if _, err := b.OnTurn(tc); err != nil {
		return nil, err
	}
	return tc.InvokeResponse(), nil
}

// Close releases resources created by NewFromConfig.
func (b *Bot) Close() error {
	var errs []error
	for _, fn := range b.closers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
