package dialogs

import (
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/internal/metrics"
	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/memory"
	"github.com/hupe1980/dialogmesh/state"
	"github.com/hupe1980/dialogmesh/storage"
)

const instrumentationName = "github.com/hupe1980/dialogmesh/dialogs"

// Conversation state properties owned by the manager.
const (
	DefaultDialogStateProperty = "DialogState"
	LastAccessProperty         = "_lastAccess"
)

// ErrMissingRootDialog is returned by NewDialogManager when root is nil.
var ErrMissingRootDialog = errors.New("root dialog is required")

// ManagerOptions configures a DialogManager.
type ManagerOptions struct {
	// ConversationState holds the dialog stack. Defaults to an in-memory store.
	ConversationState *state.BotState
	// UserState backs the "user" scope. Optional.
	UserState *state.BotState
	// StateConfiguration overrides the memory scopes and resolvers.
	StateConfiguration *memory.Configuration
	// Settings is exposed read-only through the "settings" scope.
	Settings map[string]any
	// ExpireAfter clears conversation state that has been idle longer than
	// this. Zero disables expiry.
	ExpireAfter time.Duration
	// DialogStateProperty names the conversation property holding the stack.
	DialogStateProperty string
	Logger              logging.Logger
	Metrics             *metrics.Collector
	Tracer              trace.Tracer
	// Now is the clock used for expiry.
	Now func() time.Time
}

// DialogManager runs one root dialog per conversation. Each OnTurn loads
// state, drives the dialog stack and persists the result.
type DialogManager struct {
	root        Dialog
	dialogs     *DialogSet
	dialogState *state.Property[*core.DialogState]
	lastAccess  *state.Property[time.Time]
	opts        ManagerOptions
}

// NewDialogManager creates a manager for root.
func NewDialogManager(root Dialog, optFns ...func(o *ManagerOptions)) (*DialogManager, error) {
	if root == nil {
		return nil, ErrMissingRootDialog
	}

	opts := ManagerOptions{
		DialogStateProperty: DefaultDialogStateProperty,
		Logger:              logging.NoOpLogger{},
		Now:                 time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.ConversationState == nil {
		opts.ConversationState = state.NewConversationState(storage.NewMemoryStorage())
	}
	if opts.StateConfiguration == nil {
		opts.StateConfiguration = memory.DefaultConfiguration(opts.Settings)
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(instrumentationName)
	}

	dialogState := state.NewProperty[*core.DialogState](opts.ConversationState, opts.DialogStateProperty)
	set := NewDialogSet(dialogState)
	if err := set.Add(root); err != nil {
		return nil, err
	}

	return &DialogManager{
		root:        root,
		dialogs:     set,
		dialogState: dialogState,
		lastAccess:  state.NewProperty[time.Time](opts.ConversationState, LastAccessProperty),
		opts:        opts,
	}, nil
}

// RootDialog returns the root dialog.
func (m *DialogManager) RootDialog() Dialog { return m.root }

// Dialogs returns the root registry. Dialogs added here can be begun from
// the root dialog by id.
func (m *DialogManager) Dialogs() *DialogSet { return m.dialogs }

// ConversationState returns the bag holding the dialog stack.
func (m *DialogManager) ConversationState() *state.BotState { return m.opts.ConversationState }

// UserState returns the user bag, or nil.
func (m *DialogManager) UserState() *state.BotState { return m.opts.UserState }

// OnTurn processes one inbound activity.
//
// When the turn comes from a parent bot (skill claims), an end of
// conversation cancels the stack and a repromptDialog event re-prompts the
// active dialog. Otherwise the active dialog is continued, or the root is
// begun on an empty stack. A skill whose root completes or is cancelled
// sends an end of conversation carrying the result back to its parent.
func (m *DialogManager) OnTurn(tc *core.TurnContext) (DialogTurnResult, error) {
	start := time.Now()

	ctx, span := m.opts.Tracer.Start(tc.Context, "dialog.turn",
		trace.WithAttributes(
			attribute.String("dialog.root", m.root.ID()),
			attribute.String("activity.type", tc.Activity.Type),
			attribute.String("channel.id", tc.Activity.ChannelID),
			attribute.String("conversation.id", tc.Activity.ConversationID()),
		))
	defer span.End()

	parentCtx := tc.Context
	tc.Context = ctx
	defer func() { tc.Context = parentCtx }()

	res, err := m.runTurn(tc)

	status := res.Status.String()
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("dialog.status", status))
	m.opts.Metrics.RecordTurn(status, time.Since(start))
	m.logTurn(tc, status, time.Since(start), err)

	return res, err
}

func (m *DialogManager) runTurn(tc *core.TurnContext) (DialogTurnResult, error) {
	m.opts.ConversationState.Register(tc)
	if m.opts.UserState != nil {
		m.opts.UserState.Register(tc)
	}
	m.opts.StateConfiguration.Register(tc)
	m.opts.Metrics.Register(tc)

	if err := m.opts.ConversationState.Load(tc, false); err != nil {
		return DialogTurnResult{}, err
	}
	if err := m.expire(tc); err != nil {
		return DialogTurnResult{}, err
	}

	dc, err := m.dialogs.CreateContext(tc)
	if err != nil {
		return DialogTurnResult{}, err
	}
	sm := dc.State()
	if err := sm.LoadAllScopes(); err != nil {
		return DialogTurnResult{}, fmt.Errorf("load memory scopes: %w", err)
	}

	var res DialogTurnResult
	if isFromParentToSkill(tc) {
		res, err = m.handleSkillTurn(dc)
	} else {
		res, err = m.continueOrBegin(dc)
	}
	if err != nil {
		return DialogTurnResult{}, err
	}

	if err := sm.SaveAllChanges(); err != nil {
		return DialogTurnResult{}, fmt.Errorf("save memory scopes: %w", err)
	}
	if err := m.opts.ConversationState.SaveChanges(tc, false); err != nil {
		return DialogTurnResult{}, err
	}
	if m.opts.UserState != nil {
		if err := m.opts.UserState.SaveChanges(tc, false); err != nil {
			return DialogTurnResult{}, err
		}
	}
	return res, nil
}

// expire clears conversation state idle longer than ExpireAfter and stamps
// the access time.
func (m *DialogManager) expire(tc *core.TurnContext) error {
	now := m.opts.Now().UTC()
	last, err := m.lastAccess.Get(tc, func() time.Time { return now })
	if err != nil {
		return err
	}
	if m.opts.ExpireAfter > 0 && now.Sub(last) >= m.opts.ExpireAfter {
		tc.LogInfo("dialog.state.expired", "idle", now.Sub(last).String())
		m.opts.ConversationState.Clear(tc)
	}
	return m.lastAccess.Set(tc, now)
}

func (m *DialogManager) continueOrBegin(dc *DialogContext) (DialogTurnResult, error) {
	res, err := dc.ContinueDialog()
	if err != nil {
		return DialogTurnResult{}, err
	}
	if res.Status == StatusEmpty {
		return dc.BeginDialog(m.root.ID(), nil)
	}
	return res, nil
}

func (m *DialogManager) handleSkillTurn(dc *DialogContext) (DialogTurnResult, error) {
	tc := dc.TurnContext()

	switch {
	case tc.Activity.IsActivity(core.ActivityTypeEndOfConversation):
		tc.LogDebug("skill.parent.cancelled", "depth", len(dc.Stack()))
		return dc.CancelAllDialogs()
	case tc.Activity.IsActivity(core.ActivityTypeEvent) && tc.Activity.Name == core.EventRepromptDialog:
		if dc.ActiveDialog() == nil {
			return DialogTurnResult{Status: StatusEmpty}, nil
		}
		if err := dc.RepromptDialog(); err != nil {
			return DialogTurnResult{}, err
		}
		return EndOfTurn, nil
	}

	res, err := m.continueOrBegin(dc)
	if err != nil {
		return DialogTurnResult{}, err
	}
	if res.Status == StatusComplete || res.Status == StatusCancelled {
		code := core.EndOfConversationCompletedSuccessfully
		if res.Status == StatusCancelled {
			code = core.EndOfConversationUserCancelled
		}
		eoc := core.NewEndOfConversationActivity(code)
		eoc.Value = res.Result
		eoc.Locale = tc.Activity.Locale
		if _, err := tc.SendActivity(eoc); err != nil {
			return DialogTurnResult{}, err
		}
	}
	return res, nil
}

func (m *DialogManager) logTurn(tc *core.TurnContext, status string, dur time.Duration, err error) {
	if dl, ok := m.opts.Logger.(*logging.DialogLogger); ok {
		dl.WithConversation(tc.Activity.ChannelID, tc.Activity.ConversationID()).LogTurn(tc.Activity.Type, status, dur, err)
		return
	}
	if err != nil {
		m.opts.Logger.Error("dialog.turn.failed", "activity_type", tc.Activity.Type, "conversation_id", tc.Activity.ConversationID(), "error", err)
		return
	}
	m.opts.Logger.Debug("dialog.turn.complete", "activity_type", tc.Activity.Type, "status", status, "duration_ms", dur.Milliseconds())
}

// isFromParentToSkill reports whether this bot runs as a skill and the turn
// came from its parent. Turns replayed from a skill into its parent carry a
// skill conversation reference and are excluded.
func isFromParentToSkill(tc *core.TurnContext) bool {
	if tc.TurnState().Get(core.SkillConversationReferenceKey) != nil {
		return false
	}
	return tc.Identity().IsSkillClaim()
}
