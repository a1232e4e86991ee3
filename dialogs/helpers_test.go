package dialogs

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/internal/testutil"
	"github.com/hupe1980/dialogmesh/state"
	"github.com/hupe1980/dialogmesh/storage"
)

// probeDialog records every lifecycle call it receives. It waits on begin,
// ends with the message text on continue and keeps waiting on resume.
type probeDialog struct {
	BaseDialog
	events *[]string
	begin  func(dc *DialogContext, options any) (DialogTurnResult, error)
}

func newProbe(id string, events *[]string) *probeDialog {
	return &probeDialog{BaseDialog: NewBaseDialog(id), events: events}
}

func (p *probeDialog) record(format string, args ...any) {
	*p.events = append(*p.events, fmt.Sprintf(format, args...))
}

func (p *probeDialog) BeginDialog(dc *DialogContext, options any) (DialogTurnResult, error) {
	p.record("begin:%s", p.ID())
	if p.begin != nil {
		return p.begin(dc, options)
	}
	return EndOfTurn, nil
}

func (p *probeDialog) ContinueDialog(dc *DialogContext) (DialogTurnResult, error) {
	p.record("continue:%s", p.ID())
	return dc.EndDialog(dc.TurnContext().Activity.Text)
}

func (p *probeDialog) ResumeDialog(_ *DialogContext, reason DialogReason, result any) (DialogTurnResult, error) {
	p.record("resume:%s:%s:%v", p.ID(), reason, result)
	return EndOfTurn, nil
}

func (p *probeDialog) RepromptDialog(*core.TurnContext, *core.DialogInstance) error {
	p.record("reprompt:%s", p.ID())
	return nil
}

func (p *probeDialog) EndDialog(_ *core.TurnContext, _ *core.DialogInstance, reason DialogReason) error {
	p.record("end:%s:%s", p.ID(), reason)
	return nil
}

// newRootContext returns a root DialogContext over a fresh conversation
// with the given dialogs registered.
func newRootContext(t *testing.T, dialogs ...Dialog) (*DialogContext, *testutil.RecordingSender) {
	t.Helper()
	conv := state.NewConversationState(storage.NewMemoryStorage())
	set := NewDialogSet(state.NewProperty[*core.DialogState](conv, DefaultDialogStateProperty))
	for _, d := range dialogs {
		require.NoError(t, set.Add(d))
	}
	tc, sender := testutil.NewTurn(testutil.NewActivityBuilder().Message("hi").Build())
	conv.Register(tc)
	dc, err := set.CreateContext(tc)
	require.NoError(t, err)
	return dc, sender
}

// harness drives a DialogManager through successive turns of one conversation.
type harness struct {
	t       *testing.T
	manager *DialogManager
	now     time.Time
}

func newHarness(t *testing.T, root Dialog, optFns ...func(o *ManagerOptions)) *harness {
	t.Helper()
	h := &harness{t: t, now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := storage.NewMemoryStorage()
	fns := append([]func(o *ManagerOptions){func(o *ManagerOptions) {
		o.ConversationState = state.NewConversationState(store)
		o.UserState = state.NewUserState(store)
		o.Now = func() time.Time { return h.now }
	}}, optFns...)
	m, err := NewDialogManager(root, fns...)
	require.NoError(t, err)
	h.manager = m
	return h
}

// turn sends activity through the manager and returns the result and the
// activities the bot sent.
func (h *harness) turn(activity *core.Activity, prepare ...func(tc *core.TurnContext)) (DialogTurnResult, *testutil.RecordingSender) {
	h.t.Helper()
	tc, sender := testutil.NewTurn(activity)
	for _, fn := range prepare {
		fn(tc)
	}
	res, err := h.manager.OnTurn(tc)
	require.NoError(h.t, err)
	return res, sender
}

func (h *harness) say(text string) (DialogTurnResult, *testutil.RecordingSender) {
	h.t.Helper()
	return h.turn(testutil.NewActivityBuilder().Message(text).Build())
}
