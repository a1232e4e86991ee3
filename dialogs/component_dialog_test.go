package dialogs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dialogmesh/core"
)

func newTestComponent(t *testing.T, children ...Dialog) *ComponentDialog {
	t.Helper()
	c, err := NewComponentDialog("component")
	require.NoError(t, err)
	for _, d := range children {
		require.NoError(t, c.AddDialog(d))
	}
	return c
}

func TestComponentDialog_RunsChildStack(t *testing.T) {
	c := newTestComponent(t, newProfileWaterfall(t))
	assert.Equal(t, "profile", c.InitialDialogID)

	h := newHarness(t, c)

	res, sender := h.say("hello")
	assert.Equal(t, StatusWaiting, res.Status)
	assert.Equal(t, []string{"What is your name?"}, sender.Texts())

	res, _ = h.say("Linus")
	assert.Equal(t, StatusComplete, res.Status)
	assert.Equal(t, "Linus", res.Result)
}

func TestComponentDialog_DialogScopeBindsToContainer(t *testing.T) {
	var events []string
	inner := newProbe("inner", &events)
	inner.begin = func(dc *DialogContext, _ any) (DialogTurnResult, error) {
		return EndOfTurn, dc.State().SetValue("dialog.shared", "from-inner")
	}
	c := newTestComponent(t, inner)
	dc, _ := newRootContext(t, c)

	_, err := dc.BeginDialog("component", nil)
	require.NoError(t, err)

	outerInst := dc.ActiveDialog()
	assert.Equal(t, "from-inner", outerInst.State["shared"])

	child := dc.Child()
	require.NotNil(t, child)
	assert.Equal(t, "inner", child.ActiveDialog().ID)
	assert.Same(t, outerInst, child.DialogScopeInstance())
	assert.Same(t, outerInst, dc.DialogScopeInstance())

	v, ok, err := dc.State().GetValue("%initialDialogId")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "inner", v)
}

func TestComponentDialog_CancelReachesChildren(t *testing.T) {
	var events []string
	c := newTestComponent(t, newProbe("inner", &events))
	dc, _ := newRootContext(t, c)

	_, err := dc.BeginDialog("component", nil)
	require.NoError(t, err)

	res, err := dc.CancelAllDialogs()
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, res.Status)
	assert.Equal(t, []string{"begin:inner", "end:inner:cancelCalled"}, events)
}

func TestComponentDialog_ResumeReprompts(t *testing.T) {
	var events []string
	c := newTestComponent(t, newProbe("inner", &events))
	dc, _ := newRootContext(t, c, newProbe("interruption", &events))

	_, err := dc.BeginDialog("component", nil)
	require.NoError(t, err)
	_, err = dc.BeginDialog("interruption", nil)
	require.NoError(t, err)

	res, err := dc.EndDialog("ignored")
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, res.Status)
	assert.Equal(t, []string{"begin:inner", "begin:interruption", "end:interruption:endCalled", "reprompt:inner"}, events)
}

func TestComponentDialog_ChildStateSurvivesStorage(t *testing.T) {
	inst := &core.DialogInstance{ID: "component", State: map[string]any{
		"dialogs": map[string]any{"dialogStack": []any{map[string]any{"id": "inner", "state": map[string]any{}}}},
	}}

	ds := childState(inst)
	require.Len(t, ds.DialogStack, 1)
	assert.Equal(t, "inner", ds.DialogStack[0].ID)
	assert.Same(t, ds, inst.State["dialogs"])

	_, err := NewComponentDialog("")
	assert.ErrorIs(t, err, ErrMissingDialogID)
}
