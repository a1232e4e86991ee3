package memory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/internal/testutil"
	"github.com/hupe1980/dialogmesh/state"
	"github.com/hupe1980/dialogmesh/storage"
)

type fakeDialog struct{ id string }

func (d fakeDialog) ID() string { return d.id }

type classDialog struct{}

func (classDialog) ClassMemory() map[string]any { return map[string]any{"maxAttempts": 3} }

// fakeContext is a minimal memory.Context over a fixed pair of instances.
type fakeContext struct {
	tc     *core.TurnContext
	active *core.DialogInstance
	scope  *core.DialogInstance
	class  any
}

func (f *fakeContext) TurnContext() *core.TurnContext { return f.tc }
func (f *fakeContext) ActiveDialogInstance() *core.DialogInstance { return f.active }
func (f *fakeContext) DialogScopeInstance() *core.DialogInstance {
	if f.scope != nil {
		return f.scope
	}
	return f.active
}
func (f *fakeContext) ActiveDialogClass() any { return f.class }

func newFixture(t *testing.T, attach bool) (*StateManager, *fakeContext) {
	t.Helper()
	tc, _ := testutil.NewTurn(testutil.NewActivityBuilder().Message("hello").Build())
	if attach {
		store := storage.NewMemoryStorage()
		state.NewConversationState(store).Register(tc)
		state.NewUserState(store).Register(tc)
	}
	fc := &fakeContext{tc: tc, active: core.NewDialogInstance("child"), class: fakeDialog{id: "child"}}
	return NewStateManager(fc, DefaultConfiguration(map[string]any{"feature": map[string]any{"enabled": true}})), fc
}

func TestStateManager_ScopesRoundTrip(t *testing.T) {
	sm, fc := newFixture(t, true)

	for _, p := range []string{"user.name", "conversation.topic", "turn.x.y", "dialog.step", "this.count"} {
		require.NoError(t, sm.SetValue(p, p+"-value"), p)
		v, ok, err := sm.GetValue(p)
		require.NoError(t, err)
		assert.True(t, ok, p)
		assert.Equal(t, p+"-value", v)
	}
	assert.Equal(t, "dialog.step-value", fc.active.State["step"])
}

func TestStateManager_AbsenceIsNotAnError(t *testing.T) {
	sm, _ := newFixture(t, true)
	v, ok, err := sm.GetValue("user.missing.deeper")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)

	require.NoError(t, sm.RemoveValue("conversation.missing.path"))
}

func TestStateManager_UnattachedScopeIsConfigurationError(t *testing.T) {
	sm, _ := newFixture(t, false)

	_, _, err := sm.GetValue("user.name")
	assert.ErrorIs(t, err, ErrScopeNotAttached)
	assert.ErrorIs(t, sm.SetValue("conversation.x", 1), ErrScopeNotAttached)

	_, ok, err := sm.GetValue("turn.nothing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStateManager_UnknownAndReadOnlyScopes(t *testing.T) {
	sm, _ := newFixture(t, true)

	_, _, err := sm.GetValue("nowhere.x")
	assert.ErrorIs(t, err, ErrUnknownScope)

	assert.ErrorIs(t, sm.SetValue("settings.feature", false), ErrReadOnlyScope)
	assert.ErrorIs(t, sm.SetValue("class.id", "x"), ErrReadOnlyScope)
	assert.ErrorIs(t, sm.RemoveValue("settings.feature"), ErrReadOnlyScope)

	v, ok, err := sm.GetValue("SETTINGS.Feature.Enabled")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, true, v)
}

func TestStateManager_Aliases(t *testing.T) {
	sm, _ := newFixture(t, true)

	require.NoError(t, sm.SetValue("$name", "ada"))
	v, _, _ := sm.GetValue("dialog.name")
	assert.Equal(t, "ada", v)

	require.NoError(t, sm.SetValue("turn.recognized", map[string]any{
		"intents":  map[string]any{"BookFlight": map[string]any{"score": 0.9}},
		"entities": map[string]any{"city": []any{"Seattle", "Paris"}},
	}))
	v, ok, err := sm.GetValue("#BookFlight.score")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0.9, v)

	v, _, _ = sm.GetValue("@city")
	assert.Equal(t, "Seattle", v)
	v, _, _ = sm.GetValue("@@city")
	assert.Equal(t, []any{"Seattle", "Paris"}, v)

	v, _, _ = sm.GetValue("%id")
	assert.Equal(t, "child", v)
}

func TestStateManager_ClassMemoryProvider(t *testing.T) {
	sm, fc := newFixture(t, true)
	fc.class = classDialog{}
	v, ok, err := sm.GetValue("class.maxAttempts")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestStateManager_TurnActivity(t *testing.T) {
	sm, _ := newFixture(t, true)
	v, ok, err := sm.GetValue("turn.activity.text")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello", v)
}

func TestStateManager_DialogBindsToContainer(t *testing.T) {
	sm, fc := newFixture(t, true)
	fc.scope = core.NewDialogInstance("container")

	require.NoError(t, sm.SetValue("dialog.shared", 1))
	require.NoError(t, sm.SetValue("this.own", 2))
	assert.Equal(t, 1, fc.scope.State["shared"])
	assert.NotContains(t, fc.active.State, "shared")
	assert.Equal(t, 2, fc.active.State["own"])
}

func TestStateManager_NoActiveDialog(t *testing.T) {
	sm, fc := newFixture(t, true)
	fc.active = nil

	_, ok, err := sm.GetValue("dialog.x")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, sm.SetValue("dialog.x", 1), ErrNoActiveDialog)
}

func TestStateManager_GenericGetValue(t *testing.T) {
	sm, _ := newFixture(t, true)
	require.NoError(t, sm.SetValue("user.profile", map[string]any{"name": "ada", "age": float64(36)}))

	type profile struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}
	p, ok, err := GetValue[profile](sm, "user.profile")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, profile{Name: "ada", Age: 36}, p)

	_, ok, err = GetValue[profile](sm, "user.none")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStateManager_SnapshotLoadSave(t *testing.T) {
	sm, fc := newFixture(t, true)
	require.NoError(t, sm.LoadAllScopes())
	require.NoError(t, sm.SetValue("user.name", "ada"))
	require.NoError(t, sm.SetValue("turn.temp", 1))

	snap, err := sm.GetMemorySnapshot()
	require.NoError(t, err)
	assert.Contains(t, snap, ScopeUser)
	assert.Contains(t, snap, ScopeDialog)
	assert.NotContains(t, snap, ScopeTurn)
	assert.NotContains(t, snap, ScopeSettings)

	require.NoError(t, sm.SaveAllChanges())
	bs, ok := state.FromTurn(fc.tc, state.UserStateName)
	require.True(t, ok)
	assert.Equal(t, "ada", bs.Get(fc.tc)["name"])

	require.NoError(t, sm.DeleteScopesMemory(ScopeUser))
	assert.Nil(t, bs.Get(fc.tc))
	assert.ErrorIs(t, sm.DeleteScopesMemory("nope"), ErrUnknownScope)
}

func TestStateManager_WholeScopeWrites(t *testing.T) {
	sm, fc := newFixture(t, true)
	require.NoError(t, sm.SetValue("this", map[string]any{"fresh": true}))
	assert.Equal(t, map[string]any{"fresh": true}, fc.active.State)

	err := sm.RemoveValue("this")
	assert.True(t, errors.Is(err, ErrInvalidPath))

	assert.ErrorIs(t, sm.SetValue("user", "scalar"), ErrInvalidPath)
}

func TestNewStateManager_UsesRegisteredConfiguration(t *testing.T) {
	tc, _ := testutil.NewTurn(testutil.NewActivityBuilder().Build())
	cfg := &Configuration{Scopes: []Scope{NewTurnScope()}}
	cfg.Register(tc)

	sm := NewStateManager(&fakeContext{tc: tc}, nil)
	assert.Same(t, cfg, sm.Configuration())
	_, _, err := sm.GetValue("dialog.x")
	assert.ErrorIs(t, err, ErrUnknownScope)
}

func TestStateManager_SetThenGetProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tc, _ := testutil.NewTurn(testutil.NewActivityBuilder().Build())
		fc := &fakeContext{tc: tc, active: core.NewDialogInstance("d")}
		sm := NewStateManager(fc, DefaultConfiguration(nil))

		scope := rapid.SampledFrom([]string{"turn", "dialog", "this"}).Draw(rt, "scope")
		keys := rapid.SliceOfN(rapid.StringMatching(`[a-z][a-z0-9_]{0,6}`), 1, 4).Draw(rt, "keys")
		value := rapid.Int().Draw(rt, "value")

		path := scope
		for _, k := range keys {
			path += "." + k
		}
		if err := sm.SetValue(path, value); err != nil {
			rt.Fatalf("set %s: %v", path, err)
		}
		got, ok, err := sm.GetValue(path)
		if err != nil || !ok || got != value {
			rt.Fatalf("get %s = %v, %v, %v; want %v", path, got, ok, err, value)
		}

		upper := scope
		for _, k := range keys {
			upper += "." + toUpper(k)
		}
		if got, ok, _ := sm.GetValue(upper); !ok || got != value {
			rt.Fatalf("case-insensitive get %s = %v, %v", upper, got, ok)
		}

		if err := sm.RemoveValue(path); err != nil {
			rt.Fatalf("remove %s: %v", path, err)
		}
		if _, ok, _ := sm.GetValue(path); ok {
			rt.Fatalf("%s still present after remove", path)
		}
	})
}

func toUpper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 32
		}
	}
	return string(b)
}
