package state

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/internal/testutil"
	"github.com/hupe1980/dialogmesh/storage"
)

type countingStorage struct {
	*storage.MemoryStorage
	writes int
}

func (c *countingStorage) Write(ctx context.Context, changes map[string]any) error {
	c.writes++
	return c.MemoryStorage.Write(ctx, changes)
}

type profile struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func TestKeys(t *testing.T) {
	tc, _ := testutil.NewTurn(testutil.NewActivityBuilder().Channel("web").Conversation("c9").From("u7").Build())

	k, err := ConversationKey(tc)
	require.NoError(t, err)
	assert.Equal(t, "web/conversations/c9", k)

	k, err = UserKey(tc)
	require.NoError(t, err)
	assert.Equal(t, "web/users/u7", k)

	bare, _ := testutil.NewTurn(&core.Activity{Type: core.ActivityTypeMessage})
	_, err = ConversationKey(bare)
	assert.True(t, errors.Is(err, ErrMissingKeyParts))
	_, err = UserKey(bare)
	assert.True(t, errors.Is(err, ErrMissingKeyParts))
}

func TestBotState_SavesOnlyWhenChanged(t *testing.T) {
	store := &countingStorage{MemoryStorage: storage.NewMemoryStorage()}
	conv := NewConversationState(store)
	tc, _ := testutil.NewTurn(testutil.NewActivityBuilder().Build())

	require.NoError(t, conv.Load(tc, false))
	require.NoError(t, conv.SaveChanges(tc, false))
	assert.Equal(t, 0, store.writes)

	require.NoError(t, conv.SetPropertyValue(tc, "count", 1))
	require.NoError(t, conv.SaveChanges(tc, false))
	assert.Equal(t, 1, store.writes)

	require.NoError(t, conv.SaveChanges(tc, false))
	assert.Equal(t, 1, store.writes)

	require.NoError(t, conv.SaveChanges(tc, true))
	assert.Equal(t, 2, store.writes)
}

func TestBotState_RoundTripAcrossTurns(t *testing.T) {
	store := storage.NewMemoryStorage()
	user := NewUserState(store)
	act := testutil.NewActivityBuilder().Build()

	tc1, _ := testutil.NewTurn(act)
	require.NoError(t, user.Load(tc1, false))
	require.NoError(t, user.SetPropertyValue(tc1, "name", "ada"))
	require.NoError(t, user.SaveChanges(tc1, false))

	tc2, _ := testutil.NewTurn(act)
	require.NoError(t, user.Load(tc2, false))
	v, ok, err := user.GetPropertyValue(tc2, "name")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ada", v)

	user.Clear(tc2)
	require.NoError(t, user.SaveChanges(tc2, false))
	tc3, _ := testutil.NewTurn(act)
	require.NoError(t, user.Load(tc3, false))
	assert.Empty(t, user.Get(tc3))

	require.NoError(t, user.Delete(tc3))
	assert.Equal(t, 0, store.Len())
	assert.Nil(t, user.Get(tc3))
}

func TestBotState_NotLoaded(t *testing.T) {
	conv := NewConversationState(storage.NewMemoryStorage())
	tc, _ := testutil.NewTurn(testutil.NewActivityBuilder().Build())

	_, _, err := conv.GetPropertyValue(tc, "x")
	assert.Error(t, err)
	assert.Error(t, conv.SetPropertyValue(tc, "x", 1))
	assert.Error(t, conv.Set(tc, map[string]any{}))
	assert.NoError(t, conv.SaveChanges(tc, false))
}

func TestBotState_RegisterAndFind(t *testing.T) {
	conv := NewConversationState(storage.NewMemoryStorage())
	tc, _ := testutil.NewTurn(testutil.NewActivityBuilder().Build())

	_, ok := FromTurn(tc, ConversationStateName)
	assert.False(t, ok)
	conv.Register(tc)
	found, ok := FromTurn(tc, ConversationStateName)
	require.True(t, ok)
	assert.Same(t, conv, found)
}

func TestProperty_ConvertsStoredMaps(t *testing.T) {
	store := storage.NewMemoryStorage()
	user := NewUserState(store)
	prop := NewProperty[*profile](user, "profile")
	act := testutil.NewActivityBuilder().Build()

	tc1, _ := testutil.NewTurn(act)
	p, err := prop.Get(tc1, func() *profile { return &profile{Name: "new"} })
	require.NoError(t, err)
	p.Age = 42
	require.NoError(t, user.SaveChanges(tc1, false))

	tc2, _ := testutil.NewTurn(act)
	p2, err := prop.Get(tc2, nil)
	require.NoError(t, err)
	require.NotNil(t, p2)
	assert.Equal(t, "new", p2.Name)
	assert.Equal(t, 42, p2.Age)

	p2.Name = "changed"
	require.NoError(t, user.SaveChanges(tc2, false))
	tc3, _ := testutil.NewTurn(act)
	p3, err := prop.Get(tc3, nil)
	require.NoError(t, err)
	assert.Equal(t, "changed", p3.Name)

	require.NoError(t, prop.Delete(tc3))
	p4, err := prop.Get(tc3, nil)
	require.NoError(t, err)
	assert.Nil(t, p4)
	assert.Equal(t, "profile", prop.Name())
}

func TestProperty_DialogState(t *testing.T) {
	conv := NewConversationState(storage.NewMemoryStorage())
	prop := NewProperty[*core.DialogState](conv, "DialogState")
	act := testutil.NewActivityBuilder().Build()

	tc1, _ := testutil.NewTurn(act)
	ds, err := prop.Get(tc1, core.NewDialogState)
	require.NoError(t, err)
	ds.DialogStack = append(ds.DialogStack, &core.DialogInstance{ID: "root", State: map[string]any{"n": 1}})
	require.NoError(t, conv.SaveChanges(tc1, false))

	tc2, _ := testutil.NewTurn(act)
	ds2, err := prop.Get(tc2, core.NewDialogState)
	require.NoError(t, err)
	require.Len(t, ds2.DialogStack, 1)
	assert.Equal(t, "root", ds2.DialogStack[0].ID)
	assert.Equal(t, float64(1), ds2.DialogStack[0].State["n"])
}
