package state

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hupe1980/dialogmesh/core"
)

// ErrMissingKeyParts is returned when the activity lacks the fields a state
// key is derived from.
var ErrMissingKeyParts = errors.New("activity is missing fields required for the state key")

// KeyFunc derives the storage key of a state bag from the turn.
type KeyFunc func(tc *core.TurnContext) (string, error)

// cachedState is the per-turn copy of a bag plus the hash it was loaded with.
type cachedState struct {
	State map[string]any
	hash  string
}

func (c *cachedState) changed() bool {
	return c.hash != hashState(c.State)
}

func hashState(m map[string]any) string {
	raw, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(raw)
}

// BotState is a named state bag persisted in core.Storage.
type BotState struct {
	storage core.Storage
	name    string
	keyFn   KeyFunc
}

// NewBotState creates a bag called name whose key is derived by keyFn.
func NewBotState(storage core.Storage, name string, keyFn KeyFunc) *BotState {
	return &BotState{storage: storage, name: name, keyFn: keyFn}
}

// Name is the bag name; it is also the turn state key the bag registers under.
func (b *BotState) Name() string { return b.name }

func (b *BotState) cacheKey() string { return b.name + ".cache" }

func (b *BotState) cached(tc *core.TurnContext) *cachedState {
	c, _ := core.TurnValue[*cachedState](tc.TurnState(), b.cacheKey())
	return c
}

// Register makes the bag discoverable by memory scopes for this turn.
func (b *BotState) Register(tc *core.TurnContext) {
	tc.TurnState().Set(b.name, b)
}

// FromTurn returns the bag registered under name, if any.
func FromTurn(tc *core.TurnContext, name string) (*BotState, bool) {
	return core.TurnValue[*BotState](tc.TurnState(), name)
}

// Load reads the bag from storage unless it is already cached for the turn.
func (b *BotState) Load(tc *core.TurnContext, force bool) error {
	if !force && b.cached(tc) != nil {
		return nil
	}
	key, err := b.keyFn(tc)
	if err != nil {
		return err
	}
	items, err := b.storage.Read(tc.Context, []string{key})
	if err != nil {
		return fmt.Errorf("load %s: %w", b.name, err)
	}
	m, _ := items[key].(map[string]any)
	if m == nil {
		m = map[string]any{}
	}
	tc.TurnState().Set(b.cacheKey(), &cachedState{State: m, hash: hashState(m)})
	return nil
}

// SaveChanges writes the bag back when it changed during the turn (or always with force).
func (b *BotState) SaveChanges(tc *core.TurnContext, force bool) error {
	c := b.cached(tc)
	if c == nil || (!force && !c.changed()) {
		return nil
	}
	key, err := b.keyFn(tc)
	if err != nil {
		return err
	}
	if err := b.storage.Write(tc.Context, map[string]any{key: c.State}); err != nil {
		return fmt.Errorf("save %s: %w", b.name, err)
	}
	c.hash = hashState(c.State)
	return nil
}

// Clear empties the cached bag. The empty bag is persisted on the next SaveChanges.
func (b *BotState) Clear(tc *core.TurnContext) {
	tc.TurnState().Set(b.cacheKey(), &cachedState{State: map[string]any{}, hash: "cleared"})
}

// Delete drops the cached bag and removes it from storage.
func (b *BotState) Delete(tc *core.TurnContext) error {
	tc.TurnState().Delete(b.cacheKey())
	key, err := b.keyFn(tc)
	if err != nil {
		return err
	}
	if err := b.storage.Delete(tc.Context, []string{key}); err != nil {
		return fmt.Errorf("delete %s: %w", b.name, err)
	}
	return nil
}

// Get returns the cached bag or nil when it has not been loaded this turn.
func (b *BotState) Get(tc *core.TurnContext) map[string]any {
	if c := b.cached(tc); c != nil {
		return c.State
	}
	return nil
}

// Set replaces the cached bag. It must have been loaded first.
func (b *BotState) Set(tc *core.TurnContext, m map[string]any) error {
	c := b.cached(tc)
	if c == nil {
		return fmt.Errorf("%s: state not loaded", b.name)
	}
	if m == nil {
		m = map[string]any{}
	}
	c.State = m
	return nil
}

// GetPropertyValue returns a top level property of the loaded bag.
func (b *BotState) GetPropertyValue(tc *core.TurnContext, name string) (any, bool, error) {
	c := b.cached(tc)
	if c == nil {
		return nil, false, fmt.Errorf("%s: state not loaded", b.name)
	}
	v, ok := c.State[name]
	return v, ok, nil
}

// SetPropertyValue sets a top level property of the loaded bag.
func (b *BotState) SetPropertyValue(tc *core.TurnContext, name string, value any) error {
	c := b.cached(tc)
	if c == nil {
		return fmt.Errorf("%s: state not loaded", b.name)
	}
	c.State[name] = value
	return nil
}

// DeletePropertyValue removes a top level property of the loaded bag.
func (b *BotState) DeletePropertyValue(tc *core.TurnContext, name string) error {
	c := b.cached(tc)
	if c == nil {
		return fmt.Errorf("%s: state not loaded", b.name)
	}
	delete(c.State, name)
	return nil
}
