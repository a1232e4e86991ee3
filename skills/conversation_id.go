package skills

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/internal/util"
)

// ErrSkillConversationNotFound is returned when a skill conversation id
// has no mapping.
var ErrSkillConversationNotFound = errors.New("skill conversation not found")

// BotFrameworkSkill describes a remote skill.
type BotFrameworkSkill struct {
	ID            string `json:"id" yaml:"id"`
	AppID         string `json:"appId" yaml:"app_id"`
	SkillEndpoint string `json:"skillEndpoint" yaml:"endpoint"`
}

// SkillConversationReference is what a skill conversation id resolves to:
// the parent's original conversation and the OAuth scope of its caller.
type SkillConversationReference struct {
	ConversationReference core.ConversationReference `json:"conversationReference"`
	OAuthScope            string                     `json:"oAuthScope,omitempty"`
}

// SkillConversationIDFactoryOptions is the input for creating a skill
// conversation id.
type SkillConversationIDFactoryOptions struct {
	FromBotOAuthScope string
	FromBotID         string
	Activity          *core.Activity
	Skill             BotFrameworkSkill
}

// ConversationIDFactory creates and resolves skill conversation ids.
type ConversationIDFactory interface {
	CreateSkillConversationID(ctx context.Context, opts SkillConversationIDFactoryOptions) (string, error)
	// GetSkillConversationReference returns (nil, nil) for unknown ids.
	GetSkillConversationReference(ctx context.Context, skillConversationID string) (*SkillConversationReference, error)
	DeleteConversationReference(ctx context.Context, skillConversationID string) error
}

// storedReference is the persisted form of a mapping.
type storedReference struct {
	Reference SkillConversationReference `json:"reference"`
	IndexKey  string                     `json:"indexKey"`
}

// StorageConversationIDFactory keeps mappings in a core.Storage. Repeated
// creates for the same (channel, conversation, skill) return the live id;
// concurrent creates for one key are collapsed.
type StorageConversationIDFactory struct {
	storage core.Storage
	group   singleflight.Group
}

var _ ConversationIDFactory = (*StorageConversationIDFactory)(nil)

// NewStorageConversationIDFactory creates a factory over storage.
func NewStorageConversationIDFactory(storage core.Storage) *StorageConversationIDFactory {
	return &StorageConversationIDFactory{storage: storage}
}

// CreateSkillConversationID returns the id for the activity's conversation
// with opts.Skill, creating and persisting a mapping on first use.
func (f *StorageConversationIDFactory) CreateSkillConversationID(ctx context.Context, opts SkillConversationIDFactoryOptions) (string, error) {
	if opts.Activity == nil {
		return "", fmt.Errorf("create skill conversation id: activity is nil")
	}
	ref := opts.Activity.GetConversationReference()
	indexKey := indexKey(ref.ChannelID, opts.Activity.ConversationID(), opts.Skill.ID)

	v, err, _ := f.group.Do(indexKey, func() (any, error) {
		items, err := f.storage.Read(ctx, []string{indexKey})
		if err != nil {
			return "", err
		}
		if id, ok := items[indexKey].(string); ok && id != "" {
			existing, err := f.read(ctx, id)
			if err != nil {
				return "", err
			}
			if existing != nil {
				return id, nil
			}
		}

		id := util.NewID()
		err = f.storage.Write(ctx, map[string]any{
			referenceKey(id): &storedReference{
				Reference: SkillConversationReference{ConversationReference: ref, OAuthScope: opts.FromBotOAuthScope},
				IndexKey:  indexKey,
			},
			indexKey: id,
		})
		if err != nil {
			return "", err
		}
		return id, nil
	})
	if err != nil {
		return "", fmt.Errorf("create skill conversation id: %w", err)
	}
	return v.(string), nil
}

// GetSkillConversationReference resolves a skill conversation id.
func (f *StorageConversationIDFactory) GetSkillConversationReference(ctx context.Context, skillConversationID string) (*SkillConversationReference, error) {
	stored, err := f.read(ctx, skillConversationID)
	if err != nil || stored == nil {
		return nil, err
	}
	return &stored.Reference, nil
}

// DeleteConversationReference removes the mapping and its index entry.
// Deleting an unknown id is a no-op.
func (f *StorageConversationIDFactory) DeleteConversationReference(ctx context.Context, skillConversationID string) error {
	stored, err := f.read(ctx, skillConversationID)
	if err != nil {
		return err
	}
	keys := []string{referenceKey(skillConversationID)}
	if stored != nil && stored.IndexKey != "" {
		keys = append(keys, stored.IndexKey)
	}
	if err := f.storage.Delete(ctx, keys); err != nil {
		return fmt.Errorf("delete skill conversation reference: %w", err)
	}
	return nil
}

func (f *StorageConversationIDFactory) read(ctx context.Context, id string) (*storedReference, error) {
	if id == "" {
		return nil, nil
	}
	key := referenceKey(id)
	items, err := f.storage.Read(ctx, []string{key})
	if err != nil {
		return nil, fmt.Errorf("read skill conversation reference: %w", err)
	}
	raw, ok := items[key]
	if !ok || raw == nil {
		return nil, nil
	}
	stored, err := util.Convert[*storedReference](raw)
	if err != nil {
		return nil, fmt.Errorf("decode skill conversation reference: %w", err)
	}
	return stored, nil
}

func referenceKey(id string) string { return "skillconversations/" + id }

func indexKey(channelID, conversationID, skillID string) string {
	return "skillconversations-index/" + url.PathEscape(channelID) + "/" + url.PathEscape(conversationID) + "/" + url.PathEscape(skillID)
}
