package dialogs

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/internal/metrics"
	"github.com/hupe1980/dialogmesh/internal/testutil"
	"github.com/hupe1980/dialogmesh/logging"
)

func asSkill(tc *core.TurnContext) {
	tc.TurnState().Set(core.BotIdentityKey, core.NewClaimsIdentity(jwt.MapClaims{
		"ver":   "1.0",
		"appid": "parent-app",
		"aud":   "skill-app",
	}))
}

func TestNewDialogManager_RequiresRoot(t *testing.T) {
	_, err := NewDialogManager(nil)
	assert.ErrorIs(t, err, ErrMissingRootDialog)
}

func TestDialogManager_BeginsThenContinues(t *testing.T) {
	var events []string
	h := newHarness(t, newProbe("root", &events))

	res, _ := h.say("one")
	assert.Equal(t, StatusWaiting, res.Status)

	res, _ = h.say("two")
	assert.Equal(t, StatusComplete, res.Status)
	assert.Equal(t, "two", res.Result)
	assert.Equal(t, []string{"begin:root", "continue:root", "end:root:endCalled"}, events)
}

func TestDialogManager_Expiry(t *testing.T) {
	var events []string
	h := newHarness(t, newProbe("root", &events), func(o *ManagerOptions) {
		o.ExpireAfter = time.Hour
	})

	h.say("one")
	h.now = h.now.Add(30 * time.Minute)
	h.say("two")
	assert.Equal(t, []string{"begin:root", "continue:root", "end:root:endCalled"}, events)

	events = events[:0]
	h.say("three")
	h.now = h.now.Add(2 * time.Hour)
	res, _ := h.say("four")
	assert.Equal(t, StatusWaiting, res.Status)
	assert.Equal(t, []string{"begin:root", "begin:root"}, events)
}

func TestDialogManager_SkillSendsEndOfConversation(t *testing.T) {
	var events []string
	h := newHarness(t, newProbe("root", &events))

	h.turn(testutil.NewActivityBuilder().Message("start").Build(), asSkill)
	res, sender := h.turn(testutil.NewActivityBuilder().Message("result").Build(), asSkill)

	assert.Equal(t, StatusComplete, res.Status)
	eoc := sender.Last()
	require.NotNil(t, eoc)
	assert.Equal(t, core.ActivityTypeEndOfConversation, eoc.Type)
	assert.Equal(t, core.EndOfConversationCompletedSuccessfully, eoc.Code)
	assert.Equal(t, "result", eoc.Value)
}

func TestDialogManager_NoEndOfConversationWithoutSkillClaims(t *testing.T) {
	var events []string
	h := newHarness(t, newProbe("root", &events))

	h.say("start")
	_, sender := h.say("result")
	assert.Empty(t, sender.Activities())
}

func TestDialogManager_ParentCancelsSkill(t *testing.T) {
	var events []string
	h := newHarness(t, newProbe("root", &events))

	h.turn(testutil.NewActivityBuilder().Message("start").Build(), asSkill)
	res, sender := h.turn(testutil.NewActivityBuilder().EndOfConversation(core.EndOfConversationUserCancelled, nil).Build(), asSkill)

	assert.Equal(t, StatusCancelled, res.Status)
	assert.Empty(t, sender.Activities())
	assert.Equal(t, []string{"begin:root", "end:root:cancelCalled"}, events)

	res, _ = h.turn(testutil.NewActivityBuilder().Message("again").Build(), asSkill)
	assert.Equal(t, StatusWaiting, res.Status)
}

func TestDialogManager_RepromptEvent(t *testing.T) {
	var events []string
	h := newHarness(t, newProbe("root", &events))
	reprompt := testutil.NewActivityBuilder().Event(core.EventRepromptDialog, nil).Build()

	res, _ := h.turn(reprompt, asSkill)
	assert.Equal(t, StatusEmpty, res.Status)

	h.turn(testutil.NewActivityBuilder().Message("start").Build(), asSkill)
	res, _ = h.turn(reprompt, asSkill)
	assert.Equal(t, StatusWaiting, res.Status)
	assert.Equal(t, []string{"begin:root", "reprompt:root"}, events)
}

func TestDialogManager_SkillReplayIsNotParentTurn(t *testing.T) {
	var events []string
	h := newHarness(t, newProbe("root", &events))

	h.turn(testutil.NewActivityBuilder().Message("start").Build())
	res, sender := h.turn(testutil.NewActivityBuilder().Message("done").Build(), asSkill, func(tc *core.TurnContext) {
		tc.TurnState().Set(core.SkillConversationReferenceKey, "ref")
	})
	assert.Equal(t, StatusComplete, res.Status)
	assert.Empty(t, sender.Activities())
}

func TestDialogManager_PersistsUserAndConversationMemory(t *testing.T) {
	wf, err := NewWaterfallDialog("root",
		func(step *WaterfallStepContext) (DialogTurnResult, error) {
			sm := step.State()
			if err := sm.SetValue("user.visits", 1); err != nil {
				return DialogTurnResult{}, err
			}
			if err := sm.SetValue("conversation.topic", "weather"); err != nil {
				return DialogTurnResult{}, err
			}
			return EndOfTurn, nil
		},
		func(step *WaterfallStepContext) (DialogTurnResult, error) {
			snap, err := step.State().GetMemorySnapshot()
			if err != nil {
				return DialogTurnResult{}, err
			}
			region, _, err := step.State().GetValue("settings.region")
			if err != nil {
				return DialogTurnResult{}, err
			}
			snap["region"] = region
			return step.EndDialog(snap)
		},
	)
	require.NoError(t, err)
	h := newHarness(t, wf, func(o *ManagerOptions) {
		o.Settings = map[string]any{"region": "eu"}
	})

	h.say("one")
	res, _ := h.say("two")

	snap, ok := res.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), snap["user"].(map[string]any)["visits"])
	assert.Equal(t, "weather", snap["conversation"].(map[string]any)["topic"])
	assert.Equal(t, "eu", snap["region"])
	assert.NotContains(t, snap, "settings")
}

func TestDialogManager_MetricsAndLogging(t *testing.T) {
	reg := prometheus.NewRegistry()
	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelDebug, Format: "json", Output: &buf})

	var events []string
	h := newHarness(t, newProbe("root", &events), func(o *ManagerOptions) {
		o.Metrics = metrics.NewCollector(reg, "test")
		o.Logger = logger
	})
	h.say("one")

	n, err := promtest.GatherAndCount(reg, "test_turns_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var found bool
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["msg"] == "dialog.turn.complete" {
			found = true
			assert.Equal(t, "waiting", entry["status"])
			assert.Equal(t, "conv-1", entry["conversation_id"])
		}
	}
	assert.True(t, found)
}

type failingDialog struct{ BaseDialog }

func (f *failingDialog) BeginDialog(*DialogContext, any) (DialogTurnResult, error) {
	return DialogTurnResult{}, errors.New("boom")
}

func TestDialogManager_PropagatesDialogErrors(t *testing.T) {
	m, err := NewDialogManager(&failingDialog{BaseDialog: NewBaseDialog("bad")})
	require.NoError(t, err)

	tc, _ := testutil.NewTurn(testutil.NewActivityBuilder().Message("x").Build())
	_, err = m.OnTurn(tc)
	assert.EqualError(t, err, "boom")
	assert.Same(t, m.RootDialog(), m.Dialogs().Find("bad"))
}
