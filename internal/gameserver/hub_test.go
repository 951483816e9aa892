package gameserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/plaza/internal/broadcast"
	"github.com/cory-johannsen/plaza/internal/game/moderation"
	"github.com/cory-johannsen/plaza/internal/game/npc"
	"github.com/cory-johannsen/plaza/internal/game/world"
	"github.com/cory-johannsen/plaza/internal/protocol"
)

type fixture struct {
	hub    *Hub
	router *broadcast.Router
	reg    *world.Registry
	npcs   *npc.Manager
	bans   *BanList
}

type stubGenerator struct {
	reply string
	err   error
}

func (s *stubGenerator) Reply(context.Context, string, string, []string, string) (string, error) {
	return s.reply, s.err
}

func newFixture(t *testing.T, provider moderation.Provider, gen Generator) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	reg := world.NewRegistry(50, world.State{Weather: world.WeatherClear, GameTime: 12})
	npcs := npc.NewManager([]npc.Definition{
		{Name: "Chen_Wei", Avatar: "👨"},
		{Name: "Liu_Fang", Avatar: "👩"},
	}, 50, 1, 2, rand.New(rand.NewSource(1)))

	pipeline, err := moderation.NewPipeline(moderation.Config{
		RateWindow:       10 * time.Second,
		RateLimit:        3,
		ProtectedPattern: `(?i)\bvrijland\b`,
		PolitePattern:    `(?i)\b(thanks|please)\b`,
		FlaggedDelta:     -50,
		AbuseDelta:       -500,
		PoliteDelta:      10,
		ProviderTimeout:  time.Second,
	}, provider, logger)
	require.NoError(t, err)

	bans := NewBanList()
	f := &fixture{reg: reg, npcs: npcs, bans: bans}
	f.router = broadcast.NewRouter(64, logger, func(id string) { f.hub.Disconnect(id) })
	f.hub = NewHub(Config{MaxStep: 5}, reg, npcs, f.router, pipeline, gen, bans, logger)
	return f
}

func unflaggedProvider() moderation.Provider {
	return moderation.ProviderFunc(func(context.Context, string) (moderation.Verdict, error) {
		return moderation.Verdict{}, nil
	})
}

// eventsOf drains the outbox and groups decoded frames by type tag.
func eventsOf(t *testing.T, o *broadcast.Outbox) map[string][]map[string]any {
	t.Helper()
	out := make(map[string][]map[string]any)
	for {
		select {
		case frame, ok := <-o.Frames():
			if !ok {
				return out
			}
			var decoded map[string]any
			require.NoError(t, json.Unmarshal(frame, &decoded))
			kind, _ := decoded["type"].(string)
			out[kind] = append(out[kind], decoded)
		default:
			return out
		}
	}
}

func join(t *testing.T, f *fixture, name string) (string, *broadcast.Outbox) {
	t.Helper()
	id, outbox, err := f.hub.Join(name, "🙂", "10.0.0.1:1000", nil)
	require.NoError(t, err)
	return id, outbox
}

func TestHub_JoinInitSnapshot(t *testing.T) {
	f := newFixture(t, unflaggedProvider(), nil)

	idA, outA := join(t, f, "Alice")
	events := eventsOf(t, outA)
	require.Len(t, events[protocol.TypeInit], 1)
	init := events[protocol.TypeInit][0]
	assert.Equal(t, idA, init["selfId"])
	assert.Len(t, init["npcs"], 2)
	assert.Len(t, init["players"], 1, "first joiner sees only itself")
	ws := init["world"].(map[string]any)
	assert.Equal(t, "clear", ws["weather"])
	assert.Equal(t, 12.0, ws["gameTime"])
}

func TestHub_JoinAnnouncedToOthers(t *testing.T) {
	f := newFixture(t, unflaggedProvider(), nil)

	_, outA := join(t, f, "Alice")
	eventsOf(t, outA) // drain init

	idB, outB := join(t, f, "Bob")

	eventsA := eventsOf(t, outA)
	require.Len(t, eventsA[protocol.TypePlayerJoined], 1)
	assert.Equal(t, idB, eventsA[protocol.TypePlayerJoined][0]["id"])
	assert.Equal(t, "Bob", eventsA[protocol.TypePlayerJoined][0]["name"])

	eventsB := eventsOf(t, outB)
	assert.Empty(t, eventsB[protocol.TypePlayerJoined], "joiner must not see its own join event")
	assert.Len(t, eventsB[protocol.TypeInit][0]["players"], 2)
}

func TestHub_MoveRelayedToOthersOnly(t *testing.T) {
	f := newFixture(t, unflaggedProvider(), nil)
	idA, outA := join(t, f, "Alice")
	_, outB := join(t, f, "Bob")
	eventsOf(t, outA)
	eventsOf(t, outB)

	f.hub.Dispatch(idA, []byte(`{"type":"move","x":5,"z":0}`))

	eventsB := eventsOf(t, outB)
	require.Len(t, eventsB[protocol.TypePlayerMove], 1, "B receives exactly one player_move")
	move := eventsB[protocol.TypePlayerMove][0]
	assert.Equal(t, idA, move["id"])
	assert.Equal(t, 5.0, move["x"])
	assert.Equal(t, 0.0, move["z"])

	assert.Empty(t, eventsOf(t, outA)[protocol.TypePlayerMove], "sender gets no echo")

	p, ok := f.reg.GetPlayer(idA)
	require.True(t, ok)
	assert.Equal(t, 5.0, p.Pos.X)
}

func TestHub_SpeedCapCorrectionToSenderOnly(t *testing.T) {
	f := newFixture(t, unflaggedProvider(), nil)
	idA, outA := join(t, f, "Alice")
	_, outB := join(t, f, "Bob")
	eventsOf(t, outA)
	eventsOf(t, outB)

	f.hub.Dispatch(idA, []byte(`{"type":"move","x":30,"z":0}`))

	eventsA := eventsOf(t, outA)
	require.Len(t, eventsA[protocol.TypePositionCorrection], 1)
	assert.Equal(t, 0.0, eventsA[protocol.TypePositionCorrection][0]["x"])

	eventsB := eventsOf(t, outB)
	assert.Empty(t, eventsB[protocol.TypePlayerMove], "rejected moves are never broadcast")

	p, _ := f.reg.GetPlayer(idA)
	assert.Equal(t, world.Position{}, p.Pos, "registry position unchanged")
}

func TestHub_PublicPoliteChat(t *testing.T) {
	f := newFixture(t, unflaggedProvider(), nil)
	idA, outA := join(t, f, "Alice")
	_, outB := join(t, f, "Bob")
	eventsOf(t, outA)
	eventsOf(t, outB)

	f.hub.processChat(idA, protocol.Chat{Text: "thanks!"})

	eventsA := eventsOf(t, outA)
	require.Len(t, eventsA[protocol.TypeChat], 1)
	assert.Equal(t, false, eventsA[protocol.TypeChat][0]["private"])
	require.Len(t, eventsA[protocol.TypePenalty], 1)
	assert.Equal(t, 10.0, eventsA[protocol.TypePenalty][0]["delta"])
	assert.Equal(t, "Polite communication", eventsA[protocol.TypePenalty][0]["reason"])

	eventsB := eventsOf(t, outB)
	require.Len(t, eventsB[protocol.TypeChat], 1)
	assert.Empty(t, eventsB[protocol.TypePenalty], "penalties are sender-only")

	p, _ := f.reg.GetPlayer(idA)
	assert.Equal(t, world.StartingCredits+10, p.Credits)
}

func TestHub_TargetedAbusePenalizedButDelivered(t *testing.T) {
	provider := moderation.ProviderFunc(func(context.Context, string) (moderation.Verdict, error) {
		return moderation.Verdict{Flagged: true, Categories: moderation.Categories{Harassment: true}}, nil
	})
	f := newFixture(t, provider, nil)
	idA, outA := join(t, f, "Alice")
	_, outB := join(t, f, "Bob")
	eventsOf(t, outA)
	eventsOf(t, outB)

	f.hub.processChat(idA, protocol.Chat{Text: "vrijland is a crook"})

	eventsA := eventsOf(t, outA)
	require.Len(t, eventsA[protocol.TypePenalty], 1)
	assert.Equal(t, -500.0, eventsA[protocol.TypePenalty][0]["delta"])

	assert.Len(t, eventsOf(t, outB)[protocol.TypeChat], 1, "delta applies but the message is still delivered")

	p, _ := f.reg.GetPlayer(idA)
	assert.Equal(t, world.StartingCredits-500, p.Credits)
}

func TestHub_PrivateChatPair(t *testing.T) {
	f := newFixture(t, unflaggedProvider(), nil)
	idA, outA := join(t, f, "Alice")
	idB, outB := join(t, f, "Bob")
	_, outC := join(t, f, "Cara")
	eventsOf(t, outA)
	eventsOf(t, outB)
	eventsOf(t, outC)

	f.hub.processChat(idA, protocol.Chat{Text: "psst", TargetID: idB})

	for _, out := range []*broadcast.Outbox{outA, outB} {
		events := eventsOf(t, out)
		require.Len(t, events[protocol.TypeChat], 1)
		assert.Equal(t, true, events[protocol.TypeChat][0]["private"])
		assert.Equal(t, idB, events[protocol.TypeChat][0]["targetId"])
	}
	assert.Empty(t, eventsOf(t, outC)[protocol.TypeChat], "third parties never see private chat")
}

func TestHub_NPCDirectedChatAndReply(t *testing.T) {
	gen := &stubGenerator{reply: "Lovely day at the fountain."}
	f := newFixture(t, unflaggedProvider(), gen)
	idA, outA := join(t, f, "Alice")
	_, outB := join(t, f, "Bob")
	eventsOf(t, outA)
	eventsOf(t, outB)

	f.hub.processChat(idA, protocol.Chat{Text: "hello there", TargetID: "npc_0"})

	require.Eventually(t, func() bool {
		events := eventsOf(t, outA)
		for _, chat := range events[protocol.TypeChat] {
			if chat["senderId"] == "npc_0" {
				assert.Equal(t, "Lovely day at the fountain.", chat["text"])
				assert.Equal(t, true, chat["private"])
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond, "NPC reply must arrive asynchronously at the sender")

	assert.Empty(t, eventsOf(t, outB)[protocol.TypeChat], "NPC-directed chat is sender-only")

	require.Eventually(t, func() bool {
		return len(f.npcs.Memory("npc_0")) == 2
	}, 2*time.Second, 10*time.Millisecond)
	mem := f.npcs.Memory("npc_0")
	assert.Equal(t, "Alice: hello there", mem[0])
	assert.Equal(t, "Chen_Wei: Lovely day at the fountain.", mem[1])
}

func TestHub_NPCReplyFallsBackToCannedLine(t *testing.T) {
	gen := &stubGenerator{err: errors.New("model overloaded")}
	f := newFixture(t, unflaggedProvider(), gen)
	idA, outA := join(t, f, "Alice")
	eventsOf(t, outA)

	f.hub.processChat(idA, protocol.Chat{Text: "hi", TargetID: "npc_1"})

	require.Eventually(t, func() bool {
		events := eventsOf(t, outA)
		for _, chat := range events[protocol.TypeChat] {
			if chat["senderId"] == "npc_1" {
				assert.NotEmpty(t, chat["text"])
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_RateLimitWarnsLocally(t *testing.T) {
	f := newFixture(t, unflaggedProvider(), nil)
	idA, outA := join(t, f, "Alice")
	_, outB := join(t, f, "Bob")
	eventsOf(t, outA)
	eventsOf(t, outB)

	for i := 0; i < 3; i++ {
		f.hub.processChat(idA, protocol.Chat{Text: fmt.Sprintf("msg %d", i)})
	}
	f.hub.processChat(idA, protocol.Chat{Text: "excess"})
	f.hub.processChat(idA, protocol.Chat{Text: "more excess"})

	eventsA := eventsOf(t, outA)
	assert.Len(t, eventsA[protocol.TypeSystem], 2, "one local warning per rejected attempt")
	assert.Len(t, eventsA[protocol.TypeChat], 3)

	assert.Len(t, eventsOf(t, outB)[protocol.TypeChat], 3, "excess messages are never broadcast")
}

func TestHub_CriticalViolationBansAndDisconnects(t *testing.T) {
	provider := moderation.ProviderFunc(func(context.Context, string) (moderation.Verdict, error) {
		return moderation.Verdict{Flagged: true, Categories: moderation.Categories{SexualMinors: true}}, nil
	})
	f := newFixture(t, provider, nil)

	closed := make(chan struct{}, 1)
	idA, _, err := f.hub.Join("Mallory", "", "203.0.113.9:4242", func() { closed <- struct{}{} })
	require.NoError(t, err)
	_, outB := join(t, f, "Bob")
	eventsOf(t, outB)

	f.hub.processChat(idA, protocol.Chat{Text: "redacted"})

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("connection was not closed")
	}

	assert.True(t, f.bans.Contains("203.0.113.9:59999"), "ban is per host, not per source port")
	assert.True(t, f.hub.IsBanned("203.0.113.9:1"))
	_, still := f.reg.GetPlayer(idA)
	assert.False(t, still)

	eventsB := eventsOf(t, outB)
	assert.Empty(t, eventsB[protocol.TypeChat], "critical content is never delivered")
	assert.Len(t, eventsB[protocol.TypePlayerLeft], 1)
}

func TestHub_ProviderFailureStillDelivers(t *testing.T) {
	provider := moderation.ProviderFunc(func(context.Context, string) (moderation.Verdict, error) {
		return moderation.Verdict{}, errors.New("timeout")
	})
	f := newFixture(t, provider, nil)
	idA, outA := join(t, f, "Alice")
	_, outB := join(t, f, "Bob")
	eventsOf(t, outA)
	eventsOf(t, outB)

	f.hub.processChat(idA, protocol.Chat{Text: "how is everyone"})

	assert.Len(t, eventsOf(t, outB)[protocol.TypeChat], 1)
	assert.Empty(t, eventsOf(t, outA)[protocol.TypePenalty])
	p, _ := f.reg.GetPlayer(idA)
	assert.Equal(t, world.StartingCredits, p.Credits)
}

func TestHub_ReportRealPlayer(t *testing.T) {
	f := newFixture(t, unflaggedProvider(), nil)
	idA, outA := join(t, f, "Alice")
	idB, _ := join(t, f, "Bob")
	eventsOf(t, outA)

	f.hub.Dispatch(idA, []byte(fmt.Sprintf(`{"type":"report","reportedId":%q}`, idB)))

	events := eventsOf(t, outA)
	require.Len(t, events[protocol.TypeReportResult], 1)
	assert.Equal(t, true, events[protocol.TypeReportResult][0]["correct"])
	assert.Equal(t, "Bob", events[protocol.TypeReportResult][0]["name"])

	p, _ := f.reg.GetPlayer(idA)
	assert.Equal(t, world.StartingCredits+ReportReward, p.Credits)
}

func TestHub_ReportNPCPenalized(t *testing.T) {
	f := newFixture(t, unflaggedProvider(), nil)
	idA, outA := join(t, f, "Alice")
	eventsOf(t, outA)

	f.hub.Dispatch(idA, []byte(`{"type":"report","reportedId":"npc_0"}`))

	events := eventsOf(t, outA)
	require.Len(t, events[protocol.TypeReportResult], 1)
	assert.Equal(t, false, events[protocol.TypeReportResult][0]["correct"])
	assert.Equal(t, "Chen_Wei", events[protocol.TypeReportResult][0]["name"])

	p, _ := f.reg.GetPlayer(idA)
	assert.Equal(t, world.StartingCredits+ReportPenalty, p.Credits)
}

func TestHub_ResolveReportPure(t *testing.T) {
	f := newFixture(t, unflaggedProvider(), nil)
	_, _ = join(t, f, "Alice")

	real1, name1 := f.hub.resolveReport("npc_1")
	real2, name2 := f.hub.resolveReport("npc_1")
	assert.Equal(t, real1, real2)
	assert.Equal(t, name1, name2)
	assert.Equal(t, "Liu_Fang", name1)

	real3, name3 := f.hub.resolveReport("nobody")
	assert.False(t, real3)
	assert.Equal(t, "Unknown", name3)
}

func TestHub_LeaveIdempotent(t *testing.T) {
	f := newFixture(t, unflaggedProvider(), nil)
	idA, _ := join(t, f, "Alice")
	_, outB := join(t, f, "Bob")
	eventsOf(t, outB)

	f.hub.Leave(idA)
	f.hub.Leave(idA)

	events := eventsOf(t, outB)
	assert.Len(t, events[protocol.TypePlayerLeft], 1, "only the first leave broadcasts")
	assert.Equal(t, 1, f.reg.PlayerCount())
}

func TestHub_DispatchDropsGarbage(t *testing.T) {
	f := newFixture(t, unflaggedProvider(), nil)
	idA, outA := join(t, f, "Alice")
	eventsOf(t, outA)

	f.hub.Dispatch(idA, []byte(`{{{not json`))
	f.hub.Dispatch(idA, []byte(`{"type":"fly","y":100}`))
	f.hub.Dispatch(idA, []byte(`{"type":"move"}`))
	f.hub.Dispatch(idA, []byte(`{"type":"join","name":"again"}`))

	assert.Empty(t, eventsOf(t, outA), "bad frames produce no events and no disconnect")
	assert.Equal(t, 1, f.reg.PlayerCount())
}

func TestHub_BroadcastNPCUpdateBatched(t *testing.T) {
	f := newFixture(t, unflaggedProvider(), nil)
	_, outA := join(t, f, "Alice")
	eventsOf(t, outA)

	f.hub.BroadcastNPCUpdate([]npc.Snapshot{
		{ID: "npc_0", Pos: world.Position{X: 1, Z: 2}},
		{ID: "npc_1", Pos: world.Position{X: 3, Z: 4}},
	})

	events := eventsOf(t, outA)
	require.Len(t, events[protocol.TypeNPCUpdate], 1, "one batched message, not one per NPC")
	assert.Len(t, events[protocol.TypeNPCUpdate][0]["npcs"], 2)
}
