// Package gameserver hosts the session hub: the single owner of the
// connection-to-player mapping, the dispatcher for inbound protocol
// messages, and the place where moderation verdicts, movement validation,
// and report resolution turn into registry mutations and broadcasts.
//
// Locking discipline: registry access happens inside world.Registry's own
// guard; every broadcast is computed first and sent after the guard is
// released, so a slow network write can never stall another session.
package gameserver

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/plaza/internal/broadcast"
	"github.com/cory-johannsen/plaza/internal/game/moderation"
	"github.com/cory-johannsen/plaza/internal/game/movement"
	"github.com/cory-johannsen/plaza/internal/game/npc"
	"github.com/cory-johannsen/plaza/internal/game/world"
	"github.com/cory-johannsen/plaza/internal/protocol"
)

// Report consequences: a fixed reward for correctly identifying a real
// player and a fixed penalty for misidentifying an NPC, applied to the
// reporting session only.
const (
	ReportReward  = 50
	ReportPenalty = -50
)

// replyTimeout bounds one NPC reply generation call.
const replyTimeout = 15 * time.Second

// Generator produces NPC conversation replies. It may fail; the hub falls
// back to a canned line.
type Generator interface {
	Reply(ctx context.Context, npcName, persona string, history []string, incoming string) (string, error)
}

// Config holds the hub's movement tuning.
type Config struct {
	// MaxStep is the anti-cheat cap on a single move's distance.
	MaxStep float64
}

// Hub is the session manager. One Hub serves the whole process.
type Hub struct {
	cfg       Config
	logger    *zap.Logger
	registry  *world.Registry
	npcs      *npc.Manager
	router    *broadcast.Router
	pipeline  *moderation.Pipeline
	generator Generator // nil disables generated replies
	bans      *BanList

	rngMu sync.Mutex
	rng   *rand.Rand

	mu      sync.Mutex
	closers map[string]func()
}

// NewHub creates a Hub.
//
// Precondition: logger, registry, npcs, router, pipeline, and bans must be
// non-nil; generator may be nil.
func NewHub(cfg Config, registry *world.Registry, npcs *npc.Manager, router *broadcast.Router, pipeline *moderation.Pipeline, generator Generator, bans *BanList, logger *zap.Logger) *Hub {
	return &Hub{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		npcs:      npcs,
		router:    router,
		pipeline:  pipeline,
		generator: generator,
		bans:      bans,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		closers:   make(map[string]func()),
	}
}

// IsBanned reports whether the remote address is blocked. Consulted by the
// acceptor before upgrading a connection.
func (h *Hub) IsBanned(addr string) bool {
	return h.bans.Contains(addr)
}

// Join registers a new session spawned at the origin and returns its id
// and outbox. The session's own outbox receives the init snapshot; every
// other session receives a player_joined event.
//
// Precondition: name must be non-empty; closeFn force-closes the
// underlying connection and may be nil in tests.
// Postcondition: Returns a unique session id, or an error if registration
// fails.
func (h *Hub) Join(name, avatar, addr string, closeFn func()) (string, *broadcast.Outbox, error) {
	id := uuid.NewString()

	self, err := h.registry.AddPlayer(id, name, avatar, addr, world.Position{})
	if err != nil {
		return "", nil, fmt.Errorf("gameserver: join: %w", err)
	}

	// Snapshot before registering the outbox so the new session does not
	// see itself duplicated by a racing broadcast.
	players := h.registry.Players()
	state := h.registry.WorldState()
	npcSnaps := h.npcs.Snapshots()

	outbox := h.router.Register(id)
	if closeFn != nil {
		h.mu.Lock()
		h.closers[id] = closeFn
		h.mu.Unlock()
	}

	init := protocol.Init{
		Type:   protocol.TypeInit,
		SelfID: id,
		World: protocol.WorldInfo{
			Weather:   string(state.Weather),
			Intensity: state.Intensity,
			GameTime:  state.GameTime,
		},
		Players: make([]protocol.PlayerInfo, 0, len(players)),
		NPCs:    make([]protocol.NPCInfo, 0, len(npcSnaps)),
	}
	for _, p := range players {
		init.Players = append(init.Players, protocol.PlayerInfo{
			ID: p.ID, Name: p.Name, Avatar: p.Avatar, X: p.Pos.X, Z: p.Pos.Z,
		})
	}
	for _, n := range npcSnaps {
		init.NPCs = append(init.NPCs, protocol.NPCInfo{
			ID: n.ID, Name: n.Name, Avatar: n.Avatar, X: n.Pos.X, Z: n.Pos.Z,
		})
	}

	if err := outbox.Push(protocol.Encode(init)); err != nil {
		h.Leave(id)
		return "", nil, fmt.Errorf("gameserver: join: sending init: %w", err)
	}

	h.router.BroadcastExcept(id, protocol.Encode(protocol.PlayerJoined{
		Type: protocol.TypePlayerJoined,
		ID:   id, Name: self.Name, Avatar: self.Avatar,
		X: self.Pos.X, Z: self.Pos.Z,
	}))

	h.logger.Info("player joined",
		zap.String("session", id),
		zap.String("name", name),
		zap.String("addr", addr),
	)
	return id, outbox, nil
}

// Leave removes the session and announces the departure. Safe to call
// multiple times; only the first call has any effect.
func (h *Hub) Leave(sessionID string) {
	if !h.registry.RemovePlayer(sessionID) {
		return
	}

	h.mu.Lock()
	delete(h.closers, sessionID)
	h.mu.Unlock()

	h.pipeline.Forget(sessionID)
	h.router.Unregister(sessionID)
	h.router.Broadcast(protocol.Encode(protocol.PlayerLeft{
		Type: protocol.TypePlayerLeft,
		ID:   sessionID,
	}))

	h.logger.Info("player left", zap.String("session", sessionID))
}

// Disconnect forcefully closes a session's connection and removes it.
// Used for outbox overflow and critical moderation violations.
func (h *Hub) Disconnect(sessionID string) {
	h.mu.Lock()
	closeFn := h.closers[sessionID]
	h.mu.Unlock()

	h.Leave(sessionID)
	if closeFn != nil {
		closeFn()
	}
}

// Dispatch routes one decoded inbound frame. Unknown message kinds and
// malformed payloads are dropped without affecting the connection.
func (h *Hub) Dispatch(sessionID string, raw []byte) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		switch {
		case errors.Is(err, protocol.ErrUnknownKind):
			h.logger.Debug("ignoring unknown message kind",
				zap.String("session", sessionID), zap.Error(err))
		default:
			h.logger.Debug("dropping malformed message",
				zap.String("session", sessionID), zap.Error(err))
		}
		return
	}

	switch m := msg.(type) {
	case protocol.Move:
		h.handleMove(sessionID, m)
	case protocol.Chat:
		// Moderation may call out to the provider; keep it off the read
		// loop entirely.
		go h.processChat(sessionID, m)
	case protocol.Report:
		h.handleReport(sessionID, m)
	case protocol.Join:
		// The connection is already bound to a session.
		h.logger.Debug("ignoring duplicate join", zap.String("session", sessionID))
	}
}

// handleMove validates a proposed position. A rejected move sends a
// correction to the offender only; an accepted move is stored (last write
// wins) and relayed to everyone else.
func (h *Hub) handleMove(sessionID string, m protocol.Move) {
	p, ok := h.registry.GetPlayer(sessionID)
	if !ok {
		return
	}

	proposed := world.Position{X: m.X, Z: m.Z}
	accepted, corrected := movement.Validate(p.Pos, proposed, h.registry.HalfExtent(), h.cfg.MaxStep)
	if corrected {
		h.router.Send(sessionID, protocol.Encode(protocol.PositionCorrection{
			Type: protocol.TypePositionCorrection,
			X:    accepted.X, Z: accepted.Z,
		}))
		h.logger.Debug("rejected move beyond speed cap",
			zap.String("session", sessionID),
			zap.Float64("x", m.X), zap.Float64("z", m.Z),
		)
		return
	}

	if err := h.registry.SetPosition(sessionID, accepted); err != nil {
		return // session left between lookup and store
	}
	h.router.BroadcastExcept(sessionID, protocol.Encode(protocol.PlayerMove{
		Type: protocol.TypePlayerMove,
		ID:   sessionID,
		X:    accepted.X, Z: accepted.Z,
	}))
}

// processChat runs the moderation pipeline and then delivers the message
// to its audience. Runs on its own goroutine per message; the verdict
// re-enters shared state through the registry guard only after the
// provider call has finished.
func (h *Hub) processChat(sessionID string, m protocol.Chat) {
	sender, ok := h.registry.GetPlayer(sessionID)
	if !ok {
		return
	}

	out := h.pipeline.Evaluate(context.Background(), sessionID, m.Text)

	if out.RateLimited {
		h.router.Send(sessionID, protocol.Encode(protocol.System{
			Type: protocol.TypeSystem,
			Text: "You are sending messages too quickly. Please slow down.",
		}))
		return
	}

	// The session may have disconnected while the provider call was in
	// flight; its verdict is discarded.
	if _, still := h.registry.GetPlayer(sessionID); !still {
		return
	}

	if out.Severity == moderation.SeverityCritical {
		if _, err := h.registry.AdjustCredits(sessionID, out.Delta); err == nil {
			h.logger.Warn("critical content violation, banning address",
				zap.String("session", sessionID),
				zap.String("addr", sender.Addr),
				zap.String("reason", out.Reason),
			)
		}
		h.bans.Add(sender.Addr)
		h.Disconnect(sessionID)
		return
	}

	if out.Delta != 0 {
		if _, err := h.registry.AdjustCredits(sessionID, out.Delta); err != nil {
			return
		}
		h.router.Send(sessionID, protocol.Encode(protocol.Penalty{
			Type:   protocol.TypePenalty,
			Delta:  out.Delta,
			Reason: out.Reason,
		}))
	}

	h.deliverChat(sender, m)
}

// deliverChat routes the (already moderated) message to its audience.
func (h *Hub) deliverChat(sender world.Player, m protocol.Chat) {
	if m.TargetID == "" {
		h.router.Broadcast(protocol.Encode(protocol.ChatEvent{
			Type:     protocol.TypeChat,
			SenderID: sender.ID,
			Name:     sender.Name,
			Text:     m.Text,
		}))
		return
	}

	if _, ok := h.registry.GetPlayer(m.TargetID); ok {
		frame := protocol.Encode(protocol.ChatEvent{
			Type:     protocol.TypeChat,
			SenderID: sender.ID,
			Name:     sender.Name,
			Text:     m.Text,
			Private:  true,
			TargetID: m.TargetID,
		})
		h.router.SendPair(sender.ID, m.TargetID, frame)
		return
	}

	if target, ok := h.npcs.Get(m.TargetID); ok {
		h.router.Send(sender.ID, protocol.Encode(protocol.ChatEvent{
			Type:     protocol.TypeChat,
			SenderID: sender.ID,
			Name:     sender.Name,
			Text:     m.Text,
			Private:  true,
			TargetID: m.TargetID,
		}))
		go h.npcReply(sender, target, m.Text)
		return
	}

	// Target vanished between send and delivery: fall back to public.
	h.router.Broadcast(protocol.Encode(protocol.ChatEvent{
		Type:     protocol.TypeChat,
		SenderID: sender.ID,
		Name:     sender.Name,
		Text:     m.Text,
	}))
}

// npcReply synthesizes the NPC's answer asynchronously and delivers it to
// the original sender only, flagged private. Generation failures fall
// back to a canned line.
func (h *Hub) npcReply(sender world.Player, target npc.Snapshot, incoming string) {
	h.npcs.AppendExchange(target.ID, sender.Name+": "+incoming)

	reply := ""
	if h.generator != nil {
		persona, _ := h.npcs.Persona(target.ID)
		history := h.npcs.Memory(target.ID)

		ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
		defer cancel()

		generated, err := h.generator.Reply(ctx, target.Name, persona, history, incoming)
		if err != nil {
			h.logger.Warn("npc reply generation failed, using canned line",
				zap.String("npc", target.ID),
				zap.Error(err),
			)
		} else {
			reply = generated
		}
	}
	if reply == "" {
		h.rngMu.Lock()
		reply = npc.AmbientLine(h.rng)
		h.rngMu.Unlock()
	}

	h.npcs.AppendExchange(target.ID, target.Name+": "+reply)

	// Discard the reply if the sender disconnected while we generated it.
	if !h.router.Registered(sender.ID) {
		return
	}
	h.router.Send(sender.ID, protocol.Encode(protocol.ChatEvent{
		Type:     protocol.TypeChat,
		SenderID: target.ID,
		Name:     target.Name,
		Text:     reply,
		Private:  true,
		TargetID: sender.ID,
	}))
}

// handleReport resolves an accusation against the two disjoint id
// namespaces and applies the fixed score consequence to the reporter.
func (h *Hub) handleReport(sessionID string, m protocol.Report) {
	correct, name := h.resolveReport(m.ReportedID)

	delta, reason := ReportPenalty, "False report: that was not a real player"
	if correct {
		delta, reason = ReportReward, "Correct report"
	}
	if _, err := h.registry.AdjustCredits(sessionID, delta); err != nil {
		return
	}

	h.router.Send(sessionID, protocol.Encode(protocol.ReportResult{
		Type:    protocol.TypeReportResult,
		Correct: correct,
		Name:    name,
	}))
	h.router.Send(sessionID, protocol.Encode(protocol.Penalty{
		Type:   protocol.TypePenalty,
		Delta:  delta,
		Reason: reason,
	}))
}

// resolveReport is a pure lookup: player ids and NPC ids never collide,
// so the reported id resolves to exactly one kind.
func (h *Hub) resolveReport(reportedID string) (isRealPlayer bool, name string) {
	if p, ok := h.registry.GetPlayer(reportedID); ok {
		return true, p.Name
	}
	if n, ok := h.npcs.Get(reportedID); ok {
		return false, n.Name
	}
	return false, "Unknown"
}

// BroadcastNPCUpdate publishes one batched movement update for the NPCs
// that moved this tick. Wired as the scheduler's onMove callback.
func (h *Hub) BroadcastNPCUpdate(moved []npc.Snapshot) {
	update := protocol.NPCUpdate{
		Type: protocol.TypeNPCUpdate,
		NPCs: make([]protocol.NPCPosition, 0, len(moved)),
	}
	for _, n := range moved {
		update.NPCs = append(update.NPCs, protocol.NPCPosition{ID: n.ID, X: n.Pos.X, Z: n.Pos.Z})
	}
	h.router.Broadcast(protocol.Encode(update))
}

// BroadcastNPCChat publishes an ambient NPC chat line to everyone. Wired
// as the scheduler's onChat callback.
func (h *Hub) BroadcastNPCChat(npcID, name, line string) {
	h.router.Broadcast(protocol.Encode(protocol.ChatEvent{
		Type:     protocol.TypeChat,
		SenderID: npcID,
		Name:     name,
		Text:     line,
	}))
}
