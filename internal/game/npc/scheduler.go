package npc

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/plaza/internal/game/world"
)

// ambientLines is the canned pool for unsolicited public NPC chatter, and
// the fallback when the conversation generator is unavailable.
var ambientLines = []string{
	"Hello everyone!",
	"Nice weather today.",
	"How is everyone doing?",
	"This place looks great.",
	"Anyone want to chat?",
	"The system works perfectly.",
	"Credits are important!",
	"Following the rules is best.",
}

// AmbientLine returns a random canned chat line.
func AmbientLine(rng *rand.Rand) string {
	return ambientLines[rng.Intn(len(ambientLines))]
}

// SchedulerConfig tunes NPC movement and ambient chat timing.
type SchedulerConfig struct {
	// TickInterval is the movement tick period.
	TickInterval time.Duration
	// DecisionMin/DecisionMax bound the idle delay before a new waypoint.
	DecisionMin time.Duration
	DecisionMax time.Duration
	// ArrivalEpsilon is the distance below which a waypoint counts as
	// reached.
	ArrivalEpsilon float64
	// ChatMin/ChatMax bound the delay between ambient chat lines per NPC.
	ChatMin time.Duration
	ChatMax time.Duration
}

// Scheduler advances the NPC roster: a fast movement tick moves every NPC
// toward its waypoint, and a slow independent timer emits ambient public
// chat lines. The movement tick computes elapsed time from the last fired
// timestamp, so a delayed tick does not accumulate drift.
type Scheduler struct {
	cfg        SchedulerConfig
	manager    *Manager
	halfExtent float64
	logger     *zap.Logger

	// onMove receives the batch of NPCs whose position changed this tick.
	onMove func([]Snapshot)
	// onChat receives one ambient chat line; it must not block.
	onChat func(id, name, line string)
}

// NewScheduler creates a stopped Scheduler.
//
// Precondition: cfg intervals must be > 0 with min <= max; manager,
// logger, onMove, and onChat must be non-nil.
func NewScheduler(cfg SchedulerConfig, manager *Manager, halfExtent float64, logger *zap.Logger, onMove func([]Snapshot), onChat func(id, name, line string)) *Scheduler {
	if cfg.TickInterval <= 0 {
		panic("npc.NewScheduler: TickInterval must be > 0")
	}
	return &Scheduler{
		cfg:        cfg,
		manager:    manager,
		halfExtent: halfExtent,
		logger:     logger,
		onMove:     onMove,
		onChat:     onChat,
	}
}

// Start launches the movement and ambient chat loops. Both run until ctx
// is cancelled. The two loops are independent: a slow chat callback never
// stalls movement.
func (s *Scheduler) Start(ctx context.Context) {
	go s.runMovement(ctx)
	go s.runAmbientChat(ctx)
}

func (s *Scheduler) runMovement(ctx context.Context) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			changed := s.advance(now, dt, rng)
			if len(changed) > 0 {
				s.onMove(changed)
			}
		}
	}
}

// advance runs one movement tick and returns the NPCs that moved.
// dt is the elapsed time in seconds since the previous tick.
func (s *Scheduler) advance(now time.Time, dt float64, rng *rand.Rand) []Snapshot {
	s.manager.mu.Lock()
	defer s.manager.mu.Unlock()

	var changed []Snapshot
	for _, id := range s.manager.ids {
		n := s.manager.npcs[id]

		if n.Waypoint != nil {
			dist := n.Pos.Distance(*n.Waypoint)
			if dist <= s.cfg.ArrivalEpsilon {
				n.Waypoint = nil
			} else {
				step := n.Speed * dt
				if step >= dist {
					n.Pos = *n.Waypoint
					n.Waypoint = nil
				} else {
					frac := step / dist
					n.Pos.X += (n.Waypoint.X - n.Pos.X) * frac
					n.Pos.Z += (n.Waypoint.Z - n.Pos.Z) * frac
				}
				changed = append(changed, snapshotOf(n))
			}
		}

		if n.Waypoint == nil && !now.Before(n.NextDecision) {
			wp := world.Position{
				X: (rng.Float64()*2 - 1) * s.halfExtent,
				Z: (rng.Float64()*2 - 1) * s.halfExtent,
			}
			n.Waypoint = &wp
			n.NextDecision = now.Add(randomDuration(rng, s.cfg.DecisionMin, s.cfg.DecisionMax))
		}
	}
	return changed
}

func (s *Scheduler) runAmbientChat(ctx context.Context) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + 1))
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, due := range s.collectDueChats(now, rng) {
				s.logger.Debug("npc ambient chat",
					zap.String("npc", due.id),
					zap.String("line", due.line),
				)
				s.onChat(due.id, due.name, due.line)
			}
		}
	}
}

type dueChat struct {
	id   string
	name string
	line string
}

// collectDueChats gathers and reschedules every NPC whose ambient chat
// timer has passed. Callbacks fire after the lock is released.
func (s *Scheduler) collectDueChats(now time.Time, rng *rand.Rand) []dueChat {
	s.manager.mu.Lock()
	defer s.manager.mu.Unlock()

	var due []dueChat
	for _, id := range s.manager.ids {
		n := s.manager.npcs[id]
		if n.NextChat.IsZero() {
			n.NextChat = now.Add(randomDuration(rng, s.cfg.ChatMin, s.cfg.ChatMax))
			continue
		}
		if now.Before(n.NextChat) {
			continue
		}
		due = append(due, dueChat{id: n.ID, name: n.Name, line: AmbientLine(rng)})
		n.NextChat = now.Add(randomDuration(rng, s.cfg.ChatMin, s.cfg.ChatMax))
	}
	return due
}

func randomDuration(rng *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Int63n(int64(max-min)))
}
