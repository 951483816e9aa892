// Package npc provides the simulated plaza characters: a YAML-defined
// roster, autonomous waypoint movement, ambient chatter, and a bounded
// per-character conversation memory.
package npc

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/cory-johannsen/plaza/internal/game/world"
)

// IDPrefix namespaces NPC ids away from player session ids, so a reported
// id resolves to exactly one kind.
const IDPrefix = "npc_"

// maxMemory bounds the rolling conversation memory per NPC; the oldest
// exchange line is evicted first.
const maxMemory = 12

// NPC is one simulated character. Fields are owned by the Manager and
// mutated only under its lock; the Scheduler is the only mover.
type NPC struct {
	// ID is the namespaced identifier, e.g. "npc_3".
	ID string
	// Name is the display name from the roster.
	Name string
	// Avatar is the roster avatar tag.
	Avatar string
	// Persona is an optional style hint for the conversation generator.
	Persona string
	// Pos is the current position.
	Pos world.Position
	// Waypoint is the current movement target; nil while idle.
	Waypoint *world.Position
	// NextDecision is the earliest time a new waypoint may be chosen.
	NextDecision time.Time
	// NextChat is the next scheduled ambient chat line.
	NextChat time.Time
	// Speed is the per-NPC movement speed in units per second.
	Speed float64
	// Memory is the rolling conversation memory, oldest first.
	Memory []string
}

// Snapshot is a read-only copy of an NPC's public state.
type Snapshot struct {
	ID     string
	Name   string
	Avatar string
	Pos    world.Position
}

// Manager owns the fixed NPC roster for the process lifetime. All methods
// are safe for concurrent use.
type Manager struct {
	mu   sync.RWMutex
	npcs map[string]*NPC
	ids  []string // insertion order, for stable iteration
}

// NewManager spawns one NPC per roster definition at a random in-bounds
// position, with a per-NPC speed drawn from [speedMin, speedMax].
//
// Precondition: defs must be non-empty and validated; halfExtent > 0;
// 0 < speedMin <= speedMax; rng must be non-nil.
func NewManager(defs []Definition, halfExtent, speedMin, speedMax float64, rng *rand.Rand) *Manager {
	m := &Manager{npcs: make(map[string]*NPC, len(defs))}
	now := time.Now()
	for i, def := range defs {
		id := fmt.Sprintf("%s%d", IDPrefix, i)
		n := &NPC{
			ID:      id,
			Name:    def.Name,
			Avatar:  def.Avatar,
			Persona: def.Persona,
			Pos: world.Position{
				X: (rng.Float64()*2 - 1) * halfExtent,
				Z: (rng.Float64()*2 - 1) * halfExtent,
			},
			Speed:        speedMin + rng.Float64()*(speedMax-speedMin),
			NextDecision: now,
		}
		m.npcs[id] = n
		m.ids = append(m.ids, id)
	}
	return m
}

// Get returns a snapshot of the NPC with the given id.
func (m *Manager) Get(id string) (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.npcs[id]
	if !ok {
		return Snapshot{}, false
	}
	return snapshotOf(n), true
}

// Persona returns the roster persona hint for the NPC.
func (m *Manager) Persona(id string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.npcs[id]
	if !ok {
		return "", false
	}
	return n.Persona, true
}

// Snapshots returns a snapshot of every NPC, in roster order.
func (m *Manager) Snapshots() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Snapshot, 0, len(m.ids))
	for _, id := range m.ids {
		out = append(out, snapshotOf(m.npcs[id]))
	}
	return out
}

// Count returns the roster size.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.npcs)
}

// AppendExchange records one conversation line in the NPC's rolling
// memory, evicting the oldest line beyond the bound.
//
// Postcondition: Returns false if the id is unknown.
func (m *Manager) AppendExchange(id, line string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.npcs[id]
	if !ok {
		return false
	}
	n.Memory = append(n.Memory, line)
	if len(n.Memory) > maxMemory {
		n.Memory = n.Memory[len(n.Memory)-maxMemory:]
	}
	return true
}

// Memory returns a copy of the NPC's conversation memory, oldest first.
func (m *Manager) Memory(id string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.npcs[id]
	if !ok {
		return nil
	}
	out := make([]string, len(n.Memory))
	copy(out, n.Memory)
	return out
}

func snapshotOf(n *NPC) Snapshot {
	return Snapshot{ID: n.ID, Name: n.Name, Avatar: n.Avatar, Pos: n.Pos}
}
