package world

import (
	"fmt"
	"sync"
)

// StartingCredits is the credit score assigned to every new session.
const StartingCredits = 1000

// Player is a connected session's authoritative record. The Registry owns
// all Player values; callers only ever see copies.
type Player struct {
	// ID is the opaque session identifier, unique for the connection
	// lifetime.
	ID string
	// Name is the display name chosen at join.
	Name string
	// Avatar is the client-chosen avatar tag.
	Avatar string
	// Addr is the remote network address, kept for the ban set.
	Addr string
	// Pos is the last accepted position. Always within world bounds.
	Pos Position
	// Credits is the signed credit score. No floor is enforced.
	Credits int
}

// Registry is the single shared mutable store of plaza state. All methods
// are safe for concurrent use; callers must never perform network sends
// while one of these methods is on the stack.
type Registry struct {
	halfExtent float64

	mu      sync.RWMutex
	players map[string]*Player
	state   State
}

// NewRegistry creates an empty Registry with the given world half-extent
// and initial ambient state.
//
// Precondition: halfExtent must be > 0; initial must hold a valid weather
// type and a game time in [0, 24).
func NewRegistry(halfExtent float64, initial State) *Registry {
	if halfExtent <= 0 {
		panic("world.NewRegistry: halfExtent must be > 0")
	}
	return &Registry{
		halfExtent: halfExtent,
		players:    make(map[string]*Player),
		state:      initial,
	}
}

// HalfExtent returns the configured world bound B; positions satisfy
// |x| <= B and |z| <= B.
func (r *Registry) HalfExtent() float64 {
	return r.halfExtent
}

// AddPlayer registers a new session at the given spawn position.
//
// Precondition: id and name must be non-empty.
// Postcondition: Returns a copy of the created Player with
// StartingCredits, or an error if the id is already registered. The stored
// position is clamped into bounds.
func (r *Registry) AddPlayer(id, name, avatar, addr string, spawn Position) (Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.players[id]; exists {
		return Player{}, fmt.Errorf("world: player %q already registered", id)
	}

	p := &Player{
		ID:      id,
		Name:    name,
		Avatar:  avatar,
		Addr:    addr,
		Pos:     spawn.Clamp(r.halfExtent),
		Credits: StartingCredits,
	}
	r.players[id] = p
	return *p, nil
}

// RemovePlayer deletes a session record.
//
// Postcondition: Returns true if the player existed. Removing an unknown
// id is a no-op, so departure handling stays idempotent.
func (r *Registry) RemovePlayer(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.players[id]; !exists {
		return false
	}
	delete(r.players, id)
	return true
}

// GetPlayer returns a copy of the session record.
func (r *Registry) GetPlayer(id string) (Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[id]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// SetPosition stores an accepted position for the session.
//
// Precondition: pos must already be validated and within bounds; the
// movement validator is the only caller that produces these values.
// Postcondition: Returns an error if the session is not registered.
func (r *Registry) SetPosition(id string, pos Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[id]
	if !ok {
		return fmt.Errorf("world: player %q not found", id)
	}
	p.Pos = pos.Clamp(r.halfExtent)
	return nil
}

// AdjustCredits applies a signed delta to the session's credit score.
//
// Postcondition: Returns the new total, or an error if the session is not
// registered. The score may go negative.
func (r *Registry) AdjustCredits(id string, delta int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[id]
	if !ok {
		return 0, fmt.Errorf("world: player %q not found", id)
	}
	p.Credits += delta
	return p.Credits, nil
}

// Players returns copies of every registered session record.
func (r *Registry) Players() []Player {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Player, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, *p)
	}
	return out
}

// PlayerCount returns the number of registered sessions.
func (r *Registry) PlayerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

// SetWeather replaces the ambient weather and returns the new state.
//
// Precondition: w must be a valid Weather; intensity must be in [0, 1].
func (r *Registry) SetWeather(w Weather, intensity float64) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state.Weather = w
	r.state.Intensity = intensity
	return r.state
}

// AdvanceGameTime adds hours to the game clock, wrapping at 24, and
// returns the new time-of-day.
//
// Precondition: hours must be >= 0.
func (r *Registry) AdvanceGameTime(hours float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state.GameTime = AdvanceTime(r.state.GameTime, hours)
	return r.state.GameTime
}

// WorldState returns the current ambient state.
func (r *Registry) WorldState() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}
