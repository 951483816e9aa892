package protocol

import "encoding/json"

// PlayerInfo is the public view of a connected player.
type PlayerInfo struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Avatar string  `json:"avatar"`
	X      float64 `json:"x"`
	Z      float64 `json:"z"`
}

// NPCInfo is the public view of a simulated character.
type NPCInfo struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Avatar string  `json:"avatar"`
	X      float64 `json:"x"`
	Z      float64 `json:"z"`
}

// WorldInfo is the ambient state delivered on join and on change.
type WorldInfo struct {
	Weather   string  `json:"weather"`
	Intensity float64 `json:"intensity"`
	GameTime  float64 `json:"gameTime"`
}

// Init is the first event a session receives: its own id plus a full
// snapshot of the plaza.
type Init struct {
	Type    string       `json:"type"`
	SelfID  string       `json:"selfId"`
	Players []PlayerInfo `json:"players"`
	NPCs    []NPCInfo    `json:"npcs"`
	World   WorldInfo    `json:"world"`
}

// PlayerJoined announces a new session to everyone else.
type PlayerJoined struct {
	Type   string  `json:"type"`
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Avatar string  `json:"avatar"`
	X      float64 `json:"x"`
	Z      float64 `json:"z"`
}

// PlayerLeft announces a departure.
type PlayerLeft struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// PlayerMove relays an accepted position update.
type PlayerMove struct {
	Type string  `json:"type"`
	ID   string  `json:"id"`
	X    float64 `json:"x"`
	Z    float64 `json:"z"`
}

// NPCPosition is one entry of a batched NPC movement update.
type NPCPosition struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Z  float64 `json:"z"`
}

// NPCUpdate carries every NPC that moved during one scheduler tick.
type NPCUpdate struct {
	Type string        `json:"type"`
	NPCs []NPCPosition `json:"npcs"`
}

// ChatEvent delivers a chat line. Private is set for pair and NPC-directed
// delivery so the client renders both halves consistently.
type ChatEvent struct {
	Type     string `json:"type"`
	SenderID string `json:"senderId"`
	Name     string `json:"name"`
	Text     string `json:"text"`
	Private  bool   `json:"private"`
	TargetID string `json:"targetId,omitempty"`
}

// Penalty notifies the sender of a credit adjustment. Delta may be
// positive (politeness bonus).
type Penalty struct {
	Type   string `json:"type"`
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

// ReportResult answers a report with whether the accused was a real
// player, and their display name either way.
type ReportResult struct {
	Type    string `json:"type"`
	Correct bool   `json:"correct"`
	Name    string `json:"name"`
}

// PositionCorrection rolls the sender back to their last accepted
// position after a rejected move.
type PositionCorrection struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Z    float64 `json:"z"`
}

// WeatherUpdate announces an ambient weather change.
type WeatherUpdate struct {
	Type      string  `json:"type"`
	Weather   string  `json:"weather"`
	Intensity float64 `json:"intensity"`
}

// TimeUpdate announces the current game time-of-day.
type TimeUpdate struct {
	Type     string  `json:"type"`
	GameTime float64 `json:"gameTime"`
}

// System is a server-to-one informational line (rate-limit warnings and
// similar).
type System struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Outbound event type tags.
const (
	TypeInit               = "init"
	TypePlayerJoined       = "player_joined"
	TypePlayerLeft         = "player_left"
	TypePlayerMove         = "player_move"
	TypeNPCUpdate          = "npc_update"
	TypeChat               = "chat"
	TypePenalty            = "penalty"
	TypeReportResult       = "report_result"
	TypePositionCorrection = "position_correction"
	TypeWeatherUpdate      = "weather_update"
	TypeTimeUpdate         = "time_update"
	TypeSystem             = "system"
)

// Encode marshals an outbound event to a JSON frame. Events are plain
// structs with their Type tag already set; marshalling them cannot fail.
func Encode(event any) []byte {
	data, err := json.Marshal(event)
	if err != nil {
		// Outbound events contain only strings, numbers, and bools.
		panic("protocol: unencodable event: " + err.Error())
	}
	return data
}
