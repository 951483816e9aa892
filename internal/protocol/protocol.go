// Package protocol defines the JSON wire messages exchanged with plaza
// clients. Every frame is a JSON object with a "type" discriminator; the
// inbound surface is closed (four kinds), the outbound surface is the set of
// event structs in messages.go.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound message kinds.
const (
	KindJoin   = "join"
	KindMove   = "move"
	KindChat   = "chat"
	KindReport = "report"
)

// ErrUnknownKind is returned by Decode for a well-formed frame whose type
// tag is not part of the inbound protocol surface.
var ErrUnknownKind = errors.New("protocol: unknown message kind")

// ErrMalformed is returned by Decode for frames that do not parse or that
// are missing required fields.
var ErrMalformed = errors.New("protocol: malformed message")

// Join is a client's request to enter the plaza.
type Join struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// Move is a proposed position update on the ground plane.
type Move struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

// Chat is an outgoing chat line. TargetID selects private delivery: empty
// means public, a player id means a private pair message, an NPC id means
// an NPC-directed message answered only to the sender.
type Chat struct {
	Text     string `json:"text"`
	TargetID string `json:"targetId,omitempty"`
}

// Report accuses an entity of being a real player.
type Report struct {
	ReportedID string `json:"reportedId"`
}

type envelope struct {
	Type string `json:"type"`
}

type joinFrame struct {
	Name   *string `json:"name"`
	Avatar *string `json:"avatar"`
}

type moveFrame struct {
	X *float64 `json:"x"`
	Z *float64 `json:"z"`
}

type chatFrame struct {
	Text     *string `json:"text"`
	TargetID string  `json:"targetId"`
}

type reportFrame struct {
	ReportedID *string `json:"reportedId"`
}

// Decode parses a raw inbound frame into one of Join, Move, Chat, or
// Report.
//
// Postcondition: Returns exactly one of the four inbound types, or
// ErrMalformed (unparseable frame, missing required field) or
// ErrUnknownKind (tag outside the closed surface). The error values are
// wrapped and match with errors.Is.
func Decode(raw []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case KindJoin:
		var f joinFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("%w: join: %v", ErrMalformed, err)
		}
		if f.Name == nil || *f.Name == "" {
			return nil, fmt.Errorf("%w: join: name is required", ErrMalformed)
		}
		avatar := ""
		if f.Avatar != nil {
			avatar = *f.Avatar
		}
		return Join{Name: *f.Name, Avatar: avatar}, nil

	case KindMove:
		var f moveFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("%w: move: %v", ErrMalformed, err)
		}
		if f.X == nil || f.Z == nil {
			return nil, fmt.Errorf("%w: move: x and z are required", ErrMalformed)
		}
		return Move{X: *f.X, Z: *f.Z}, nil

	case KindChat:
		var f chatFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("%w: chat: %v", ErrMalformed, err)
		}
		if f.Text == nil || *f.Text == "" {
			return nil, fmt.Errorf("%w: chat: text is required", ErrMalformed)
		}
		return Chat{Text: *f.Text, TargetID: f.TargetID}, nil

	case KindReport:
		var f reportFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("%w: report: %v", ErrMalformed, err)
		}
		if f.ReportedID == nil || *f.ReportedID == "" {
			return nil, fmt.Errorf("%w: report: reportedId is required", ErrMalformed)
		}
		return Report{ReportedID: *f.ReportedID}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}
}
