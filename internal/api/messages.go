/*
Package api
File: messages.go
Description:
    The wire format for the three remote mutation requests and the replies.

    Frames come from an untrusted client. Decode bounds the frame size,
    string lengths and integer ranges before anything reaches the gateway;
    the gateway then re-derives everything else from the owner's own state.
*/

package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Message types carried in the Envelope.
const (
	TypeSetLevel        = "set_level"
	TypePauseResume     = "pause_resume"
	TypeRepairModule    = "repair_module"
	TypeMutationOutcome = "mutation_outcome"
	TypeArtifactResync  = "artifact_resync"
)

// Bounds applied to inbound frames.
const (
	MaxFrameBytes = 4 << 10
	MaxIDLength   = 64
	MaxWireLevel  = 1024
)

// ErrMalformed wraps every decode or bounds failure.
var ErrMalformed = errors.New("malformed request")

// Envelope is the JSON wrapper for all real-time communication.
type Envelope struct {
	Type    string          `json:"type"`             // Message type (e.g., "set_level")
	Payload json.RawMessage `json:"payload"`          // Type-specific body
	Sender  string          `json:"sender,omitempty"` // Origin ("server" for replies)
}

// SetLevelRequest asks for a new active level on an installed upgrade.
type SetLevelRequest struct {
	RequestID string `json:"request_id" validate:"omitempty,max=64,printascii"`
	UpgradeID string `json:"upgrade_id" validate:"required,max=64,printascii"`
	NewLevel  int32  `json:"new_level" validate:"gte=0,lte=1024"`
}

// PauseResumeRequest pauses or resumes an installed upgrade.
type PauseResumeRequest struct {
	RequestID string `json:"request_id" validate:"omitempty,max=64,printascii"`
	UpgradeID string `json:"upgrade_id" validate:"required,max=64,printascii"`
	Pause     bool   `json:"pause"`
}

// RepairModuleRequest repairs a damaged upgrade, partially or fully.
type RepairModuleRequest struct {
	RequestID   string `json:"request_id" validate:"omitempty,max=64,printascii"`
	UpgradeID   string `json:"upgrade_id" validate:"required,max=64,printascii"`
	TargetLevel int32  `json:"target_level" validate:"gte=0,lte=1024"`
	FullRepair  bool   `json:"full_repair"`
}

// RequestKind identifies which mutation a Request carries.
type RequestKind string

const (
	KindSetLevel     RequestKind = TypeSetLevel
	KindPauseResume  RequestKind = TypePauseResume
	KindRepairModule RequestKind = TypeRepairModule
)

// Request is the bounded, decoded form handed to the gateway.
type Request struct {
	ID         string
	Kind       RequestKind
	UpgradeID  string
	Level      int
	Pause      bool
	FullRepair bool
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeRequest parses and bounds one inbound frame. A request without an ID
// is assigned one so the reply can be correlated.
func DecodeRequest(frame []byte) (Request, error) {
	if len(frame) > MaxFrameBytes {
		return Request{}, fmt.Errorf("%w: frame of %d bytes exceeds %d", ErrMalformed, len(frame), MaxFrameBytes)
	}
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Request{}, fmt.Errorf("%w: envelope: %v", ErrMalformed, err)
	}

	var req Request
	switch env.Type {
	case TypeSetLevel:
		var p SetLevelRequest
		if err := decodePayload(env.Payload, &p); err != nil {
			return Request{}, err
		}
		req = Request{ID: p.RequestID, Kind: KindSetLevel, UpgradeID: p.UpgradeID, Level: int(p.NewLevel)}
	case TypePauseResume:
		var p PauseResumeRequest
		if err := decodePayload(env.Payload, &p); err != nil {
			return Request{}, err
		}
		req = Request{ID: p.RequestID, Kind: KindPauseResume, UpgradeID: p.UpgradeID, Pause: p.Pause}
	case TypeRepairModule:
		var p RepairModuleRequest
		if err := decodePayload(env.Payload, &p); err != nil {
			return Request{}, err
		}
		req = Request{ID: p.RequestID, Kind: KindRepairModule, UpgradeID: p.UpgradeID, Level: int(p.TargetLevel), FullRepair: p.FullRepair}
	default:
		return Request{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, env.Type)
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	return req, nil
}

func decodePayload(raw json.RawMessage, target any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", ErrMalformed)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("%w: payload: %v", ErrMalformed, err)
	}
	if err := validate.Struct(target); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// encodeMessage wraps payload in an Envelope from the server.
func encodeMessage(msgType string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	return json.Marshal(Envelope{Type: msgType, Payload: body, Sender: "server"})
}
