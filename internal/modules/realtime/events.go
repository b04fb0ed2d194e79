package realtime

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dhanjayarya01/cinemasync-backend/internal/models"
)

// InboundEvent names a message a client may send.
type InboundEvent string

const (
	InAuthenticate  InboundEvent = "authenticate"
	InJoinRoom      InboundEvent = "join-room"
	InLeaveRoom     InboundEvent = "leave-room"
	InVideoPlay     InboundEvent = "video-play"
	InVideoPause    InboundEvent = "video-pause"
	InVideoSeek     InboundEvent = "video-seek"
	InVideoMetadata InboundEvent = "video-metadata"
	InChatMessage   InboundEvent = "chat-message"
	InVoiceMessage  InboundEvent = "voice-message"
	InOffer         InboundEvent = "offer"
	InAnswer        InboundEvent = "answer"
	InICECandidate  InboundEvent = "ice-candidate"
)

// InboundEvents lists every event the gateway subscribes to.
func InboundEvents() []InboundEvent {
	return []InboundEvent{
		InAuthenticate, InJoinRoom, InLeaveRoom,
		InVideoPlay, InVideoPause, InVideoSeek, InVideoMetadata,
		InChatMessage, InVoiceMessage,
		InOffer, InAnswer, InICECandidate,
	}
}

// OutboundEvent names a message the server emits.
type OutboundEvent string

const (
	OutAuthenticated       OutboundEvent = "authenticated"
	OutAuthError           OutboundEvent = "auth-error"
	OutRoomJoined          OutboundEvent = "room-joined"
	OutRoomLeft            OutboundEvent = "room-left"
	OutUserJoined          OutboundEvent = "user-joined"
	OutUserLeft            OutboundEvent = "user-left"
	OutParticipantsUpdated OutboundEvent = "participants-updated"
	OutVideoPlay           OutboundEvent = "video-play"
	OutVideoPause          OutboundEvent = "video-pause"
	OutVideoSeek           OutboundEvent = "video-seek"
	OutVideoMetadata       OutboundEvent = "video-metadata"
	OutChatMessage         OutboundEvent = "chat-message"
	OutVoiceMessage        OutboundEvent = "voice-message"
	OutOffer               OutboundEvent = "offer"
	OutAnswer              OutboundEvent = "answer"
	OutICECandidate        OutboundEvent = "ice-candidate"
	OutError               OutboundEvent = "error"
)

// Command is a decoded inbound message. The set of implementations is closed.
type Command interface {
	Event() InboundEvent
	command()
}

type Authenticate struct {
	Token string
}

type JoinRoom struct {
	RoomID   string
	Password string
}

type LeaveRoom struct{}

// SetPlaying covers video-play and video-pause.
type SetPlaying struct {
	Playing     bool
	CurrentTime *float64
	Duration    *float64
}

type Seek struct {
	Time     float64
	Duration *float64
}

type SetMedia struct {
	Media    models.MediaInfo
	Duration *float64
}

// RoomMessage is a chat or voice payload fanned out to the whole room.
type RoomMessage struct {
	Voice   bool
	Message json.RawMessage
}

// Signal is a point-to-point negotiation message (offer/answer/candidate).
type Signal struct {
	Kind    InboundEvent
	To      string
	RoomID  string
	Payload json.RawMessage
}

func (Authenticate) Event() InboundEvent { return InAuthenticate }
func (JoinRoom) Event() InboundEvent     { return InJoinRoom }
func (LeaveRoom) Event() InboundEvent    { return InLeaveRoom }
func (c SetPlaying) Event() InboundEvent {
	if c.Playing {
		return InVideoPlay
	}
	return InVideoPause
}
func (Seek) Event() InboundEvent     { return InVideoSeek }
func (SetMedia) Event() InboundEvent { return InVideoMetadata }
func (c RoomMessage) Event() InboundEvent {
	if c.Voice {
		return InVoiceMessage
	}
	return InChatMessage
}
func (c Signal) Event() InboundEvent { return c.Kind }

func (Authenticate) command() {}
func (JoinRoom) command()     {}
func (LeaveRoom) command()    {}
func (SetPlaying) command()   {}
func (Seek) command()         {}
func (SetMedia) command()     {}
func (RoomMessage) command()  {}
func (Signal) command()       {}

// outbound maps a relayed inbound event to the event delivered to the target.
func (e InboundEvent) outbound() OutboundEvent {
	switch e {
	case InOffer:
		return OutOffer
	case InAnswer:
		return OutAnswer
	case InICECandidate:
		return OutICECandidate
	case InChatMessage:
		return OutChatMessage
	case InVoiceMessage:
		return OutVoiceMessage
	}
	return ""
}

type wireAuthenticate struct {
	Token      string `json:"token"`
	Credential string `json:"credential"`
}

type wireJoinRoom struct {
	RoomID   string `json:"roomId"`
	Password string `json:"password"`
}

type wirePlayback struct {
	CurrentTime *float64 `json:"currentTime"`
	Time        *float64 `json:"time"`
	Duration    *float64 `json:"duration"`
}

type wireMedia struct {
	Name     string   `json:"name"`
	Size     int64    `json:"size"`
	Type     string   `json:"type"`
	URL      string   `json:"url"`
	Duration *float64 `json:"duration"`
}

type wireMessage struct {
	Message json.RawMessage `json:"message"`
}

type wireSignal struct {
	To        string          `json:"to"`
	RoomID    string          `json:"roomId"`
	Payload   json.RawMessage `json:"payload"`
	Offer     json.RawMessage `json:"offer"`
	Answer    json.RawMessage `json:"answer"`
	Candidate json.RawMessage `json:"candidate"`
}

// DecodeCommand turns a raw event name and its first argument into a Command.
// raw may be a decoded JSON value, a JSON string or bytes.
func DecodeCommand(event string, raw any) (Command, error) {
	data, err := rawJSON(raw)
	if err != nil {
		return nil, err
	}

	switch InboundEvent(event) {
	case InAuthenticate:
		var w wireAuthenticate
		if json.Unmarshal(data, &w) != nil {
			// a bare string argument is the token itself
			if err := unmarshalInto(data, &w.Token); err != nil {
				return nil, err
			}
		}
		return Authenticate{Token: firstNonEmpty(w.Token, w.Credential)}, nil

	case InJoinRoom:
		var w wireJoinRoom
		if err := unmarshalInto(data, &w); err != nil {
			var s string
			if json.Unmarshal(data, &s) != nil {
				return nil, err
			}
			w.RoomID = s
		}
		w.RoomID = strings.TrimSpace(w.RoomID)
		if w.RoomID == "" {
			return nil, fmt.Errorf("%w: roomId is required", ErrBadPayload)
		}
		return JoinRoom{RoomID: w.RoomID, Password: w.Password}, nil

	case InLeaveRoom:
		return LeaveRoom{}, nil

	case InVideoPlay, InVideoPause:
		var w wirePlayback
		if err := unmarshalInto(data, &w); err != nil {
			return nil, err
		}
		at := w.CurrentTime
		if at == nil {
			at = w.Time
		}
		if err := validTime(at); err != nil {
			return nil, err
		}
		return SetPlaying{Playing: InboundEvent(event) == InVideoPlay, CurrentTime: at, Duration: w.Duration}, nil

	case InVideoSeek:
		var w wirePlayback
		if err := unmarshalInto(data, &w); err != nil {
			return nil, err
		}
		at := w.Time
		if at == nil {
			at = w.CurrentTime
		}
		if at == nil {
			return nil, fmt.Errorf("%w: time is required", ErrBadPayload)
		}
		if err := validTime(at); err != nil {
			return nil, err
		}
		return Seek{Time: *at, Duration: w.Duration}, nil

	case InVideoMetadata:
		var w wireMedia
		if err := unmarshalInto(data, &w); err != nil {
			return nil, err
		}
		if w.Size < 0 {
			return nil, fmt.Errorf("%w: negative size", ErrBadPayload)
		}
		return SetMedia{
			Media:    models.MediaInfo{Name: w.Name, Size: w.Size, Type: w.Type, URL: w.URL},
			Duration: w.Duration,
		}, nil

	case InChatMessage, InVoiceMessage:
		var w wireMessage
		if err := unmarshalInto(data, &w); err != nil || len(w.Message) == 0 {
			// plain string or object without envelope
			w.Message = data
		}
		if isEmptyJSON(w.Message) {
			return nil, fmt.Errorf("%w: message is required", ErrBadPayload)
		}
		return RoomMessage{Voice: InboundEvent(event) == InVoiceMessage, Message: w.Message}, nil

	case InOffer, InAnswer, InICECandidate:
		var w wireSignal
		if err := unmarshalInto(data, &w); err != nil {
			return nil, err
		}
		w.To = strings.TrimSpace(w.To)
		if w.To == "" {
			return nil, fmt.Errorf("%w: target is required", ErrBadPayload)
		}
		payload := firstRaw(w.Payload, w.Offer, w.Answer, w.Candidate)
		if isEmptyJSON(payload) {
			return nil, fmt.Errorf("%w: payload is required", ErrBadPayload)
		}
		return Signal{Kind: InboundEvent(event), To: w.To, RoomID: strings.TrimSpace(w.RoomID), Payload: payload}, nil
	}

	return nil, fmt.Errorf("%w: unknown event %q", ErrBadPayload, event)
}

func rawJSON(raw any) (json.RawMessage, error) {
	switch v := raw.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		return v, nil
	case []byte:
		if json.Valid(v) {
			return v, nil
		}
		return nil, fmt.Errorf("%w: invalid json", ErrBadPayload)
	case string:
		trimmed := strings.TrimSpace(v)
		if strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
			return json.RawMessage(trimmed), nil
		}
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return data, nil
}

func unmarshalInto(data json.RawMessage, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

func validTime(v *float64) error {
	if v != nil && (*v < 0 || *v != *v) {
		return fmt.Errorf("%w: time must be a non-negative number", ErrBadPayload)
	}
	return nil
}

func isEmptyJSON(data json.RawMessage) bool {
	s := strings.TrimSpace(string(data))
	return s == "" || s == "null" || s == `""`
}

func firstRaw(values ...json.RawMessage) json.RawMessage {
	for _, v := range values {
		if !isEmptyJSON(v) {
			return v
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
