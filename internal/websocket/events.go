package websocket

// EventKind is the closed set of inbound realtime events. Parsing to an
// enum keeps dispatch exhaustive: adding an event means touching this file
// and the switch in the hub, not registering a string handler somewhere.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventChatJoin
	EventChatSend
	EventChatLeave
	EventSessionStart
	EventSessionPause
	EventSessionResume
	EventSessionComplete
)

var eventNames = map[EventKind]string{
	EventChatJoin:        "chat:join",
	EventChatSend:        "chat:send",
	EventChatLeave:       "chat:leave",
	EventSessionStart:    "session:start",
	EventSessionPause:    "session:pause",
	EventSessionResume:   "session:resume",
	EventSessionComplete: "session:complete",
}

func ParseEventKind(s string) EventKind {
	for kind, name := range eventNames {
		if name == s {
			return kind
		}
	}
	return EventUnknown
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsSessionRelay reports whether the event is a study-session lifecycle
// notice to fan out to the owner's other devices.
func (k EventKind) IsSessionRelay() bool {
	switch k {
	case EventSessionStart, EventSessionPause, EventSessionResume, EventSessionComplete:
		return true
	}
	return false
}

// InboundEvent is the wire envelope read from a connection.
type InboundEvent struct {
	Type    string `json:"type"`
	RoomID  string `json:"room_id,omitempty"`
	Message string `json:"message,omitempty"`
	Subject string `json:"subject,omitempty"`
}

// Server -> client event names.
const (
	evJoined     = "chat:joined"
	evUserJoined = "chat:user_joined"
	evUserLeft   = "chat:user_left"
	evMessage    = "chat:message"
	evRoomFull   = "chat:room_full"
	evError      = "chat:error"
)
