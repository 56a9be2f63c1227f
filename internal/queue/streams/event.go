package streams

import (
	"time"

	"github.com/mohammad-safakhou/pharmaverse/session"
)

type EventType string

const (
	EventChatMessage EventType = "chat_message"
	EventAgentStatus EventType = "agent_status"
	EventAgentResult EventType = "agent_result"
	EventSessionData EventType = "session_data"
	EventPong        EventType = "pong"
)

// Worker status values carried by agent_status events.
const (
	AgentRunning = "running"
	AgentDone    = "done"
	AgentError   = "error"
)

// Event is one live update pushed to subscribers of a session.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

type ChatPayload struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

type AgentStatusPayload struct {
	Agent   string `json:"agent"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type AgentResultPayload struct {
	Agent   string         `json:"agent"`
	Data    map[string]any `json:"data"`
	Summary string         `json:"summary"`
	Message string         `json:"message"`
}

type SessionPayload struct {
	Session *session.Session `json:"session"`
}

type PongPayload struct {
	Message string `json:"message"`
}

func newEvent(t EventType, sessionID string, payload any) Event {
	return Event{Type: t, SessionID: sessionID, Payload: payload, Timestamp: time.Now().UTC()}
}

func ChatMessage(sessionID, sender, message string) Event {
	return newEvent(EventChatMessage, sessionID, ChatPayload{Sender: sender, Message: message})
}

func AgentStatus(sessionID, agent, status, message string) Event {
	return newEvent(EventAgentStatus, sessionID, AgentStatusPayload{Agent: agent, Status: status, Message: message})
}

func AgentResult(sessionID, agent string, data map[string]any, summary, message string) Event {
	return newEvent(EventAgentResult, sessionID, AgentResultPayload{Agent: agent, Data: data, Summary: summary, Message: message})
}

func SessionData(s *session.Session) Event {
	return newEvent(EventSessionData, s.ID, SessionPayload{Session: s})
}

func Pong(sessionID string) Event {
	return newEvent(EventPong, sessionID, PongPayload{Message: "Connection active"})
}
