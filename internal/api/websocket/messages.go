package websocket

import "time"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Periodic poll snapshot
	MessageTypeTelemetry MessageType = "telemetry"

	// Autopilot transitions
	MessageTypeAutopilotEvent MessageType = "autopilot_event"

	// Rudder hardware messages
	MessageTypeRudderFault MessageType = "rudder_fault"

	// System messages
	MessageTypeSystemStatus MessageType = "system_status"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// RudderFaultData represents a rudder fault transition
type RudderFaultData struct {
	Fault    string `json:"fault"`
	Previous string `json:"previous_fault"`
}

// SystemStatusData represents a lifecycle status change
type SystemStatusData struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewTelemetryMessage(snapshot interface{}) Message {
	return NewMessage(MessageTypeTelemetry, snapshot)
}

func NewAutopilotEventMessage(event interface{}) Message {
	return NewMessage(MessageTypeAutopilotEvent, event)
}

func NewRudderFaultMessage(fault, previous string) Message {
	return NewMessage(MessageTypeRudderFault, RudderFaultData{
		Fault:    fault,
		Previous: previous,
	})
}

func NewSystemStatusMessage(status, message string) Message {
	return NewMessage(MessageTypeSystemStatus, SystemStatusData{
		Status:  status,
		Message: message,
	})
}
