package api

import (
	"github.com/skobkin/systop-web/internal/procscan"
	"github.com/skobkin/systop-web/internal/sampler"
)

// Message types exchanged over the WebSocket.
const (
	TypeHello     = "hello"
	TypeStats     = "stats"
	TypeProcs     = "procs"
	TypeError     = "error"
	TypePing      = "ping"
	TypePong      = "pong"
	TypeSubscribe = "subscribe"
)

// HostInfo identifies the monitored machine.
type HostInfo struct {
	OSName     *string `json:"os_name"`
	Kernel     *string `json:"kernel"`
	ClockTicks int64   `json:"clock_ticks"`
}

// HelloMessage is the initial payload sent on WebSocket connection.
type HelloMessage struct {
	Type           string          `json:"type"`
	IntervalMS     int             `json:"interval_ms"`
	ProcIntervalMS int             `json:"proc_interval_ms,omitempty"`
	Host           HostInfo        `json:"host"`
	Features       map[string]bool `json:"features"`
}

// NewHelloMessage constructs a hello payload.
func NewHelloMessage(intervalMS, procIntervalMS int, host HostInfo, features map[string]bool) HelloMessage {
	return HelloMessage{
		Type:           TypeHello,
		IntervalMS:     intervalMS,
		ProcIntervalMS: procIntervalMS,
		Host:           host,
		Features:       features,
	}
}

// StatsMessage wraps a sampler snapshot for transport.
type StatsMessage struct {
	Type string `json:"type"`
	sampler.Sample
}

// NewStatsMessage constructs a stats payload.
func NewStatsMessage(sample sampler.Sample) StatsMessage {
	return StatsMessage{
		Type:   TypeStats,
		Sample: sample,
	}
}

// ProcsMessage wraps a process snapshot for transport.
type ProcsMessage struct {
	Type string `json:"type"`
	procscan.Snapshot
}

// NewProcsMessage constructs a procs payload.
func NewProcsMessage(snapshot procscan.Snapshot) ProcsMessage {
	return ProcsMessage{
		Type:     TypeProcs,
		Snapshot: snapshot,
	}
}

// ErrorMessage communicates an error condition to the client.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewErrorMessage constructs an error payload.
func NewErrorMessage(message string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: message}
}

// ClientMessage is a generic envelope used for decoding inbound client messages.
type ClientMessage struct {
	Type string `json:"type"`
}

// SubscribeMessage toggles optional streams. Omitted fields keep their
// current setting.
type SubscribeMessage struct {
	Type  string `json:"type"`
	Procs *bool  `json:"procs,omitempty"`
}

// PongMessage is the response to a ping.
type PongMessage struct {
	Type string `json:"type"`
}
