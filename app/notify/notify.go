// Package notify builds webhook notification payloads. Real network delivery
// is deliberately not implemented, the test endpoint produces a simulated
// response only. Dispatcher is the extension point for a future live sender
// with signing and retry.
package notify

import (
	"context"
	"time"
)

// Payload is the body a dispatcher would deliver to a webhook endpoint
type Payload struct {
	Event  string `json:"event"`
	Sample Sample `json:"sample"`
}

// Sample is a fixed demonstration body included in test deliveries
type Sample struct {
	Hello string    `json:"hello"`
	At    time.Time `json:"at"`
}

// Result describes the outcome of a dispatch attempt
type Result struct {
	Delivered bool    `json:"delivered"`
	To        string  `json:"to"`
	Payload   Payload `json:"payload"`
}

// Dispatcher delivers a payload for an event to a webhook url. The only
// implementation is the no-network Simulator, a real sender (signed HTTP POST
// with retry/backoff) plugs in here when delivery is enabled.
type Dispatcher interface {
	Dispatch(ctx context.Context, url, event string) (Result, error)
}

// Simulator implements Dispatcher without any outbound network calls
type Simulator struct {
	now func() time.Time // for tests
}

// NewSimulator creates a dispatch simulator
func NewSimulator() *Simulator {
	return &Simulator{now: time.Now}
}

// Dispatch builds the sample payload and reports it as delivered to the given
// url. No network I/O is performed.
func (s *Simulator) Dispatch(_ context.Context, url, event string) (Result, error) {
	payload := Payload{
		Event:  event,
		Sample: Sample{Hello: "world", At: s.now()},
	}
	return Result{Delivered: true, To: url, Payload: payload}, nil
}
