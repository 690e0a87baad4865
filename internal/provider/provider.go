package provider

import (
	"context"

	"github.com/stride-io/stride/pkg/protocol"
)

// Provider is the abstraction over LLM APIs. The analyzer treats it as a
// black box with a timeout contract; everything else is provider wiring.
type Provider interface {
	Chat(ctx context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error)
	Name() string
}
