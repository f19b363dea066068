// Package genai defines the contract with the text-generation capability.
//
// The pipeline never talks to a model vendor directly: every stage issues a
// Request through a Generator and receives plain text back. Model identity
// is part of the run configuration, not negotiated here.
package genai

import (
	"context"
	"errors"
)

// Role identifies which pipeline persona a request speaks as. Providers may
// map roles to system prompts; the pipeline uses them for logging and for
// per-role model selection.
type Role string

const (
	RoleScout    Role = "scout"
	RolePlanner  Role = "planner"
	RoleEvidence Role = "evidence"
	RoleWriter   Role = "writer"
	RoleCritic   Role = "critic"
)

// ErrInputTooLarge is returned when the assembled prompt exceeds what the
// backend will accept. The stage runtime reacts by condensing the evidence
// payload once and retrying.
var ErrInputTooLarge = errors.New("genai: input too large")

// Request is one generation call.
type Request struct {
	// Role is the pipeline persona issuing the request.
	Role Role

	// Model is the backend model name, resolved from configuration.
	Model string

	// Prompt is the full assembled prompt text.
	Prompt string

	// MaxOutputChars hints the desired response length bound. Zero means
	// provider default.
	MaxOutputChars int

	// Stream, when non-nil, receives incremental output deltas. Streaming
	// never changes completion semantics: the response is complete only
	// when Generate returns.
	Stream StreamSink
}

// Response is the completed generation result.
type Response struct {
	Text string
}

// StreamSink receives incremental output. Implementations must be safe to
// call from the provider's goroutine and must not block for long.
type StreamSink interface {
	Delta(text string)
}

// Generator is the single entry point to the generation capability.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Func adapts a function to the Generator interface. Tests script
// generators this way, mirroring how fakes are built elsewhere in the tree.
type Func func(ctx context.Context, req Request) (*Response, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}
