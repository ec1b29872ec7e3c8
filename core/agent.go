package core

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Side identifies one of the two players. The empty Side means "no side".
type Side string

const (
	SideNone  Side = ""
	SideWhite Side = "white"
	SideBlack Side = "black"
)

// Opponent returns the other side. SideNone has no opponent.
func (s Side) Opponent() Side {
	switch s {
	case SideWhite:
		return SideBlack
	case SideBlack:
		return SideWhite
	default:
		return SideNone
	}
}

// Valid reports whether s is white or black.
func (s Side) Valid() bool { return s == SideWhite || s == SideBlack }

// ParseSide converts a free-form side name into a Side. Unknown values map to SideNone.
func ParseSide(v string) Side {
	switch v {
	case "white", "White", "WHITE", "w":
		return SideWhite
	case "black", "Black", "BLACK", "b":
		return SideBlack
	default:
		return SideNone
	}
}

// RuntimeKind tags the execution style of a loaded agent.
type RuntimeKind string

const (
	// KindCompiled is a sandboxed WebAssembly module.
	KindCompiled RuntimeKind = "compiled-module"
	// KindScript is a JavaScript source evaluated by an embedded interpreter.
	KindScript RuntimeKind = "interpreted-script"
)

// Origin records where an agent came from.
type Origin string

const (
	OriginBuiltin  Origin = "built-in"
	OriginUploaded Origin = "uploaded"
)

// AgentDescriptor is the public, immutable identity of a loaded agent.
type AgentDescriptor struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Description   string      `json:"description"`
	PreferredSide Side        `json:"preferred_side,omitempty"`
	Kind          RuntimeKind `json:"kind"`
	Origin        Origin      `json:"origin"`
	Filename      string      `json:"filename,omitempty"`
	Size          int         `json:"size"`
	Checksum      string      `json:"checksum,omitempty"`
	LoadedAt      time.Time   `json:"loaded_at"`
}

// Runtime is the uniform decision contract implemented by every execution
// style. Optional entry points that an agent does not provide return
// ErrEntryPointMissing. Implementations serialize calls internally.
type Runtime interface {
	Kind() RuntimeKind
	Name(ctx context.Context, caps Capabilities) (string, error)
	Description(ctx context.Context, caps Capabilities) (string, error)
	PreferredSide(ctx context.Context, caps Capabilities) (Side, error)
	OnGameStart(ctx context.Context, caps Capabilities) error
	SelectMove(ctx context.Context, caps Capabilities) (string, error)
	SuggestMove(ctx context.Context, caps Capabilities) (string, error)
	Close(ctx context.Context) error
}

// Compiler turns a validated payload into a Runtime. Compilation internals
// are opaque to callers; failures should wrap ErrCompileFailed or
// ErrInterfaceMismatch.
type Compiler interface {
	Compile(ctx context.Context, payload []byte) (Runtime, error)
}

// CompilerFunc adapts a function to the Compiler interface.
type CompilerFunc func(ctx context.Context, payload []byte) (Runtime, error)

// Compile calls f.
func (f CompilerFunc) Compile(ctx context.Context, payload []byte) (Runtime, error) {
	return f(ctx, payload)
}

// LoadedAgent couples a descriptor with its runtime handle and the cleanup
// work required to tear it down. Release is safe to call many times; the
// runtime and cleanups run exactly once.
type LoadedAgent struct {
	Descriptor AgentDescriptor
	Runtime    Runtime

	cleanups []func(ctx context.Context) error
	once     sync.Once
	err      error
}

// NewLoadedAgent creates a LoadedAgent for the runtime.
func NewLoadedAgent(desc AgentDescriptor, rt Runtime) *LoadedAgent {
	return &LoadedAgent{Descriptor: desc, Runtime: rt}
}

// OnRelease registers additional cleanup executed after the runtime is closed.
func (a *LoadedAgent) OnRelease(fn func(ctx context.Context) error) {
	a.cleanups = append(a.cleanups, fn)
}

// Release closes the runtime and runs registered cleanups once.
func (a *LoadedAgent) Release(ctx context.Context) error {
	a.once.Do(func() {
		var errs []error
		if a.Runtime != nil {
			if err := a.Runtime.Close(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		for _, fn := range a.cleanups {
			if err := fn(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		a.err = errors.Join(errs...)
	})
	return a.err
}

// UploadPolicy bounds what the loader accepts.
type UploadPolicy struct {
	// MaxPayloadBytes caps the size of a single payload (before and after decompression).
	MaxPayloadBytes int
	// MaxUploadedAgents caps the number of uploaded agents held by the registry.
	// Built-in agents do not count.
	MaxUploadedAgents int
}

// DefaultUploadPolicy mirrors the limits used by the hosted deployment.
var DefaultUploadPolicy = UploadPolicy{
	MaxPayloadBytes:   10 << 20,
	MaxUploadedAgents: 20,
}
