// Package loader turns submitted payloads into registered agents. Cheap
// policy checks run before any compilation; identity metadata is read from
// the agent itself with a silent fallback.
package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/gambit/artifact"
	"github.com/hupe1980/gambit/core"
	"github.com/hupe1980/gambit/host"
	"github.com/hupe1980/gambit/internal/metrics"
	"github.com/hupe1980/gambit/logging"
	"github.com/hupe1980/gambit/registry"
)

const (
	// DefaultName is used when neither the agent nor the filename yields a name.
	DefaultName = "Uploaded Agent"
	// DefaultDescription is used when the agent provides no description.
	DefaultDescription = "No description provided."
)

// Upload is a payload submitted for loading.
type Upload struct {
	Filename string
	Payload  []byte
	// Kind optionally pins the expected runtime kind.
	Kind   core.RuntimeKind
	Origin core.Origin
}

// Result is delivered by LoadAsync.
type Result struct {
	Descriptor core.AgentDescriptor
	Err        error
}

// Options configures a Loader.
type Options struct {
	// Compilers by runtime kind. A kind without compiler is rejected as InvalidFormat.
	Compilers map[core.RuntimeKind]core.Compiler
	// Payloads keeps uploaded payloads while the agent is registered. Optional.
	Payloads core.PayloadStore
	// MetadataTimeout bounds each identity metadata call.
	MetadataTimeout time.Duration
	Logger          logging.Logger
	Notifier        core.Notifier
	Metrics         *metrics.Metrics
}

// Loader validates, compiles and registers agents.
type Loader struct {
	reg  *registry.Registry
	opts Options
}

// New creates a Loader registering into reg. The upload policy is the registry's.
func New(reg *registry.Registry, optFns ...func(o *Options)) *Loader {
	opts := Options{
		Compilers:       map[core.RuntimeKind]core.Compiler{},
		MetadataTimeout: 2 * time.Second,
		Logger:          logging.NoOpLogger{},
		Notifier:        core.NopNotifier{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.Notifier == nil {
		opts.Notifier = core.NopNotifier{}
	}
	return &Loader{reg: reg, opts: opts}
}

// LoadAsync runs Load on its own goroutine and delivers the result on the
// returned channel, which is closed afterwards.
func (l *Loader) LoadAsync(ctx context.Context, up Upload) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		desc, err := l.Load(ctx, up)
		ch <- Result{Descriptor: desc, Err: err}
	}()
	return ch
}

// Load validates, compiles and registers an upload. On any error nothing is
// registered and every resource acquired so far is released.
func (l *Loader) Load(ctx context.Context, up Upload) (core.AgentDescriptor, error) {
	start := time.Now()
	if up.Origin == "" {
		up.Origin = core.OriginUploaded
	}

	desc, err := l.load(ctx, up)

	kind := string(desc.Kind)
	if kind == "" {
		kind = "unknown"
	}
	outcome := "ok"
	if err != nil {
		outcome = string(core.Classify(err))
	}
	l.opts.Metrics.ObserveLoad(kind, outcome)
	l.opts.Metrics.SetRegistered(l.reg.Len())
	if gl, ok := l.opts.Logger.(*logging.GambitLogger); ok {
		gl.LogLoad(up.Filename, kind, len(up.Payload), time.Since(start), err)
	} else if err != nil {
		l.opts.Logger.Warn("Agent load rejected", "filename", up.Filename, "error", err)
	} else {
		l.opts.Logger.Info("Agent loaded", "filename", up.Filename, "agent_id", desc.ID, "kind", kind)
	}
	return desc, err
}

func (l *Loader) load(ctx context.Context, up Upload) (core.AgentDescriptor, error) {
	policy := l.reg.Policy()
	payload := up.Payload

	if len(payload) == 0 {
		return core.AgentDescriptor{}, core.ErrEmptyPayload
	}
	// upload limits do not apply to the built-in catalog
	builtin := up.Origin == core.OriginBuiltin
	if !builtin && policy.MaxPayloadBytes > 0 && len(payload) > policy.MaxPayloadBytes {
		return core.AgentDescriptor{}, fmt.Errorf("%w: %d bytes, limit %d", core.ErrPayloadTooLarge, len(payload), policy.MaxPayloadBytes)
	}
	if IsCompressed(payload) {
		limit := policy.MaxPayloadBytes
		if limit <= 0 || builtin {
			limit = max(limit, core.DefaultUploadPolicy.MaxPayloadBytes)
		}
		raw, err := decompress(payload, limit)
		if err != nil {
			return core.AgentDescriptor{}, err
		}
		if len(raw) == 0 {
			return core.AgentDescriptor{}, core.ErrEmptyPayload
		}
		payload = raw
	}

	kind, err := Sniff(payload)
	if err != nil {
		return core.AgentDescriptor{}, err
	}
	desc := core.AgentDescriptor{Kind: kind, Origin: up.Origin, Filename: up.Filename, Size: len(payload)}
	if up.Kind != "" && up.Kind != kind {
		return desc, fmt.Errorf("%w: payload is %s, expected %s", core.ErrInvalidFormat, kind, up.Kind)
	}
	if hinted := KindFromFilename(strings.TrimSuffix(up.Filename, ".zst")); hinted != "" && hinted != kind {
		return desc, fmt.Errorf("%w: %s does not contain a %s", core.ErrInvalidFormat, up.Filename, hinted)
	}
	compiler, ok := l.opts.Compilers[kind]
	if !ok {
		return desc, fmt.Errorf("%w: no runtime for %s", core.ErrInvalidFormat, kind)
	}
	if err := l.reg.CanAccept(up.Origin); err != nil {
		return desc, err
	}
	if err := ctx.Err(); err != nil {
		return desc, err
	}

	rt, err := compiler.Compile(ctx, payload)
	if err != nil {
		if !errors.Is(err, core.ErrCompileFailed) && !errors.Is(err, core.ErrInterfaceMismatch) &&
			!errors.Is(err, core.ErrInvalidFormat) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %w", core.ErrCompileFailed, err)
		}
		return desc, err
	}
	if err := ctx.Err(); err != nil {
		_ = rt.Close(context.WithoutCancel(ctx))
		return desc, err
	}

	sum := sha256.Sum256(payload)
	desc.Checksum = hex.EncodeToString(sum[:])
	desc.LoadedAt = time.Now().UTC()
	l.identify(ctx, rt, &desc)

	// payload is stored before the agent becomes visible to Unload
	desc.ID = core.NewID()
	agent := core.NewLoadedAgent(desc, rt)
	if store := l.opts.Payloads; store != nil && up.Origin == core.OriginUploaded {
		if err := store.Save(desc.ID, payload); err != nil {
			l.opts.Logger.Warn("Payload not retained", "agent_id", desc.ID, "error", err)
		}
		agent.OnRelease(func(context.Context) error {
			if err := store.Delete(desc.ID); err != nil && !errors.Is(err, artifact.ErrNotFound) {
				return err
			}
			return nil
		})
	}

	id, err := l.reg.Register(agent)
	if err != nil {
		_ = agent.Release(context.WithoutCancel(ctx))
		desc.ID = ""
		return desc, err
	}
	desc = agent.Descriptor

	ev := core.NewEvent(core.EventAgentLoaded, "")
	ev.AgentID = id
	ev.Message = desc.Name
	l.opts.Notifier.Notify(ev)
	return desc, nil
}

// identify reads name, description and preferred side from the agent.
// Failures never escape; defaults are used instead.
func (l *Loader) identify(ctx context.Context, rt core.Runtime, desc *core.AgentDescriptor) {
	caps := host.Unbound()

	name, err := withTimeout(ctx, l.opts.MetadataTimeout, func(ctx context.Context) (string, error) {
		return rt.Name(ctx, caps)
	})
	name = strings.TrimSpace(name)
	if err != nil || name == "" {
		l.metadataFallback("name", desc.Filename, err)
		if name = stem(desc.Filename); name == "" {
			name = DefaultName
		}
	}
	desc.Name = name

	descr, err := withTimeout(ctx, l.opts.MetadataTimeout, func(ctx context.Context) (string, error) {
		return rt.Description(ctx, caps)
	})
	descr = strings.TrimSpace(descr)
	if err != nil || descr == "" {
		l.metadataFallback("description", desc.Filename, err)
		descr = DefaultDescription
	}
	desc.Description = descr

	side, err := withTimeout(ctx, l.opts.MetadataTimeout, func(ctx context.Context) (core.Side, error) {
		return rt.PreferredSide(ctx, caps)
	})
	if err != nil || !side.Valid() {
		if err != nil {
			l.metadataFallback("preferred side", desc.Filename, err)
		}
		side = core.SideNone
	}
	desc.PreferredSide = side
}

// metadataFallback logs why a default was used: a missing entry point is
// routine, a failing one is worth a warning.
func (l *Loader) metadataFallback(field, filename string, err error) {
	switch {
	case err == nil:
		l.opts.Logger.Debug("Agent returned empty metadata", "field", field, "filename", filename)
	case errors.Is(err, core.ErrEntryPointMissing):
		l.opts.Logger.Debug("Agent metadata entry point missing", "field", field, "filename", filename)
	default:
		l.opts.Logger.Warn("Agent metadata call failed", "field", field, "filename", filename, "error", err)
	}
}

func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}
