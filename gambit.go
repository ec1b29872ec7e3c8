// Package gambit provides a high-level façade over the plugin execution core:
// the agent registry and loader, the decision invoker and the match
// orchestrator. Most applications interact with this package by:
//  1. Creating a Gambit via New() (built-in agents are registered on the way)
//  2. Uploading agents with LoadAgent
//  3. Creating sessions, configuring seats and driving matches through Engine()
//
// All defaults are safe for local development; servers typically add an
// archive and a structured logger.
package gambit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/gambit/agent/builtin"
	"github.com/hupe1980/gambit/agent/script"
	"github.com/hupe1980/gambit/agent/wasm"
	"github.com/hupe1980/gambit/core"
	"github.com/hupe1980/gambit/engine"
	"github.com/hupe1980/gambit/internal/metrics"
	"github.com/hupe1980/gambit/invoker"
	"github.com/hupe1980/gambit/loader"
	"github.com/hupe1980/gambit/logging"
	"github.com/hupe1980/gambit/registry"
	"github.com/hupe1980/gambit/rules"
	"github.com/hupe1980/gambit/session"
)

// Options configures the Gambit instance.
type Options struct {
	// Policy bounds uploads.
	Policy core.UploadPolicy

	EngineConfig  engine.Config
	InvokerConfig invoker.Config
	WasmConfig    wasm.Config

	// SessionStore defaults to an in-memory store.
	SessionStore core.SessionStore
	// Payloads retains uploaded payloads until unload. Optional.
	Payloads core.PayloadStore
	// Archiver receives finished games. Optional.
	Archiver engine.Archiver
	// Scheduler paces automated matches. Defaults to timers.
	Scheduler engine.Scheduler
	// Notifiers receive every event in addition to the built-in broadcaster.
	Notifiers []core.Notifier

	// SkipBuiltins leaves the built-in catalog unregistered.
	SkipBuiltins bool

	// Logger defaults to NoOp.
	Logger logging.Logger
	// Metrics defaults to a fresh registry.
	Metrics *metrics.Metrics
}

// Gambit is the façade aggregating the registry, loader, invoker and engine.
type Gambit struct {
	opts     Options
	registry *registry.Registry
	loader   *loader.Loader
	invoker  *invoker.Invoker
	engine   *engine.Engine
	events   *engine.Broadcaster
	metrics  *metrics.Metrics
	builtins map[string]string
}

// New creates a Gambit instance and registers the built-in agents.
func New(ctx context.Context, optFns ...func(o *Options)) (*Gambit, error) {
	opts := Options{
		Policy:        core.DefaultUploadPolicy,
		EngineConfig:  engine.DefaultConfig,
		InvokerConfig: invoker.DefaultConfig,
		WasmConfig:    wasm.DefaultConfig,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.SessionStore == nil {
		opts.SessionStore = session.NewInMemoryStore()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}

	g := &Gambit{
		opts:     opts,
		events:   engine.NewBroadcaster(),
		metrics:  opts.Metrics,
		builtins: make(map[string]string),
	}
	notifier := append(engine.MultiNotifier{
		g.events,
		engine.LoggingNotifier{Logger: logging.ForComponent(opts.Logger, "events")},
	}, opts.Notifiers...)

	g.registry = registry.New(func(o *registry.Options) {
		o.Policy = opts.Policy
		o.Logger = logging.ForComponent(opts.Logger, "registry")
		o.Notifier = notifier
	})
	g.loader = loader.New(g.registry, func(o *loader.Options) {
		o.Compilers = map[core.RuntimeKind]core.Compiler{
			core.KindCompiled: wasm.NewCompiler(func(o *wasm.Options) {
				o.Config = opts.WasmConfig
				o.Logger = logging.ForComponent(opts.Logger, "wasm")
			}),
			core.KindScript: script.NewCompiler(func(o *script.Options) {
				o.Logger = logging.ForComponent(opts.Logger, "script")
			}),
		}
		o.Payloads = opts.Payloads
		o.Logger = logging.ForComponent(opts.Logger, "loader")
		o.Notifier = notifier
		o.Metrics = opts.Metrics
	})
	g.invoker = invoker.New(g.registry, func(o *invoker.Options) {
		o.Config = opts.InvokerConfig
		o.Logger = logging.ForComponent(opts.Logger, "invoker")
		o.Metrics = opts.Metrics
	})
	g.engine = engine.New(g.invoker, func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Sessions = opts.SessionStore
		o.Agents = g.registry
		o.Scheduler = opts.Scheduler
		o.Notifier = notifier
		o.Archiver = opts.Archiver
		o.Logger = logging.ForComponent(opts.Logger, "engine")
		o.Metrics = opts.Metrics
	})

	if !opts.SkipBuiltins {
		if err := g.loadBuiltins(ctx); err != nil {
			_ = g.Close(ctx)
			return nil, err
		}
	}
	return g, nil
}

func (g *Gambit) loadBuiltins(ctx context.Context) error {
	catalog, err := builtin.Catalog()
	if err != nil {
		return err
	}
	for _, e := range catalog {
		desc, err := g.loader.Load(ctx, loader.Upload{
			Filename: e.Filename(),
			Payload:  e.Payload,
			Kind:     e.Kind,
			Origin:   core.OriginBuiltin,
		})
		if err != nil {
			return fmt.Errorf("built-in agent %s: %w", e.Key, err)
		}
		g.builtins[e.Key] = desc.ID
	}
	return nil
}

// Engine returns the match orchestrator.
func (g *Gambit) Engine() *engine.Engine { return g.engine }

// Registry returns the agent registry.
func (g *Gambit) Registry() *registry.Registry { return g.registry }

// Events returns the broadcaster every event passes through.
func (g *Gambit) Events() *engine.Broadcaster { return g.events }

// Metrics returns the metrics collectors.
func (g *Gambit) Metrics() *metrics.Metrics { return g.metrics }

// LoadAgent validates, compiles and registers an uploaded agent.
func (g *Gambit) LoadAgent(ctx context.Context, filename string, payload []byte) (core.AgentDescriptor, error) {
	return g.loader.Load(ctx, loader.Upload{Filename: filename, Payload: payload, Origin: core.OriginUploaded})
}

// LoadAgentAsync is LoadAgent delivering its result on a channel.
func (g *Gambit) LoadAgentAsync(ctx context.Context, filename string, payload []byte) <-chan loader.Result {
	return g.loader.LoadAsync(ctx, loader.Upload{Filename: filename, Payload: payload, Origin: core.OriginUploaded})
}

// Agents lists registered agents, built-ins first.
func (g *Gambit) Agents() []core.AgentDescriptor { return g.registry.List() }

// Agent returns the descriptor of one agent.
func (g *Gambit) Agent(id string) (core.AgentDescriptor, error) { return g.registry.Descriptor(id) }

// UnloadAgent removes an uploaded agent. Unloading an unknown id is a
// no-op; built-in agents stay registered until Close.
func (g *Gambit) UnloadAgent(ctx context.Context, id string) error {
	if desc, err := g.registry.Descriptor(id); err == nil && desc.Origin == core.OriginBuiltin {
		return fmt.Errorf("%w: %s", core.ErrBuiltinAgent, desc.Name)
	}
	err := g.registry.Unload(ctx, id)
	g.metrics.SetRegistered(g.registry.Len())
	return err
}

// BuiltinID returns the agent id of a built-in catalog key such as "random".
func (g *Gambit) BuiltinID(key string) (string, bool) {
	id, ok := g.builtins[key]
	return id, ok
}

// ResolveAgent maps a reference to an agent id. A reference is an agent id,
// a built-in key or an agent name (case-insensitive).
func (g *Gambit) ResolveAgent(ref string) (string, error) {
	if _, err := g.registry.Descriptor(ref); err == nil {
		return ref, nil
	}
	if id, ok := g.builtins[strings.ToLower(ref)]; ok {
		return id, nil
	}
	for _, d := range g.registry.List() {
		if strings.EqualFold(d.Name, ref) {
			return d.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %s", core.ErrAgentNotFound, ref)
}

// NewSession starts a session from fen, or from the standard position when
// fen is empty.
func (g *Gambit) NewSession(fen string) (*core.Session, error) {
	game, err := rules.FromFEN(fen)
	if err != nil {
		return nil, err
	}
	return g.engine.CreateSession(game)
}

// Close stops every match and releases every agent.
func (g *Gambit) Close(ctx context.Context) error {
	err := errors.Join(g.engine.Shutdown(ctx), g.registry.Close(ctx))
	g.events.Close()
	return err
}
