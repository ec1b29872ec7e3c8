// Package registry owns every loaded agent: built-ins and uploads. It
// enforces the upload ceiling, lists agents in a stable order and releases
// backing resources exactly once, deferring release while an agent is
// pinned by an in-flight invocation.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/gambit/core"
	"github.com/hupe1980/gambit/logging"
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("registry closed")
	// ErrDuplicateID is returned when a reserved id is already registered.
	ErrDuplicateID = errors.New("agent id already registered")
)

// Options configures a Registry.
type Options struct {
	Policy   core.UploadPolicy
	Logger   logging.Logger
	Notifier core.Notifier
}

type entry struct {
	agent    *core.LoadedAgent
	pins     int
	unloaded bool
}

// Registry is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	order    []string
	uploaded int
	closed   bool
	opts     Options
}

// New creates an empty registry.
func New(optFns ...func(o *Options)) *Registry {
	opts := Options{
		Policy:   core.DefaultUploadPolicy,
		Logger:   logging.NoOpLogger{},
		Notifier: core.NopNotifier{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.Notifier == nil {
		opts.Notifier = core.NopNotifier{}
	}
	return &Registry{entries: make(map[string]*entry), opts: opts}
}

// Policy returns the upload policy in effect.
func (r *Registry) Policy() core.UploadPolicy { return r.opts.Policy }

// CanAccept reports whether an agent of the given origin could be registered now.
func (r *Registry) CanAccept(origin core.Origin) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.canAcceptLocked(origin)
}

func (r *Registry) canAcceptLocked(origin core.Origin) error {
	if r.closed {
		return ErrClosed
	}
	if origin == core.OriginUploaded && r.uploaded >= r.opts.Policy.MaxUploadedAgents {
		return fmt.Errorf("%w: %d uploaded agents", core.ErrRegistryFull, r.uploaded)
	}
	return nil
}

// Register stores agent and returns its identifier. An id reserved in the
// descriptor is kept, otherwise a fresh one is assigned. On error the
// registry is unchanged and the caller keeps ownership of agent.
func (r *Registry) Register(agent *core.LoadedAgent) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.canAcceptLocked(agent.Descriptor.Origin); err != nil {
		return "", err
	}
	id := agent.Descriptor.ID
	if id == "" {
		id = core.NewID()
	} else if _, dup := r.entries[id]; dup {
		return "", fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	agent.Descriptor.ID = id
	r.entries[id] = &entry{agent: agent}
	r.order = append(r.order, id)
	if agent.Descriptor.Origin == core.OriginUploaded {
		r.uploaded++
	}
	r.opts.Logger.Debug("Agent registered", "agent_id", id, "name", agent.Descriptor.Name, "origin", string(agent.Descriptor.Origin))
	return id, nil
}

// Get returns the agent with the given id.
func (r *Registry) Get(id string) (*core.LoadedAgent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrAgentNotFound, id)
	}
	return e.agent, nil
}

// Descriptor returns the descriptor of the agent with the given id.
func (r *Registry) Descriptor(id string) (core.AgentDescriptor, error) {
	a, err := r.Get(id)
	if err != nil {
		return core.AgentDescriptor{}, err
	}
	return a.Descriptor, nil
}

// List returns built-in agents first, then uploads, each in registration order.
func (r *Registry) List() []core.AgentDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.AgentDescriptor, 0, len(r.order))
	for _, origin := range []core.Origin{core.OriginBuiltin, core.OriginUploaded} {
		for _, id := range r.order {
			if d := r.entries[id].agent.Descriptor; d.Origin == origin {
				out = append(out, d)
			}
		}
	}
	return out
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// UploadedCount returns the number of uploaded agents.
func (r *Registry) UploadedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.uploaded
}

// Unload removes the agent and releases its resources. Unloading an
// unknown id is a no-op. A pinned agent is released when its last lease ends.
func (r *Registry) Unload(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	r.removeLocked(id, e)
	release := e.pins == 0
	r.mu.Unlock()

	ev := core.NewEvent(core.EventAgentUnloaded, "")
	ev.AgentID = id
	ev.Message = e.agent.Descriptor.Name
	r.opts.Notifier.Notify(ev)

	if !release {
		r.opts.Logger.Debug("Agent release deferred", "agent_id", id)
		return nil
	}
	return r.release(ctx, e)
}

func (r *Registry) removeLocked(id string, e *entry) {
	delete(r.entries, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if e.agent.Descriptor.Origin == core.OriginUploaded {
		r.uploaded--
	}
	e.unloaded = true
}

func (r *Registry) release(ctx context.Context, e *entry) error {
	if err := e.agent.Release(ctx); err != nil {
		r.opts.Logger.Warn("Agent release failed", "agent_id", e.agent.Descriptor.ID, "error", err)
		return err
	}
	return nil
}

// Acquire pins the agent for one invocation.
func (r *Registry) Acquire(id string) (*Lease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrAgentNotFound, id)
	}
	e.pins++
	return &Lease{reg: r, e: e}, nil
}

// Close unloads every agent. Pinned agents are released when their leases end.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	var toRelease []*entry
	for _, id := range append([]string(nil), r.order...) {
		e := r.entries[id]
		r.removeLocked(id, e)
		if e.pins == 0 {
			toRelease = append(toRelease, e)
		}
	}
	r.mu.Unlock()

	var errs []error
	for _, e := range toRelease {
		if err := r.release(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Lease pins an agent while an invocation runs.
type Lease struct {
	reg  *Registry
	e    *entry
	once sync.Once
}

// Agent returns the pinned agent.
func (l *Lease) Agent() *core.LoadedAgent { return l.e.agent }

// Release unpins the agent, releasing it if it was unloaded meanwhile.
// Calling Release more than once has no further effect.
func (l *Lease) Release(ctx context.Context) {
	l.once.Do(func() {
		l.reg.mu.Lock()
		l.e.pins--
		release := l.e.pins == 0 && l.e.unloaded
		l.reg.mu.Unlock()
		if release {
			_ = l.reg.release(ctx, l.e)
		}
	})
}
