package guardrails

import (
	"context"
	"errors"
	"slices"
	"time"
)

// Func is a guardrail body. It returns a verdict, or an error when the check
// itself could not run. Engine callers fill in Verdict.Guardrail and
// Verdict.ExecutionTime.
type Func func(ctx context.Context, in Context) (Verdict, error)

// Guardrail is a named, versioned policy check. It is immutable once built and
// may be shared across runs. Guardrails that keep state (a rate limiter, a
// counter) own that state and synchronize it themselves; the engine runs them
// concurrently without any locking.
type Guardrail struct {
	name        string
	description string
	version     string
	priority    int
	tags        []string
	timeout     time.Duration
	failOpen    bool
	fn          Func
}

// Option configures a Guardrail.
type Option func(*Guardrail)

// WithDescription sets a human-readable description.
func WithDescription(d string) Option {
	return func(g *Guardrail) { g.description = d }
}

// WithVersion sets the guardrail version string.
func WithVersion(v string) Option {
	return func(g *Guardrail) { g.version = v }
}

// WithPriority sets the priority reported in telemetry and evidence.
func WithPriority(p int) Option {
	return func(g *Guardrail) { g.priority = p }
}

// WithTags attaches tags.
func WithTags(tags ...string) Option {
	return func(g *Guardrail) { g.tags = append(g.tags, tags...) }
}

// WithTimeout bounds each execution. Zero means unbounded.
func WithTimeout(d time.Duration) Option {
	return func(g *Guardrail) { g.timeout = d }
}

// WithFailOpen makes execution errors pass instead of block. Timeouts and
// validation errors still block.
func WithFailOpen() Option {
	return func(g *Guardrail) { g.failOpen = true }
}

// New builds a guardrail.
func New(name string, fn Func, opts ...Option) (*Guardrail, error) {
	if name == "" {
		return nil, errors.New("guardrail name is required")
	}
	if fn == nil {
		return nil, errors.New("guardrail " + name + ": function is required")
	}
	g := &Guardrail{name: name, version: "1", fn: fn}
	for _, opt := range opts {
		opt(g)
	}
	if g.timeout < 0 {
		return nil, errors.New("guardrail " + name + ": timeout must not be negative")
	}
	return g, nil
}

// MustNew is like New but panics on error. Intended for package-level guardrails.
func MustNew(name string, fn Func, opts ...Option) *Guardrail {
	g, err := New(name, fn, opts...)
	if err != nil {
		panic(err)
	}
	return g
}

func (g *Guardrail) Name() string           { return g.name }
func (g *Guardrail) Description() string    { return g.description }
func (g *Guardrail) Version() string        { return g.version }
func (g *Guardrail) Priority() int          { return g.priority }
func (g *Guardrail) Timeout() time.Duration { return g.timeout }
func (g *Guardrail) FailOpen() bool         { return g.failOpen }

// Renamed returns a copy of g that runs under name. The copy shares g's
// body, and with it any state the body keeps.
func (g *Guardrail) Renamed(name string) *Guardrail {
	if name == "" || name == g.name {
		return g
	}
	cp := *g
	cp.name = name
	cp.tags = slices.Clone(g.tags)
	return &cp
}

// Tags returns a copy of the guardrail's tags.
func (g *Guardrail) Tags() []string {
	return slices.Clone(g.tags)
}

// HasTag reports whether the guardrail carries tag.
func (g *Guardrail) HasTag(tag string) bool {
	return slices.Contains(g.tags, tag)
}

// Execute calls the guardrail body directly, without timeout or recovery.
// Use an engine to run guardrails.
func (g *Guardrail) Execute(ctx context.Context, in Context) (Verdict, error) {
	return g.fn(ctx, in)
}

// Names returns the names of the given guardrails in order.
func Names(units []*Guardrail) []string {
	names := make([]string, len(units))
	for i, u := range units {
		names[i] = u.name
	}
	return names
}
