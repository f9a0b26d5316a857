package toolproxy

import (
	"log/slog"
	"slices"

	bridge "github.com/spetersoncode/aguibridge"
	"github.com/spetersoncode/aguibridge/runtime"
)

// Registry is the request-scoped set of client tool proxies.
type Registry struct {
	proxies []*Proxy
}

// Option configures a Registry.
type Option func(*registryConfig)

type registryConfig struct {
	logger   *slog.Logger
	reserved []string
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *registryConfig) { c.logger = l }
}

// WithReservedNames excludes client tools whose names collide with these,
// typically the agent's own backend tools.
func WithReservedNames(names ...string) Option {
	return func(c *registryConfig) { c.reserved = append(c.reserved, names...) }
}

// NewRegistry builds one proxy per declaration. Declarations that collide
// with a reserved name, with the runtime's agent transfer tool or with an
// earlier declaration are skipped, as are ones that fail to build. Each skip
// is logged as a warning; construction itself never fails.
func NewRegistry(decls []bridge.ToolDeclaration, sink Sink, opts ...Option) *Registry {
	cfg := registryConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	r := &Registry{}
	seen := make(map[string]bool, len(decls))
	for _, d := range decls {
		switch {
		case d.Name == runtime.TransferToAgentTool || slices.Contains(cfg.reserved, d.Name):
			cfg.logger.Warn("skip client tool shadowing a backend tool", "tool", d.Name)
			continue
		case seen[d.Name]:
			cfg.logger.Warn("skip duplicate client tool", "tool", d.Name)
			continue
		}

		p, err := NewProxy(d, sink, cfg.logger)
		if err != nil {
			cfg.logger.Warn("skip client tool", "tool", d.Name, "error", err)
			continue
		}
		seen[d.Name] = true
		r.proxies = append(r.proxies, p)
	}
	return r
}

// Tools returns the proxies as runtime tools, in declaration order.
func (r *Registry) Tools() []runtime.Tool {
	tools := make([]runtime.Tool, len(r.proxies))
	for i, p := range r.proxies {
		tools[i] = p
	}
	return tools
}

// Names returns the proxied tool names.
func (r *Registry) Names() []string {
	names := make([]string, len(r.proxies))
	for i, p := range r.proxies {
		names[i] = p.Name()
	}
	return names
}

// Len returns the number of proxies.
func (r *Registry) Len() int { return len(r.proxies) }
