// Package environment describes the ERP instances the gateway can reach.
package environment

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Environment is one configured ERP instance, addressed by a one-character code.
// Values are built once at startup and never mutated.
type Environment struct {
	Code            string
	Host            string
	Port            int
	HTTPS           bool
	Database        string
	Origins         []string
	RefreshInterval time.Duration
}

// BaseURL returns scheme://host:port without a trailing slash.
func (e Environment) BaseURL() string {
	scheme := "http"
	if e.HTTPS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, e.Host, e.Port)
}

// Refreshes reports whether a background catalog refresh is configured.
func (e Environment) Refreshes() bool {
	return e.RefreshInterval > 0
}

// Registry is an immutable code-indexed set of environments.
type Registry struct {
	byCode  map[string]Environment
	origins []string
}

// NewRegistry indexes envs by code. globalOrigins applies when the requested
// environment is unknown, and to environments that declare no origins.
func NewRegistry(envs []Environment, globalOrigins []string) (*Registry, error) {
	r := &Registry{
		byCode:  make(map[string]Environment, len(envs)),
		origins: normalizeOrigins(globalOrigins),
	}
	for _, env := range envs {
		if _, dup := r.byCode[env.Code]; dup {
			return nil, fmt.Errorf("duplicate environment code %q", env.Code)
		}
		if len(env.Origins) == 0 {
			env.Origins = r.origins
		} else {
			env.Origins = normalizeOrigins(env.Origins)
		}
		r.byCode[env.Code] = env
	}
	return r, nil
}

// Lookup returns the environment registered under code.
func (r *Registry) Lookup(code string) (Environment, bool) {
	env, ok := r.byCode[code]
	return env, ok
}

// AllowedOrigins returns the origin list governing a call to code: the
// environment's own list when it resolves, the global list otherwise.
func (r *Registry) AllowedOrigins(code string) []string {
	if env, ok := r.byCode[code]; ok {
		return env.Origins
	}
	return r.origins
}

// All returns the environments sorted by code.
func (r *Registry) All() []Environment {
	out := make([]Environment, 0, len(r.byCode))
	for _, env := range r.byCode {
		out = append(out, env)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
