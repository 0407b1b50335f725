package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Registry maps reviewer roles to backend preferences and tracks backend
// health for circuit breaking.
type Registry struct {
	mu       sync.RWMutex
	roles    map[Role]*RoleConfig
	backends map[string]*BackendConfig
	defaults *DefaultsConfig
	health   *healthState
}

// RoleConfig defines backend preferences for a reviewer role.
type RoleConfig struct {
	// Description explains what this role is for.
	Description string `json:"description"`

	// Preferred lists backends in order of preference. The router tries
	// the first, then the rest of Preferred, then Fallback.
	Preferred []string `json:"preferred"`

	// Fallback lists backup backends tried only after every Preferred
	// backend has failed.
	Fallback []string `json:"fallback"`
}

// BackendConfig defines an available LLM backend.
type BackendConfig struct {
	// Provider is the model provider (anthropic, openai, ollama).
	Provider string `json:"provider"`

	// URL is the API endpoint URL (for non-Anthropic providers).
	URL string `json:"url,omitempty"`

	// Model is the actual model identifier sent to the provider.
	Model string `json:"model"`

	// MaxTokens is the context window size.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// DefaultsConfig holds fallback settings used when a role is unconfigured.
type DefaultsConfig struct {
	Backend string `json:"backend"`
}

// NewRegistry creates a registry from explicit role and backend
// configuration.
func NewRegistry(roles map[Role]*RoleConfig, backends map[string]*BackendConfig) *Registry {
	return &Registry{
		roles:    roles,
		backends: backends,
		defaults: &DefaultsConfig{Backend: "default"},
	}
}

// NewDefaultRegistry creates a registry with sensible defaults: each
// reviewer role prefers a capable Anthropic model and falls back to a
// locally-hosted Ollama model, so a transformation run degrades rather
// than stops when the primary provider is unavailable.
func NewDefaultRegistry() *Registry {
	return &Registry{
		roles: map[Role]*RoleConfig{
			RoleArchitect: {
				Description: "High-level structure and design review",
				Preferred:   []string{"claude-opus", "claude-sonnet"},
				Fallback:    []string{"qwen", "llama3.2"},
			},
			RoleAuditor: {
				Description: "Correctness, security, and bug hunting",
				Preferred:   []string{"claude-sonnet"},
				Fallback:    []string{"claude-haiku", "qwen"},
			},
			RoleBuilder: {
				Description: "Plan execution and fix-up changes",
				Preferred:   []string{"claude-sonnet"},
				Fallback:    []string{"codellama", "qwen"},
			},
			RoleMediator: {
				Description: "Plan synthesis and final decisions",
				Preferred:   []string{"claude-opus", "claude-sonnet"},
				Fallback:    []string{"claude-haiku", "qwen"},
			},
		},
		backends: map[string]*BackendConfig{
			"claude-opus": {
				Provider:  "anthropic",
				Model:     "claude-opus-4-5-20251101",
				MaxTokens: 200000,
			},
			"claude-sonnet": {
				Provider:  "anthropic",
				Model:     "claude-sonnet-4-20250514",
				MaxTokens: 200000,
			},
			"claude-haiku": {
				Provider:  "anthropic",
				Model:     "claude-haiku-3-5-20241022",
				MaxTokens: 200000,
			},
			"qwen": {
				Provider:  "ollama",
				URL:       "http://localhost:11434/v1",
				Model:     "qwen2.5-coder:14b",
				MaxTokens: 128000,
			},
			"llama3.2": {
				Provider:  "ollama",
				URL:       "http://localhost:11434/v1",
				Model:     "llama3.2",
				MaxTokens: 128000,
			},
			"codellama": {
				Provider:  "ollama",
				URL:       "http://localhost:11434/v1",
				Model:     "codellama",
				MaxTokens: 16384,
			},
		},
		defaults: &DefaultsConfig{Backend: "qwen"},
	}
}

// Resolve returns the primary backend for a role: the first entry of its
// preferred list, or the registry default if the role is unconfigured.
func (r *Registry) Resolve(role Role) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.roles[role]; ok && len(cfg.Preferred) > 0 {
		return cfg.Preferred[0]
	}
	return r.defaults.Backend
}

// GetFallbackChain returns every backend configured for a role, preferred
// entries first, in the order the router should try them.
func (r *Registry) GetFallbackChain(role Role) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.roles[role]; ok {
		chain := make([]string, 0, len(cfg.Preferred)+len(cfg.Fallback))
		chain = append(chain, cfg.Preferred...)
		chain = append(chain, cfg.Fallback...)
		return chain
	}
	return []string{r.defaults.Backend}
}

// GetBackend returns the backend configuration for a backend name, or nil
// if it is not configured.
func (r *Registry) GetBackend(name string) *BackendConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.backends[name]
}

// SetRole updates or adds a role configuration.
func (r *Registry) SetRole(role Role, cfg *RoleConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.roles == nil {
		r.roles = make(map[Role]*RoleConfig)
	}
	r.roles[role] = cfg
}

// SetBackend updates or adds a backend configuration.
func (r *Registry) SetBackend(name string, cfg *BackendConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.backends == nil {
		r.backends = make(map[string]*BackendConfig)
	}
	r.backends[name] = cfg
}

// SetDefault sets the registry-wide default backend.
func (r *Registry) SetDefault(backend string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.defaults == nil {
		r.defaults = &DefaultsConfig{}
	}
	r.defaults.Backend = backend
}

// ListRoles returns every configured role.
func (r *Registry) ListRoles() []Role {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roles := make([]Role, 0, len(r.roles))
	for role := range r.roles {
		roles = append(roles, role)
	}
	return roles
}

// ListBackends returns every configured backend name.
func (r *Registry) ListBackends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	return names
}

// Validate checks that every backend name referenced by a role's
// preferred/fallback lists, and the registry default, actually has a
// configured backend. It collects every problem it finds rather than
// stopping at the first.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var problems []string
	for role, cfg := range r.roles {
		for _, name := range cfg.Preferred {
			if _, ok := r.backends[name]; !ok {
				problems = append(problems, fmt.Sprintf("role %q: preferred backend %q not found", role, name))
			}
		}
		for _, name := range cfg.Fallback {
			if _, ok := r.backends[name]; !ok {
				problems = append(problems, fmt.Sprintf("role %q: fallback backend %q not found", role, name))
			}
		}
	}
	if r.defaults != nil && r.defaults.Backend != "" {
		if _, ok := r.backends[r.defaults.Backend]; !ok {
			problems = append(problems, fmt.Sprintf("default backend %q not found", r.defaults.Backend))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("model registry validation failed: %s", strings.Join(problems, "; "))
}

// MarshalJSON implements json.Marshaler for the registry.
func (r *Registry) MarshalJSON() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return json.Marshal(struct {
		Roles    map[Role]*RoleConfig      `json:"roles"`
		Backends map[string]*BackendConfig `json:"backends"`
		Defaults *DefaultsConfig           `json:"defaults,omitempty"`
	}{
		Roles:    r.roles,
		Backends: r.backends,
		Defaults: r.defaults,
	})
}

// UnmarshalJSON implements json.Unmarshaler for the registry.
func (r *Registry) UnmarshalJSON(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var tmp struct {
		Roles    map[Role]*RoleConfig      `json:"roles"`
		Backends map[string]*BackendConfig `json:"backends"`
		Defaults *DefaultsConfig           `json:"defaults,omitempty"`
	}
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}

	r.roles = tmp.Roles
	r.backends = tmp.Backends
	r.defaults = tmp.Defaults
	return nil
}
