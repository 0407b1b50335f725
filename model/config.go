package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// RegistryConfig is the JSON configuration structure for the model
// registry. LoadFromJSON accepts it either as the whole document or under
// a "model_registry" key.
type RegistryConfig struct {
	Roles    map[string]*RoleConfig    `json:"roles"`
	Backends map[string]*BackendConfig `json:"backends"`
	Defaults *DefaultsConfig           `json:"defaults,omitempty"`
}

// LoadFromFile loads a registry configuration from a JSON file.
func LoadFromFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return LoadFromJSON(data)
}

// LoadFromJSON loads a registry from JSON data. Accepts either a full
// config with a "model_registry" key or just the registry config itself.
func LoadFromJSON(data []byte) (*Registry, error) {
	var fullConfig struct {
		ModelRegistry *RegistryConfig `json:"model_registry"`
	}
	if err := json.Unmarshal(data, &fullConfig); err == nil && fullConfig.ModelRegistry != nil {
		return registryFromConfig(fullConfig.ModelRegistry), nil
	}

	var regConfig RegistryConfig
	if err := json.Unmarshal(data, &regConfig); err != nil {
		return nil, fmt.Errorf("parse registry config: %w", err)
	}

	return registryFromConfig(&regConfig), nil
}

func registryFromConfig(cfg *RegistryConfig) *Registry {
	roles := make(map[Role]*RoleConfig, len(cfg.Roles))
	for k, v := range cfg.Roles {
		role := ParseRole(k)
		if role == "" {
			role = Role(k)
		}
		roles[role] = v
	}

	defaults := cfg.Defaults
	if defaults == nil {
		defaults = &DefaultsConfig{Backend: "default"}
	}

	return &Registry{
		roles:    roles,
		backends: cfg.Backends,
		defaults: defaults,
	}
}

// ToConfig converts a Registry to its serializable RegistryConfig form.
func (r *Registry) ToConfig() *RegistryConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roles := make(map[string]*RoleConfig, len(r.roles))
	for k, v := range r.roles {
		roles[string(k)] = v
	}

	return &RegistryConfig{
		Roles:    roles,
		Backends: r.backends,
		Defaults: r.defaults,
	}
}

// MergeFromConfig merges configuration into an existing registry;
// existing entries with the same key are overwritten.
func (r *Registry) MergeFromConfig(cfg *RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, v := range cfg.Roles {
		role := ParseRole(k)
		if role == "" {
			role = Role(k)
		}
		r.roles[role] = v
	}

	for k, v := range cfg.Backends {
		r.backends[k] = v
	}

	if cfg.Defaults != nil {
		r.defaults = cfg.Defaults
	}
}
