package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Config models juzgado.yml.
type Config struct {
	Office struct {
		Name     string `yaml:"name"`
		Timezone string `yaml:"timezone"`
	} `yaml:"office"`
	Lifecycle struct {
		ResolvedWindowDays int `yaml:"resolved_window_days"`
	} `yaml:"lifecycle"`
	RBAC struct {
		Roles map[string]RBACRole `yaml:"roles"`
	} `yaml:"rbac"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type RBACRole struct {
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// AdminRole is always present and holds every permission.
const AdminRole = "admin"

// KnownPermissions lists every permission the API checks.
var KnownPermissions = []string{
	"case.read",
	"case.write",
	"case.delete",
	"queue.read",
	"queue.recompute",
	"import.run",
	"events.read",
	"user.manage",
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with juzgado config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Office.Name == "" {
		return fmt.Errorf("config.office.name is required")
	}
	if c.Office.Timezone != "" {
		if _, err := time.LoadLocation(c.Office.Timezone); err != nil {
			return fmt.Errorf("config.office.timezone invalid: %w", err)
		}
	}
	if c.Lifecycle.ResolvedWindowDays < 0 {
		return fmt.Errorf("config.lifecycle.resolved_window_days must not be negative")
	}
	if len(c.RBAC.Roles) == 0 {
		return fmt.Errorf("config.rbac.roles is required")
	}
	if _, ok := c.RBAC.Roles[AdminRole]; !ok {
		return fmt.Errorf("config.rbac.roles must include %s", AdminRole)
	}
	known := make(map[string]struct{}, len(KnownPermissions))
	for _, p := range KnownPermissions {
		known[p] = struct{}{}
	}
	for roleID, role := range c.RBAC.Roles {
		if roleID == "" {
			return fmt.Errorf("config.rbac.roles contains empty role id")
		}
		for _, perm := range role.Permissions {
			if perm == "" {
				return fmt.Errorf("role %s has empty permission id", roleID)
			}
			if _, ok := known[perm]; !ok {
				return fmt.Errorf("role %s references unknown permission %s", roleID, perm)
			}
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// Location returns the office time zone used to decide what "today" is.
func (c *Config) Location() *time.Location {
	if c == nil || c.Office.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Office.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Permissions returns the permissions granted to a role. Admin gets everything.
func (c *Config) Permissions(role string) []string {
	if role == AdminRole {
		return append([]string(nil), KnownPermissions...)
	}
	if c == nil {
		return nil
	}
	r, ok := c.RBAC.Roles[role]
	if !ok {
		return nil
	}
	return append([]string(nil), r.Permissions...)
}

// RoleNames returns configured roles in stable order.
func (c *Config) RoleNames() []string {
	names := make([]string, 0, len(c.RBAC.Roles))
	for name := range c.RBAC.Roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "juzgado.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(officeName string) string {
	return fmt.Sprintf(defaultTemplate, officeName)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for an office.
func Default(officeName string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(officeName))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ToYAML renders cfg in the juzgado.yml layout.
func ToYAML(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `office:
  name: %q
  timezone: America/Bogota

lifecycle:
  # days a resolved case stays "Activo Resuelto" before turning "Inactivo Resuelto"
  resolved_window_days: 365

rbac:
  roles:
    admin:
      description: "Full access, user management"
      permissions: [case.read, case.write, case.delete, queue.read, queue.recompute, import.run, events.read, user.manage]
    secretario:
      description: "Office secretary: edits cases, runs imports and renumbering"
      permissions: [case.read, case.write, queue.read, queue.recompute, import.run, events.read]
    auxiliar:
      description: "Clerk: registers intakes, statuses and actions"
      permissions: [case.read, case.write, queue.read]
    consulta:
      description: "Read-only"
      permissions: [case.read, queue.read]

webhooks: []
`
