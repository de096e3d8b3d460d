// Package roleconfig holds the persisted, hot-reloadable role policy:
// role metadata, module access, email and domain role assignment, default
// roles and the role-management hierarchy. It is constructed and injected
// explicitly; there is no package-level singleton.
package roleconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"campusgate.org/internal/obs"
)

var (
	ErrUnknownRole   = errors.New("roleconfig: unknown role")
	ErrUnknownModule = errors.New("roleconfig: unknown module")
	ErrNoMapping     = errors.New("roleconfig: mapping not found")
	ErrInvalidInput  = errors.New("roleconfig: invalid input")
)

// Service reads far more often than it writes. Reads take the RLock;
// writers hold the exclusive lock across mutate+persist so two concurrent
// admin edits cannot interleave into a corrupt file.
type Service struct {
	path string

	mu  sync.RWMutex
	cfg *Config
}

// Load constructs a Service backed by the document at path. A missing or
// corrupt file falls back to the embedded default policy; the corruption is
// logged as critical but does not fail the service.
func Load(path string) *Service {
	s := &Service{path: path}
	cfg, err := readConfig(path)
	if err != nil {
		obs.LogRequest(map[string]any{
			"level": "critical",
			"msg":   "role config unreadable, using embedded defaults",
			"path":  path,
			"error": err.Error(),
		})
		cfg = defaultConfig()
	}
	s.cfg = cfg
	return s
}

func readConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse role config: %w", err)
	}
	if cfg.Roles == nil {
		return nil, errors.New("role config missing roles")
	}
	if cfg.Modules == nil {
		cfg.Modules = map[string]ModuleMeta{}
	}
	if cfg.RoleHierarchy == nil {
		cfg.RoleHierarchy = map[string][]string{}
	}
	if cfg.DefaultRoles == nil {
		cfg.DefaultRoles = map[string]string{}
	}
	if cfg.EmailRoleMapping == nil {
		cfg.EmailRoleMapping = map[string]string{}
	}
	if cfg.DomainRoleMapping == nil {
		cfg.DomainRoleMapping = map[string]string{}
	}
	return &cfg, nil
}

// Reload re-reads the persisted document, keeping current state on failure.
func (s *Service) Reload() error {
	cfg, err := readConfig(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

// persist writes the document atomically: temp file in the same directory,
// then rename.
func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".roleconfig-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// mutate applies fn to a copy of the config, persists it, and swaps it in
// only when the write succeeded. In-memory state never diverges from disk.
func (s *Service) mutate(fn func(*Config) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg.clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := persist(s.path, next); err != nil {
		return fmt.Errorf("persist role config: %w", err)
	}
	s.cfg = next
	return nil
}

// RoleFor resolves the role for an email address: exact mapping first, then
// the longest matching domain suffix, then the configured default. The
// resolution is total and deterministic.
func (s *Service) RoleFor(email string) string {
	email = strings.TrimSpace(strings.ToLower(email))

	s.mu.RLock()
	defer s.mu.RUnlock()

	if role, ok := s.cfg.EmailRoleMapping[email]; ok {
		return role
	}
	var (
		bestSuffix string
		bestRole   string
	)
	for suffix, role := range s.cfg.DomainRoleMapping {
		if strings.HasSuffix(email, strings.ToLower(suffix)) && len(suffix) > len(bestSuffix) {
			bestSuffix = suffix
			bestRole = role
		}
	}
	if bestRole != "" {
		return bestRole
	}
	return s.defaultRoleLocked("firebase_default")
}

// HasMapping reports whether the email is covered by an explicit email or
// domain rule, as opposed to falling through to the default role.
func (s *Service) HasMapping(email string) bool {
	email = strings.TrimSpace(strings.ToLower(email))

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.cfg.EmailRoleMapping[email]; ok {
		return true
	}
	for suffix := range s.cfg.DomainRoleMapping {
		if strings.HasSuffix(email, strings.ToLower(suffix)) {
			return true
		}
	}
	return false
}

// DefaultRole returns the configured default role for a context name.
func (s *Service) DefaultRole(context string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultRoleLocked(context)
}

func (s *Service) defaultRoleLocked(context string) string {
	if role, ok := s.cfg.DefaultRoles[context]; ok {
		return role
	}
	return "student"
}

// CanAccessModule reports whether the role may use the named feature area.
func (s *Service) CanAccessModule(role, module string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.cfg.Modules[module]
	if !ok {
		return false
	}
	for _, r := range meta.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// CanManageRole reports whether managerRole may administratively manage
// targetRole, per the configured hierarchy.
func (s *Service) CanManageRole(managerRole, targetRole string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.cfg.RoleHierarchy[managerRole] {
		if r == targetRole {
			return true
		}
	}
	return false
}

// Roles returns the role metadata table.
func (s *Service) Roles() map[string]RoleMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.clone().Roles
}

// Modules returns the module access table.
func (s *Service) Modules() map[string]ModuleMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.clone().Modules
}

// Hierarchy returns the role-management hierarchy.
func (s *Service) Hierarchy() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.clone().RoleHierarchy
}

// EmailMappings returns the email and domain mapping tables.
func (s *Service) EmailMappings() (emails, domains map[string]string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.cfg.clone()
	return c.EmailRoleMapping, c.DomainRoleMapping
}

// Snapshot returns a deep copy of the whole document.
func (s *Service) Snapshot() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.clone()
}

// RoleInfo returns a role's metadata together with the modules it can
// access and the roles it can manage.
func (s *Service) RoleInfo(name string) (*RoleInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.cfg.Roles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRole, name)
	}
	info := &RoleInfo{RoleMeta: meta}
	moduleNames := make([]string, 0, len(s.cfg.Modules))
	for m := range s.cfg.Modules {
		moduleNames = append(moduleNames, m)
	}
	sort.Strings(moduleNames)
	for _, m := range moduleNames {
		mod := s.cfg.Modules[m]
		for _, r := range mod.Roles {
			if r == name {
				info.AccessibleModules = append(info.AccessibleModules, ModuleRef{
					Name:        m,
					DisplayName: mod.Name,
					Description: mod.Description,
				})
				break
			}
		}
	}
	info.ManageableRoles = append([]string(nil), s.cfg.RoleHierarchy[name]...)
	return info, nil
}

// RolePatch carries partial updates to role metadata.
type RolePatch struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Permissions []string `json:"permissions"`
	Level       *int     `json:"level"`
	Color       *string  `json:"color"`
	Icon        *string  `json:"icon"`
}

// UpdateRole patches metadata for an existing role and persists the change.
func (s *Service) UpdateRole(name string, patch RolePatch) error {
	return s.mutate(func(cfg *Config) error {
		meta, ok := cfg.Roles[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownRole, name)
		}
		if patch.Name != nil {
			meta.Name = *patch.Name
		}
		if patch.Description != nil {
			meta.Description = *patch.Description
		}
		if patch.Permissions != nil {
			meta.Permissions = append([]string(nil), patch.Permissions...)
		}
		if patch.Level != nil {
			meta.Level = *patch.Level
		}
		if patch.Color != nil {
			meta.Color = *patch.Color
		}
		if patch.Icon != nil {
			meta.Icon = *patch.Icon
		}
		cfg.Roles[name] = meta
		return nil
	})
}

// ModulePatch carries partial updates to module metadata.
type ModulePatch struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Roles       []string `json:"roles"`
}

// UpdateModule patches metadata for an existing module and persists the
// change. Every role named in the patch must exist in the role catalog.
func (s *Service) UpdateModule(name string, patch ModulePatch) error {
	return s.mutate(func(cfg *Config) error {
		meta, ok := cfg.Modules[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownModule, name)
		}
		if patch.Name != nil {
			meta.Name = *patch.Name
		}
		if patch.Description != nil {
			meta.Description = *patch.Description
		}
		if patch.Roles != nil {
			for _, r := range patch.Roles {
				if _, ok := cfg.Roles[r]; !ok {
					return fmt.Errorf("%w: %s", ErrUnknownRole, r)
				}
			}
			meta.Roles = append([]string(nil), patch.Roles...)
		}
		cfg.Modules[name] = meta
		return nil
	})
}

// AddEmailMapping maps an exact email address to a role.
func (s *Service) AddEmailMapping(email, role string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	return s.mutate(func(cfg *Config) error {
		if _, ok := cfg.Roles[role]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownRole, role)
		}
		cfg.EmailRoleMapping[email] = role
		return nil
	})
}

// RemoveEmailMapping deletes an exact email mapping.
func (s *Service) RemoveEmailMapping(email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	return s.mutate(func(cfg *Config) error {
		if _, ok := cfg.EmailRoleMapping[email]; !ok {
			return fmt.Errorf("%w: %s", ErrNoMapping, email)
		}
		delete(cfg.EmailRoleMapping, email)
		return nil
	})
}

// AddDomainMapping maps a domain suffix (e.g. "@school.edu") to a role.
func (s *Service) AddDomainMapping(suffix, role string) error {
	suffix = strings.TrimSpace(strings.ToLower(suffix))
	if suffix == "" {
		return fmt.Errorf("%w: domain suffix is required", ErrInvalidInput)
	}
	return s.mutate(func(cfg *Config) error {
		if _, ok := cfg.Roles[role]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownRole, role)
		}
		cfg.DomainRoleMapping[suffix] = role
		return nil
	})
}
