package roleconfig

// Config is the persisted role policy document. Reads must tolerate a
// missing file; writes are all-or-nothing.
type Config struct {
	Roles             map[string]RoleMeta   `json:"roles"`
	Modules           map[string]ModuleMeta `json:"modules"`
	RoleHierarchy     map[string][]string   `json:"role_hierarchy"`
	DefaultRoles      map[string]string     `json:"default_roles"`
	EmailRoleMapping  map[string]string     `json:"email_role_mapping"`
	DomainRoleMapping map[string]string     `json:"domain_role_mapping"`
}

// RoleMeta is the mutable metadata attached to a role name.
type RoleMeta struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions"`
	Level       int      `json:"level"`
	Color       string   `json:"color,omitempty"`
	Icon        string   `json:"icon,omitempty"`
}

// ModuleMeta gates a feature area by role.
type ModuleMeta struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Roles       []string `json:"roles"`
}

// RoleInfo combines a role's metadata with derived access facts.
type RoleInfo struct {
	RoleMeta
	AccessibleModules []ModuleRef `json:"accessible_modules"`
	ManageableRoles   []string    `json:"manageable_roles"`
}

// ModuleRef names a module a role can access.
type ModuleRef struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description,omitempty"`
}

func (c *Config) clone() *Config {
	out := &Config{
		Roles:             make(map[string]RoleMeta, len(c.Roles)),
		Modules:           make(map[string]ModuleMeta, len(c.Modules)),
		RoleHierarchy:     make(map[string][]string, len(c.RoleHierarchy)),
		DefaultRoles:      make(map[string]string, len(c.DefaultRoles)),
		EmailRoleMapping:  make(map[string]string, len(c.EmailRoleMapping)),
		DomainRoleMapping: make(map[string]string, len(c.DomainRoleMapping)),
	}
	for k, v := range c.Roles {
		v.Permissions = append([]string(nil), v.Permissions...)
		out.Roles[k] = v
	}
	for k, v := range c.Modules {
		v.Roles = append([]string(nil), v.Roles...)
		out.Modules[k] = v
	}
	for k, v := range c.RoleHierarchy {
		out.RoleHierarchy[k] = append([]string(nil), v...)
	}
	for k, v := range c.DefaultRoles {
		out.DefaultRoles[k] = v
	}
	for k, v := range c.EmailRoleMapping {
		out.EmailRoleMapping[k] = v
	}
	for k, v := range c.DomainRoleMapping {
		out.DomainRoleMapping[k] = v
	}
	return out
}

// defaultConfig is the embedded fallback used when the persisted document is
// missing or unreadable.
func defaultConfig() *Config {
	return &Config{
		Roles: map[string]RoleMeta{
			"super_admin": {Name: "Super Administrator", Description: "Full system access", Permissions: []string{"all"}, Level: 100, Color: "#dc2626", Icon: "shield-check"},
			"admin":       {Name: "Administrator", Description: "School administration", Permissions: []string{"user_management", "academic_management"}, Level: 80, Color: "#2563eb", Icon: "academic-cap"},
			"teacher":     {Name: "Teacher", Description: "Academic staff", Permissions: []string{"class_management", "student_management"}, Level: 60, Color: "#059669", Icon: "academic-cap"},
			"staff":       {Name: "Staff", Description: "Support staff", Permissions: []string{"view_directory"}, Level: 50, Color: "#475569", Icon: "briefcase"},
			"parent":      {Name: "Parent", Description: "Parent access", Permissions: []string{"view_child_progress"}, Level: 40, Color: "#7c3aed", Icon: "user-group"},
			"student":     {Name: "Student", Description: "Student access", Permissions: []string{"view_assignments", "view_grades"}, Level: 20, Color: "#ea580c", Icon: "user"},
			"guest":       {Name: "Guest", Description: "Public access", Permissions: []string{}, Level: 0, Color: "#94a3b8", Icon: "eye"},
		},
		Modules: map[string]ModuleMeta{
			"live_classes": {Name: "Live Classes", Roles: []string{"super_admin", "admin", "teacher", "student"}},
			"fees":         {Name: "Fee Management", Roles: []string{"super_admin", "admin", "parent"}},
			"library":      {Name: "Library", Roles: []string{"super_admin", "admin", "teacher", "student", "staff"}},
			"transport":    {Name: "Transport", Roles: []string{"super_admin", "admin", "parent"}},
			"events":       {Name: "Events", Roles: []string{"super_admin", "admin", "teacher", "student", "parent", "staff"}},
		},
		RoleHierarchy: map[string][]string{
			"super_admin": {"super_admin", "admin", "teacher", "staff", "parent", "student", "guest"},
			"admin":       {"teacher", "staff", "parent", "student", "guest"},
			"teacher":     {"parent", "student"},
			"staff":       {},
			"parent":      {"student"},
			"student":     {},
			"guest":       {},
		},
		DefaultRoles: map[string]string{
			"new_user":         "student",
			"firebase_default": "student",
		},
		EmailRoleMapping:  map[string]string{},
		DomainRoleMapping: map[string]string{},
	}
}
