package tool

import "sort"

// Permissions is the session-local trust table. Trusted tools run without
// per-invocation confirmation. The table lives and dies with the session;
// nothing is persisted.
//
// Resolution order: an explicit per-tool override wins, then trust_all,
// then the default table.
type Permissions struct {
	overrides map[string]bool // operator trust/untrust decisions
	defaults  map[string]bool // static default-trusted table
	trustAll  bool
}

// NewPermissions creates a permission set with the given default-trusted
// tool names (typically the read-only tools).
func NewPermissions(defaultTrusted ...string) *Permissions {
	d := make(map[string]bool, len(defaultTrusted))
	for _, name := range defaultTrusted {
		d[name] = true
	}
	return &Permissions{
		overrides: make(map[string]bool),
		defaults:  d,
	}
}

// IsTrusted reports whether name may run without confirmation.
func (p *Permissions) IsTrusted(name string) bool {
	if v, ok := p.overrides[name]; ok {
		return v
	}
	if p.trustAll {
		return true
	}
	return p.defaults[name]
}

// Trust marks name as trusted for the rest of the session.
func (p *Permissions) Trust(name string) { p.overrides[name] = true }

// Untrust reverts name to per-request confirmation, overriding both
// trust_all and the defaults.
func (p *Permissions) Untrust(name string) { p.overrides[name] = false }

// TrustAll trusts every tool for the rest of the session.
func (p *Permissions) TrustAll() { p.trustAll = true }

// TrustAllSet reports whether trust_all is active.
func (p *Permissions) TrustAllSet() bool { return p.trustAll }

// Reset clears all operator decisions, restoring the default table.
func (p *Permissions) Reset() {
	p.overrides = make(map[string]bool)
	p.trustAll = false
}

// ResetTool clears the operator decision for a single tool.
func (p *Permissions) ResetTool(name string) { delete(p.overrides, name) }

// Trusted lists the currently trusted tool names among candidates, sorted.
func (p *Permissions) Trusted(candidates []string) []string {
	var out []string
	for _, name := range candidates {
		if p.IsTrusted(name) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
