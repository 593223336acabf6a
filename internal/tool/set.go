package tool

import (
	"strings"

	"github.com/genloop/genloop/internal/provider"
)

// AccessMode controls how a Set filters the tools it exposes.
type AccessMode string

const (
	// AccessAllowlist only allows the tools named in Allow.
	AccessAllowlist AccessMode = "allowlist"
	// AccessDenylist allows everything except the tools named in Deny.
	AccessDenylist AccessMode = "denylist"
)

// AccessConfig configures an allow/deny list over a tool registry.
type AccessConfig struct {
	Mode  AccessMode
	Allow []string
	Deny  []string
}

// Set resolves the tool manifests exposed to the model for a turn,
// filtering a Registry by a disabled-set and an optional access list.
type Set struct {
	Registry *Registry
	Disabled map[string]bool
	Access   *AccessConfig
}

// Tools returns the resolved tool manifest list for a turn.
func (s *Set) Tools() []provider.ToolManifest {
	reg := s.Registry
	if reg == nil {
		reg = DefaultRegistry
	}
	all := reg.Manifests()

	filtered := make([]provider.ToolManifest, 0, len(all))
	for _, m := range all {
		if s.Disabled[m.Name] {
			continue
		}
		if s.Access != nil && !s.isToolAllowed(m.Name) {
			continue
		}
		filtered = append(filtered, m)
	}
	return filtered
}

func (s *Set) isToolAllowed(name string) bool {
	switch s.Access.Mode {
	case AccessAllowlist:
		for _, allowed := range s.Access.Allow {
			if strings.EqualFold(name, allowed) {
				return true
			}
		}
		return false
	case AccessDenylist:
		for _, denied := range s.Access.Deny {
			if strings.EqualFold(name, denied) {
				return false
			}
		}
		return true
	default:
		return true
	}
}
