// Package policy implements the load-time check that rejects modules holding
// disallowed object types at global scope.
package policy

import (
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/reglet-dev/scripthost/domain/entities"
	"github.com/reglet-dev/scripthost/domain/errors"
)

// policyConfig holds configuration for the GlobalTypePolicy.
type policyConfig struct {
	violationHandler ViolationHandler
	disallowed       []string
}

func defaultPolicyConfig() policyConfig {
	return policyConfig{
		violationHandler: &SlogViolationHandler{},
	}
}

// PolicyOption configures the GlobalTypePolicy.
type PolicyOption func(*policyConfig)

// WithDisallowedTypes sets the disallowed type patterns. Patterns use
// doublestar syntax and are matched against type names such as
// "Map", "array<Critter@>" or "*@".
func WithDisallowedTypes(patterns ...string) PolicyOption {
	return func(c *policyConfig) {
		c.disallowed = append(c.disallowed, patterns...)
	}
}

// WithViolationHandler sets the handler notified of every violation.
func WithViolationHandler(h ViolationHandler) PolicyOption {
	return func(c *policyConfig) {
		c.violationHandler = h
	}
}

// GlobalTypePolicy checks module globals against disallowed type patterns.
// It is safe for concurrent use.
type GlobalTypePolicy struct {
	cache  sync.Map // key: type string, value: matched pattern or ""
	config policyConfig
}

// NewGlobalTypePolicy creates a policy. Invalid patterns are dropped.
func NewGlobalTypePolicy(opts ...PolicyOption) *GlobalTypePolicy {
	cfg := defaultPolicyConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	valid := cfg.disallowed[:0]
	for _, p := range cfg.disallowed {
		if doublestar.ValidatePattern(p) {
			valid = append(valid, p)
		}
	}
	cfg.disallowed = valid
	return &GlobalTypePolicy{config: cfg}
}

// Patterns returns the active patterns.
func (p *GlobalTypePolicy) Patterns() []string {
	return append([]string(nil), p.config.disallowed...)
}

// Check returns a *errors.PolicyViolation for the first global whose type
// is disallowed, or nil.
func (p *GlobalTypePolicy) Check(module string, globals []entities.GlobalVar) error {
	if len(p.config.disallowed) == 0 {
		return nil
	}
	for _, g := range globals {
		pattern, matched, ok := p.Match(g.Type)
		if !ok {
			continue
		}
		v := &errors.PolicyViolation{
			Variable: g.QualifiedName(),
			Type:     g.Type.String(),
			Pattern:  pattern,
		}
		if matched != v.Type {
			v.Type = v.Type + " via " + matched
		}
		if p.config.violationHandler != nil {
			p.config.violationHandler.OnViolation(module, v)
		}
		return v
	}
	return nil
}

// Match reports whether t or any of its template arguments, at any nesting
// depth, is disallowed. It returns the matching pattern and the type name
// that matched.
func (p *GlobalTypePolicy) Match(t entities.TypeRef) (pattern, matched string, ok bool) {
	for _, candidate := range unwrap(t) {
		if pattern := p.matchOne(candidate); pattern != "" {
			return pattern, candidate, true
		}
	}
	return "", "", false
}

func (p *GlobalTypePolicy) matchOne(name string) string {
	if v, ok := p.cache.Load(name); ok {
		return v.(string)
	}
	var hit string
	for _, pattern := range p.config.disallowed {
		if match, _ := doublestar.Match(pattern, name); match {
			hit = pattern
			break
		}
	}
	p.cache.Store(name, hit)
	return hit
}

// unwrap lists the names to test for t: the full type, its base name, then
// the same for every template argument, outermost first.
func unwrap(t entities.TypeRef) []string {
	t.Const, t.Ref = false, false
	names := []string{t.String()}
	if t.IsTemplate() || t.Handle {
		names = append(names, t.Name)
	}
	for _, arg := range t.Args {
		names = append(names, unwrap(arg)...)
	}
	return names
}
