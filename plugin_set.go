// plugin_set.go: Identity indexes over main ids, aliases and content modules
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

// descriptorKeys returns every identity a descriptor claims: its main id,
// its aliases, and the ids and aliases of its content modules. Duplicates
// are kept so that a descriptor claiming a key twice conflicts with itself.
func descriptorKeys(d *ModuleDescriptor) []ModuleID {
	keys := make([]ModuleID, 0, 1+len(d.Aliases)+len(d.Content))
	keys = append(keys, d.ID.Normalize())
	for _, a := range d.Aliases {
		keys = append(keys, a.Normalize())
	}
	for _, sub := range d.Content {
		keys = append(keys, sub.ID.Normalize())
		for _, a := range sub.Aliases {
			keys = append(keys, a.Normalize())
		}
	}
	return keys
}

// moduleKeys maps each identity of d to the module that owns it.
func moduleKeys(d *ModuleDescriptor) map[ModuleID]Module {
	out := make(map[ModuleID]Module, 1+len(d.Aliases)+len(d.Content))
	out[d.ID.Normalize()] = d
	for _, a := range d.Aliases {
		out[a.Normalize()] = d
	}
	for _, sub := range d.Content {
		out[sub.ID.Normalize()] = sub
		for _, a := range sub.Aliases {
			out[a.Normalize()] = sub
		}
	}
	return out
}

// UnambiguousPluginSet maps every identity to at most one module.
type UnambiguousPluginSet struct {
	enabled []*ModuleDescriptor
	member  map[*ModuleDescriptor]struct{}
	index   map[ModuleID]Module
}

func newEmptyPluginSet() *UnambiguousPluginSet {
	return &UnambiguousPluginSet{
		member: make(map[*ModuleDescriptor]struct{}),
		index:  make(map[ModuleID]Module),
	}
}

// NewUnambiguousPluginSet indexes descriptors without excluding anything.
// It returns false if any identity is claimed twice, including a
// descriptor claiming the same identity twice itself.
func NewUnambiguousPluginSet(descriptors []*ModuleDescriptor) (*UnambiguousPluginSet, bool) {
	conflict := false
	rm := NewResolutionMap(descriptorKeys, func(_, _ *ModuleDescriptor, _ ModuleID) (*ModuleDescriptor, bool) {
		return nil, false
	}).OnRetract(func(*ModuleDescriptor, ModuleID) { conflict = true })

	for _, d := range descriptors {
		if err := rm.Add(d); err != nil {
			return nil, false
		}
	}
	if conflict {
		return nil, false
	}

	set := newEmptyPluginSet()
	for _, d := range rm.Elements() {
		set.admit(d)
	}
	return set, true
}

// Resolve looks up a main id, alias, content module id or content alias.
func (s *UnambiguousPluginSet) Resolve(id ModuleID) (Module, bool) {
	m, ok := s.index[id.Normalize()]
	return m, ok
}

// Enabled returns the member descriptors in admission order.
func (s *UnambiguousPluginSet) Enabled() []*ModuleDescriptor {
	out := make([]*ModuleDescriptor, len(s.enabled))
	copy(out, s.enabled)
	return out
}

// Len returns the number of member descriptors.
func (s *UnambiguousPluginSet) Len() int {
	return len(s.enabled)
}

// Contains reports whether d is a member.
func (s *UnambiguousPluginSet) Contains(d *ModuleDescriptor) bool {
	_, ok := s.member[d]
	return ok
}

// Clone returns an independent copy.
func (s *UnambiguousPluginSet) Clone() *UnambiguousPluginSet {
	c := newEmptyPluginSet()
	for _, d := range s.enabled {
		c.admit(d)
	}
	return c
}

// Admit adds d if none of its identities is taken. It returns the first
// conflicting identity otherwise.
func (s *UnambiguousPluginSet) Admit(d *ModuleDescriptor) (ModuleID, bool) {
	if s.Contains(d) {
		return ModuleID{}, true
	}
	seen := make(map[ModuleID]struct{})
	for _, k := range descriptorKeys(d) {
		if _, dup := seen[k]; dup {
			return k, false
		}
		seen[k] = struct{}{}
		if _, taken := s.index[k]; taken {
			return k, false
		}
	}
	s.admit(d)
	return ModuleID{}, true
}

func (s *UnambiguousPluginSet) admit(d *ModuleDescriptor) {
	s.enabled = append(s.enabled, d)
	s.member[d] = struct{}{}
	for k, m := range moduleKeys(d) {
		s.index[k] = m
	}
}

// AmbiguousPluginSet maps an identity to every module declaring it. It is
// meant for diagnostics and tooling, never for activation.
type AmbiguousPluginSet struct {
	index AmbiguousIndex[ModuleID, *ModuleDescriptor]
}

// NewAmbiguousPluginSet indexes descriptors without arbitration.
func NewAmbiguousPluginSet(descriptors []*ModuleDescriptor) *AmbiguousPluginSet {
	return &AmbiguousPluginSet{index: BuildAmbiguous(descriptors, descriptorKeys)}
}

// Resolve returns every module declaring id, in input order.
func (s *AmbiguousPluginSet) Resolve(id ModuleID) []Module {
	id = id.Normalize()
	var out []Module
	for _, d := range s.index[id] {
		out = append(out, moduleKeys(d)[id])
	}
	return out
}

// Conflicts returns the identities declared by more than one descriptor.
func (s *AmbiguousPluginSet) Conflicts() map[ModuleID][]*ModuleDescriptor {
	out := make(map[ModuleID][]*ModuleDescriptor)
	for k, ds := range s.index {
		if len(ds) > 1 {
			out[k] = append([]*ModuleDescriptor(nil), ds...)
		}
	}
	return out
}

// resolveIdentities builds the unambiguous set from the enabled survivors,
// excluding every descriptor that loses an identity conflict. The disabled
// pool is indexed separately and never competes with enabled descriptors;
// a pooled descriptor whose identities collide with the enabled set can
// never be re-admitted and is excluded here.
func (p *pipeline) resolveIdentities(sel SelectionResult) (*UnambiguousPluginSet, *UnambiguousPluginSet, error) {
	var caps CapabilityMap = p.rc.Capabilities
	if caps == nil {
		all := append(append([]*ModuleDescriptor(nil), sel.Enabled...), sel.ProvisionallyDisabled...)
		caps = newCandidateCapabilities(all)
	}
	p.rc.resolveConditionalRules(sel.Enabled, caps, p.logger)
	p.rc.resolveConditionalRules(sel.ProvisionallyDisabled, caps, p.logger)

	enabled, err := p.buildIdentityIndex(sel.Enabled)
	if err != nil {
		return nil, nil, err
	}
	pooled, err := p.buildIdentityIndex(sel.ProvisionallyDisabled)
	if err != nil {
		return nil, nil, err
	}

	pool := newEmptyPluginSet()
	for _, d := range pooled.Enabled() {
		clash := ModuleID{}
		for _, k := range descriptorKeys(d) {
			if _, taken := enabled.index[k]; taken {
				clash = k
				break
			}
		}
		if !clash.IsZero() {
			p.log.Exclude(d, ExclusionReason{Kind: ExclusionDeclaresConflictingID, ID: clash})
			continue
		}
		pool.admit(d)
	}

	p.logger.Info("Identity resolution completed", "enabled", enabled.Len(), "pooled", pool.Len())
	return enabled, pool, nil
}

// buildIdentityIndex applies the identity conflict policy: essential beats
// non-essential, anything else loses on both sides. A key lost on both
// sides stays contested: a later non-essential claimant is excluded on it,
// and once two essential claimants lost it nobody may take it. This keeps
// the outcome independent of discovery order.
func (p *pipeline) buildIdentityIndex(descriptors []*ModuleDescriptor) (*UnambiguousPluginSet, error) {
	// contested maps a key lost on both sides to whether an essential
	// descriptor was among the losers.
	contested := make(map[ModuleID]bool)

	rm := NewResolutionMap(descriptorKeys, func(existing, candidate *ModuleDescriptor, key ModuleID) (*ModuleDescriptor, bool) {
		if existing == candidate {
			return nil, false
		}
		existingEssential := p.rc.IsEssential(existing.ID)
		candidateEssential := p.rc.IsEssential(candidate.ID)
		switch {
		case existingEssential && !candidateEssential:
			return existing, true
		case candidateEssential && !existingEssential:
			return candidate, true
		default:
			contested[key] = contested[key] || existingEssential
			return nil, false
		}
	}).OnRetract(func(d *ModuleDescriptor, key ModuleID) {
		p.log.Exclude(d, ExclusionReason{Kind: ExclusionDeclaresConflictingID, ID: key})
	})

	for _, d := range descriptors {
		if key, lost := p.claimsContestedKey(d, contested); lost {
			p.log.Exclude(d, ExclusionReason{Kind: ExclusionDeclaresConflictingID, ID: key})
			continue
		}
		if err := rm.Add(d); err != nil {
			return nil, err
		}
	}

	set := newEmptyPluginSet()
	for _, d := range rm.Elements() {
		set.admit(d)
	}
	return set, nil
}

// claimsContestedKey returns the first contested key d may not take.
// An essential descriptor still wins a key that only non-essential
// descriptors lost.
func (p *pipeline) claimsContestedKey(d *ModuleDescriptor, contested map[ModuleID]bool) (ModuleID, bool) {
	essential := p.rc.IsEssential(d.ID)
	for _, k := range descriptorKeys(d) {
		if lostByEssential, ok := contested[k]; ok && (lostByEssential || !essential) {
			return k, true
		}
	}
	return ModuleID{}, false
}
