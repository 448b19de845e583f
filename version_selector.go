// version_selector.go: Compatibility filtering and version selection
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

// SelectionResult is the output of version selection: at most one
// descriptor per main id, split into enabled survivors and survivors that
// are disabled but may still be re-admitted by the dependency closure.
type SelectionResult struct {
	Enabled               []*ModuleDescriptor
	ProvisionallyDisabled []*ModuleDescriptor
}

type versionCandidate struct {
	descriptor *ModuleDescriptor
	source     int
}

// selectVersions runs compatibility and version selection over the
// discovered set. Groups are processed in the order their id was first
// seen, so the output order follows discovery.
func (p *pipeline) selectVersions(set DiscoveredSet) SelectionResult {
	groups := make(map[ModuleID][]versionCandidate)
	var order []ModuleID

	for si, src := range set {
		for _, d := range src.Descriptors {
			if d == nil {
				continue
			}
			if d.ID.IsZero() {
				p.logger.Warn("Skipping descriptor without id", "source", string(src.Kind), "path", d.Path)
				continue
			}
			if _, dup := p.discovery[d]; dup {
				continue
			}
			p.discovery[d] = len(p.discovery)
			id := d.ID.Normalize()
			if _, ok := groups[id]; !ok {
				order = append(order, id)
			}
			groups[id] = append(groups[id], versionCandidate{descriptor: d, source: si})
		}
	}

	var result SelectionResult
	for _, id := range order {
		winner := p.selectFromGroup(groups[id])
		if winner == nil {
			continue
		}

		switch {
		case p.rc.Expired.Contains(id):
			p.log.Exclude(winner, ExclusionReason{Kind: ExclusionExpired})
		case p.rc.DisableLoadingCompletely && !p.rc.AlwaysOn.Contains(id):
			p.log.Exclude(winner, ExclusionReason{Kind: ExclusionLoadingDisabledCompletely})
		case p.rc.Disabled.Contains(id) && !p.rc.IsEssential(id):
			p.logger.Debug("Module provisionally disabled", "module", winner.String())
			result.ProvisionallyDisabled = append(result.ProvisionallyDisabled, winner)
		default:
			result.Enabled = append(result.Enabled, winner)
		}
	}

	result.Enabled = p.filterIncompatible(result.Enabled)

	p.logger.Info("Version selection completed",
		"groups", len(order),
		"enabled", len(result.Enabled),
		"provisionally_disabled", len(result.ProvisionallyDisabled))
	return result
}

// selectFromGroup filters one id group by build compatibility and picks
// the winner: the highest-priority source decides outright, then the
// greatest version within that source, first seen on ties.
func (p *pipeline) selectFromGroup(group []versionCandidate) *ModuleDescriptor {
	compatible := group[:0:0]
	for _, c := range group {
		d := c.descriptor
		bound, err := CheckBuildCompatibility(d.SinceBuild, d.UntilBuild, p.rc.BuildNumber)
		if err != nil {
			p.logger.Warn("Invalid build range", "module", d.String(), "error", err)
		}
		switch bound {
		case BuildBoundSince:
			p.log.Exclude(d, ExclusionReason{Kind: ExclusionSinceBuildViolation, Detail: d.SinceBuild})
		case BuildBoundUntil:
			p.log.Exclude(d, ExclusionReason{Kind: ExclusionUntilBuildViolation, Detail: d.UntilBuild})
		default:
			compatible = append(compatible, c)
		}
	}
	if len(compatible) == 0 {
		return nil
	}

	best := compatible[0]
	for _, c := range compatible[1:] {
		if c.source < best.source {
			best = c
			continue
		}
		if c.source == best.source && CompareVersions(c.descriptor.Version, best.descriptor.Version) > 0 {
			best = c
		}
	}

	for _, c := range compatible {
		if c.descriptor == best.descriptor {
			continue
		}
		p.log.Exclude(c.descriptor, ExclusionReason{
			Kind:   ExclusionVersionSuperseded,
			ID:     best.descriptor.ID,
			Detail: best.descriptor.Version,
		})
	}
	p.logger.Debug("Version selected", "module", best.descriptor.String(), "candidates", len(group))
	return best.descriptor
}

// filterIncompatible drops a survivor that declares itself incompatible
// with another survivor still enabled at that point. Survivors are checked
// in discovery order.
func (p *pipeline) filterIncompatible(enabled []*ModuleDescriptor) []*ModuleDescriptor {
	live := make(map[ModuleID]*ModuleDescriptor)
	for _, d := range enabled {
		live[d.ID] = d
		for _, a := range d.Aliases {
			if _, taken := live[a.Normalize()]; !taken {
				live[a.Normalize()] = d
			}
		}
	}

	out := enabled[:0:0]
	excluded := make(map[*ModuleDescriptor]bool)
	for _, d := range enabled {
		var other *ModuleDescriptor
		for _, id := range d.IncompatibleWith {
			if o, ok := live[id.Normalize()]; ok && o != d && !excluded[o] {
				other = o
				break
			}
		}
		if other != nil {
			excluded[d] = true
			p.log.Exclude(d, ExclusionReason{Kind: ExclusionIsIncompatibleWithAnotherPlugin, ID: other.ID})
			continue
		}
		out = append(out, d)
	}
	return out
}
