package model

import (
	"slices"
	"strings"
)

// InstitutionCategory classifies an author's affiliation.
type InstitutionCategory string

// Institution categories.
const (
	InstitutionAcademia InstitutionCategory = "academia"
	InstitutionIndustry InstitutionCategory = "industry"
	InstitutionUnknown  InstitutionCategory = "unknown"
)

// NormalizeInstitutionCategory maps s onto a known category; anything else
// is unknown.
func NormalizeInstitutionCategory(s string) InstitutionCategory {
	switch c := InstitutionCategory(strings.ToLower(strings.TrimSpace(s))); c {
	case InstitutionAcademia, InstitutionIndustry:
		return c
	default:
		return InstitutionUnknown
	}
}

// Institution is an affiliation an author declared on a paper.
type Institution struct {
	Name     string              `json:"name" yaml:"name"`
	Category InstitutionCategory `json:"category,omitempty" yaml:"category,omitempty"`
	Aliases  []string            `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

func normalizeInstitutions(in []Institution) []Institution {
	var out []Institution
	for _, inst := range in {
		name := collapseSpace(inst.Name)
		if name == "" {
			continue
		}
		n := Institution{Name: name, Category: NormalizeInstitutionCategory(string(inst.Category))}
		for _, a := range inst.Aliases {
			if a = collapseSpace(a); a != "" && a != name {
				n.Aliases = append(n.Aliases, a)
			}
		}
		out = append(out, n)
	}
	return out
}

func cloneInstitutions(in []Institution) []Institution {
	if in == nil {
		return nil
	}
	out := make([]Institution, len(in))
	for i, inst := range in {
		inst.Aliases = slices.Clone(inst.Aliases)
		out[i] = inst
	}
	return out
}
