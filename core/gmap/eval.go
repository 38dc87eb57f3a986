package gmap

// Specificity ranks for pattern matching. A node-level rule always beats a
// flow-level rule, which beats a pack rule, which beats a pack wildcard,
// which beats the global rule.
const (
	rankGlobal       = 0
	rankPackWildcard = 2
	rankPack         = 3
	rankFlow         = 4
	rankNode         = 5
)

// Eval returns the policy of the most specific rule in the document matching
// the target, or false when no rule matches. Among rules of equal
// specificity the later rule wins.
func (d *Document) Eval(target Path) (Policy, bool) {
	if d == nil {
		return "", false
	}
	best := -1
	var policy Policy
	for _, rule := range d.Rules {
		if !matches(rule.Path, target) {
			continue
		}
		if rank := specificity(rule.Path); rank >= best {
			best = rank
			policy = rule.Policy
		}
	}
	if best < 0 {
		return "", false
	}
	return policy, true
}

// Evaluate applies the tenant/team overlay: when the team document has any
// matching rule its verdict wins outright, even if a tenant rule is more
// specific. The team document may be nil.
func Evaluate(tenant, team *Document, target Path) (Policy, bool) {
	if policy, ok := team.Eval(target); ok {
		return policy, true
	}
	return tenant.Eval(target)
}

func matches(rule, target Path) bool {
	switch {
	case rule.IsGlobal():
		return true
	case rule.Flow == "":
		return rule.Pack == target.Pack
	case rule.Flow == "_":
		return rule.Pack == target.Pack
	case rule.Node == "":
		return rule.Pack == target.Pack && rule.Flow == target.Flow
	default:
		return rule.Pack == target.Pack && rule.Flow == target.Flow && rule.Node == target.Node
	}
}

func specificity(rule Path) int {
	switch {
	case rule.IsGlobal():
		return rankGlobal
	case rule.Flow == "":
		return rankPack
	case rule.Flow == "_":
		return rankPackWildcard
	case rule.Node == "":
		return rankFlow
	default:
		return rankNode
	}
}
