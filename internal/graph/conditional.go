package graph

// Matching rule types understood by clients. Rules of other types are
// skipped during evaluation, never treated as errors.
const (
	MatchingRuleAlways = "Always"
	MatchingRulePromQL = "PromQL"
)

// PromQLQuery carries the query evaluated by PromQL matching rules.
type PromQLQuery struct {
	PromQL string `json:"promql"`
}

// MatchingRule decides whether a risk applies to a cluster. Rules are
// evaluated in list order and the first rule that evaluates wins.
type MatchingRule struct {
	Type   string       `json:"type"`
	PromQL *PromQLQuery `json:"promql,omitempty"`
}

// Risk names one reason an edge may not be recommended, together with the
// ordered rules that decide whether it applies.
type Risk struct {
	URL           string         `json:"url,omitempty"`
	Name          string         `json:"name,omitempty"`
	Message       string         `json:"message,omitempty"`
	MatchingRules []MatchingRule `json:"matchingRules"`
}

// ConditionalUpdateEdge is one directed transition addressed by version
// rather than node index.
type ConditionalUpdateEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ConditionalEdges groups transitions that share the same ordered risk list.
type ConditionalEdges struct {
	Edges []ConditionalUpdateEdge `json:"edges"`
	Risks []Risk                  `json:"risks"`
}

// validate enforces the structural invariants: a non-empty edge set, a
// non-empty risk list, and a query on every PromQL rule.
func (c ConditionalEdges) validate() error {
	if len(c.Edges) == 0 {
		return &MalformedInputError{Message: "conditional edge group has no edges"}
	}
	if len(c.Risks) == 0 {
		return &MalformedInputError{Message: "conditional edge group has no risks"}
	}
	for _, risk := range c.Risks {
		if len(risk.MatchingRules) == 0 {
			return &MalformedInputError{Message: "risk has no matching rules"}
		}
		for _, rule := range risk.MatchingRules {
			if rule.Type == MatchingRulePromQL && (rule.PromQL == nil || rule.PromQL.PromQL == "") {
				return &MalformedInputError{Message: "PromQL matching rule without a query"}
			}
		}
	}
	return nil
}

// clone returns an independent copy of the group.
func (c ConditionalEdges) clone() ConditionalEdges {
	out := ConditionalEdges{
		Edges: make([]ConditionalUpdateEdge, len(c.Edges)),
		Risks: make([]Risk, len(c.Risks)),
	}
	copy(out.Edges, c.Edges)
	for i, risk := range c.Risks {
		rules := make([]MatchingRule, len(risk.MatchingRules))
		for j, rule := range risk.MatchingRules {
			rules[j] = rule
			if rule.PromQL != nil {
				q := *rule.PromQL
				rules[j].PromQL = &q
			}
		}
		risk.MatchingRules = rules
		out.Risks[i] = risk
	}
	return out
}
