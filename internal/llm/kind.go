package llm

import "fmt"

// Kind identifies which language capability an agent serves.
type Kind int

const (
	KindRephrase Kind = iota
	KindPlanning
	KindSearchQuery
	KindAnswer
	KindRelated
)

// AllKinds lists every capability in declaration order.
var AllKinds = []Kind{KindRephrase, KindPlanning, KindSearchQuery, KindAnswer, KindRelated}

func (k Kind) String() string {
	switch k {
	case KindRephrase:
		return "rephrase"
	case KindPlanning:
		return "planning"
	case KindSearchQuery:
		return "search_query"
	case KindAnswer:
		return "answer"
	case KindRelated:
		return "related"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps a configuration key back to a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range AllKinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown agent kind %q", s)
}
