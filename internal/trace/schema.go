package trace

import (
	"fmt"
	"strings"

	"proofdeps/internal/ir"
)

// Schema describes one supported layout of the '#'-delimited node records.
//
// The verifier changed both the field count and the category mapping between
// releases, so each layout carries its own classification rules instead of
// sharing a single table.
type Schema struct {
	Name   string
	Fields int
	// SplitInternal keeps Internal assumptions apart from implicit ones.
	SplitInternal bool
	// SplitPostcondition maps postcondition assertions to their own category.
	SplitPostcondition bool
}

var (
	// SchemaV1 is the older six-field layout:
	//   id # kind # subtype # label # expression # position
	SchemaV1 = Schema{Name: "v1", Fields: 6}

	// SchemaV2 adds the enclosing procedure before the position:
	//   id # kind # subtype # label # expression # procedure # position
	SchemaV2 = Schema{Name: "v2", Fields: 7, SplitInternal: true, SplitPostcondition: true}
)

// SchemaAuto selects the layout per row by exact field count.
const SchemaAuto = "auto"

// Schemas returns the layouts accepted for the given configured name.
func Schemas(name string) ([]Schema, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", SchemaAuto:
		return []Schema{SchemaV2, SchemaV1}, nil
	case SchemaV1.Name:
		return []Schema{SchemaV1}, nil
	case SchemaV2.Name:
		return []Schema{SchemaV2}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSchema, name)
	}
}

// match returns the schema whose field count equals n.
func match(schemas []Schema, n int) (Schema, bool) {
	for _, s := range schemas {
		if s.Fields == n {
			return s, true
		}
	}
	return Schema{}, false
}

// ParseKind normalizes the verifier's kind column.
func ParseKind(s string) ir.Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "assumption":
		return ir.KindAssumption
	case "assertion":
		return ir.KindAssertion
	case "infeasible":
		return ir.KindInfeasible
	default:
		return ir.KindOther
	}
}

// Classify maps (kind, subtype) to a category under this schema's rules.
func (s Schema) Classify(kind ir.Kind, subtype string) ir.Category {
	sub := strings.ToLower(strings.TrimSpace(subtype))
	switch kind {
	case ir.KindAssumption:
		switch sub {
		case "explicit":
			return ir.ExplicitAssumption
		case "internal":
			if s.SplitInternal {
				return ir.InternalAssumption
			}
		}
		return ir.ImplicitAssumption
	case ir.KindAssertion:
		switch sub {
		case "explicit":
			return ir.ExplicitAssertion
		case "implicitpostcondition", "explicitpostcondition":
			if s.SplitPostcondition {
				return ir.ExplicitAssertionPostcondition
			}
			return ir.ExplicitAssertion
		}
		return ir.ImplicitAssertion
	case ir.KindInfeasible:
		return ir.Infeasible
	}
	return ir.Unknown
}
