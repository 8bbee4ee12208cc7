package configurator

import (
	"github.com/xenking/printshop/internal/domain/catalog"
)

// ValidateSelection resolves sel against the product definition.
//
// Every group of the product receives exactly one choice. Groups the caller
// omitted resolve to their first declared value. A group or value id unknown
// to the product yields *InvalidSelectionError; a group without values yields
// *EmptyOptionGroupError before the selection is consulted at all.
func ValidateSelection(p *catalog.Product, sel Selection) (ResolvedSelection, error) {
	for _, g := range p.Groups {
		if len(g.Values) == 0 {
			return ResolvedSelection{}, &EmptyOptionGroupError{ProductID: p.ID, GroupID: g.ID}
		}
	}

	// Unknown group ids are rejected even when their value is empty: the
	// caller is working from a definition that no longer matches.
	for groupID := range sel {
		if _, ok := p.Group(groupID); !ok {
			return ResolvedSelection{}, &InvalidSelectionError{ProductID: p.ID, GroupID: groupID}
		}
	}

	choices := make([]Choice, 0, len(p.Groups))
	for i := range p.Groups {
		g := &p.Groups[i]

		valueID, ok := sel[g.ID]
		if !ok || valueID == "" {
			choices = append(choices, Choice{
				GroupID:   g.ID,
				ValueID:   g.Values[0].ID,
				Defaulted: true,
			})
			continue
		}

		if _, ok := g.Value(valueID); !ok {
			return ResolvedSelection{}, &InvalidSelectionError{
				ProductID: p.ID,
				GroupID:   g.ID,
				ValueID:   valueID,
			}
		}
		choices = append(choices, Choice{GroupID: g.ID, ValueID: valueID})
	}

	return ResolvedSelection{productID: p.ID, choices: choices}, nil
}
