package catalog

import "fmt"

// Fault kinds reported by CheckIntegrity.
const (
	FaultEmptyGroup     = "empty_group"
	FaultDuplicateValue = "duplicate_value"
	FaultDuplicateGroup = "duplicate_group"
	FaultNegativeBase   = "negative_base_price"
)

// Fault describes one data-integrity problem in a product definition.
type Fault struct {
	ProductID string
	GroupID   string
	ValueID   string
	Kind      string
}

func (f Fault) String() string {
	switch f.Kind {
	case FaultEmptyGroup:
		return fmt.Sprintf("product %s: option group %s has no values", f.ProductID, f.GroupID)
	case FaultDuplicateValue:
		return fmt.Sprintf("product %s: option group %s repeats value %s", f.ProductID, f.GroupID, f.ValueID)
	case FaultDuplicateGroup:
		return fmt.Sprintf("product %s: option group %s declared twice", f.ProductID, f.GroupID)
	case FaultNegativeBase:
		return fmt.Sprintf("product %s: negative base price", f.ProductID)
	default:
		return fmt.Sprintf("product %s: %s", f.ProductID, f.Kind)
	}
}

// CheckIntegrity reports every structural fault in the given products. A
// product with faults cannot be priced reliably.
func CheckIntegrity(products []Product) []Fault {
	var faults []Fault
	for _, p := range products {
		if p.BasePrice.IsNegative() {
			faults = append(faults, Fault{ProductID: p.ID, Kind: FaultNegativeBase})
		}

		groups := make(map[string]struct{}, len(p.Groups))
		for _, g := range p.Groups {
			if _, dup := groups[g.ID]; dup {
				faults = append(faults, Fault{ProductID: p.ID, GroupID: g.ID, Kind: FaultDuplicateGroup})
			}
			groups[g.ID] = struct{}{}

			if len(g.Values) == 0 {
				faults = append(faults, Fault{ProductID: p.ID, GroupID: g.ID, Kind: FaultEmptyGroup})
				continue
			}

			values := make(map[string]struct{}, len(g.Values))
			for _, v := range g.Values {
				if _, dup := values[v.ID]; dup {
					faults = append(faults, Fault{ProductID: p.ID, GroupID: g.ID, ValueID: v.ID, Kind: FaultDuplicateValue})
				}
				values[v.ID] = struct{}{}
			}
		}
	}
	return faults
}
