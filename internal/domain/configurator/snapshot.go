package configurator

import "github.com/shopspring/decimal"

// Snapshot is the frozen configuration of an order line: what the shopper
// chose and what each choice cost at the time. It holds no references to the
// live catalog and is never recomputed from it.
type Snapshot struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	BasePrice   decimal.Decimal `json:"base_price"`
	Options     []SnapshotLine  `json:"options"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// SnapshotLine records one group's choice with its modifier as applied.
type SnapshotLine struct {
	GroupID   string          `json:"group_id"`
	GroupName string          `json:"group_name"`
	ValueID   string          `json:"value_id"`
	ValueName string          `json:"value_name"`
	Modifier  decimal.Decimal `json:"modifier"`
}

// SnapshotSelection copies a priced result into a Snapshot. Amounts are
// stored rounded to cents.
func SnapshotSelection(r PricedResult) Snapshot {
	options := make([]SnapshotLine, len(r.Lines))
	for i, l := range r.Lines {
		options[i] = SnapshotLine{
			GroupID:   l.GroupID,
			GroupName: l.GroupName,
			ValueID:   l.ValueID,
			ValueName: l.ValueName,
			Modifier:  Round(l.Modifier),
		}
	}
	return Snapshot{
		ProductID:   r.ProductID,
		ProductName: r.ProductName,
		BasePrice:   Round(r.BasePrice),
		Options:     options,
		UnitPrice:   r.Total,
	}
}

// Selection returns the group-to-value mapping recorded in the snapshot.
func (s Snapshot) Selection() Selection {
	sel := make(Selection, len(s.Options))
	for _, o := range s.Options {
		sel[o.GroupID] = o.ValueID
	}
	return sel
}
