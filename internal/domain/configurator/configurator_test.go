package configurator

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/printshop/internal/domain/catalog"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func businessCards() *catalog.Product {
	return &catalog.Product{
		ID:        "business-cards",
		Slug:      "business-cards",
		Name:      "Business Cards",
		BasePrice: dec("19.99"),
		Groups: []catalog.OptionGroup{
			{
				ID:   "paper",
				Name: "Paper Stock",
				Mode: catalog.ModeSelect,
				Values: []catalog.OptionValue{
					{ID: "matte", Name: "Standard Matte", PriceModifier: dec("0")},
					{ID: "glossy", Name: "Premium Glossy", PriceModifier: dec("5.00")},
					{ID: "linen", Name: "Uncoated Linen", PriceModifier: dec("12.00")},
				},
			},
			{
				ID:   "qty",
				Name: "Quantity",
				Mode: catalog.ModeRadio,
				Values: []catalog.OptionValue{
					{ID: "100", Name: "100", PriceModifier: dec("0")},
					{ID: "250", Name: "250", PriceModifier: dec("15.00")},
					{ID: "500", Name: "500", PriceModifier: dec("25.00")},
				},
			},
		},
	}
}

func flyers() *catalog.Product {
	return &catalog.Product{
		ID:        "flyers",
		Slug:      "flyers",
		Name:      "Flyers",
		BasePrice: dec("45.00"),
		Groups: []catalog.OptionGroup{
			{
				ID:   "size",
				Name: "Paper Size",
				Mode: catalog.ModeSelect,
				Values: []catalog.OptionValue{
					{ID: "letter", Name: "Letter", PriceModifier: dec("0")},
					{ID: "half", Name: "Half", PriceModifier: dec("-10.00")},
				},
			},
		},
	}
}

func TestQuote_Scenarios(t *testing.T) {
	tests := []struct {
		name      string
		product   *catalog.Product
		selection Selection
		wantTotal string
	}{
		{
			name:      "premium glossy 500",
			product:   businessCards(),
			selection: Selection{"paper": "glossy", "qty": "500"},
			wantTotal: "49.99",
		},
		{
			name:      "empty selection resolves to defaults",
			product:   businessCards(),
			selection: Selection{},
			wantTotal: "19.99",
		},
		{
			name:      "nil selection resolves to defaults",
			product:   businessCards(),
			selection: nil,
			wantTotal: "19.99",
		},
		{
			name:      "negative modifier reduces total",
			product:   flyers(),
			selection: Selection{"size": "half"},
			wantTotal: "35.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Quote(tt.product, tt.selection)
			require.NoError(t, err)
			assert.True(t, dec(tt.wantTotal).Equal(got.Total),
				"expected total %s, got %s", tt.wantTotal, got.Total)
		})
	}
}

func TestValidateSelection_DefaultsToFirstDeclaredValue(t *testing.T) {
	p := businessCards()

	rs, err := ValidateSelection(p, Selection{"qty": "250"})
	require.NoError(t, err)

	choices := rs.Choices()
	require.Len(t, choices, 2)

	assert.Equal(t, Choice{GroupID: "paper", ValueID: "matte", Defaulted: true}, choices[0])
	assert.Equal(t, Choice{GroupID: "qty", ValueID: "250"}, choices[1])
	assert.Equal(t, "business-cards", rs.ProductID())
}

func TestValidateSelection_EmptyValueCountsAsOmitted(t *testing.T) {
	rs, err := ValidateSelection(businessCards(), Selection{"paper": "", "qty": "500"})
	require.NoError(t, err)

	assert.Equal(t, Selection{"paper": "matte", "qty": "500"}, rs.Selection())
	assert.True(t, rs.Choices()[0].Defaulted)
}

func TestValidateSelection_DefaultsFollowDeclaredOrder(t *testing.T) {
	p := businessCards()
	// Reorder the paper stock values: the default follows the declaration.
	p.Groups[0].Values[0], p.Groups[0].Values[2] = p.Groups[0].Values[2], p.Groups[0].Values[0]

	got, err := Quote(p, Selection{})
	require.NoError(t, err)
	assert.Equal(t, "linen", got.Lines[0].ValueID)
	assert.True(t, dec("31.99").Equal(got.Total))
}

func TestValidateSelection_RejectsUnknownReferences(t *testing.T) {
	deleted := businessCards()
	// Premium Glossy was removed from the catalog after the client loaded it.
	deleted.Groups[0].Values = deleted.Groups[0].Values[:1]

	tests := []struct {
		name      string
		product   *catalog.Product
		selection Selection
		wantGroup string
		wantValue string
	}{
		{
			name:      "unknown group",
			product:   businessCards(),
			selection: Selection{"finish": "foil"},
			wantGroup: "finish",
		},
		{
			name:      "unknown group with empty value",
			product:   businessCards(),
			selection: Selection{"finish": ""},
			wantGroup: "finish",
		},
		{
			name:      "unknown value",
			product:   businessCards(),
			selection: Selection{"paper": "vellum"},
			wantGroup: "paper",
			wantValue: "vellum",
		},
		{
			name:      "value id from another group",
			product:   businessCards(),
			selection: Selection{"paper": "500"},
			wantGroup: "paper",
			wantValue: "500",
		},
		{
			name:      "value deleted from catalog",
			product:   deleted,
			selection: Selection{"paper": "glossy", "qty": "100"},
			wantGroup: "paper",
			wantValue: "glossy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateSelection(tt.product, tt.selection)
			require.ErrorIs(t, err, ErrInvalidSelection)

			var selErr *InvalidSelectionError
			require.ErrorAs(t, err, &selErr)
			assert.Equal(t, tt.product.ID, selErr.ProductID)
			assert.Equal(t, tt.wantGroup, selErr.GroupID)
			assert.Equal(t, tt.wantValue, selErr.ValueID)

			_, err = Quote(tt.product, tt.selection)
			require.ErrorIs(t, err, ErrInvalidSelection)
		})
	}
}

func TestValidateSelection_EmptyOptionGroup(t *testing.T) {
	p := businessCards()
	p.Groups = append(p.Groups, catalog.OptionGroup{ID: "finish", Name: "Finish"})

	_, err := ValidateSelection(p, Selection{"paper": "glossy"})
	require.ErrorIs(t, err, ErrEmptyOptionGroup)
	assert.False(t, errors.Is(err, ErrInvalidSelection))

	var groupErr *EmptyOptionGroupError
	require.ErrorAs(t, err, &groupErr)
	assert.Equal(t, "finish", groupErr.GroupID)
}

func TestValidateSelection_ProductWithoutGroups(t *testing.T) {
	p := &catalog.Product{ID: "poster", Name: "Poster", BasePrice: dec("12.50")}

	got, err := Quote(p, nil)
	require.NoError(t, err)
	assert.Empty(t, got.Lines)
	assert.True(t, dec("12.50").Equal(got.Total))

	_, err = Quote(p, Selection{"size": "a1"})
	require.ErrorIs(t, err, ErrInvalidSelection)
}

func TestComputePrice_Additivity(t *testing.T) {
	p := &catalog.Product{
		ID:        "stickers",
		Name:      "Stickers",
		BasePrice: dec("0.10"),
		Groups: []catalog.OptionGroup{
			{ID: "a", Values: []catalog.OptionValue{{ID: "x", PriceModifier: dec("0.20")}}},
			{ID: "b", Values: []catalog.OptionValue{{ID: "y", PriceModifier: dec("0.005")}}},
			{ID: "c", Values: []catalog.OptionValue{{ID: "z", PriceModifier: dec("0.0049")}}},
		},
	}

	got, err := Quote(p, nil)
	require.NoError(t, err)

	// 0.10 + 0.20 + 0.005 + 0.0049 = 0.3099 -> 0.31. Rounding each term first
	// would give 0.10 + 0.20 + 0.01 + 0.00 = 0.31 here, so also check the exact sum.
	assert.Equal(t, "0.31", got.Total.StringFixed(2))

	exact := p.BasePrice
	for _, l := range got.Lines {
		exact = exact.Add(l.Modifier)
	}
	assert.True(t, Round(exact).Equal(got.Total))
}

func TestComputePrice_RoundsOnceAtTheEnd(t *testing.T) {
	p := &catalog.Product{
		ID:        "labels",
		BasePrice: dec("1.00"),
		Groups: []catalog.OptionGroup{
			{ID: "a", Values: []catalog.OptionValue{{ID: "x", PriceModifier: dec("0.004")}}},
			{ID: "b", Values: []catalog.OptionValue{{ID: "y", PriceModifier: dec("0.004")}}},
		},
	}

	got, err := Quote(p, nil)
	require.NoError(t, err)
	// Per-term rounding would lose both 0.004s; the exact sum 1.008 rounds up.
	assert.Equal(t, "1.01", got.Total.StringFixed(2))
}

func TestComputePrice_RoundHalfUp(t *testing.T) {
	p := &catalog.Product{
		ID:        "banner",
		BasePrice: dec("10.00"),
		Groups: []catalog.OptionGroup{
			{ID: "a", Values: []catalog.OptionValue{{ID: "x", PriceModifier: dec("0.125")}}},
		},
	}

	got, err := Quote(p, nil)
	require.NoError(t, err)
	assert.Equal(t, "10.13", got.Total.StringFixed(2))
}

func TestComputePrice_NoFloorAtZero(t *testing.T) {
	p := &catalog.Product{
		ID:        "sample",
		BasePrice: dec("2.00"),
		Groups: []catalog.OptionGroup{
			{ID: "promo", Values: []catalog.OptionValue{{ID: "deep", PriceModifier: dec("-5.50")}}},
		},
	}

	got, err := Quote(p, nil)
	require.NoError(t, err)
	assert.Equal(t, "-3.50", got.Total.StringFixed(2))
}

func TestComputePrice_Deterministic(t *testing.T) {
	p := businessCards()
	rs, err := ValidateSelection(p, Selection{"paper": "linen", "qty": "250"})
	require.NoError(t, err)

	first, err := ComputePrice(p, rs)
	require.NoError(t, err)
	second, err := ComputePrice(p, rs)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first.Total.String(), second.Total.String())
	assert.Equal(t, "46.99", first.Total.StringFixed(2))
}

func TestComputePrice_Breakdown(t *testing.T) {
	got, err := Quote(businessCards(), Selection{"paper": "glossy", "qty": "500"})
	require.NoError(t, err)

	assert.Equal(t, "Business Cards", got.ProductName)
	assert.True(t, dec("19.99").Equal(got.BasePrice))
	require.Len(t, got.Lines, 2)

	assert.Equal(t, "Paper Stock", got.Lines[0].GroupName)
	assert.Equal(t, "Premium Glossy", got.Lines[0].ValueName)
	assert.True(t, dec("5.00").Equal(got.Lines[0].Modifier))

	assert.Equal(t, "Quantity", got.Lines[1].GroupName)
	assert.Equal(t, "500", got.Lines[1].ValueName)
	assert.True(t, dec("25.00").Equal(got.Lines[1].Modifier))
}

func TestComputePrice_RejectsForeignOrStaleSelection(t *testing.T) {
	cards := businessCards()
	rs, err := ValidateSelection(cards, Selection{"paper": "glossy"})
	require.NoError(t, err)

	t.Run("zero value", func(t *testing.T) {
		_, err := ComputePrice(cards, ResolvedSelection{})
		require.ErrorIs(t, err, ErrInvalidSelection)
	})

	t.Run("other product", func(t *testing.T) {
		_, err := ComputePrice(flyers(), rs)
		require.ErrorIs(t, err, ErrInvalidSelection)
	})

	t.Run("value removed after resolution", func(t *testing.T) {
		edited := businessCards()
		edited.Groups[0].Values = edited.Groups[0].Values[:1]

		_, err := ComputePrice(edited, rs)
		require.ErrorIs(t, err, ErrInvalidSelection)
	})

	t.Run("group added after resolution", func(t *testing.T) {
		edited := businessCards()
		edited.Groups = append(edited.Groups, catalog.OptionGroup{
			ID:     "corners",
			Values: []catalog.OptionValue{{ID: "square", PriceModifier: dec("0")}},
		})

		_, err := ComputePrice(edited, rs)
		require.ErrorIs(t, err, ErrInvalidSelection)
	})
}

func TestComputePrice_UsesLiveModifiers(t *testing.T) {
	p := businessCards()
	rs, err := ValidateSelection(p, Selection{"paper": "glossy"})
	require.NoError(t, err)

	p.Groups[0].Values[1].PriceModifier = dec("7.50")

	got, err := ComputePrice(p, rs)
	require.NoError(t, err)
	assert.Equal(t, "27.49", got.Total.StringFixed(2))
}

func TestSnapshotSelection_Immutable(t *testing.T) {
	p := businessCards()
	result, err := Quote(p, Selection{"paper": "glossy", "qty": "500"})
	require.NoError(t, err)

	snap := SnapshotSelection(result)

	// Later catalog edits and reuse of the result must not leak into the snapshot.
	p.Groups[0].Values[1].PriceModifier = dec("99.00")
	p.Groups[0].Values[1].Name = "Renamed"
	p.Groups[0].Values = nil
	result.Lines[0].Modifier = dec("-1.00")
	result.Lines[0].ValueName = "Mutated"

	assert.Equal(t, "49.99", snap.UnitPrice.StringFixed(2))
	assert.Equal(t, "19.99", snap.BasePrice.StringFixed(2))
	require.Len(t, snap.Options, 2)
	assert.Equal(t, "Paper Stock", snap.Options[0].GroupName)
	assert.Equal(t, "Premium Glossy", snap.Options[0].ValueName)
	assert.Equal(t, "5.00", snap.Options[0].Modifier.StringFixed(2))
	assert.Equal(t, "25.00", snap.Options[1].Modifier.StringFixed(2))
	assert.Equal(t, Selection{"paper": "glossy", "qty": "500"}, snap.Selection())
}

func TestResolvedSelection_ChoicesIsCopy(t *testing.T) {
	rs, err := ValidateSelection(businessCards(), Selection{})
	require.NoError(t, err)

	choices := rs.Choices()
	choices[0].ValueID = "linen"

	assert.Equal(t, "matte", rs.Choices()[0].ValueID)
}
