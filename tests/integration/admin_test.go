//go:build integration

package integration

import (
	"net/http"
	"testing"
)

type reviseRequest struct {
	Quantity  int               `json:"quantity"`
	Selection map[string]string `json:"selection,omitempty"`
}

func TestAdmin_RequiresAdminScope(t *testing.T) {
	resp := doGetWithAuth(t, "/api/admin/catalog/integrity", testAPIKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestAdmin_CatalogIntegrity(t *testing.T) {
	resp := doGetWithAuth(t, "/api/admin/catalog/integrity", testAdminKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	report := decodeJSON[integrityResponse](t, resp)
	if report.Products != seededCount {
		t.Errorf("products: got %d, want %d", report.Products, seededCount)
	}
	if len(report.Faults) != 0 {
		t.Errorf("faults: got %+v, want none", report.Faults)
	}
}

func TestAdmin_ReviseItem(t *testing.T) {
	placed := placeOrder(t, orderRequest{
		Items: []orderItemRequest{{ProductID: "prod-business-cards", Quantity: 1}},
	})
	itemID := placed.Items[0].ID

	resp := doJSON(t, http.MethodPut, "/api/admin/orders/"+placed.ID+"/items/"+itemID, reviseRequest{
		Quantity:  3,
		Selection: map[string]string{"paper-stock": "uncoated-linen"},
	}, testAdminKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	revised := decodeJSON[orderResponse](t, resp)
	// (19.99 + 12.00) * 3
	if revised.Total != 95.97 {
		t.Errorf("total: got %v, want 95.97", revised.Total)
	}
	if revised.Items[0].Configuration.Lines[0].ValueID != "uncoated-linen" {
		t.Errorf("snapshot was not replaced: %+v", revised.Items[0].Configuration.Lines[0])
	}

	getResp := doGetWithAuth(t, "/api/orders/"+placed.ID, testAPIKey)
	defer getResp.Body.Close()
	stored := decodeJSON[orderResponse](t, getResp)
	if stored.Total != 95.97 {
		t.Errorf("stored total: got %v, want 95.97", stored.Total)
	}
}

func TestAdmin_ReviseItem_NotFound(t *testing.T) {
	placed := placeOrder(t, orderRequest{
		Items: []orderItemRequest{{ProductID: "prod-flyers", Quantity: 1}},
	})

	resp := doJSON(t, http.MethodPut, "/api/admin/orders/"+placed.ID+"/items/missing",
		reviseRequest{Quantity: 1}, testAdminKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestAdmin_AuditOrder(t *testing.T) {
	placed := placeOrder(t, orderRequest{
		Items: []orderItemRequest{
			{ProductID: "prod-business-cards", Quantity: 2, Selection: glossy500},
			{ProductID: "prod-flyers", Quantity: 1},
		},
	})

	resp := doPostWithAuth(t, "/api/admin/orders/"+placed.ID+"/audit", nil, testAdminKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	audit := decodeJSON[auditResponse](t, resp)
	if audit.OrderID != placed.ID || audit.Drifted {
		t.Errorf("audit: got order %s drifted=%v", audit.OrderID, audit.Drifted)
	}
	if len(audit.Lines) != 2 {
		t.Fatalf("lines: got %d, want 2", len(audit.Lines))
	}
	for _, l := range audit.Lines {
		if l.Status != "current" || l.RecordedUnitPrice != l.CurrentUnitPrice {
			t.Errorf("line %s: got %s %v vs %v", l.ItemID, l.Status, l.RecordedUnitPrice, l.CurrentUnitPrice)
		}
	}
}
