package email

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
)

func TestRender(t *testing.T) {
	order := &domain.Order{
		ID:         "abcdef12-0000-0000-0000-000000000000",
		TotalPrice: decimal.RequireFromString("59.9"),
		Items: []domain.OrderItem{
			{VariantID: "<script>", Quantity: 2, Price: decimal.RequireFromString("29.95")},
		},
	}

	subject, body, err := Render(domain.EmailOrderShipping, order)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if subject != "Order #ABCDEF12 has shipped" {
		t.Errorf("unexpected subject %q", subject)
	}
	if !strings.Contains(body, "59.90") || !strings.Contains(body, "29.95") {
		t.Error("expected formatted prices in body")
	}
	if strings.Contains(body, "<script>") {
		t.Error("expected item fields to be escaped")
	}
}

func TestRender_EveryKindHasCopy(t *testing.T) {
	kinds := []domain.EmailKind{
		domain.EmailOrderPlaced, domain.EmailOrderSuccess, domain.EmailPaymentSucceeded,
		domain.EmailOrderShipping, domain.EmailOrderDelivered, domain.EmailOrderCancelled,
	}
	for _, kind := range kinds {
		if _, _, err := Render(kind, &domain.Order{ID: "12345678"}); err != nil {
			t.Errorf("%s: %v", kind, err)
		}
	}

	if _, _, err := Render("unknown", &domain.Order{ID: "12345678"}); err == nil {
		t.Error("expected error for unknown kind")
	}
}
