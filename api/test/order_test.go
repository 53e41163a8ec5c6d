package test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"
	"github.com/wearline/storefront/core/order"
	"github.com/wearline/storefront/core/product"
)

func TestCheckoutAndFulfillment(t *testing.T) {
	te := NewTestEnv(t)

	te.signupOK(t, "buyer@test.com", "password123")

	p1 := te.createProduct(t, "linen shirt", 45.5, 5)
	p2 := te.createProduct(t, "wool sweater", 80, 1)

	// All-or-nothing: one out-of-stock line fails the whole checkout and
	// creates no session.
	w := te.postJSON(t, "/checkout", map[string]any{
		"products": []map[string]any{
			{"productId": p1.ID, "quantity": 1},
			{"productId": p2.ID, "quantity": 3},
		},
	})
	requireStatus(t, w, http.StatusConflict)
	if te.Stripe.SessionCount() != 0 {
		t.Fatalf("expected no sessions after failed checkout, got %d", te.Stripe.SessionCount())
	}

	w = te.postJSON(t, "/checkout", map[string]any{
		"products": []map[string]any{
			{"productId": "deadbeef-0000-0000-0000-000000000000", "quantity": 1},
		},
	})
	requireStatus(t, w, http.StatusNotFound)

	// The happy path prices lines from the catalog and embeds the compact
	// metadata encoding.
	w = te.postJSON(t, "/checkout", map[string]any{
		"products": []map[string]any{
			{"productId": p1.ID, "quantity": 2},
		},
	})
	requireStatus(t, w, http.StatusOK)

	var resp struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	w.Body.Close()
	if resp.URL == "" {
		t.Fatal("expected a redirect url")
	}

	sess := te.Stripe.LastSession()
	if len(sess.Lines) != 1 {
		t.Fatalf("expected one line item, got %d", len(sess.Lines))
	}
	if sess.Lines[0].Quantity != 2 || sess.Lines[0].UnitAmount != 4550 {
		t.Fatalf("unexpected line item: %+v", sess.Lines[0])
	}
	if sess.Metadata["userId"] == "" || sess.Metadata["products"] == "" {
		t.Fatalf("session metadata incomplete: %+v", sess.Metadata)
	}
	if te.Stripe.CustomerCount() != 1 {
		t.Fatalf("expected one lazily created customer, got %d", te.Stripe.CustomerCount())
	}

	// A second checkout reuses the persisted customer identity.
	w = te.postJSON(t, "/checkout", map[string]any{
		"products": []map[string]any{{"productId": p1.ID, "quantity": 1}},
	})
	requireStatus(t, w, http.StatusOK)
	w.Body.Close()
	if te.Stripe.CustomerCount() != 1 {
		t.Fatalf("customer should be reused, got %d creations", te.Stripe.CustomerCount())
	}

	userID := sess.Metadata["userId"]

	// An invalid signature must never reach the fulfillment path.
	payload := completedEventPayload(t, "evt_test_1", sess.ID, sess.Metadata)
	te.deliverWebhook(t, payload, "t=1,v1=garbage", http.StatusBadRequest)
	assertAvailable(t, te, p1.ID, 5)
	assertPurchaseCount(t, te, userID, 0)

	// Event types other than completed sessions are acknowledged without
	// side effects.
	other := eventPayload(t, "evt_test_2", "payment_intent.succeeded", map[string]any{"id": "pi_1"})
	te.deliverWebhook(t, other, signPayload(other), http.StatusOK)
	assertPurchaseCount(t, te, userID, 0)

	// Completed sessions without metadata are rejected.
	bare := eventPayload(t, "evt_test_3", "checkout.session.completed", map[string]any{"id": sess.ID})
	te.deliverWebhook(t, bare, signPayload(bare), http.StatusBadRequest)
	assertPurchaseCount(t, te, userID, 0)

	// The real confirmation decrements stock and writes one purchase per
	// line.
	te.deliverWebhook(t, payload, signPayload(payload), http.StatusOK)
	assertAvailable(t, te, p1.ID, 3)
	assertPurchaseCount(t, te, userID, 1)

	purchases, err := order.FetchPurchasesByUser(context.Background(), te.DB, userID)
	if err != nil {
		t.Fatal(err)
	}
	if purchases[0].Quantity != 2 || purchases[0].ProductID != p1.ID {
		t.Fatalf("unexpected purchase: %+v", purchases[0])
	}
	if purchases[0].Reference == "" {
		t.Fatal("purchase is missing its reference code")
	}

	// Redelivery of the same event is a no-op.
	te.deliverWebhook(t, payload, signPayload(payload), http.StatusOK)
	assertAvailable(t, te, p1.ID, 3)
	assertPurchaseCount(t, te, userID, 1)

	// The order history lists the purchase enriched with catalog fields.
	w = te.doJSON(t, http.MethodGet, "/orders", nil)
	requireStatus(t, w, http.StatusOK)

	var history struct {
		Orders []order.PurchaseDetail `json:"orders"`
	}
	if err := json.NewDecoder(w.Body).Decode(&history); err != nil {
		t.Fatal(err)
	}
	w.Body.Close()
	if len(history.Orders) != 1 || history.Orders[0].Name != p1.Name {
		t.Fatalf("unexpected order history: %+v", history.Orders)
	}

	// A paid order confirms even when stock no longer covers it: the
	// availability clamps at zero and the purchase keeps the paid quantity.
	p3 := te.createProduct(t, "cotton tee", 20, 1)
	oversold := completedEventPayload(t, "evt_test_4", "cs_test_oversold", map[string]string{
		"userId":   userID,
		"products": p3.ID + ":2",
	})
	te.deliverWebhook(t, oversold, signPayload(oversold), http.StatusOK)
	assertAvailable(t, te, p3.ID, 0)
	assertPurchaseCount(t, te, userID, 2)

	purchases, err = order.FetchPurchasesByUser(context.Background(), te.DB, userID)
	if err != nil {
		t.Fatal(err)
	}
	if purchases[0].ProductID != p3.ID || purchases[0].Quantity != 2 {
		t.Fatalf("oversold purchase should keep the paid quantity: %+v", purchases[0])
	}

	te.logoutOK(t)

	w = te.postJSON(t, "/checkout", map[string]any{
		"products": []map[string]any{{"productId": p1.ID, "quantity": 1}},
	})
	requireStatus(t, w, http.StatusUnauthorized)
}

func (te *TestEnv) deliverWebhook(t *testing.T, payload []byte, signature string, wantStatus int) {
	t.Helper()

	r, err := http.NewRequest(http.MethodPost, te.URL+"/checkout/webhook", bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	r.Header.Set("Stripe-Signature", signature)

	w, err := te.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if w.StatusCode != wantStatus {
		t.Fatalf("webhook delivery: status code %s, want %d", w.Status, wantStatus)
	}
}

func completedEventPayload(t *testing.T, eventID, sessionID string, metadata map[string]string) []byte {
	t.Helper()
	return eventPayload(t, eventID, "checkout.session.completed", map[string]any{
		"id":       sessionID,
		"metadata": metadata,
	})
}

func eventPayload(t *testing.T, eventID, eventType string, object map[string]any) []byte {
	t.Helper()

	raw, err := json.Marshal(object)
	if err != nil {
		t.Fatal(err)
	}

	evt := stripe.Event{
		ID:         eventID,
		APIVersion: "2022-11-15",
		Type:       eventType,
		Data: &stripe.EventData{
			Raw: json.RawMessage(raw),
		},
	}

	b, err := json.Marshal(evt)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func signPayload(payload []byte) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    webhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func assertAvailable(t *testing.T, te *TestEnv, productID string, want int) {
	t.Helper()

	prd, err := product.Fetch(context.Background(), te.DB, productID)
	if err != nil {
		t.Fatal(err)
	}
	if prd.Available != want {
		t.Fatalf("availability of product[%s]: got %d, want %d", productID, prd.Available, want)
	}
}

func assertPurchaseCount(t *testing.T, te *TestEnv, userID string, want int) {
	t.Helper()

	purchases, err := order.FetchPurchasesByUser(context.Background(), te.DB, userID)
	if err != nil {
		t.Fatal(err)
	}
	if len(purchases) != want {
		t.Fatalf("purchase count: got %d, want %d", len(purchases), want)
	}
}
