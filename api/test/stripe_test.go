package test

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	mock "github.com/stripe/stripe-mock/param"
	"github.com/wearline/storefront/api/web"
)

type sessionCapture struct {
	ID       string
	Metadata map[string]string
	Lines    []capturedLine
}

type capturedLine struct {
	Quantity   int64
	UnitAmount int64
	Name       string
}

// stripeBackend fakes the two processor endpoints the checkout path
// touches: customer creation and hosted session creation.
type stripeBackend struct {
	mu        sync.Mutex
	customers int
	sessions  []sessionCapture
}

func newStripeBackend() *stripeBackend {
	return &stripeBackend{}
}

func (sb *stripeBackend) SessionCount() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return len(sb.sessions)
}

func (sb *stripeBackend) LastSession() sessionCapture {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if len(sb.sessions) == 0 {
		return sessionCapture{}
	}
	return sb.sessions[len(sb.sessions)-1]
}

func (sb *stripeBackend) CustomerCount() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.customers
}

func (sb *stripeBackend) handler() http.Handler {
	customers := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sb.mu.Lock()
		sb.customers++
		id := fmt.Sprintf("cus_test_%d", sb.customers)
		sb.mu.Unlock()

		web.Respond(context.Background(), w, map[string]any{"id": id}, http.StatusOK)
	})

	sessions := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params, err := mock.ParseParams(r)
		if err != nil {
			web.Respond(context.Background(), w, nil, http.StatusBadRequest)
			return
		}

		capture := sessionCapture{Metadata: map[string]string{}}

		if md, ok := params["metadata"].(map[string]any); ok {
			for k, v := range md {
				capture.Metadata[k], _ = v.(string)
			}
		}

		if lines, ok := params["line_items"].(map[string]any); ok {
			for _, raw := range lines {
				li, ok := raw.(map[string]any)
				if !ok {
					continue
				}

				var cl capturedLine
				if q, ok := li["quantity"].(string); ok {
					cl.Quantity, _ = strconv.ParseInt(q, 10, 64)
				}
				if pd, ok := li["price_data"].(map[string]any); ok {
					if ua, ok := pd["unit_amount"].(string); ok {
						cl.UnitAmount, _ = strconv.ParseInt(ua, 10, 64)
					}
					if prd, ok := pd["product_data"].(map[string]any); ok {
						cl.Name, _ = prd["name"].(string)
					}
				}
				capture.Lines = append(capture.Lines, cl)
			}
		}

		sb.mu.Lock()
		capture.ID = fmt.Sprintf("cs_test_%d", len(sb.sessions)+1)
		sb.sessions = append(sb.sessions, capture)
		sb.mu.Unlock()

		body := map[string]any{
			"id":  capture.ID,
			"url": "https://checkout.stripe.test/pay/" + capture.ID,
		}
		web.Respond(context.Background(), w, body, http.StatusOK)
	})

	r := mux.NewRouter()
	r.Handle("/v1/customers", customers).Methods(http.MethodPost)
	r.Handle("/v1/checkout/sessions", sessions).Methods(http.MethodPost)
	return r
}
