package order

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Purchase is the durable, append-only evidence of one fulfilled order
// line. Purchases are never updated or deleted.
type Purchase struct {
	ID        string    `json:"id" db:"purchase_id"`
	Reference string    `json:"reference" db:"reference"`
	EventID   string    `json:"-" db:"event_id"`
	UserID    string    `json:"userId" db:"user_id"`
	ProductID string    `json:"productId" db:"product_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Fulfillment records that a processor event has been handled. Its primary
// key on the event id makes webhook redelivery a no-op.
type Fulfillment struct {
	EventID   string    `db:"event_id"`
	SessionID string    `db:"session_id"`
	UserID    string    `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
}

// PurchaseDetail is a purchase enriched with catalog display fields for
// the order history listing.
type PurchaseDetail struct {
	Purchase
	Name     string  `json:"name" db:"name"`
	ImageURL string  `json:"imageURL" db:"image_url"`
	Size     string  `json:"size" db:"size"`
	Color    string  `json:"color" db:"color"`
	Price    float64 `json:"price" db:"price"`
}

type Line struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gte=1"`
}

type CheckoutNew struct {
	Products []Line `json:"products" validate:"required,min=1,dive"`
}

// EncodeLines packs order lines into the compact "id:qty,id:qty" form
// carried in the processor session metadata.
func EncodeLines(lines []Line) string {
	pairs := make([]string, 0, len(lines))
	for _, l := range lines {
		pairs = append(pairs, fmt.Sprintf("%s:%d", l.ProductID, l.Quantity))
	}
	return strings.Join(pairs, ",")
}

func ParseLines(raw string) ([]Line, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty product metadata")
	}

	pairs := strings.Split(raw, ",")
	lines := make([]Line, 0, len(pairs))
	for _, p := range pairs {
		id, qty, ok := strings.Cut(p, ":")
		if !ok || id == "" {
			return nil, fmt.Errorf("malformed product pair %q", p)
		}

		n, err := strconv.Atoi(qty)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("malformed quantity in pair %q", p)
		}

		lines = append(lines, Line{ProductID: id, Quantity: n})
	}

	return lines, nil
}
