package order

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// CreateFulfillment claims the processor event. It reports false when the
// event was already fulfilled by an earlier delivery.
func CreateFulfillment(ctx context.Context, db sqlx.ExtContext, f Fulfillment) (bool, error) {
	const q = `
	INSERT INTO fulfillments (event_id, session_id, user_id, created_at)
	VALUES (:event_id, :session_id, :user_id, :created_at)
	ON CONFLICT (event_id) DO NOTHING`

	res, err := sqlx.NamedExecContext(ctx, db, q, f)
	if err != nil {
		return false, fmt.Errorf("inserting fulfillment[%s]: %w", f.EventID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking fulfillment insert: %w", err)
	}

	return n == 1, nil
}

func CreatePurchase(ctx context.Context, db sqlx.ExtContext, p Purchase) error {
	const q = `
	INSERT INTO purchases (purchase_id, reference, event_id, user_id, product_id, quantity, created_at)
	VALUES (:purchase_id, :reference, :event_id, :user_id, :product_id, :quantity, :created_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, p); err != nil {
		return fmt.Errorf("inserting purchase[%s]: %w", p.ID, err)
	}

	return nil
}

// FetchPurchasesByUser lists a user's purchases newest first, enriched
// with catalog fields.
func FetchPurchasesByUser(ctx context.Context, db sqlx.ExtContext, userID string) ([]PurchaseDetail, error) {
	const q = `
	SELECT p.*, pr.name, pr.image_url, pr.size, pr.color, pr.price
	FROM purchases p
	JOIN products pr ON pr.product_id = p.product_id
	WHERE p.user_id = $1
	ORDER BY p.created_at DESC`

	purchases := []PurchaseDetail{}
	if err := sqlx.SelectContext(ctx, db, &purchases, q, userID); err != nil {
		return nil, fmt.Errorf("selecting purchases of user[%s]: %w", userID, err)
	}

	return purchases, nil
}
