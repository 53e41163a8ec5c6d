package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/wearline/storefront/core/product"
)

var ErrNoCart = errors.New("no cart exists for user")

// FetchItems returns the items of a user's cart in insertion order. A user
// without a cart record gets an empty list, not an error.
func FetchItems(ctx context.Context, db sqlx.ExtContext, userID string) ([]Item, error) {
	const q = `SELECT * FROM cart_items WHERE user_id = $1 ORDER BY created_at, product_id`

	items := []Item{}
	if err := sqlx.SelectContext(ctx, db, &items, q, userID); err != nil {
		return nil, fmt.Errorf("selecting cart items of user[%s]: %w", userID, err)
	}

	return items, nil
}

func exists(ctx context.Context, db sqlx.ExtContext, userID string) (bool, error) {
	const q = `SELECT user_id FROM carts WHERE user_id = $1`

	var id string
	if err := sqlx.GetContext(ctx, db, &id, q, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("selecting cart of user[%s]: %w", userID, err)
	}

	return true, nil
}

// AddItem appends the item to the user's cart, creating the cart record
// lazily on first write. Adding a product already present merges the two
// entries by summing their quantities.
func AddItem(ctx context.Context, tx sqlx.ExtContext, userID string, item ItemNew) error {
	now := time.Now().UTC()

	if _, err := product.Fetch(ctx, tx, item.ProductID); err != nil {
		return err
	}

	const ensure = `
	INSERT INTO carts (user_id, created_at, updated_at)
	VALUES ($1, $2, $2)
	ON CONFLICT (user_id) DO UPDATE SET updated_at = $2`

	if _, err := tx.ExecContext(ctx, ensure, userID, now); err != nil {
		return fmt.Errorf("ensuring cart of user[%s]: %w", userID, err)
	}

	const upsert = `
	INSERT INTO cart_items (user_id, product_id, quantity, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $4)
	ON CONFLICT (user_id, product_id)
	DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = $4`

	if _, err := tx.ExecContext(ctx, upsert, userID, item.ProductID, item.Quantity, now); err != nil {
		return fmt.Errorf("upserting cart item[%s] of user[%s]: %w", item.ProductID, userID, err)
	}

	return nil
}

// UpdateItem replaces the quantity of a matching entry. A cart without a
// matching entry is left untouched; a user without a cart gets ErrNoCart.
func UpdateItem(ctx context.Context, db sqlx.ExtContext, userID string, item ItemNew) error {
	ok, err := exists(ctx, db, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoCart
	}

	const q = `
	UPDATE cart_items SET quantity = $3, updated_at = now()
	WHERE user_id = $1 AND product_id = $2`

	if _, err := db.ExecContext(ctx, q, userID, item.ProductID, item.Quantity); err != nil {
		return fmt.Errorf("updating cart item[%s] of user[%s]: %w", item.ProductID, userID, err)
	}

	return nil
}

// RemoveItem filters out entries matching the product id.
func RemoveItem(ctx context.Context, db sqlx.ExtContext, userID string, productID string) error {
	ok, err := exists(ctx, db, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoCart
	}

	const q = `DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`

	if _, err := db.ExecContext(ctx, q, userID, productID); err != nil {
		return fmt.Errorf("deleting cart item[%s] of user[%s]: %w", productID, userID, err)
	}

	return nil
}

// Delete flushes the whole cart record of a user.
func Delete(ctx context.Context, db sqlx.ExtContext, userID string) error {
	const q = `DELETE FROM carts WHERE user_id = $1`

	if _, err := db.ExecContext(ctx, q, userID); err != nil {
		return fmt.Errorf("deleting cart of user[%s]: %w", userID, err)
	}

	return nil
}
