package product

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var ErrNotFound = errors.New("product not found")

const searchVector = `(
	setweight(to_tsvector('english', name), 'A') ||
	setweight(to_tsvector('english', description), 'B') ||
	setweight(to_tsvector('english', color), 'C')
)`

func Fetch(ctx context.Context, db sqlx.ExtContext, id string) (Product, error) {
	const q = `SELECT * FROM products WHERE product_id = $1`

	var prd Product
	if err := sqlx.GetContext(ctx, db, &prd, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("selecting product[%s]: %w", id, err)
	}

	return prd, nil
}

// List returns one page of products matching the filter together with the
// total match count. Pages are 1-based and PageSize wide.
func List(ctx context.Context, db sqlx.ExtContext, filter Filter, query string, page int) ([]Product, int, error) {
	var conds []string
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.Size) > 0 {
		conds = append(conds, fmt.Sprintf("size = ANY(%s)", arg(pq.Array(filter.Size))))
	}

	if len(filter.Color) > 0 {
		conds = append(conds, fmt.Sprintf("color = ANY(%s)", arg(pq.Array(filter.Color))))
	}

	if len(filter.Price) == 2 {
		conds = append(conds, fmt.Sprintf("price BETWEEN %s AND %s", arg(filter.Price[0]), arg(filter.Price[1])))
	}

	if terms := searchTerms(query); terms != "" {
		conds = append(conds, fmt.Sprintf("%s @@ to_tsquery('english', %s)", searchVector, arg(terms)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var count int
	if err := sqlx.GetContext(ctx, db, &count, "SELECT count(*) FROM products"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("counting products: %w", err)
	}

	order := ""
	switch filter.Sort {
	case "price-asc":
		order = " ORDER BY price ASC"
	case "price-desc":
		order = " ORDER BY price DESC"
	}

	if page < 1 {
		page = 1
	}

	q := "SELECT * FROM products" + where + order +
		fmt.Sprintf(" LIMIT %s OFFSET %s", arg(PageSize), arg((page-1)*PageSize))

	products := []Product{}
	if err := sqlx.SelectContext(ctx, db, &products, q, args...); err != nil {
		return nil, 0, fmt.Errorf("selecting products: %w", err)
	}

	return products, count, nil
}

func Create(ctx context.Context, db sqlx.ExtContext, prd Product) error {
	const q = `
	INSERT INTO products (product_id, name, description, size, color, image_url, price, available, created_at, updated_at)
	VALUES (:product_id, :name, :description, :size, :color, :image_url, :price, :available, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, prd); err != nil {
		return fmt.Errorf("inserting product: %w", err)
	}

	return nil
}

func Update(ctx context.Context, db sqlx.ExtContext, prd Product) error {
	const q = `
	UPDATE products SET
		name = :name,
		description = :description,
		size = :size,
		color = :color,
		image_url = :image_url,
		price = :price,
		available = :available,
		updated_at = :updated_at
	WHERE product_id = :product_id`

	res, err := sqlx.NamedExecContext(ctx, db, q, prd)
	if err != nil {
		return fmt.Errorf("updating product[%s]: %w", prd.ID, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}

// Decrement lowers the availability of a product by quantity, clamped at
// zero, and reports the shortfall when stock did not cover the quantity.
// The row is locked for the rest of the surrounding transaction.
func Decrement(ctx context.Context, tx sqlx.ExtContext, id string, quantity int) (int, error) {
	var available int
	if err := sqlx.GetContext(ctx, tx, &available, `SELECT available FROM products WHERE product_id = $1 FOR UPDATE`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("locking product[%s]: %w", id, err)
	}

	remaining := available - quantity
	shortfall := 0
	if remaining < 0 {
		shortfall = -remaining
		remaining = 0
	}

	if _, err := tx.ExecContext(ctx, `UPDATE products SET available = $2, updated_at = now() WHERE product_id = $1`, id, remaining); err != nil {
		return 0, fmt.Errorf("decrementing product[%s]: %w", id, err)
	}

	return shortfall, nil
}

func searchTerms(query string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(query)), " & ")
}
