package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/wearline/storefront/api/web"
	"github.com/wearline/storefront/api/weberr"
	"github.com/wearline/storefront/core/claims"
	"github.com/wearline/storefront/core/product"
	"github.com/wearline/storefront/database"
	"github.com/wearline/storefront/validate"
)

type itemBody struct {
	CartItem ItemNew `json:"cartItem"`
}

type removeBody struct {
	ProductID string `json:"productId" validate:"required"`
}

type itemsResponse struct {
	CartItems []Item `json:"cartItems"`
}

func HandleShow(db *sqlx.DB, cache *Cache, log logrus.FieldLogger) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		if items, err := cache.Get(ctx, clm.UserID); err == nil {
			return web.Respond(ctx, w, itemsResponse{CartItems: items}, http.StatusOK)
		} else if !errors.Is(err, ErrCacheMiss) {
			log.WithField("user_id", clm.UserID).Warnf("cart cache read failed: %v", err)
		}

		items, err := FetchItems(ctx, db, clm.UserID)
		if err != nil {
			return fmt.Errorf("fetching cart items: %w", err)
		}

		if err := cache.Set(ctx, clm.UserID, items); err != nil {
			log.WithField("user_id", clm.UserID).Warnf("cart cache write failed: %v", err)
		}

		return web.Respond(ctx, w, itemsResponse{CartItems: items}, http.StatusOK)
	}
}

func HandleCreateItem(db *sqlx.DB, cache *Cache, log logrus.FieldLogger) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		var body itemBody
		if err := web.Decode(w, r, &body); err != nil {
			return weberr.BadRequest(fmt.Errorf("decoding cart item: %w", err))
		}

		if err := validate.Check(body.CartItem); err != nil {
			return weberr.Unprocessable(err, err.Error())
		}

		err = database.Transaction(db, func(tx sqlx.ExtContext) error {
			return AddItem(ctx, tx, clm.UserID, body.CartItem)
		})
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("adding cart item: %w", err)
		}

		return respondWithItems(ctx, w, db, cache, log, clm.UserID)
	}
}

func HandleUpdateItem(db *sqlx.DB, cache *Cache, log logrus.FieldLogger) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		var body itemBody
		if err := web.Decode(w, r, &body); err != nil {
			return weberr.BadRequest(fmt.Errorf("decoding cart item: %w", err))
		}

		if err := validate.Check(body.CartItem); err != nil {
			return weberr.Unprocessable(err, err.Error())
		}

		if err := UpdateItem(ctx, db, clm.UserID, body.CartItem); err != nil {
			if errors.Is(err, ErrNoCart) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("updating cart item: %w", err)
		}

		return respondWithItems(ctx, w, db, cache, log, clm.UserID)
	}
}

func HandleDeleteItem(db *sqlx.DB, cache *Cache, log logrus.FieldLogger) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		var body removeBody
		if err := web.Decode(w, r, &body); err != nil {
			return weberr.BadRequest(fmt.Errorf("decoding cart removal: %w", err))
		}

		if err := validate.Check(body); err != nil {
			return weberr.Unprocessable(err, err.Error())
		}

		if err := RemoveItem(ctx, db, clm.UserID, body.ProductID); err != nil {
			if errors.Is(err, ErrNoCart) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("removing cart item: %w", err)
		}

		return respondWithItems(ctx, w, db, cache, log, clm.UserID)
	}
}

// respondWithItems re-reads the authoritative record after a mutation and
// refreshes the cache snapshot before answering.
func respondWithItems(ctx context.Context, w http.ResponseWriter, db *sqlx.DB, cache *Cache, log logrus.FieldLogger, userID string) error {
	items, err := FetchItems(ctx, db, userID)
	if err != nil {
		return fmt.Errorf("fetching cart items: %w", err)
	}

	if err := cache.Set(ctx, userID, items); err != nil {
		log.WithField("user_id", userID).Warnf("cart cache write failed: %v", err)
	}

	return web.Respond(ctx, w, itemsResponse{CartItems: items}, http.StatusOK)
}
