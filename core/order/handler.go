package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"
	"github.com/wearline/storefront/api/web"
	"github.com/wearline/storefront/api/weberr"
	"github.com/wearline/storefront/config"
	"github.com/wearline/storefront/core/cart"
	"github.com/wearline/storefront/core/claims"
	"github.com/wearline/storefront/core/product"
	"github.com/wearline/storefront/core/user"
	"github.com/wearline/storefront/database"
	"github.com/wearline/storefront/random"
	"github.com/wearline/storefront/validate"
)

const maxWebhookBody = 65536

type checkoutResponse struct {
	URL string `json:"url"`
}

// HandleCheckout turns the submitted cart lines into a hosted payment
// session. Validation is all-or-nothing: any missing product or
// insufficient stock fails the whole checkout and no session is created.
func HandleCheckout(db *sqlx.DB, strp *stripecl.API, cfg config.Stripe) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		var cn CheckoutNew
		if err := web.Decode(w, r, &cn); err != nil {
			return weberr.BadRequest(fmt.Errorf("decoding checkout: %w", err))
		}

		if err := validate.Check(cn); err != nil {
			return weberr.Unprocessable(err, err.Error())
		}

		items := make([]*stripe.CheckoutSessionLineItemParams, 0, len(cn.Products))
		for _, line := range cn.Products {
			prd, err := product.Fetch(ctx, db, line.ProductID)
			if err != nil {
				if errors.Is(err, product.ErrNotFound) {
					return weberr.NotFound(fmt.Errorf("product[%s] not found: %w", line.ProductID, err))
				}
				return fmt.Errorf("fetching product[%s]: %w", line.ProductID, err)
			}

			if prd.Available < line.Quantity {
				err := fmt.Errorf("product out of stock: %s", prd.Name)
				return weberr.Conflict(err, err.Error())
			}

			// Lines are priced from the catalog at submission time, never
			// from a price cached in the cart.
			items = append(items, &stripe.CheckoutSessionLineItemParams{
				Quantity: stripe.Int64(int64(line.Quantity)),

				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(cfg.Currency),
					UnitAmount: stripe.Int64(int64(math.Round(prd.Price * 100))),

					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(prd.Name),
					},
				},
			})
		}

		usr, err := user.Fetch(ctx, db, clm.UserID)
		if err != nil {
			return fmt.Errorf("fetching user[%s]: %w", clm.UserID, err)
		}

		customerID, err := ensureCustomer(ctx, db, strp, usr)
		if err != nil {
			return fmt.Errorf("resolving stripe customer of user[%s]: %w", clm.UserID, err)
		}

		params := &stripe.CheckoutSessionParams{
			Customer:                 stripe.String(customerID),
			SuccessURL:               stripe.String(cfg.SuccessURL),
			CancelURL:                stripe.String(cfg.CancelURL),
			Mode:                     stripe.String(string(stripe.CheckoutSessionModePayment)),
			LineItems:                items,
			BillingAddressCollection: stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionRequired)),
			ShippingAddressCollection: &stripe.CheckoutSessionShippingAddressCollectionParams{
				AllowedCountries: stripe.StringSlice(strings.Split(cfg.ShipTo, ";")),
			},
		}
		params.AddMetadata("userId", clm.UserID)
		params.AddMetadata("products", EncodeLines(cn.Products))

		s, err := strp.CheckoutSessions.New(params)
		if err != nil {
			return fmt.Errorf("creating stripe session: %w", err)
		}

		return web.Respond(ctx, w, checkoutResponse{URL: s.URL}, http.StatusOK)
	}
}

// ensureCustomer lazily creates the processor-side customer on first
// checkout and persists the mapping for reuse.
func ensureCustomer(ctx context.Context, db *sqlx.DB, strp *stripecl.API, usr user.User) (string, error) {
	if usr.StripeCustomerID != nil && *usr.StripeCustomerID != "" {
		return *usr.StripeCustomerID, nil
	}

	cus, err := strp.Customers.New(&stripe.CustomerParams{
		Email: stripe.String(usr.Email),
	})
	if err != nil {
		return "", fmt.Errorf("creating stripe customer: %w", err)
	}

	if err := user.UpdateStripeCustomer(ctx, db, usr.ID, cus.ID); err != nil {
		return "", err
	}

	return cus.ID, nil
}

// HandleWebhook consumes payment confirmations. The signature is checked
// over the raw body before any domain logic runs; only completed checkout
// sessions mutate state, and fulfillment is idempotent on the event id.
func HandleWebhook(db *sqlx.DB, cache *cart.Cache, log logrus.FieldLogger, cfg config.Stripe) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("cannot read the request body: %w", err))
		}

		sig := r.Header.Get("Stripe-Signature")
		if sig == "" {
			return weberr.BadRequest(errors.New("received stripe event is not signed"))
		}

		event, err := webhook.ConstructEvent(b, sig, cfg.WebhookSecret)
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("cannot construct stripe event: %w", err))
		}

		if event.Type != "checkout.session.completed" {
			return web.Respond(ctx, w, struct{}{}, http.StatusOK)
		}

		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode stripe event: %w", err))
		}

		userID := session.Metadata["userId"]
		if userID == "" {
			return weberr.BadRequest(errors.New("missing userId in session metadata"))
		}

		lines, err := ParseLines(session.Metadata["products"])
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("invalid products metadata: %w", err))
		}

		if err := fulfill(ctx, db, log, event.ID, session.ID, userID, lines); err != nil {
			return fmt.Errorf("the order was payed but its fulfillment failed: %w", err)
		}

		if err := cache.Invalidate(ctx, userID); err != nil {
			log.WithField("user_id", userID).Warnf("cart cache invalidation failed: %v", err)
		}

		return web.Respond(ctx, w, struct{}{}, http.StatusOK)
	}
}

// fulfill performs the only durable side-effecting transition of the
// system: one purchase record and one availability decrement per line, in
// a single transaction claimed by the processor event id. Redelivery of an
// already-claimed event changes nothing; a partial failure rolls back
// whole so the processor can retry safely.
func fulfill(ctx context.Context, db *sqlx.DB, log logrus.FieldLogger, eventID, sessionID, userID string, lines []Line) error {
	return database.Transaction(db, func(tx sqlx.ExtContext) error {
		now := time.Now().UTC()

		claimed, err := CreateFulfillment(ctx, tx, Fulfillment{
			EventID:   eventID,
			SessionID: sessionID,
			UserID:    userID,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}

		if !claimed {
			log.WithField("event_id", eventID).Info("event already fulfilled, skipping")
			return nil
		}

		for _, line := range lines {
			p := Purchase{
				ID:        validate.GenerateID(),
				Reference: random.Reference(),
				EventID:   eventID,
				UserID:    userID,
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				CreatedAt: now,
			}

			if err := CreatePurchase(ctx, tx, p); err != nil {
				return err
			}

			shortfall, err := product.Decrement(ctx, tx, line.ProductID, line.Quantity)
			if err != nil {
				return fmt.Errorf("decrementing availability of product[%s]: %w", line.ProductID, err)
			}

			if shortfall > 0 {
				log.WithFields(logrus.Fields{
					"event_id":   eventID,
					"product_id": line.ProductID,
					"shortfall":  shortfall,
				}).Warn("oversold product, availability clamped at zero")
			}
		}

		if err := cart.Delete(ctx, tx, userID); err != nil {
			return fmt.Errorf("flushing cart: %w", err)
		}

		return nil
	})
}

type ordersResponse struct {
	Orders []PurchaseDetail `json:"orders"`
}

func HandleListOwned(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		purchases, err := FetchPurchasesByUser(ctx, db, clm.UserID)
		if err != nil {
			return fmt.Errorf("fetching purchases: %w", err)
		}

		return web.Respond(ctx, w, ordersResponse{Orders: purchases}, http.StatusOK)
	}
}
