package test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/ory/dockertest/v3"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
	"github.com/wearline/storefront/api"
	"github.com/wearline/storefront/config"
	"github.com/wearline/storefront/core/cart"
	"github.com/wearline/storefront/core/claims"
	"github.com/wearline/storefront/core/product"
	"github.com/wearline/storefront/core/user"
	"github.com/wearline/storefront/database"
	"github.com/wearline/storefront/validate"
	"golang.org/x/crypto/bcrypt"
)

const webhookSecret = "whsec_test_secret"

type TestEnv struct {
	DB     *sqlx.DB
	URL    string
	Stripe *stripeBackend

	client *http.Client
}

func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("connecting to docker: %v", err)
	}
	pool.MaxWait = 2 * time.Minute

	res, err := pool.Run("postgres", "15-alpine", []string{
		"POSTGRES_USER=postgres",
		"POSTGRES_PASSWORD=postgres",
		"POSTGRES_DB=storefront",
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := pool.Purge(res); err != nil {
			t.Logf("purging postgres container: %v", err)
		}
	})

	dbCfg := config.DB{
		User:       "postgres",
		Password:   "postgres",
		Host:       "localhost:" + res.GetPort("5432/tcp"),
		Name:       "storefront",
		DisableTLS: true,
	}

	var db *sqlx.DB
	if err := pool.Retry(func() error {
		var err error
		db, err = database.Open(dbCfg)
		if err != nil {
			return err
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connecting to postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrating database: %v", err)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	sb := newStripeBackend()
	ms := httptest.NewServer(sb.handler())
	t.Cleanup(ms.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL: stripe.String(ms.URL),
	})
	strp := &stripecl.API{}
	strp.Init("sk_test_123", &stripe.Backends{API: backend, Connect: backend, Uploads: backend})

	log := logrus.New()
	log.SetOutput(io.Discard)

	session := scs.New()
	session.Lifetime = time.Hour

	mux := api.APIMux(api.APIConfig{
		Log:     log,
		DB:      db,
		Session: session,
		Cache:   cart.NewCache(rdb),
		Stripe:  strp,
		StripeCfg: config.Stripe{
			APISecret:     "sk_test_123",
			WebhookSecret: webhookSecret,
			SuccessURL:    "http://localhost:3000/thank-you",
			CancelURL:     "http://localhost:3000",
			Currency:      "usd",
			ShipTo:        "IN;US;CA",
		},
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("building cookie jar: %v", err)
	}

	return &TestEnv{
		DB:     db,
		URL:    srv.URL,
		Stripe: sb,
		client: &http.Client{Jar: jar},
	}
}

func (te *TestEnv) Client() *http.Client { return te.client }

func (te *TestEnv) signupOK(t *testing.T, email, pass string) user.User {
	t.Helper()

	w := te.postJSON(t, "/auth/signup", map[string]any{"email": email, "password": pass})
	defer w.Body.Close()

	if w.StatusCode != http.StatusCreated {
		t.Fatalf("signup of %s: status code %s", email, w.Status)
	}

	var usr user.User
	if err := json.NewDecoder(w.Body).Decode(&usr); err != nil {
		t.Fatalf("decoding signup response: %v", err)
	}
	return usr
}

func (te *TestEnv) loginOK(t *testing.T, email, pass string) {
	t.Helper()

	w := te.postJSON(t, "/auth/login", map[string]any{"email": email, "password": pass})
	defer w.Body.Close()

	if w.StatusCode != http.StatusOK {
		t.Fatalf("login of %s: status code %s", email, w.Status)
	}
}

func (te *TestEnv) logoutOK(t *testing.T) {
	t.Helper()

	w := te.postJSON(t, "/auth/logout", nil)
	defer w.Body.Close()

	if w.StatusCode != http.StatusNoContent {
		t.Fatalf("logout: status code %s", w.Status)
	}
}

// createAdmin writes an admin user straight to the database; there is no
// signup path for the admin role.
func (te *TestEnv) createAdmin(t *testing.T, email, pass string) user.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC()
	usr := user.User{
		ID:           validate.GenerateID(),
		Email:        email,
		PasswordHash: hash,
		Role:         claims.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := user.Create(context.Background(), te.DB, usr); err != nil {
		t.Fatalf("creating admin: %v", err)
	}
	return usr
}

func (te *TestEnv) createProduct(t *testing.T, name string, price float64, available int) product.Product {
	t.Helper()

	now := time.Now().UTC()
	prd := product.Product{
		ID:          validate.GenerateID(),
		Name:        name,
		Description: "a " + name,
		Size:        "M",
		Color:       "blue",
		ImageURL:    "https://img.test/" + name,
		Price:       price,
		Available:   available,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := product.Create(context.Background(), te.DB, prd); err != nil {
		t.Fatalf("creating product %s: %v", name, err)
	}
	return prd
}

func (te *TestEnv) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	return te.doJSON(t, http.MethodPost, path, body)
}

func (te *TestEnv) doJSON(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		buf = bytes.NewReader(b)
	}

	r, err := http.NewRequest(method, te.URL+path, buf)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}

	w, err := te.client.Do(r)
	if err != nil {
		t.Fatal(err)
	}
	return w
}

func decodeBody[T any](t *testing.T, w *http.Response) T {
	t.Helper()
	defer w.Body.Close()

	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
	return v
}

func requireStatus(t *testing.T, w *http.Response, want int) {
	t.Helper()
	if w.StatusCode != want {
		b, _ := io.ReadAll(w.Body)
		w.Body.Close()
		t.Fatalf("status code %s, want %d (body: %s)", w.Status, want, b)
	}
}
