package user

import "time"

type User struct {
	ID               string    `json:"id" db:"user_id"`
	Email            string    `json:"email" db:"email"`
	PasswordHash     []byte    `json:"-" db:"password_hash"`
	Role             string    `json:"role" db:"role"`
	StripeCustomerID *string   `json:"-" db:"stripe_customer_id"`
	CreatedAt        time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time `json:"updatedAt" db:"updated_at"`
}

type UserSignup struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type UserLogin struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}
