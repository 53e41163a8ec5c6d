package product

import "time"

type Product struct {
	ID          string    `json:"id" db:"product_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Size        string    `json:"size" db:"size"`
	Color       string    `json:"color" db:"color"`
	ImageURL    string    `json:"imageURL" db:"image_url"`
	Price       float64   `json:"price" db:"price"`
	Available   int       `json:"available" db:"available"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

type ProductNew struct {
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description"`
	Size        string  `json:"size" validate:"required,oneof=S M L"`
	Color       string  `json:"color" validate:"required,oneof=white beige blue green purple black"`
	ImageURL    string  `json:"imageURL" validate:"required,url"`
	Price       float64 `json:"price" validate:"required,gt=0"`
	Available   int     `json:"available" validate:"gte=0"`
}

type ProductUp struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Size        *string  `json:"size" validate:"omitempty,oneof=S M L"`
	Color       *string  `json:"color" validate:"omitempty,oneof=white beige blue green purple black"`
	ImageURL    *string  `json:"imageURL" validate:"omitempty,url"`
	Price       *float64 `json:"price" validate:"omitempty,gt=0"`
	Available   *int     `json:"available" validate:"omitempty,gte=0"`
}

// Filter narrows a catalog listing. Zero-valued fields are ignored.
type Filter struct {
	Size  []string  `json:"size" validate:"dive,oneof=S M L"`
	Color []string  `json:"color" validate:"dive,oneof=white beige blue green purple black"`
	Sort  string    `json:"sort" validate:"omitempty,oneof=none price-asc price-desc"`
	Price []float64 `json:"price" validate:"omitempty,len=2"`
}

const PageSize = 9
