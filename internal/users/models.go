package users

import "time"

type Role string

const (
	RoleBuyer  Role = "Buyer"
	RoleSeller Role = "Seller"
)

type User struct {
	ID           string    `json:"id"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Email        string    `json:"email"`
	Country      *string   `json:"country,omitempty"`
	Role         Role      `json:"role"`
	IsTemp       bool      `json:"isTemp"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TempInput is the guest-checkout placeholder request.
type TempInput struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
}

type RegisterInput struct {
	FirstName string  `json:"firstName" validate:"required"`
	LastName  string  `json:"lastName" validate:"required"`
	Email     string  `json:"email" validate:"required,email"`
	Password  string  `json:"password" validate:"required,min=8"`
	Country   *string `json:"country" validate:"omitempty,max=64"`
	Role      Role    `json:"role" validate:"required,oneof=Buyer Seller"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

type TokenResponse struct {
	AccessToken string `json:"accessToken"`
}
