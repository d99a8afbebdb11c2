package model

import "time"

// User is the profile the API returns on login. It is read-only on the client.
type User struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Role            string `json:"role"`
	IsEmailVerified bool   `json:"isEmailVerified"`
}

// Token is one issued credential.
type Token struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires,omitempty"`
}

// Tokens is the access/refresh pair issued on login.
type Tokens struct {
	Access  Token `json:"access"`
	Refresh Token `json:"refresh"`
}

// LoginResult is the body of a successful login.
type LoginResult struct {
	User   User   `json:"user"`
	Tokens Tokens `json:"tokens"`
}

// LoginForm holds the credentials typed into the login wizard.
type LoginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SignupForm holds the registration wizard input.
type SignupForm struct {
	Name            string `validate:"required,max=100"`
	Email           string `validate:"required,email"`
	Password        string `validate:"required,min=1"`
	ConfirmPassword string `validate:"required,eqfield=Password"`
}

// Registration is the body of a signup request.
type Registration struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Registration drops the confirmation field once the form is valid.
func (f SignupForm) Registration() Registration {
	return Registration{Name: f.Name, Email: f.Email, Password: f.Password}
}
