package domain

import "time"

type Credentials struct {
	Email    Email
	Password Password
}

type Registration struct {
	FirstName string
	LastName  string
	Email     Email
	Password  Password
}

type RegistrationStatus int

const (
	// ConfirmationSent means the account awaits email confirmation.
	ConfirmationSent RegistrationStatus = iota
	// AccountCreated means the account was created already confirmed.
	AccountCreated
)

type RegistrationResult struct {
	Status  RegistrationStatus
	Title   string
	Message string
}

// ConfirmationToken is the stored form of a confirmation token, only the hash is kept.
type ConfirmationToken struct {
	UserId    UserId
	Purpose   string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// SessionClaims is what a verified session token asserts about its bearer.
type SessionClaims struct {
	Subject   UserId
	Email     Email
	Purpose   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
