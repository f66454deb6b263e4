package domain

import "time"

// User is an account as held by the credential store.
type User struct {
	Id             UserId    `json:"id"`
	Email          Email     `json:"email"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	PassHash       string    `json:"-"`
	EmailConfirmed bool      `json:"email_confirmed"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewUser carries the already normalized fields of an account about to be created.
// Password is raw, hashing belongs to the store.
type NewUser struct {
	Email          Email
	FirstName      string
	LastName       string
	Password       Password
	EmailConfirmed bool
}

// UserSession is returned by login and refresh.
type UserSession struct {
	FirstName string
	LastName  string
	Jwt       string
}
