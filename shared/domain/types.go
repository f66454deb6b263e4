package domain

type (
	Email    = string
	Password = string
	UserId   = string
)

// Token purposes. A token issued for one purpose is never accepted for another.
const (
	PurposeSession      = "session"
	PurposeConfirmEmail = "confirm-email"
)
