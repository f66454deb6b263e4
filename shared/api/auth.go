package api

// Request DTOs

type RegisterRequest struct {
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
}

// LoginRequest carries the email in userName, as the client app sends it.
type LoginRequest struct {
	UserName string `json:"userName" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type ConfirmEmailRequest struct {
	Token string `json:"token" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

type ResendConfirmationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// Response DTOs

type UserResponse struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Jwt       string `json:"jwt"`
}

type MessageResponse struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
