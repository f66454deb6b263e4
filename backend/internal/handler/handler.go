package handler

import (
	"context"

	"github.com/itchan-dev/accounts/backend/internal/service"
	"github.com/itchan-dev/accounts/shared/config"
)

// HealthChecker reports whether the credential store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	accounts service.Accounts
	health   HealthChecker
	cfg      *config.Config
}

func New(accounts service.Accounts, health HealthChecker, cfg *config.Config) *Handler {
	return &Handler{accounts: accounts, health: health, cfg: cfg}
}
