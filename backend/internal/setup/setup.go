package setup

import (
	"context"

	"github.com/itchan-dev/accounts/backend/internal/handler"
	"github.com/itchan-dev/accounts/backend/internal/service"
	"github.com/itchan-dev/accounts/backend/internal/storage/pg"
	"github.com/itchan-dev/accounts/backend/internal/utils"
	"github.com/itchan-dev/accounts/backend/internal/utils/email"
	"github.com/itchan-dev/accounts/shared/config"
	"github.com/itchan-dev/accounts/shared/jwt"
	"github.com/itchan-dev/accounts/shared/logger"
	mw "github.com/itchan-dev/accounts/shared/middleware"
)

// Dependencies struct to hold all initialized dependencies.
type Dependencies struct {
	Config         *config.Config
	Storage        *pg.Storage
	Handler        *handler.Handler
	AuthMiddleware *mw.Auth
	Jwt            jwt.JwtService
	TokenGC        *service.TokenGarbageCollector
	RateLimiters   *RateLimiters
}

// SetupDependencies connects to the database, applies migrations when enabled
// and wires the service graph.
func SetupDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	storage, err := pg.New(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Public.Migrate {
		if err := storage.Migrate(ctx); err != nil {
			storage.Cleanup()
			return nil, err
		}
	}

	jwtService := jwt.New(cfg.JwtKey(), cfg.Public.Jwt)

	accounts := service.NewAccount(
		storage,
		newEmailSender(&cfg.Private.Email),
		jwtService,
		utils.NewPasswordPolicy(cfg.Public.PasswordPolicy),
		utils.NewConfirmationMessage(cfg.Public.ApplicationName),
		&cfg.Public,
	)

	return &Dependencies{
		Config:         cfg,
		Storage:        storage,
		Handler:        handler.New(accounts, storage, cfg),
		AuthMiddleware: mw.NewAuth(jwtService),
		Jwt:            jwtService,
		TokenGC:        service.NewTokenGarbageCollector(storage),
		RateLimiters:   NewRateLimiters(cfg.Public.RateLimits, limiterExpiration),
	}, nil
}

func newEmailSender(cfg *config.Email) service.Email {
	if cfg.DryRun {
		logger.Log.Warn("email dry run enabled, confirmation emails are logged and not delivered")
		return email.NewLogSender()
	}
	return email.New(cfg)
}
