package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/itchan-dev/accounts/backend/internal/utils"
	"github.com/itchan-dev/accounts/shared/config"
	"github.com/itchan-dev/accounts/shared/domain"
	internal_errors "github.com/itchan-dev/accounts/shared/errors"
	"github.com/itchan-dev/accounts/shared/logger"
)

type Accounts interface {
	Register(ctx context.Context, reg domain.Registration) (domain.RegistrationResult, error)
	Login(ctx context.Context, creds domain.Credentials) (domain.UserSession, error)
	RefreshSession(ctx context.Context, claims domain.SessionClaims) (domain.UserSession, error)
	ConfirmEmail(ctx context.Context, email domain.Email, token string) error
	ResendConfirmation(ctx context.Context, email domain.Email) error
}

// AccountStorage is the credential store. Hashing and persistence format are its business.
type AccountStorage interface {
	EmailExists(ctx context.Context, email domain.Email) (bool, error)
	UserByEmail(ctx context.Context, email domain.Email) (domain.User, error)
	UserById(ctx context.Context, id domain.UserId) (domain.User, error)
	CreateUser(ctx context.Context, user domain.NewUser) (domain.User, error)
	VerifyPassword(user domain.User, password domain.Password) bool
	GenerateConfirmationToken(ctx context.Context, user domain.User, ttl time.Duration) (string, error)
	ConsumeConfirmationToken(ctx context.Context, email domain.Email, token string) (domain.User, error)
	MarkEmailConfirmed(ctx context.Context, id domain.UserId) error
}

type Email interface {
	Send(recipientEmail, subject, body string) error
	IsCorrect(email domain.Email) error
}

// TokenCodec issues session tokens and wraps raw confirmation tokens for links.
type TokenCodec interface {
	NewSession(user domain.User) (string, error)
	EncodeConfirmation(raw string) string
	DecodeConfirmation(envelope string) (string, error)
}

type PasswordPolicy interface {
	Check(password domain.Password) error
}

type ConfirmationMessage interface {
	Subject() string
	Render(firstName, lastName, link string) (string, error)
}

type Account struct {
	storage AccountStorage
	email   Email
	jwt     TokenCodec
	policy  PasswordPolicy
	message ConfirmationMessage
	names   *utils.NameValidator
	cfg     *config.Public
}

func NewAccount(storage AccountStorage, email Email, jwt TokenCodec, policy PasswordPolicy, message ConfirmationMessage, cfg *config.Public) *Account {
	return &Account{
		storage: storage,
		email:   email,
		jwt:     jwt,
		policy:  policy,
		message: message,
		names:   &utils.NameValidator{},
		cfg:     cfg,
	}
}

// Register creates an account and, unless confirmation is disabled, emails a confirmation link.
// The account survives a failed send.
func (a *Account) Register(ctx context.Context, reg domain.Registration) (domain.RegistrationResult, error) {
	if err := a.names.Name("FirstName", reg.FirstName); err != nil {
		return domain.RegistrationResult{}, err
	}
	if err := a.names.Name("LastName", reg.LastName); err != nil {
		return domain.RegistrationResult{}, err
	}
	email := strings.ToLower(strings.TrimSpace(reg.Email))
	if email == "" {
		return domain.RegistrationResult{}, internal_errors.WithMessage(internal_errors.ErrValidation, "Email is required")
	}
	if reg.Password == "" {
		return domain.RegistrationResult{}, internal_errors.WithMessage(internal_errors.ErrValidation, "Password is required")
	}
	if err := a.email.IsCorrect(email); err != nil {
		return domain.RegistrationResult{}, err
	}
	if err := a.policy.Check(reg.Password); err != nil {
		registrations.WithLabelValues("invalid").Inc()
		return domain.RegistrationResult{}, err
	}

	exists, err := a.storage.EmailExists(ctx, email)
	if err != nil {
		return domain.RegistrationResult{}, err
	}
	if exists {
		registrations.WithLabelValues("duplicate").Inc()
		return domain.RegistrationResult{}, duplicateEmail(email)
	}

	user, err := a.storage.CreateUser(ctx, domain.NewUser{
		Email:          email,
		FirstName:      strings.ToLower(strings.TrimSpace(reg.FirstName)),
		LastName:       strings.ToLower(strings.TrimSpace(reg.LastName)),
		Password:       reg.Password,
		EmailConfirmed: !a.cfg.RequireEmailConfirmation,
	})
	if err != nil {
		if errors.Is(err, internal_errors.ErrDuplicateEmail) {
			// lost a race with a concurrent registration
			registrations.WithLabelValues("duplicate").Inc()
			return domain.RegistrationResult{}, duplicateEmail(email)
		}
		logger.Log.Error("failed to create user", "error", err)
		return domain.RegistrationResult{}, err
	}
	registrations.WithLabelValues("created").Inc()

	if !a.cfg.RequireEmailConfirmation {
		return domain.RegistrationResult{
			Status:  domain.AccountCreated,
			Title:   "Account Created",
			Message: "Your account has been created, you can login now",
		}, nil
	}

	if err := a.sendConfirmation(ctx, user); err != nil {
		return domain.RegistrationResult{}, err
	}

	return domain.RegistrationResult{
		Status:  domain.ConfirmationSent,
		Title:   "Account Created",
		Message: "Your account has been created, please confirm your email address",
	}, nil
}

// Login returns a session for a confirmed account. Unknown email and wrong
// password produce the same error. The password is checked before the
// confirmation state, so a wrong password on an unconfirmed account is
// InvalidCredentials and only the account owner learns it is unconfirmed.
// With confirmation disabled, an account left unconfirmed by an earlier
// configuration is confirmed on its first successful login.
func (a *Account) Login(ctx context.Context, creds domain.Credentials) (domain.UserSession, error) {
	email := strings.ToLower(strings.TrimSpace(creds.Email))
	if email == "" || creds.Password == "" {
		logins.WithLabelValues("invalid_credentials").Inc()
		return domain.UserSession{}, internal_errors.ErrInvalidCredentials
	}

	user, err := a.storage.UserByEmail(ctx, email)
	if err != nil {
		// to not leak existing users
		if internal_errors.IsNotFound(err) {
			logins.WithLabelValues("invalid_credentials").Inc()
			return domain.UserSession{}, internal_errors.ErrInvalidCredentials
		}
		return domain.UserSession{}, err
	}

	if !a.storage.VerifyPassword(user, creds.Password) {
		logger.Log.Info("password verification failed", "user_id", user.Id)
		logins.WithLabelValues("invalid_credentials").Inc()
		return domain.UserSession{}, internal_errors.ErrInvalidCredentials
	}

	if !user.EmailConfirmed && !a.cfg.RequireEmailConfirmation {
		if err := a.storage.MarkEmailConfirmed(ctx, user.Id); err != nil {
			logger.Log.Error("failed to confirm email on login", "user_id", user.Id, "error", err)
			return domain.UserSession{}, err
		}
		logger.Log.Info("email confirmed on login, confirmation is disabled", "user_id", user.Id)
		user.EmailConfirmed = true
	}

	if !user.EmailConfirmed {
		logins.WithLabelValues("email_not_confirmed").Inc()
		return domain.UserSession{}, internal_errors.ErrEmailNotConfirmed
	}

	session, err := a.newSession(user)
	if err != nil {
		return domain.UserSession{}, err
	}
	logins.WithLabelValues("success").Inc()
	return session, nil
}

// RefreshSession issues a new token for the subject of an already verified session.
// The previous token stays valid until it expires.
func (a *Account) RefreshSession(ctx context.Context, claims domain.SessionClaims) (domain.UserSession, error) {
	if claims.Subject == "" {
		return domain.UserSession{}, internal_errors.ErrMalformedToken
	}

	user, err := a.storage.UserById(ctx, claims.Subject)
	if err != nil {
		if internal_errors.IsNotFound(err) {
			return domain.UserSession{}, internal_errors.WithStatus(
				internal_errors.WithMessage(internal_errors.ErrNotFound, "User not found"), http.StatusUnauthorized)
		}
		return domain.UserSession{}, err
	}

	return a.newSession(user)
}

// ConfirmEmail consumes a confirmation token. Tokens are single-use, a replay fails.
func (a *Account) ConfirmEmail(ctx context.Context, email domain.Email, token string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || token == "" {
		return internal_errors.WithMessage(internal_errors.ErrValidation, "Email and token are required")
	}
	if err := a.email.IsCorrect(email); err != nil {
		return err
	}

	raw, err := a.jwt.DecodeConfirmation(token)
	if err != nil {
		return err
	}

	user, err := a.storage.ConsumeConfirmationToken(ctx, email, raw)
	if err != nil {
		if errors.Is(err, internal_errors.ErrInvalidOrExpiredToken) {
			confirmationResults.WithLabelValues("rejected").Inc()
		}
		return err
	}
	confirmationResults.WithLabelValues("confirmed").Inc()
	logger.Log.Info("email confirmed", "user_id", user.Id)
	return nil
}

// ResendConfirmation replaces the outstanding token of an unconfirmed account
// and emails it again. Unknown and already confirmed emails succeed silently.
func (a *Account) ResendConfirmation(ctx context.Context, email domain.Email) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := a.email.IsCorrect(email); err != nil {
		return err
	}

	user, err := a.storage.UserByEmail(ctx, email)
	if err != nil {
		if internal_errors.IsNotFound(err) {
			return nil
		}
		return err
	}
	if user.EmailConfirmed {
		return nil
	}
	return a.sendConfirmation(ctx, user)
}

func (a *Account) sendConfirmation(ctx context.Context, user domain.User) error {
	raw, err := a.storage.GenerateConfirmationToken(ctx, user, a.cfg.ConfirmationTokenTTL)
	if err != nil {
		logger.Log.Error("failed to generate confirmation token", "user_id", user.Id, "error", err)
		return err
	}

	link, err := utils.ConfirmationLink(a.cfg.ClientUrl, a.cfg.ConfirmEmailPath, a.jwt.EncodeConfirmation(raw), user.Email)
	if err != nil {
		return err
	}
	body, err := a.message.Render(user.FirstName, user.LastName, link)
	if err != nil {
		return err
	}

	if err := a.email.Send(user.Email, a.message.Subject(), body); err != nil {
		logger.Log.Error("failed to send confirmation email", "user_id", user.Id, "error", err)
		confirmationEmails.WithLabelValues("failed").Inc()
		return internal_errors.ErrEmailDeliveryFailed
	}
	confirmationEmails.WithLabelValues("sent").Inc()
	return nil
}

func (a *Account) newSession(user domain.User) (domain.UserSession, error) {
	token, err := a.jwt.NewSession(user)
	if err != nil {
		logger.Log.Error("failed to create jwt token", "user_id", user.Id, "error", err)
		return domain.UserSession{}, err
	}
	return domain.UserSession{
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Jwt:       token,
	}, nil
}

func duplicateEmail(email domain.Email) error {
	return internal_errors.WithMessage(internal_errors.ErrDuplicateEmail,
		fmt.Sprintf("An existing account is using %s, email address. Please try with another email address", email))
}
