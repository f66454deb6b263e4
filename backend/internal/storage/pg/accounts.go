package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/itchan-dev/accounts/backend/internal/utils"
	"github.com/itchan-dev/accounts/shared/domain"
	internal_errors "github.com/itchan-dev/accounts/shared/errors"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

// confirmation tokens carry 256 bits of randomness
const confirmationTokenBytes = 32

// =========================================================================
// Public Methods (satisfy the service.AccountStorage interface)
// =========================================================================

// EmailExists reports whether any account uses email, compared case-insensitively.
func (s *Storage) EmailExists(ctx context.Context, email domain.Email) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE lower(email) = lower($1))", email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return exists, nil
}

func (s *Storage) UserByEmail(ctx context.Context, email domain.Email) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return s.user(ctx, s.db, "lower(email) = lower($1)", email)
}

func (s *Storage) UserById(ctx context.Context, id domain.UserId) (domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.User{}, userNotFound()
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return s.user(ctx, s.db, "id = $1", id)
}

// CreateUser hashes the password and inserts the account. A unique violation
// on the email index, including one lost to a concurrent insert, is reported as DuplicateEmail.
func (s *Storage) CreateUser(ctx context.Context, newUser domain.NewUser) (domain.User, error) {
	passHash, err := bcrypt.GenerateFromPassword([]byte(newUser.Password), s.bcryptCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	user := domain.User{
		Id:             uuid.NewString(),
		Email:          newUser.Email,
		FirstName:      newUser.FirstName,
		LastName:       newUser.LastName,
		PassHash:       string(passHash),
		EmailConfirmed: newUser.EmailConfirmed,
	}
	err = s.db.QueryRowContext(ctx, `
        INSERT INTO users(id, email, first_name, last_name, password_hash, email_confirmed)
        VALUES($1, $2, $3, $4, $5, $6)
        RETURNING created_at`,
		user.Id, user.Email, user.FirstName, user.LastName, user.PassHash, user.EmailConfirmed,
	).Scan(&user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, internal_errors.WithMessage(internal_errors.ErrDuplicateEmail,
				fmt.Sprintf("An existing account is using %s, email address. Please try with another email address", newUser.Email))
		}
		return domain.User{}, fmt.Errorf("failed to insert user: %w", err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}

// VerifyPassword compares password with the stored bcrypt hash.
func (s *Storage) VerifyPassword(user domain.User, password domain.Password) bool {
	return bcrypt.CompareHashAndPassword([]byte(user.PassHash), []byte(password)) == nil
}

// GenerateConfirmationToken issues a fresh token for user, replacing any outstanding one.
// Only the SHA-256 digest is stored.
func (s *Storage) GenerateConfirmationToken(ctx context.Context, user domain.User, ttl time.Duration) (string, error) {
	token, err := utils.GenerateToken(confirmationTokenBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate confirmation token: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.deleteConfirmationTokens(ctx, tx, user.Id); err != nil {
			return err
		}
		return s.saveConfirmationToken(ctx, tx, domain.ConfirmationToken{
			UserId:    user.Id,
			Purpose:   domain.PurposeConfirmEmail,
			TokenHash: utils.HashToken(token),
			ExpiresAt: time.Now().UTC().Add(ttl),
		})
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// ConsumeConfirmationToken atomically checks token against the account
// owning email, deletes it and marks the email confirmed. Tokens are single-use.
func (s *Storage) ConsumeConfirmationToken(ctx context.Context, email domain.Email, token string) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var user domain.User
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var userId domain.UserId
		err := tx.QueryRowContext(ctx, `
            DELETE FROM confirmation_tokens t
            USING users u
            WHERE t.user_id = u.id
              AND lower(u.email) = lower($1)
              AND t.token_hash = $2
              AND t.purpose = $3
              AND t.expires_at > now()
            RETURNING u.id`,
			email, utils.HashToken(token), domain.PurposeConfirmEmail,
		).Scan(&userId)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return internal_errors.ErrInvalidOrExpiredToken
			}
			return fmt.Errorf("failed to consume confirmation token: %w", err)
		}
		if err := s.markEmailConfirmed(ctx, tx, userId); err != nil {
			return err
		}
		user, err = s.user(ctx, tx, "id = $1", userId)
		return err
	})
	return user, err
}

// MarkEmailConfirmed sets email_confirmed without a token.
func (s *Storage) MarkEmailConfirmed(ctx context.Context, id domain.UserId) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return s.markEmailConfirmed(ctx, s.db, id)
}

// DeleteExpiredConfirmationTokens removes tokens past their expiry and returns how many were removed.
func (s *Storage) DeleteExpiredConfirmationTokens(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := s.db.ExecContext(ctx, "DELETE FROM confirmation_tokens WHERE expires_at <= now()")
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired confirmation tokens: %w", err)
	}
	return result.RowsAffected()
}

// =========================================================================
// Internal Methods (Core Database Logic)
// These methods accept a Querier and are transaction-agnostic.
// =========================================================================

func (s *Storage) user(ctx context.Context, q Querier, where string, arg any) (domain.User, error) {
	var user domain.User
	err := q.QueryRowContext(ctx, `
        SELECT id, email, first_name, last_name, password_hash, email_confirmed, created_at
        FROM users WHERE `+where, arg,
	).Scan(&user.Id, &user.Email, &user.FirstName, &user.LastName, &user.PassHash, &user.EmailConfirmed, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, userNotFound()
		}
		return domain.User{}, fmt.Errorf("failed to query user: %w", err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}

func (s *Storage) markEmailConfirmed(ctx context.Context, q Querier, id domain.UserId) error {
	result, err := q.ExecContext(ctx, "UPDATE users SET email_confirmed = TRUE WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to confirm email: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows for email confirmation: %w", err)
	}
	if rowsAffected == 0 {
		return userNotFound()
	}
	return nil
}

func (s *Storage) saveConfirmationToken(ctx context.Context, q Querier, token domain.ConfirmationToken) error {
	_, err := q.ExecContext(ctx, `
        INSERT INTO confirmation_tokens(token_hash, user_id, purpose, expires_at)
        VALUES($1, $2, $3, $4)`,
		token.TokenHash, token.UserId, token.Purpose, token.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert confirmation token: %w", err)
	}
	return nil
}

func (s *Storage) deleteConfirmationTokens(ctx context.Context, q Querier, userId domain.UserId) error {
	_, err := q.ExecContext(ctx, "DELETE FROM confirmation_tokens WHERE user_id = $1 AND purpose = $2", userId, domain.PurposeConfirmEmail)
	if err != nil {
		return fmt.Errorf("failed to delete confirmation tokens: %w", err)
	}
	return nil
}

func userNotFound() error {
	return internal_errors.WithMessage(internal_errors.ErrNotFound, "User not found")
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation"
}

