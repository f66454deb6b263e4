package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/itchan-dev/accounts/shared/config"
	"github.com/itchan-dev/accounts/shared/domain"
	internal_errors "github.com/itchan-dev/accounts/shared/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type MockAccountStorage struct {
	emailExistsFunc               func(ctx context.Context, email domain.Email) (bool, error)
	userByEmailFunc               func(ctx context.Context, email domain.Email) (domain.User, error)
	userByIdFunc                  func(ctx context.Context, id domain.UserId) (domain.User, error)
	createUserFunc                func(ctx context.Context, user domain.NewUser) (domain.User, error)
	verifyPasswordFunc            func(user domain.User, password domain.Password) bool
	generateConfirmationTokenFunc func(ctx context.Context, user domain.User, ttl time.Duration) (string, error)
	consumeConfirmationTokenFunc  func(ctx context.Context, email domain.Email, token string) (domain.User, error)
	markEmailConfirmedFunc        func(ctx context.Context, id domain.UserId) error
}

func (m *MockAccountStorage) EmailExists(ctx context.Context, email domain.Email) (bool, error) {
	if m.emailExistsFunc != nil {
		return m.emailExistsFunc(ctx, email)
	}
	return false, nil
}

func (m *MockAccountStorage) UserByEmail(ctx context.Context, email domain.Email) (domain.User, error) {
	if m.userByEmailFunc != nil {
		return m.userByEmailFunc(ctx, email)
	}
	return domain.User{}, internal_errors.ErrNotFound
}

func (m *MockAccountStorage) UserById(ctx context.Context, id domain.UserId) (domain.User, error) {
	if m.userByIdFunc != nil {
		return m.userByIdFunc(ctx, id)
	}
	return domain.User{}, internal_errors.ErrNotFound
}

func (m *MockAccountStorage) CreateUser(ctx context.Context, user domain.NewUser) (domain.User, error) {
	if m.createUserFunc != nil {
		return m.createUserFunc(ctx, user)
	}
	return domain.User{Id: "user-1", Email: user.Email, FirstName: user.FirstName, LastName: user.LastName, EmailConfirmed: user.EmailConfirmed}, nil
}

func (m *MockAccountStorage) VerifyPassword(user domain.User, password domain.Password) bool {
	if m.verifyPasswordFunc != nil {
		return m.verifyPasswordFunc(user, password)
	}
	return true
}

func (m *MockAccountStorage) GenerateConfirmationToken(ctx context.Context, user domain.User, ttl time.Duration) (string, error) {
	if m.generateConfirmationTokenFunc != nil {
		return m.generateConfirmationTokenFunc(ctx, user, ttl)
	}
	return "raw-token", nil
}

func (m *MockAccountStorage) ConsumeConfirmationToken(ctx context.Context, email domain.Email, token string) (domain.User, error) {
	if m.consumeConfirmationTokenFunc != nil {
		return m.consumeConfirmationTokenFunc(ctx, email, token)
	}
	return domain.User{}, internal_errors.ErrInvalidOrExpiredToken
}

func (m *MockAccountStorage) MarkEmailConfirmed(ctx context.Context, id domain.UserId) error {
	if m.markEmailConfirmedFunc != nil {
		return m.markEmailConfirmedFunc(ctx, id)
	}
	return nil
}

type sentEmail struct {
	to, subject, body string
}

type MockEmail struct {
	mu            sync.Mutex
	sendFunc      func(recipientEmail, subject, body string) error
	isCorrectFunc func(email domain.Email) error
	sent          []sentEmail
}

func (m *MockEmail) Send(recipientEmail, subject, body string) error {
	m.mu.Lock()
	m.sent = append(m.sent, sentEmail{to: recipientEmail, subject: subject, body: body})
	m.mu.Unlock()
	if m.sendFunc != nil {
		return m.sendFunc(recipientEmail, subject, body)
	}
	return nil
}

func (m *MockEmail) IsCorrect(email domain.Email) error {
	if m.isCorrectFunc != nil {
		return m.isCorrectFunc(email)
	}
	if !strings.Contains(email, "@") {
		return internal_errors.ErrValidation
	}
	return nil
}

func (m *MockEmail) Sent() []sentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentEmail(nil), m.sent...)
}

// MockTokenCodec prefixes raw tokens with "env." and returns "jwt-<id>" sessions.
type MockTokenCodec struct {
	newSessionFunc func(user domain.User) (string, error)
}

func (m *MockTokenCodec) NewSession(user domain.User) (string, error) {
	if m.newSessionFunc != nil {
		return m.newSessionFunc(user)
	}
	return "jwt-" + user.Id, nil
}

func (m *MockTokenCodec) EncodeConfirmation(raw string) string {
	return "env." + raw
}

func (m *MockTokenCodec) DecodeConfirmation(envelope string) (string, error) {
	raw, ok := strings.CutPrefix(envelope, "env.")
	if !ok {
		return "", internal_errors.WithStatus(internal_errors.ErrMalformedToken, http.StatusBadRequest)
	}
	return raw, nil
}

type MockPasswordPolicy struct {
	checkFunc func(password domain.Password) error
}

func (m *MockPasswordPolicy) Check(password domain.Password) error {
	if m.checkFunc != nil {
		return m.checkFunc(password)
	}
	return nil
}

type MockConfirmationMessage struct{}

func (m *MockConfirmationMessage) Subject() string { return "Confirm your email" }

func (m *MockConfirmationMessage) Render(firstName, lastName, link string) (string, error) {
	return fmt.Sprintf("Hello: %s %s <a href=%q>Click here</a>", firstName, lastName, link), nil
}

// memStorage is an in-memory credential store for scenarios spanning several operations.
type memStorage struct {
	mu     sync.Mutex
	users  map[domain.Email]domain.User
	passes map[domain.UserId]string
	tokens map[domain.UserId]memToken
	seq    int
	now    func() time.Time
}

type memToken struct {
	raw       string
	expiresAt time.Time
}

func newMemStorage() *memStorage {
	return &memStorage{
		users:  map[domain.Email]domain.User{},
		passes: map[domain.UserId]string{},
		tokens: map[domain.UserId]memToken{},
		now:    time.Now,
	}
}

func (s *memStorage) EmailExists(ctx context.Context, email domain.Email) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[strings.ToLower(email)]
	return ok, nil
}

func (s *memStorage) UserByEmail(ctx context.Context, email domain.Email) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[strings.ToLower(email)]
	if !ok {
		return domain.User{}, internal_errors.ErrNotFound
	}
	return u, nil
}

func (s *memStorage) UserById(ctx context.Context, id domain.UserId) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Id == id {
			return u, nil
		}
	}
	return domain.User{}, internal_errors.ErrNotFound
}

func (s *memStorage) CreateUser(ctx context.Context, nu domain.NewUser) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(nu.Email)
	if _, ok := s.users[key]; ok {
		return domain.User{}, internal_errors.ErrDuplicateEmail
	}
	s.seq++
	u := domain.User{
		Id:             fmt.Sprintf("user-%d", s.seq),
		Email:          key,
		FirstName:      nu.FirstName,
		LastName:       nu.LastName,
		EmailConfirmed: nu.EmailConfirmed,
		CreatedAt:      s.now(),
	}
	s.users[key] = u
	s.passes[u.Id] = nu.Password
	return u, nil
}

func (s *memStorage) VerifyPassword(user domain.User, password domain.Password) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passes[user.Id] == password
}

func (s *memStorage) GenerateConfirmationToken(ctx context.Context, user domain.User, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	raw := fmt.Sprintf("tok%d", s.seq)
	s.tokens[user.Id] = memToken{raw: raw, expiresAt: s.now().Add(ttl)}
	return raw, nil
}

func (s *memStorage) ConsumeConfirmationToken(ctx context.Context, email domain.Email, token string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[strings.ToLower(email)]
	if !ok {
		return domain.User{}, internal_errors.ErrInvalidOrExpiredToken
	}
	t, ok := s.tokens[u.Id]
	if !ok || t.raw != token || !s.now().Before(t.expiresAt) {
		return domain.User{}, internal_errors.ErrInvalidOrExpiredToken
	}
	delete(s.tokens, u.Id)
	u.EmailConfirmed = true
	s.users[u.Email] = u
	return u, nil
}

func (s *memStorage) MarkEmailConfirmed(ctx context.Context, id domain.UserId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for email, u := range s.users {
		if u.Id == id {
			u.EmailConfirmed = true
			s.users[email] = u
			return nil
		}
	}
	return internal_errors.ErrNotFound
}

// --- Helpers ---

func testConfig() *config.Public {
	return &config.Public{
		ClientUrl:                "https://app.example.com",
		ConfirmEmailPath:         "account/confirm-email",
		ApplicationName:          "Accounts",
		RequireEmailConfirmation: true,
		ConfirmationTokenTTL:     24 * time.Hour,
	}
}

func newTestAccount(storage AccountStorage, email Email, cfg *config.Public) *Account {
	return NewAccount(storage, email, &MockTokenCodec{}, &MockPasswordPolicy{}, &MockConfirmationMessage{}, cfg)
}

func validRegistration() domain.Registration {
	return domain.Registration{FirstName: "Ada", LastName: "Lovelace", Email: "Ada@Example.com", Password: "Secret1"}
}

// linkFromBody extracts token and email query values from a rendered confirmation body.
func linkFromBody(t *testing.T, body string) (token, email string) {
	t.Helper()
	start := strings.Index(body, "https://")
	require.NotEqual(t, -1, start, "no link in body")
	end := strings.Index(body[start:], `"`)
	require.NotEqual(t, -1, end)
	u, err := url.Parse(body[start : start+end])
	require.NoError(t, err)
	return u.Query().Get("token"), u.Query().Get("email")
}

// --- Register ---

func TestRegister(t *testing.T) {
	t.Run("creates unconfirmed account and sends one email", func(t *testing.T) {
		var created domain.NewUser
		storage := &MockAccountStorage{
			createUserFunc: func(ctx context.Context, user domain.NewUser) (domain.User, error) {
				created = user
				return domain.User{Id: "u1", Email: user.Email, FirstName: user.FirstName, LastName: user.LastName}, nil
			},
		}
		mailer := &MockEmail{}
		a := newTestAccount(storage, mailer, testConfig())

		result, err := a.Register(context.Background(), validRegistration())
		require.NoError(t, err)

		assert.Equal(t, domain.ConfirmationSent, result.Status)
		assert.Equal(t, "Your account has been created, please confirm your email address", result.Message)
		assert.Equal(t, "ada@example.com", created.Email)
		assert.Equal(t, "ada", created.FirstName)
		assert.Equal(t, "lovelace", created.LastName)
		assert.False(t, created.EmailConfirmed)

		sent := mailer.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "ada@example.com", sent[0].to)
		assert.Equal(t, "Confirm your email", sent[0].subject)
		assert.Contains(t, sent[0].body, "https://app.example.com/account/confirm-email?")
		token, email := linkFromBody(t, sent[0].body)
		assert.Equal(t, "env.raw-token", token)
		assert.Equal(t, "ada@example.com", email)
	})

	t.Run("confirmation disabled creates confirmed account without email", func(t *testing.T) {
		var created domain.NewUser
		storage := &MockAccountStorage{
			createUserFunc: func(ctx context.Context, user domain.NewUser) (domain.User, error) {
				created = user
				return domain.User{Id: "u1", Email: user.Email, EmailConfirmed: user.EmailConfirmed}, nil
			},
			generateConfirmationTokenFunc: func(ctx context.Context, user domain.User, ttl time.Duration) (string, error) {
				t.Fatal("token must not be generated")
				return "", nil
			},
		}
		mailer := &MockEmail{}
		cfg := testConfig()
		cfg.RequireEmailConfirmation = false
		a := newTestAccount(storage, mailer, cfg)

		result, err := a.Register(context.Background(), validRegistration())
		require.NoError(t, err)
		assert.Equal(t, domain.AccountCreated, result.Status)
		assert.True(t, created.EmailConfirmed)
		assert.Empty(t, mailer.Sent())
	})

	t.Run("missing fields", func(t *testing.T) {
		cases := map[string]func(r *domain.Registration){
			"first name": func(r *domain.Registration) { r.FirstName = "  " },
			"last name":  func(r *domain.Registration) { r.LastName = "" },
			"email":      func(r *domain.Registration) { r.Email = "" },
			"password":   func(r *domain.Registration) { r.Password = "" },
		}
		for name, mutate := range cases {
			t.Run(name, func(t *testing.T) {
				storage := &MockAccountStorage{
					createUserFunc: func(ctx context.Context, user domain.NewUser) (domain.User, error) {
						t.Fatal("must not create user")
						return domain.User{}, nil
					},
				}
				a := newTestAccount(storage, &MockEmail{}, testConfig())
				reg := validRegistration()
				mutate(&reg)

				_, err := a.Register(context.Background(), reg)
				require.ErrorIs(t, err, internal_errors.ErrValidation)
				assert.Equal(t, http.StatusBadRequest, internal_errors.StatusCode(err))
			})
		}
	})

	t.Run("invalid email", func(t *testing.T) {
		a := newTestAccount(&MockAccountStorage{}, &MockEmail{}, testConfig())
		reg := validRegistration()
		reg.Email = "not-an-email"

		_, err := a.Register(context.Background(), reg)
		require.ErrorIs(t, err, internal_errors.ErrValidation)
	})

	t.Run("weak password", func(t *testing.T) {
		policyErr := internal_errors.WithMessage(internal_errors.ErrInvalidCredentialPolicy, "Passwords must have at least one digit ('0'-'9').")
		mailer := &MockEmail{}
		a := NewAccount(&MockAccountStorage{}, mailer, &MockTokenCodec{},
			&MockPasswordPolicy{checkFunc: func(password domain.Password) error { return policyErr }},
			&MockConfirmationMessage{}, testConfig())

		_, err := a.Register(context.Background(), validRegistration())
		require.ErrorIs(t, err, internal_errors.ErrInvalidCredentialPolicy)
		assert.Contains(t, err.Error(), "digit")
		assert.Empty(t, mailer.Sent())
	})

	t.Run("duplicate email names the address", func(t *testing.T) {
		storage := &MockAccountStorage{
			emailExistsFunc: func(ctx context.Context, email domain.Email) (bool, error) { return true, nil },
		}
		a := newTestAccount(storage, &MockEmail{}, testConfig())

		_, err := a.Register(context.Background(), validRegistration())
		require.ErrorIs(t, err, internal_errors.ErrDuplicateEmail)
		assert.Contains(t, err.Error(), "ada@example.com")
		assert.Equal(t, http.StatusBadRequest, internal_errors.StatusCode(err))
	})

	t.Run("duplicate detected by store", func(t *testing.T) {
		storage := &MockAccountStorage{
			createUserFunc: func(ctx context.Context, user domain.NewUser) (domain.User, error) {
				return domain.User{}, internal_errors.ErrDuplicateEmail
			},
		}
		a := newTestAccount(storage, &MockEmail{}, testConfig())

		_, err := a.Register(context.Background(), validRegistration())
		require.ErrorIs(t, err, internal_errors.ErrDuplicateEmail)
		assert.Contains(t, err.Error(), "ada@example.com")
	})

	t.Run("send failure keeps the account", func(t *testing.T) {
		createCalls := 0
		storage := &MockAccountStorage{
			createUserFunc: func(ctx context.Context, user domain.NewUser) (domain.User, error) {
				createCalls++
				return domain.User{Id: "u1", Email: user.Email}, nil
			},
		}
		mailer := &MockEmail{sendFunc: func(recipientEmail, subject, body string) error {
			return errors.New("smtp down")
		}}
		a := newTestAccount(storage, mailer, testConfig())

		_, err := a.Register(context.Background(), validRegistration())
		require.ErrorIs(t, err, internal_errors.ErrEmailDeliveryFailed)
		assert.Equal(t, "Failed to send email. Please contact admin", err.Error())
		assert.Equal(t, 1, createCalls)
	})

	t.Run("storage error", func(t *testing.T) {
		storageErr := errors.New("db down")
		storage := &MockAccountStorage{
			emailExistsFunc: func(ctx context.Context, email domain.Email) (bool, error) { return false, storageErr },
		}
		a := newTestAccount(storage, &MockEmail{}, testConfig())

		_, err := a.Register(context.Background(), validRegistration())
		require.ErrorIs(t, err, storageErr)
	})

	t.Run("token generation error", func(t *testing.T) {
		storageErr := errors.New("db down")
		storage := &MockAccountStorage{
			generateConfirmationTokenFunc: func(ctx context.Context, user domain.User, ttl time.Duration) (string, error) {
				return "", storageErr
			},
		}
		mailer := &MockEmail{}
		a := newTestAccount(storage, mailer, testConfig())

		_, err := a.Register(context.Background(), validRegistration())
		require.ErrorIs(t, err, storageErr)
		assert.Empty(t, mailer.Sent())
	})
}

// --- Login ---

func TestLogin(t *testing.T) {
	confirmed := domain.User{Id: "u1", Email: "ada@example.com", FirstName: "ada", LastName: "lovelace", EmailConfirmed: true}

	t.Run("success", func(t *testing.T) {
		var lookedUp string
		storage := &MockAccountStorage{
			userByEmailFunc: func(ctx context.Context, email domain.Email) (domain.User, error) {
				lookedUp = email
				return confirmed, nil
			},
		}
		a := newTestAccount(storage, &MockEmail{}, testConfig())

		session, err := a.Login(context.Background(), domain.Credentials{Email: " ADA@example.com ", Password: "Secret1"})
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", lookedUp)
		assert.Equal(t, domain.UserSession{FirstName: "ada", LastName: "lovelace", Jwt: "jwt-u1"}, session)
	})

	t.Run("unknown email and wrong password are indistinguishable", func(t *testing.T) {
		unknown := newTestAccount(&MockAccountStorage{}, &MockEmail{}, testConfig())
		_, errUnknown := unknown.Login(context.Background(), domain.Credentials{Email: "nobody@example.com", Password: "Secret1"})

		wrong := newTestAccount(&MockAccountStorage{
			userByEmailFunc:    func(ctx context.Context, email domain.Email) (domain.User, error) { return confirmed, nil },
			verifyPasswordFunc: func(user domain.User, password domain.Password) bool { return false },
		}, &MockEmail{}, testConfig())
		_, errWrong := wrong.Login(context.Background(), domain.Credentials{Email: "ada@example.com", Password: "nope"})

		require.ErrorIs(t, errUnknown, internal_errors.ErrInvalidCredentials)
		require.ErrorIs(t, errWrong, internal_errors.ErrInvalidCredentials)
		assert.Equal(t, errUnknown.Error(), errWrong.Error())
		assert.Equal(t, "Invalid username or password", errWrong.Error())
		assert.Equal(t, http.StatusUnauthorized, internal_errors.StatusCode(errWrong))
	})

	t.Run("unconfirmed with correct password", func(t *testing.T) {
		unconfirmed := confirmed
		unconfirmed.EmailConfirmed = false
		codec := &MockTokenCodec{newSessionFunc: func(user domain.User) (string, error) {
			t.Fatal("no session for unconfirmed account")
			return "", nil
		}}
		a := NewAccount(&MockAccountStorage{
			userByEmailFunc: func(ctx context.Context, email domain.Email) (domain.User, error) { return unconfirmed, nil },
		}, &MockEmail{}, codec, &MockPasswordPolicy{}, &MockConfirmationMessage{}, testConfig())

		_, err := a.Login(context.Background(), domain.Credentials{Email: "ada@example.com", Password: "Secret1"})
		require.ErrorIs(t, err, internal_errors.ErrEmailNotConfirmed)
		assert.Equal(t, "Please confirm your email.", err.Error())
	})

	t.Run("unconfirmed with wrong password is generic", func(t *testing.T) {
		unconfirmed := confirmed
		unconfirmed.EmailConfirmed = false
		a := newTestAccount(&MockAccountStorage{
			userByEmailFunc:    func(ctx context.Context, email domain.Email) (domain.User, error) { return unconfirmed, nil },
			verifyPasswordFunc: func(user domain.User, password domain.Password) bool { return false },
		}, &MockEmail{}, testConfig())

		_, err := a.Login(context.Background(), domain.Credentials{Email: "ada@example.com", Password: "nope"})
		require.ErrorIs(t, err, internal_errors.ErrInvalidCredentials)
		assert.Equal(t, "Invalid username or password", err.Error())
	})

	t.Run("unconfirmed account is confirmed when confirmation is disabled", func(t *testing.T) {
		unconfirmed := confirmed
		unconfirmed.EmailConfirmed = false
		var marked []domain.UserId
		cfg := testConfig()
		cfg.RequireEmailConfirmation = false
		a := newTestAccount(&MockAccountStorage{
			userByEmailFunc: func(ctx context.Context, email domain.Email) (domain.User, error) { return unconfirmed, nil },
			markEmailConfirmedFunc: func(ctx context.Context, id domain.UserId) error {
				marked = append(marked, id)
				return nil
			},
		}, &MockEmail{}, cfg)

		session, err := a.Login(context.Background(), domain.Credentials{Email: "ada@example.com", Password: "Secret1"})
		require.NoError(t, err)
		assert.Equal(t, "jwt-u1", session.Jwt)
		assert.Equal(t, []domain.UserId{"u1"}, marked)
	})

	t.Run("confirmation disabled does not bypass the password", func(t *testing.T) {
		unconfirmed := confirmed
		unconfirmed.EmailConfirmed = false
		cfg := testConfig()
		cfg.RequireEmailConfirmation = false
		a := newTestAccount(&MockAccountStorage{
			userByEmailFunc:    func(ctx context.Context, email domain.Email) (domain.User, error) { return unconfirmed, nil },
			verifyPasswordFunc: func(user domain.User, password domain.Password) bool { return false },
			markEmailConfirmedFunc: func(ctx context.Context, id domain.UserId) error {
				t.Fatal("must not confirm without a valid password")
				return nil
			},
		}, &MockEmail{}, cfg)

		_, err := a.Login(context.Background(), domain.Credentials{Email: "ada@example.com", Password: "nope"})
		require.ErrorIs(t, err, internal_errors.ErrInvalidCredentials)
	})

	t.Run("confirmed account is not marked again", func(t *testing.T) {
		cfg := testConfig()
		cfg.RequireEmailConfirmation = false
		a := newTestAccount(&MockAccountStorage{
			userByEmailFunc: func(ctx context.Context, email domain.Email) (domain.User, error) { return confirmed, nil },
			markEmailConfirmedFunc: func(ctx context.Context, id domain.UserId) error {
				t.Fatal("already confirmed")
				return nil
			},
		}, &MockEmail{}, cfg)

		_, err := a.Login(context.Background(), domain.Credentials{Email: "ada@example.com", Password: "Secret1"})
		require.NoError(t, err)
	})

	t.Run("empty credentials", func(t *testing.T) {
		a := newTestAccount(&MockAccountStorage{}, &MockEmail{}, testConfig())
		_, err := a.Login(context.Background(), domain.Credentials{})
		require.ErrorIs(t, err, internal_errors.ErrInvalidCredentials)
	})

	t.Run("storage error is not masked", func(t *testing.T) {
		storageErr := errors.New("db down")
		a := newTestAccount(&MockAccountStorage{
			userByEmailFunc: func(ctx context.Context, email domain.Email) (domain.User, error) { return domain.User{}, storageErr },
		}, &MockEmail{}, testConfig())

		_, err := a.Login(context.Background(), domain.Credentials{Email: "ada@example.com", Password: "Secret1"})
		require.ErrorIs(t, err, storageErr)
	})
}

// --- RefreshSession ---

func TestRefreshSession(t *testing.T) {
	t.Run("issues token for subject", func(t *testing.T) {
		a := newTestAccount(&MockAccountStorage{
			userByIdFunc: func(ctx context.Context, id domain.UserId) (domain.User, error) {
				return domain.User{Id: id, FirstName: "ada", LastName: "lovelace"}, nil
			},
		}, &MockEmail{}, testConfig())

		session, err := a.RefreshSession(context.Background(), domain.SessionClaims{Subject: "u1", Email: "ada@example.com"})
		require.NoError(t, err)
		assert.Equal(t, "jwt-u1", session.Jwt)
		assert.Equal(t, "ada", session.FirstName)
	})

	t.Run("vanished account", func(t *testing.T) {
		a := newTestAccount(&MockAccountStorage{}, &MockEmail{}, testConfig())

		_, err := a.RefreshSession(context.Background(), domain.SessionClaims{Subject: "gone"})
		require.ErrorIs(t, err, internal_errors.ErrNotFound)
		assert.Equal(t, http.StatusUnauthorized, internal_errors.StatusCode(err))
	})

	t.Run("empty subject", func(t *testing.T) {
		a := newTestAccount(&MockAccountStorage{}, &MockEmail{}, testConfig())

		_, err := a.RefreshSession(context.Background(), domain.SessionClaims{})
		require.ErrorIs(t, err, internal_errors.ErrMalformedToken)
	})
}

// --- ConfirmEmail ---

func TestConfirmEmail(t *testing.T) {
	t.Run("passes decoded token to store", func(t *testing.T) {
		var gotEmail, gotToken string
		a := newTestAccount(&MockAccountStorage{
			consumeConfirmationTokenFunc: func(ctx context.Context, email domain.Email, token string) (domain.User, error) {
				gotEmail, gotToken = email, token
				return domain.User{Id: "u1", EmailConfirmed: true}, nil
			},
		}, &MockEmail{}, testConfig())

		require.NoError(t, a.ConfirmEmail(context.Background(), "Ada@Example.com", "env.abc"))
		assert.Equal(t, "ada@example.com", gotEmail)
		assert.Equal(t, "abc", gotToken)
	})

	t.Run("malformed envelope", func(t *testing.T) {
		a := newTestAccount(&MockAccountStorage{}, &MockEmail{}, testConfig())

		err := a.ConfirmEmail(context.Background(), "ada@example.com", "garbage")
		require.ErrorIs(t, err, internal_errors.ErrMalformedToken)
		assert.Equal(t, http.StatusBadRequest, internal_errors.StatusCode(err))
	})

	t.Run("missing input", func(t *testing.T) {
		a := newTestAccount(&MockAccountStorage{}, &MockEmail{}, testConfig())

		require.ErrorIs(t, a.ConfirmEmail(context.Background(), "", "env.abc"), internal_errors.ErrValidation)
		require.ErrorIs(t, a.ConfirmEmail(context.Background(), "ada@example.com", ""), internal_errors.ErrValidation)
	})

	t.Run("unknown token", func(t *testing.T) {
		a := newTestAccount(&MockAccountStorage{}, &MockEmail{}, testConfig())

		err := a.ConfirmEmail(context.Background(), "ada@example.com", "env.abc")
		require.ErrorIs(t, err, internal_errors.ErrInvalidOrExpiredToken)
		assert.Equal(t, "Invalid token. Please try again", err.Error())
	})
}

// --- ResendConfirmation ---

func TestResendConfirmation(t *testing.T) {
	t.Run("unknown email is silent", func(t *testing.T) {
		mailer := &MockEmail{}
		a := newTestAccount(&MockAccountStorage{}, mailer, testConfig())

		require.NoError(t, a.ResendConfirmation(context.Background(), "nobody@example.com"))
		assert.Empty(t, mailer.Sent())
	})

	t.Run("confirmed account is silent", func(t *testing.T) {
		mailer := &MockEmail{}
		a := newTestAccount(&MockAccountStorage{
			userByEmailFunc: func(ctx context.Context, email domain.Email) (domain.User, error) {
				return domain.User{Id: "u1", Email: email, EmailConfirmed: true}, nil
			},
		}, mailer, testConfig())

		require.NoError(t, a.ResendConfirmation(context.Background(), "ada@example.com"))
		assert.Empty(t, mailer.Sent())
	})

	t.Run("unconfirmed account gets a new link", func(t *testing.T) {
		mailer := &MockEmail{}
		a := newTestAccount(&MockAccountStorage{
			userByEmailFunc: func(ctx context.Context, email domain.Email) (domain.User, error) {
				return domain.User{Id: "u1", Email: email}, nil
			},
		}, mailer, testConfig())

		require.NoError(t, a.ResendConfirmation(context.Background(), "ada@example.com"))
		require.Len(t, mailer.Sent(), 1)
	})

	t.Run("invalid email", func(t *testing.T) {
		a := newTestAccount(&MockAccountStorage{}, &MockEmail{}, testConfig())
		require.ErrorIs(t, a.ResendConfirmation(context.Background(), "nope"), internal_errors.ErrValidation)
	})
}

// --- Scenarios over an in-memory store ---

func TestAccountLifecycle(t *testing.T) {
	storage := newMemStorage()
	mailer := &MockEmail{}
	a := newTestAccount(storage, mailer, testConfig())
	ctx := context.Background()

	_, err := a.Register(ctx, validRegistration())
	require.NoError(t, err)

	_, err = a.Login(ctx, domain.Credentials{Email: "ada@example.com", Password: "Secret1"})
	require.ErrorIs(t, err, internal_errors.ErrEmailNotConfirmed)

	sent := mailer.Sent()
	require.Len(t, sent, 1)
	token, email := linkFromBody(t, sent[0].body)

	require.NoError(t, a.ConfirmEmail(ctx, email, token))

	session, err := a.Login(ctx, domain.Credentials{Email: "ADA@example.com", Password: "Secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, session.Jwt)

	// tokens are single-use
	err = a.ConfirmEmail(ctx, email, token)
	require.ErrorIs(t, err, internal_errors.ErrInvalidOrExpiredToken)
}

func TestRegister_DuplicateIgnoresCase(t *testing.T) {
	storage := newMemStorage()
	mailer := &MockEmail{}
	a := newTestAccount(storage, mailer, testConfig())
	ctx := context.Background()

	_, err := a.Register(ctx, validRegistration())
	require.NoError(t, err)

	reg := validRegistration()
	reg.Email = "ADA@EXAMPLE.COM"
	_, err = a.Register(ctx, reg)
	require.ErrorIs(t, err, internal_errors.ErrDuplicateEmail)
	assert.Len(t, mailer.Sent(), 1)
}

func TestConfirmEmail_ExpiredToken(t *testing.T) {
	storage := newMemStorage()
	mailer := &MockEmail{}
	a := newTestAccount(storage, mailer, testConfig())
	ctx := context.Background()

	_, err := a.Register(ctx, validRegistration())
	require.NoError(t, err)
	token, email := linkFromBody(t, mailer.Sent()[0].body)

	storage.now = func() time.Time { return time.Now().Add(25 * time.Hour) }

	err = a.ConfirmEmail(ctx, email, token)
	require.ErrorIs(t, err, internal_errors.ErrInvalidOrExpiredToken)
}

func TestResendConfirmation_ReplacesToken(t *testing.T) {
	storage := newMemStorage()
	mailer := &MockEmail{}
	a := newTestAccount(storage, mailer, testConfig())
	ctx := context.Background()

	_, err := a.Register(ctx, validRegistration())
	require.NoError(t, err)
	require.NoError(t, a.ResendConfirmation(ctx, "ada@example.com"))

	sent := mailer.Sent()
	require.Len(t, sent, 2)
	oldToken, email := linkFromBody(t, sent[0].body)
	newToken, _ := linkFromBody(t, sent[1].body)
	require.NotEqual(t, oldToken, newToken)

	require.ErrorIs(t, a.ConfirmEmail(ctx, email, oldToken), internal_errors.ErrInvalidOrExpiredToken)
	require.NoError(t, a.ConfirmEmail(ctx, email, newToken))
}

func TestRegister_ConcurrentSameEmail(t *testing.T) {
	storage := newMemStorage()
	mailer := &MockEmail{}
	a := newTestAccount(storage, mailer, testConfig())

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reg := validRegistration()
			if i%2 == 0 {
				reg.Email = strings.ToUpper(reg.Email)
			}
			_, errs[i] = a.Register(context.Background(), reg)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, internal_errors.ErrDuplicateEmail)
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, mailer.Sent(), 1)
}
