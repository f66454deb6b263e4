package utils

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/itchan-dev/accounts/shared/config"
	"github.com/itchan-dev/accounts/shared/errors"
)

type PasswordPolicy struct {
	cfg config.PasswordPolicy
}

func NewPasswordPolicy(cfg config.PasswordPolicy) *PasswordPolicy {
	return &PasswordPolicy{cfg: cfg}
}

// Check reports every unmet rule at once.
func (p *PasswordPolicy) Check(password string) error {
	var hasDigit, hasLower, hasUpper, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	var problems []string
	if utf8.RuneCountInString(password) < p.cfg.MinLength {
		problems = append(problems, fmt.Sprintf("Passwords must be at least %d characters.", p.cfg.MinLength))
	}
	if p.cfg.RequireDigit && !hasDigit {
		problems = append(problems, "Passwords must have at least one digit ('0'-'9').")
	}
	if p.cfg.RequireLower && !hasLower {
		problems = append(problems, "Passwords must have at least one lowercase ('a'-'z').")
	}
	if p.cfg.RequireUpper && !hasUpper {
		problems = append(problems, "Passwords must have at least one uppercase ('A'-'Z').")
	}
	if p.cfg.RequireSpecial && !hasSpecial {
		problems = append(problems, "Passwords must have at least one non alphanumeric character.")
	}

	if len(problems) > 0 {
		return errors.WithMessage(errors.ErrInvalidCredentialPolicy, strings.Join(problems, " "))
	}
	return nil
}

// NameValidator checks first and last names.
type NameValidator struct{}

func (v *NameValidator) Name(field, name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.WithMessage(errors.ErrValidation, fmt.Sprintf("%s is required", field))
	}
	if utf8.RuneCountInString(name) > 100 {
		return errors.WithMessage(errors.ErrValidation, fmt.Sprintf("%s is too long", field))
	}
	return nil
}
