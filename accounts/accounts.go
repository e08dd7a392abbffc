package accounts

import (
	"fmt"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// Kind discriminates how an account authenticates. Local accounts hold a
// password credential verified elsewhere; OAuth accounts delegate to an
// external identity provider.
type Kind string

const (
	KindLocal Kind = "local"
	KindOAuth Kind = "oauth"
)

// Valid reports whether k names a known account kind.
func (k Kind) Valid() bool {
	return k == KindLocal || k == KindOAuth
}

type Account struct {
	ID           string    `json:"id,omitempty"`           // Unique identifier for the account
	Email        string    `json:"email,omitempty"`        // Account email address
	Username     string    `json:"username,omitempty"`     // Unique username
	DisplayName  string    `json:"display_name,omitempty"` // Human-readable name shown in account pickers
	Kind         Kind      `json:"kind"`                   // local or oauth
	Provider     string    `json:"provider,omitempty"`     // Identity provider name, OAuth accounts only
	PasswordHash string    `json:"-"`                      // Hashed credential, local accounts only - never serialize
	CreatedAt    time.Time `json:"created_at,omitempty"`   // When the account was registered
	LastLogin    time.Time `json:"last_login,omitempty"`   // Last successful sign-in
	Disabled     bool      `json:"disabled,omitempty"`     // Disabled accounts cannot start new sessions
}

// NewLocalAccount builds a password-backed account. The hash is produced by
// the credential layer that owns password policy; this package only stores it.
func NewLocalAccount(id, email, username, passwordHash string) (*Account, error) {
	a := &Account{
		ID:           id,
		Email:        email,
		Username:     username,
		Kind:         KindLocal,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// NewOAuthAccount builds a provider-backed account. Provider tokens are never
// stored on the account record; they live inside signed credential envelopes.
func NewOAuthAccount(id, email, username, provider string) (*Account, error) {
	a := &Account{
		ID:        id,
		Email:     email,
		Username:  username,
		Kind:      KindOAuth,
		Provider:  provider,
		CreatedAt: time.Now(),
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate checks the cross-field invariants of the account record. An OAuth
// account must never carry a password credential, and a local account must
// never name a provider.
func (a *Account) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("account id is required")
	}
	if !a.Kind.Valid() {
		return fmt.Errorf("unknown account kind %q", a.Kind)
	}
	switch a.Kind {
	case KindOAuth:
		if a.PasswordHash != "" {
			return fmt.Errorf("oauth account must not carry a password")
		}
		if a.Provider == "" {
			return fmt.Errorf("oauth account requires a provider name")
		}
	case KindLocal:
		if a.Provider != "" {
			return fmt.Errorf("local account must not name a provider")
		}
	}
	return nil
}

// IsOAuth reports whether the account delegates authentication to a provider.
func (a *Account) IsOAuth() bool {
	return a.Kind == KindOAuth
}

// ValidatePasswordStrength checks if a password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)
	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		}
		if unicode.IsLower(char) {
			hasLower = true
		}
		if unicode.IsNumber(char) {
			hasNumber = true
		}
	}

	if !hasUpper || !hasLower {
		return fmt.Errorf("password must contain uppercase and lowercase letters")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}
	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
