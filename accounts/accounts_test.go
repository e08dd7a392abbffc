package accounts_test

import (
	"context"
	"testing"

	"github.com/jrsteele09/go-session-server/accounts"
	fakeaccountstore "github.com/jrsteele09/go-session-server/accounts/storefakes"
	"github.com/stretchr/testify/require"
)

// TestNewLocalAccount verifies construction of a password-backed account.
func TestNewLocalAccount(t *testing.T) {
	account, err := accounts.NewLocalAccount("acc-1", "john.doe@example.com", "johnd", "hashed-credential")
	require.NoError(t, err)
	require.Equal(t, accounts.KindLocal, account.Kind)
	require.Equal(t, "hashed-credential", account.PasswordHash)
	require.Empty(t, account.Provider)
	require.False(t, account.IsOAuth())
}

// TestNewOAuthAccount verifies construction of a provider-backed account.
func TestNewOAuthAccount(t *testing.T) {
	account, err := accounts.NewOAuthAccount("acc-2", "jane.doe@example.com", "janed", "google")
	require.NoError(t, err)
	require.Equal(t, accounts.KindOAuth, account.Kind)
	require.Equal(t, "google", account.Provider)
	require.Empty(t, account.PasswordHash)
	require.True(t, account.IsOAuth())
}

// TestAccountValidate_Invariants covers the cross-field rules that must fail
// at construction time.
func TestAccountValidate_Invariants(t *testing.T) {
	tests := []struct {
		name    string
		account accounts.Account
		wantErr string
	}{
		{
			name:    "missing id",
			account: accounts.Account{Kind: accounts.KindLocal},
			wantErr: "account id is required",
		},
		{
			name:    "unknown kind",
			account: accounts.Account{ID: "acc-1", Kind: "saml"},
			wantErr: "unknown account kind",
		},
		{
			name: "oauth account with a password",
			account: accounts.Account{
				ID:           "acc-1",
				Kind:         accounts.KindOAuth,
				Provider:     "google",
				PasswordHash: "hash",
			},
			wantErr: "oauth account must not carry a password",
		},
		{
			name:    "oauth account without a provider",
			account: accounts.Account{ID: "acc-1", Kind: accounts.KindOAuth},
			wantErr: "oauth account requires a provider name",
		},
		{
			name: "local account naming a provider",
			account: accounts.Account{
				ID:       "acc-1",
				Kind:     accounts.KindLocal,
				Provider: "google",
			},
			wantErr: "local account must not name a provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.account.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// TestFakeAccountStore_Lookups covers id/email/username resolution and the
// existence filter used by session reconciliation.
func TestFakeAccountStore_Lookups(t *testing.T) {
	store := newSeededStore(t)
	ctx := context.Background()

	byID, err := store.FindByID(ctx, "acc-1")
	require.NoError(t, err)
	require.Equal(t, "john.doe@example.com", byID.Email)

	byEmail, err := store.FindByEmail(ctx, "jane.doe@example.com")
	require.NoError(t, err)
	require.Equal(t, "acc-2", byEmail.ID)

	byUsername, err := store.FindByUsername(ctx, "johnd")
	require.NoError(t, err)
	require.Equal(t, "acc-1", byUsername.ID)

	_, err = store.FindByID(ctx, "acc-404")
	require.ErrorIs(t, err, accounts.ErrNotFound)

	existing, err := store.FindExistingIDs(ctx, []string{"acc-2", "acc-404", "acc-1"})
	require.NoError(t, err)
	require.Equal(t, []string{"acc-2", "acc-1"}, existing)
}

// TestPasswordHashing round-trips a password through bcrypt and rejects the
// wrong password against the same hash.
func TestPasswordHashing(t *testing.T) {
	hash, err := accounts.HashPassword("S3curePass!word")
	require.NoError(t, err)
	require.NotEqual(t, "S3curePass!word", hash)

	require.True(t, accounts.CheckPasswordHash("S3curePass!word", hash))
	require.False(t, accounts.CheckPasswordHash("wrong-password", hash))
	require.False(t, accounts.CheckPasswordHash("S3curePass!word", "not-a-bcrypt-hash"))
}

// TestValidatePasswordStrength covers each rejection rule and an accepted
// password.
func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  string
	}{
		{name: "too short", password: "Ab1", wantErr: "at least 8 characters"},
		{name: "no uppercase", password: "alllower1", wantErr: "uppercase and lowercase"},
		{name: "no lowercase", password: "ALLUPPER1", wantErr: "uppercase and lowercase"},
		{name: "no number", password: "NoNumbersHere", wantErr: "at least one number"},
		{name: "acceptable", password: "G00dPassword"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := accounts.ValidatePasswordStrength(tt.password)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func newSeededStore(t *testing.T) *fakeaccountstore.FakeAccountStore {
	t.Helper()

	store := fakeaccountstore.NewFakeAccountStore()

	local, err := accounts.NewLocalAccount("acc-1", "john.doe@example.com", "johnd", "hash-1")
	require.NoError(t, err)
	require.NoError(t, store.Upsert(local))

	oauth, err := accounts.NewOAuthAccount("acc-2", "jane.doe@example.com", "janed", "google")
	require.NoError(t, err)
	require.NoError(t, store.Upsert(oauth))

	return store
}
