package fakeaccountstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-server/accounts"
)

var _ accounts.Store = (*FakeAccountStore)(nil)

type FakeAccountStore struct {
	accounts    map[string]*accounts.Account
	emailIds    map[string]string // email to account id
	usernameIds map[string]string // username to account id
	lock        sync.RWMutex
}

func NewFakeAccountStore() *FakeAccountStore {
	return &FakeAccountStore{
		accounts:    make(map[string]*accounts.Account),
		emailIds:    make(map[string]string),
		usernameIds: make(map[string]string),
	}
}

// Upsert seeds the store. It is not part of accounts.Store because account
// writes belong to the external account service; tests and dev wiring use it.
func (as *FakeAccountStore) Upsert(account *accounts.Account) error {
	as.lock.Lock()
	defer as.lock.Unlock()

	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if err := account.Validate(); err != nil {
		return err
	}
	as.accounts[account.ID] = account
	if account.Email != "" {
		as.emailIds[account.Email] = account.ID
	}
	if account.Username != "" {
		as.usernameIds[account.Username] = account.ID
	}
	return nil
}

func (as *FakeAccountStore) Delete(id string) error {
	as.lock.Lock()
	defer as.lock.Unlock()

	account, ok := as.accounts[id]
	if !ok {
		return accounts.ErrNotFound
	}
	delete(as.emailIds, account.Email)
	delete(as.usernameIds, account.Username)
	delete(as.accounts, id)
	return nil
}

func (as *FakeAccountStore) FindByID(_ context.Context, id string) (*accounts.Account, error) {
	as.lock.RLock()
	defer as.lock.RUnlock()

	account, ok := as.accounts[id]
	if !ok {
		return nil, accounts.ErrNotFound
	}
	return account, nil
}

func (as *FakeAccountStore) FindByEmail(_ context.Context, email string) (*accounts.Account, error) {
	as.lock.RLock()
	defer as.lock.RUnlock()

	id, ok := as.emailIds[email]
	if !ok {
		return nil, accounts.ErrNotFound
	}
	return as.accounts[id], nil
}

func (as *FakeAccountStore) FindByUsername(_ context.Context, username string) (*accounts.Account, error) {
	as.lock.RLock()
	defer as.lock.RUnlock()

	id, ok := as.usernameIds[username]
	if !ok {
		return nil, accounts.ErrNotFound
	}
	return as.accounts[id], nil
}

func (as *FakeAccountStore) FindExistingIDs(_ context.Context, ids []string) ([]string, error) {
	as.lock.RLock()
	defer as.lock.RUnlock()

	existing := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := as.accounts[id]; ok {
			existing = append(existing, id)
		}
	}
	return existing, nil
}
