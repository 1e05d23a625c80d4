package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Roles carried in tokens.
const (
	RoleAdmin  = "Admin"
	RoleEditor = "Editor"
)

// Credential is one fixed login identity.
type Credential struct {
	Username string
	Password string
	Role     string
}

// DefaultCredentials returns the service's built-in login identities.
func DefaultCredentials() []Credential {
	return []Credential{
		{Username: "admin", Password: "password123", Role: RoleAdmin},
		{Username: "editor", Password: "password123", Role: RoleEditor},
	}
}

// CredentialStore verifies a username/password pair and returns the role bound to it.
type CredentialStore interface {
	Verify(username, password string) (role string, err error)
}

type storedCredential struct {
	hash []byte
	role string
}

// StaticCredentialStore is an immutable in-memory CredentialStore. Passwords are kept only
// as bcrypt hashes. Safe for concurrent use.
type StaticCredentialStore struct {
	byName    map[string]storedCredential
	dummyHash []byte
}

// NewStaticCredentialStore hashes creds with the given bcrypt cost. Duplicate usernames are rejected.
func NewStaticCredentialStore(creds []Credential, cost int) (*StaticCredentialStore, error) {
	s := &StaticCredentialStore{byName: make(map[string]storedCredential, len(creds))}
	for _, c := range creds {
		if c.Username == "" || c.Role == "" {
			return nil, fmt.Errorf("credential store: username and role are required")
		}
		if _, dup := s.byName[c.Username]; dup {
			return nil, fmt.Errorf("credential store: duplicate username %q", c.Username)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(c.Password), cost)
		if err != nil {
			return nil, fmt.Errorf("credential store: hash %q: %w", c.Username, err)
		}
		s.byName[c.Username] = storedCredential{hash: hash, role: c.Role}
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("unknown-user-placeholder"), cost)
	if err != nil {
		return nil, fmt.Errorf("credential store: dummy hash: %w", err)
	}
	s.dummyHash = dummy
	return s, nil
}

// Verify returns the role for username when password matches, else ErrInvalidCredentials.
// Unknown usernames still pay for one bcrypt comparison.
func (s *StaticCredentialStore) Verify(username, password string) (string, error) {
	c, ok := s.byName[username]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(c.hash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return c.role, nil
}
