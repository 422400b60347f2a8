package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Service is the login entry point: usernames are accepted on trust (per
// the system's non-goal of an authoritative user database), except for
// the configured admin username, which is gated by a bcrypt password.
type Service struct {
	authority *Authority
	adminUser string
	adminHash []byte
}

// NewService wires a login service over the given TokenAuthority and
// admin credentials.
func NewService(authority *Authority, adminUsername, adminPasswordHash string) *Service {
	return &Service{
		authority: authority,
		adminUser: adminUsername,
		adminHash: []byte(adminPasswordHash),
	}
}

// Login issues a token for username. If username matches the configured
// admin account, password must match via bcrypt and the issued token
// additionally carries the "admin" permission. Any other username is
// trusted without a password and receives only "user".
func (s *Service) Login(username, password string) (token string, claims *Claims, err error) {
	if username == "" {
		return "", nil, errors.New("username cannot be empty")
	}

	permissions := []string{UserPermission}

	if username == s.adminUser {
		if err := bcrypt.CompareHashAndPassword(s.adminHash, []byte(password)); err != nil {
			return "", nil, ErrInvalidCredentials
		}
		permissions = append(permissions, AdminPermission)
	}

	token, claims, err = s.authority.Issue(username, permissions)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}
