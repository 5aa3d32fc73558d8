// Package auth holds the identity and token collaborators the chat core
// reads from. Token issuance and refresh belong to the app's login flow;
// this package only reads what that flow persisted.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gopkg.in/yaml.v3"

	"github.com/pasugo/pasugo-chat-go/wire"
)

// Role is the participant side of a conversation.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleRider    Role = "rider"
)

// Counterpart returns the other side of the conversation.
func (r Role) Counterpart() Role {
	if r == RoleRider {
		return RoleCustomer
	}
	return RoleRider
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleCustomer || r == RoleRider }

var (
	ErrNoSession    = errors.New("auth: no session")
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Identity is the local user as persisted by the login flow.
type Identity struct {
	UserID   wire.ID `yaml:"id" json:"id"`
	Role     Role    `yaml:"role" json:"role"`
	FullName string  `yaml:"full_name" json:"full_name"`
}

// TokenProvider hands out the current access token. It is consulted on
// every REST call and every socket open, so rotated tokens take effect on
// the next reconnect.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// Static is a TokenProvider for a fixed token.
type Static string

// AccessToken returns the token or ErrNoSession when empty.
func (s Static) AccessToken(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoSession
	}
	return string(s), nil
}

// Session is the persisted login state.
type Session struct {
	AccessToken  string   `yaml:"access_token"`
	RefreshToken string   `yaml:"refresh_token,omitempty"`
	User         Identity `yaml:"user"`
}

// LoadSession reads a YAML session file.
func LoadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("read session: %w", err)
	}
	var s Session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", path, err)
	}
	if s.AccessToken == "" {
		return nil, ErrNoSession
	}
	if s.User.UserID == "" {
		// Older sessions only stored tokens; recover the identity from claims.
		if id, err := IdentityFromToken(s.AccessToken); err == nil {
			s.User = id
		}
	}
	return &s, nil
}

// Save writes the session back with owner-only permissions.
func (s *Session) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// SessionFile is a TokenProvider backed by a session file. The file is
// re-read on every call because the login flow rotates it underneath us.
type SessionFile struct {
	Path string
}

// AccessToken implements TokenProvider.
func (f SessionFile) AccessToken(context.Context) (string, error) {
	s, err := LoadSession(f.Path)
	if err != nil {
		return "", err
	}
	return s.AccessToken, nil
}

// Identity returns the identity stored in the session file.
func (f SessionFile) Identity() (Identity, error) {
	s, err := LoadSession(f.Path)
	if err != nil {
		return Identity{}, err
	}
	return s.User, nil
}

// IdentityFromToken extracts the identity claims from an access token.
// The signature is not verified; the backend does that on every request.
func IdentityFromToken(token string) (Identity, error) {
	claims, err := parseClaims(token)
	if err != nil {
		return Identity{}, err
	}

	var id Identity
	for _, key := range []string{"user_id", "uid", "sub"} {
		if v := claimString(claims[key]); v != "" {
			id.UserID = wire.ID(v)
			break
		}
	}
	if id.UserID == "" {
		return Identity{}, fmt.Errorf("%w: no subject claim", ErrInvalidToken)
	}
	id.Role = Role(strings.ToLower(claimString(claims["role"])))
	for _, key := range []string{"full_name", "name"} {
		if v := claimString(claims[key]); v != "" {
			id.FullName = v
			break
		}
	}
	return id, nil
}

// Expired reports whether the token carries an exp claim that is not after
// now. Tokens without exp never expire client-side.
func Expired(token string, now time.Time) bool {
	claims, err := parseClaims(token)
	if err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}

func parseClaims(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

func claimString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
