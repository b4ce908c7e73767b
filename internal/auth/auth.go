// Package auth builds the Authorization header sent with the websocket
// handshake.
package auth

import (
	"encoding/base64"
	"fmt"
	"net/http"
)

// Authorization types.
const (
	TypeBearer = "bearer"
	TypeBasic  = "basic"
	TypePlain  = "plain"
)

// Authorization describes the credential sent with the handshake.
//
// Bearer and Plain use Token. Basic uses Username and Password.
type Authorization struct {
	Type     string `yaml:"type"`
	Token    string `yaml:"token"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Bearer returns a bearer token authorization.
func Bearer(token string) *Authorization {
	return &Authorization{Type: TypeBearer, Token: token}
}

// Basic returns a username/password authorization.
func Basic(username, password string) *Authorization {
	return &Authorization{Type: TypeBasic, Username: username, Password: password}
}

// Plain returns a plain token authorization.
func Plain(token string) *Authorization {
	return &Authorization{Type: TypePlain, Token: token}
}

// HeaderValue returns the Authorization header value. A nil Authorization
// produces no header: ok is false and err is nil.
func (a *Authorization) HeaderValue() (value string, ok bool, err error) {
	if a == nil {
		return "", false, nil
	}

	switch a.Type {
	case TypeBearer:
		return "Bearer " + a.Token, true, nil
	case TypeBasic:
		return "Basic " + EncodeBasic(a.Username, a.Password), true, nil
	case TypePlain:
		return "Plain " + a.Token, true, nil
	default:
		return "", false, fmt.Errorf("unknown authorization type %q", a.Type)
	}
}

// Validate checks the descriptor has the fields its type needs.
func (a *Authorization) Validate() error {
	if a == nil {
		return nil
	}
	switch a.Type {
	case TypeBearer, TypePlain:
		if a.Token == "" {
			return fmt.Errorf("%s authorization requires a token", a.Type)
		}
	case TypeBasic:
		if a.Username == "" {
			return fmt.Errorf("basic authorization requires a username")
		}
	default:
		return fmt.Errorf("unknown authorization type %q", a.Type)
	}
	return nil
}

// Apply sets the Authorization header on h when a is non-nil.
func (a *Authorization) Apply(h http.Header) error {
	value, ok, err := a.HeaderValue()
	if err != nil {
		return err
	}
	if ok {
		h.Set("Authorization", value)
	}
	return nil
}

// EncodeBasic returns base64("username:password").
func EncodeBasic(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}
