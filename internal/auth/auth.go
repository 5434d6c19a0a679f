// Package auth guards the bench agent's HTTP surface.
//
// Benches often sit on shared lab networks where anything that can
// reach the agent can reboot devices. A static token keeps casual
// traffic out; it is not a substitute for network isolation.
package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// Validator validates an API token presented by a caller.
type Validator interface {
	Validate(token string) error
}

// StaticToken accepts exactly one shared token, compared in constant
// time. An empty stored token denies everything.
type StaticToken struct {
	Token string
}

func (s StaticToken) Validate(token string) error {
	if s.Token == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(token string) error

func (f FuncValidator) Validate(token string) error {
	return f(token)
}

// ParseBearer extracts the token from an Authorization header value.
// A missing or differently schemed header yields the empty string,
// which no validator accepts.
func ParseBearer(header string) string {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
