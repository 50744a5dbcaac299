package session

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/anatolykoptev/go-kit/env"
)

// Credentials is what a login produces.
type Credentials struct {
	Token    string
	Cookie   string
	Nickname string
}

// Authenticator obtains fresh credentials.
type Authenticator interface {
	Login(ctx context.Context) (Credentials, error)
}

// EnvAuthenticator reads a token and a cookie exported by an out-of-band
// login (e.g. a browser session copied into the environment).
type EnvAuthenticator struct {
	TokenVar    string
	CookieVar   string
	NicknameVar string
}

func (a EnvAuthenticator) Login(context.Context) (Credentials, error) {
	c := Credentials{
		Token:  strings.TrimSpace(env.Str(a.TokenVar, "")),
		Cookie: strings.TrimSpace(env.Str(a.CookieVar, "")),
	}
	if a.NicknameVar != "" {
		c.Nickname = env.Str(a.NicknameVar, "")
	}
	if c.Token == "" || c.Cookie == "" {
		return Credentials{}, fmt.Errorf("%s and %s must both be set", a.TokenVar, a.CookieVar)
	}
	return c, nil
}

// CookieAuthenticator reads a cookie header from the environment and
// requires it to carry RequiredKey, whose value becomes the token.
type CookieAuthenticator struct {
	CookieVar   string
	RequiredKey string
}

func (a CookieAuthenticator) Login(context.Context) (Credentials, error) {
	raw := strings.TrimSpace(env.Str(a.CookieVar, ""))
	if raw == "" {
		return Credentials{}, fmt.Errorf("%s is not set", a.CookieVar)
	}
	token, err := CookieValue(raw, a.RequiredKey)
	if err != nil {
		return Credentials{}, fmt.Errorf("%s: %w", a.CookieVar, err)
	}
	return Credentials{Token: token, Cookie: raw}, nil
}

// CookieValue returns the value of name in a Cookie header string.
func CookieValue(header, name string) (string, error) {
	cookies, err := http.ParseCookie(header)
	if err != nil {
		return "", fmt.Errorf("parse cookie: %w", err)
	}
	for _, c := range cookies {
		if c.Name == name && c.Value != "" {
			return c.Value, nil
		}
	}
	return "", fmt.Errorf("cookie %s missing", name)
}
