package domain

import "context"

// TokenSource yields the current access credential. Acquisition and refresh
// happen elsewhere; the realtime core only looks tokens up.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed-credential TokenSource, mostly for tests and the CLI.
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	if t == "" {
		return "", ErrNoCredentials
	}
	return string(t), nil
}
