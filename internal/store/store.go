package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/medora-health/realtime/internal/domain"

	"github.com/cockroachdb/pebble"
)

// Store is the local key-value collaborator: access token lookup and the
// attachment cache live here. One Pebble database per client instance.
type Store struct {
	db *pebble.DB
}

const (
	tokenKey         = "auth:token"
	attachmentPrefix = "attachment:"
)

func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	slog.Debug("store: opened", "path", path)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Token() (string, error) {
	v, ok, err := s.get([]byte(tokenKey))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", domain.ErrTokenNotFound
	}
	return string(v), nil
}

func (s *Store) SetToken(token string) error {
	return s.db.Set([]byte(tokenKey), []byte(token), pebble.Sync)
}

func (s *Store) ClearToken() error {
	return s.db.Delete([]byte(tokenKey), pebble.Sync)
}

// Attachment returns cached attachment bytes for a confirmed message id.
func (s *Store) Attachment(messageID string) ([]byte, bool) {
	v, ok, err := s.get([]byte(attachmentPrefix + messageID))
	if err != nil {
		slog.Warn("store: attachment read failed", "id", messageID, "err", err)
		return nil, false
	}
	return v, ok
}

func (s *Store) PutAttachment(messageID string, data []byte) error {
	return s.db.Set([]byte(attachmentPrefix+messageID), data, pebble.NoSync)
}

func (s *Store) get(key []byte) ([]byte, bool, error) {
	v, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	out := make([]byte, len(v))
	copy(out, v)
	_ = closer.Close()
	return out, true, nil
}

// TokenSource adapts the store to the realtime client's credential lookup.
type TokenSource struct {
	Store *Store
}

func (t TokenSource) Token(ctx context.Context) (string, error) {
	return t.Store.Token()
}
