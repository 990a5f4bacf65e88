package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"

	"setback/internal/domain"
	"setback/internal/repo"
)

const apiKeyPrefix = "sb_"

// CreateAPIKey mints a key for a game host. The plaintext is returned once;
// only its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, name string) (domain.APIKey, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.APIKey{}, "", invalid("api key name required")
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", err
	}
	plain := apiKeyPrefix + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.New().String(),
		Name:      name,
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plain, nil
}
