// Package token resolves connection tokens. The auth service mints a token
// when a client asks to enter a zone and stores the mapping in the shared
// Redis under a short TTL; the zone server only ever reads it. Tokens are
// opaque here, never parsed.
package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "connection_token:"

// TTL matches the auth service's token lifetime.
const TTL = 5 * time.Minute

const defaultLookupTimeout = 2 * time.Second

// ErrNotFound means the token does not exist or has expired.
var ErrNotFound = errors.New("token not found")

// Identity is the authenticated principal a token maps to.
type Identity struct {
	UserID      uuid.UUID
	CharacterID uuid.UUID
}

func (id Identity) String() string {
	return id.UserID.String() + ":" + id.CharacterID.String()
}

// ParseIdentity parses the "user:character" mapping stored by the auth
// service.
func ParseIdentity(s string) (Identity, error) {
	userStr, charStr, ok := strings.Cut(s, ":")
	if !ok {
		return Identity{}, fmt.Errorf("malformed token mapping %q", s)
	}
	userID, err := uuid.Parse(userStr)
	if err != nil {
		return Identity{}, fmt.Errorf("parsing user id: %w", err)
	}
	charID, err := uuid.Parse(charStr)
	if err != nil {
		return Identity{}, fmt.Errorf("parsing character id: %w", err)
	}
	return Identity{UserID: userID, CharacterID: charID}, nil
}

// Validator resolves connection tokens to identities.
type Validator interface {
	Validate(ctx context.Context, tok string) (Identity, error)
}

// RedisValidator reads token mappings from the Redis the auth service writes.
// Each lookup is bounded by the configured timeout.
type RedisValidator struct {
	rdb     *redis.Client
	timeout time.Duration
}

func NewRedisValidator(rdb *redis.Client, timeout time.Duration) *RedisValidator {
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}
	return &RedisValidator{rdb: rdb, timeout: timeout}
}

func (v *RedisValidator) Validate(ctx context.Context, tok string) (Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	val, err := v.rdb.Get(ctx, keyPrefix+tok).Result()
	if errors.Is(err, redis.Nil) {
		return Identity{}, ErrNotFound
	}
	if err != nil {
		return Identity{}, fmt.Errorf("looking up token: %w", err)
	}
	id, err := ParseIdentity(val)
	if err != nil {
		return Identity{}, fmt.Errorf("decoding token mapping: %w", err)
	}
	return id, nil
}

// Issuer mints tokens into the shared Redis. Production mints happen in the
// auth service; this mirrors its contract for local development and tests.
type Issuer struct {
	rdb *redis.Client
}

func NewIssuer(rdb *redis.Client) *Issuer {
	return &Issuer{rdb: rdb}
}

func (i *Issuer) Issue(ctx context.Context, id Identity) (string, error) {
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	tok := base64.RawURLEncoding.EncodeToString(raw[:])
	if err := i.rdb.Set(ctx, keyPrefix+tok, id.String(), TTL).Err(); err != nil {
		return "", fmt.Errorf("storing token: %w", err)
	}
	return tok, nil
}
