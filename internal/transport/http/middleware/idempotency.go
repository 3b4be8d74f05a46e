package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour
	maxIdempotencyKey = 200
)

var ErrIdempotencyConflict = errors.New("idempotency key reused with a different request")

// IdempotencyStore remembers responses of replay-safe POST calls in Redis.
// A nil store or nil client disables replay.
type IdempotencyStore struct {
	Client *redis.Client
	TTL    time.Duration
}

type idempotencyRecord struct {
	RequestHash string          `json:"requestHash"`
	Status      int             `json:"status"`
	Response    json.RawMessage `json:"response"`
}

type StoredResponse struct {
	Status int
	Body   []byte
}

func NewIdempotencyStore(client *redis.Client) *IdempotencyStore {
	return &IdempotencyStore{Client: client, TTL: idempotencyTTL}
}

func (s *IdempotencyStore) Enabled() bool {
	return s != nil && s.Client != nil
}

// IdempotencyKey validates the header value. An empty header means the
// caller did not ask for replay.
func IdempotencyKey(raw string) (string, bool) {
	key := strings.TrimSpace(raw)
	if key == "" || len(key) > maxIdempotencyKey {
		return "", false
	}
	return key, true
}

func RequestHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func idempotencyRedisKey(tenantID, userID, endpoint, key string) string {
	return fmt.Sprintf("idem:%s:%s:%s:%s", tenantID, userID, endpoint, key)
}

// Check returns the stored response for key when the same request was seen
// before. A stored entry with a different request hash is a conflict.
func (s *IdempotencyStore) Check(ctx context.Context, tenantID, userID, endpoint, key, requestHash string) (*StoredResponse, error) {
	if !s.Enabled() {
		return nil, nil
	}
	raw, err := s.Client.Get(ctx, idempotencyRedisKey(tenantID, userID, endpoint, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var record idempotencyRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}
	if record.RequestHash != requestHash {
		return nil, ErrIdempotencyConflict
	}
	return &StoredResponse{Status: record.Status, Body: record.Response}, nil
}

// Save stores the response unless another request already claimed the key.
func (s *IdempotencyStore) Save(ctx context.Context, tenantID, userID, endpoint, key, requestHash string, status int, body []byte) error {
	if !s.Enabled() {
		return nil
	}
	payload, err := json.Marshal(idempotencyRecord{RequestHash: requestHash, Status: status, Response: body})
	if err != nil {
		return err
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = idempotencyTTL
	}
	return s.Client.SetNX(ctx, idempotencyRedisKey(tenantID, userID, endpoint, key), payload, ttl).Err()
}
