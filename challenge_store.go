package twofa

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingRecordVersion1 = 1

// challengeScope separates enrollment challenges from login-time challenges
// in the key space; the two never satisfy each other.
type challengeScope string

const (
	scopeEnroll challengeScope = "enroll"
	scopeLogin  challengeScope = "login"
)

// pendingChallenge is the server-side correlation for a dispatched code: the
// candidate being enrolled (empty for login challenges), the hash of the
// expected code, the expiry instant, and the failed-attempt count.
type pendingChallenge struct {
	Candidate AccountConfig
	CodeHash  [32]byte
	ExpiresAt int64
	Attempts  uint16
}

// pendingChallengeStore keeps pending challenges in Redis, one record per
// (tenant, user, provider type, scope). Records are TTL-bound and consumed
// with a transactional delete so only one concurrent verifier can win.
type pendingChallengeStore struct {
	redis  *redis.Client
	prefix string
}

func newPendingChallengeStore(redisClient *redis.Client, prefix string) *pendingChallengeStore {
	return &pendingChallengeStore{redis: redisClient, prefix: prefix}
}

func (s *pendingChallengeStore) key(tenantID, userID string, providerType ProviderType, scope challengeScope) string {
	return s.prefix + ":chal:" + tenantID + ":" + userID + ":" + providerType.String() + ":" + string(scope)
}

func (s *pendingChallengeStore) Save(
	ctx context.Context,
	tenantID, userID string,
	providerType ProviderType,
	scope challengeScope,
	record *pendingChallenge,
	ttl time.Duration,
) error {
	encoded, err := encodePendingChallenge(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(tenantID, userID, providerType, scope), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Get loads the pending challenge, discarding and reporting it expired when
// now is past its deadline.
func (s *pendingChallengeStore) Get(
	ctx context.Context,
	tenantID, userID string,
	providerType ProviderType,
	scope challengeScope,
	now time.Time,
) (*pendingChallenge, error) {
	key := s.key(tenantID, userID, providerType, scope)
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoPendingChallenge
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	record, err := decodePendingChallenge(data)
	if err != nil {
		return nil, err
	}
	if now.Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, key).Result()
		return nil, ErrChallengeExpired
	}
	return record, nil
}

// Consume deletes the challenge and reports whether this caller removed it.
// A false return means another verifier already consumed it.
func (s *pendingChallengeStore) Consume(
	ctx context.Context,
	tenantID, userID string,
	providerType ProviderType,
	scope challengeScope,
) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(tenantID, userID, providerType, scope)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

// RecordFailure increments the attempt counter under an optimistic
// transaction and reports whether the budget is now exhausted. Exhausted or
// expired challenges are deleted in the same transaction.
func (s *pendingChallengeStore) RecordFailure(
	ctx context.Context,
	tenantID, userID string,
	providerType ProviderType,
	scope challengeScope,
	maxAttempts int,
	now time.Time,
) (bool, error) {
	const maxRetries = 4
	key := s.key(tenantID, userID, providerType, scope)

	for i := 0; i < maxRetries; i++ {
		var exceeded bool
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodePendingChallenge(data)
			if err != nil {
				return err
			}
			if now.Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrChallengeExpired
			}

			record.Attempts++
			if int(record.Attempts) >= maxAttempts {
				exceeded = true
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			ttl := time.Unix(record.ExpiresAt, 0).Sub(now)
			if ttl <= 0 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrChallengeExpired
			}

			updated, err := encodePendingChallenge(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return false, ErrNoPendingChallenge
			}
			if errors.Is(err, ErrChallengeExpired) {
				return false, err
			}
			return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return exceeded, nil
	}

	return false, ErrNoPendingChallenge
}

func encodePendingChallenge(record *pendingChallenge) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(pendingRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	buf.Write(record.CodeHash[:])

	candidate, err := json.Marshal(record.Candidate)
	if err != nil {
		return nil, err
	}
	if len(candidate) > 65535 {
		return nil, errors.New("pending challenge candidate too large")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(candidate))); err != nil {
		return nil, err
	}
	buf.Write(candidate)

	return buf.Bytes(), nil
}

func decodePendingChallenge(data []byte) (*pendingChallenge, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != pendingRecordVersion1 {
		return nil, fmt.Errorf("unknown pending challenge record version %d", version)
	}

	record := &pendingChallenge{}
	if err := binary.Read(r, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, record.CodeHash[:]); err != nil {
		return nil, err
	}

	var candidateLen uint16
	if err := binary.Read(r, binary.BigEndian, &candidateLen); err != nil {
		return nil, err
	}
	candidate := make([]byte, candidateLen)
	if _, err := io.ReadFull(r, candidate); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(candidate, &record.Candidate); err != nil {
		return nil, err
	}

	return record, nil
}
