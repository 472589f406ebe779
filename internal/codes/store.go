// Package codes stores single-use challenge codes (password reset,
// email verification) in Redis, keyed per user and purpose so that
// re-requesting a code atomically supersedes the previous one.
package codes

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const recordVersionV1 = 1

// Purpose namespaces code records so a verification token can never be
// replayed as a reset code.
type Purpose string

const (
	PurposePasswordReset     Purpose = "pr"
	PurposeEmailVerification Purpose = "ev"
)

var (
	ErrCodeNotFound         = errors.New("code not found")
	ErrCodeMismatch         = errors.New("code mismatch")
	ErrCodeAttemptsExceeded = errors.New("code attempts exceeded")
	ErrCodesUnavailable     = errors.New("codes redis unavailable")
)

// Record holds one outstanding code. Only the SHA-256 of the code is kept;
// the plaintext exists nowhere at rest.
type Record struct {
	CodeHash  [32]byte
	ExpiresAt int64
	Attempts  uint16
}

type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "ak"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
		now:    time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) key(purpose Purpose, userID string) string {
	return s.prefix + ":" + string(purpose) + ":" + userID
}

// Issue writes a new code record for the user. A plain SET means any
// previously issued code for the same user and purpose is superseded.
func (s *Store) Issue(ctx context.Context, purpose Purpose, userID string, record *Record, ttl time.Duration) error {
	encoded, err := encodeRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(purpose, userID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCodesUnavailable, err)
	}

	return nil
}

// Consume verifies the provided hash against the stored record and deletes
// it on success, under WATCH so that two concurrent confirmations cannot
// both succeed. A wrong code increments the attempt counter in place and
// deletes the record once maxAttempts have been burned.
func (s *Store) Consume(ctx context.Context, purpose Purpose, userID string, providedHash [32]byte, maxAttempts int) error {
	const maxRetries = 4
	key := s.key(purpose, userID)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeRecord(data)
			if err != nil {
				return err
			}

			if s.now().Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrCodeNotFound
			}

			if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) != 1 {
				record.Attempts++
				if int(record.Attempts) >= maxAttempts {
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					})
					if err != nil {
						return err
					}
					return ErrCodeAttemptsExceeded
				}

				ttl := time.Unix(record.ExpiresAt, 0).Sub(s.now())
				if ttl <= 0 {
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					})
					if err != nil {
						return err
					}
					return ErrCodeNotFound
				}

				updated, err := encodeRecord(record)
				if err != nil {
					return err
				}

				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrCodeMismatch
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return ErrCodeNotFound
			case errors.Is(err, ErrCodeNotFound), errors.Is(err, ErrCodeMismatch), errors.Is(err, ErrCodeAttemptsExceeded):
				return err
			default:
				return fmt.Errorf("%w: %v", ErrCodesUnavailable, err)
			}
		}

		return nil
	}

	return ErrCodeNotFound
}

// Delete drops any outstanding code for the user. Idempotent.
func (s *Store) Delete(ctx context.Context, purpose Purpose, userID string) error {
	if err := s.redis.Del(ctx, s.key(purpose, userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCodesUnavailable, err)
	}
	return nil
}

func encodeRecord(record *Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordVersionV1 {
		return nil, errors.New("invalid code record version")
	}

	record := &Record{}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
