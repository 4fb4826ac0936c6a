package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	verificationRecordVersion1 = 1
)

var (
	ErrVerificationSessionNotFound = errors.New("verification session not found")
	ErrVerificationSessionExpired  = errors.New("verification session expired")
	ErrVerificationSessionBackend  = errors.New("verification session backend unavailable")
)

// VerificationSession bridges a verified password to a verified OTP.
// State holds the login state machine value at the time of the last write.
type VerificationSession struct {
	State     uint8
	AccountID string
	Email     string
	CreatedAt int64
	ExpiresAt int64
}

type VerificationSessionStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewVerificationSessionStore(redisClient redis.UniversalClient, prefix string) *VerificationSessionStore {
	if prefix == "" {
		prefix = "v_s"
	}
	return &VerificationSessionStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *VerificationSessionStore) key(id string) string {
	return s.prefix + ":" + id
}

func (s *VerificationSessionStore) Save(
	ctx context.Context,
	id string,
	record *VerificationSession,
	ttl time.Duration,
) error {
	encoded, err := encodeVerificationSession(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(id), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationSessionBackend, err)
	}
	return nil
}

func (s *VerificationSessionStore) Get(ctx context.Context, id string) (*VerificationSession, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrVerificationSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrVerificationSessionBackend, err)
	}

	record, err := decodeVerificationSession(data)
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(id)).Result()
		return nil, ErrVerificationSessionExpired
	}
	return record, nil
}

func (s *VerificationSessionStore) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrVerificationSessionBackend, err)
	}
	return n > 0, nil
}

func encodeVerificationSession(record *VerificationSession) ([]byte, error) {
	if record == nil {
		return nil, errors.New("nil verification session")
	}
	var buf bytes.Buffer
	buf.WriteByte(verificationRecordVersion1)
	buf.WriteByte(record.State)

	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.AccountID) > 65535 || len(record.Email) > 65535 {
		return nil, errors.New("verification session field length exceeded")
	}
	for _, field := range []string{record.AccountID, record.Email} {
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeVerificationSession(data []byte) (*VerificationSession, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != verificationRecordVersion1 {
		return nil, errors.New("invalid verification session version")
	}

	record := &VerificationSession{}
	if record.State, err = reader.ReadByte(); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	fields := make([]string, 2)
	for i := range fields {
		var n uint16
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return nil, err
		}
		raw := make([]byte, n)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		fields[i] = string(raw)
	}
	record.AccountID = fields[0]
	record.Email = fields[1]

	return record, nil
}
