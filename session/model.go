// Package session is the Redis-backed refresh session registry. Each
// session stores the SHA-256 of its current refresh secret; rotation
// replaces that hash atomically so a replayed refresh token is detected
// rather than honored.
package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const recordVersionV1 = 1

// Session is one refresh lineage for a user. CreatedAt and ExpiresAt are
// unix seconds; ExpiresAt is authoritative even if the Redis TTL lags.
type Session struct {
	SessionID   string
	UserID      string
	RefreshHash [32]byte
	CreatedAt   int64
	ExpiresAt   int64
}

// Encode packs a session into the binary record stored in Redis.
//
// Layout (fixed offsets, read by the rotation Lua script):
//
//	[0]      version
//	[1:33]   refresh hash
//	[33:41]  created at, big-endian unix seconds
//	[41:49]  expires at, big-endian unix seconds
//	[49]     user id length
//	[50:]    user id
func Encode(sess *Session) ([]byte, error) {
	if len(sess.UserID) == 0 || len(sess.UserID) > 255 {
		return nil, errors.New("invalid session user id length")
	}

	var buf bytes.Buffer
	buf.WriteByte(recordVersionV1)
	buf.Write(sess.RefreshHash[:])

	if err := binary.Write(&buf, binary.BigEndian, sess.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, sess.ExpiresAt); err != nil {
		return nil, err
	}

	buf.WriteByte(byte(len(sess.UserID)))
	buf.WriteString(sess.UserID)

	return buf.Bytes(), nil
}

// Decode parses a stored session record. SessionID is not part of the
// record; the caller sets it from the Redis key.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordVersionV1 {
		return nil, errors.New("invalid session record version")
	}

	sess := &Session{}

	if _, err := io.ReadFull(reader, sess.RefreshHash[:]); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &sess.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &sess.ExpiresAt); err != nil {
		return nil, err
	}

	userIDLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	userID := make([]byte, userIDLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, err
	}
	sess.UserID = string(userID)

	return sess, nil
}
