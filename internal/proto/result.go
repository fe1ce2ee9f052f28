package proto

import (
	"errors"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/tachibana-shin/rakuyomi-sub000/internal/store"
)

// Negative sentinel values shared with guest code. A sentinel can appear
// either as a returned pointer (from guest exports) or as a host-function
// result (from host imports back into the guest).
const (
	SentinelUnknown       int32 = -1
	SentinelUnimplemented int32 = -2
	SentinelRequestError  int32 = -3
)

// Named error kinds so callers can tell "extension says unimplemented"
// from "extension crashed" from "response too malformed to parse".
var (
	ErrUnknown       = errors.New("source returned an unknown error")
	ErrUnimplemented = errors.New("source reports operation unimplemented")
	ErrRequestFailed = errors.New("source request failed")
)

// GuestError is an error message produced by guest code through the
// inline error frame.
type GuestError struct {
	Message string
}

func (e *GuestError) Error() string {
	return fmt.Sprintf("source error: %s", e.Message)
}

// errorTag introduces an inline error frame.
const errorTag int32 = -1

// ReadResult interprets a pointer returned by a guest export.
//
// Negative pointers are sentinels. A non-negative pointer addresses a
// frame in linear memory: a 4-byte tag which is either −1 (then a
// 12-byte header of tag, capacity and length followed by length bytes of
// UTF-8 error text) or the payload length (then a 4-byte capacity field
// and length payload bytes).
func ReadResult(mem api.Memory, ptr int32) ([]byte, error) {
	if ptr < 0 {
		return nil, SentinelError(ptr)
	}

	tag, ok := mem.ReadUint32Le(uint32(ptr))
	if !ok {
		return nil, &DecodeError{Detail: fmt.Sprintf("result tag out of bounds at %d", ptr)}
	}

	if int32(tag) == errorTag {
		length, ok := mem.ReadUint32Le(uint32(ptr) + 8)
		if !ok {
			return nil, &DecodeError{Detail: "error frame header out of bounds"}
		}
		msg, ok := mem.Read(uint32(ptr)+12, length)
		if !ok {
			return nil, &DecodeError{Detail: "error frame text out of bounds"}
		}
		return nil, &GuestError{Message: string(msg)}
	}

	if int32(tag) < 0 {
		return nil, &DecodeError{Detail: fmt.Sprintf("negative result length %d", int32(tag))}
	}

	payload, ok := mem.Read(uint32(ptr)+8, tag)
	if !ok {
		return nil, &DecodeError{Detail: fmt.Sprintf("result payload of %d bytes out of bounds", tag)}
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

// SentinelError maps a negative pointer or return code to its error kind.
func SentinelError(code int32) error {
	switch code {
	case SentinelUnimplemented:
		return ErrUnimplemented
	case SentinelRequestError:
		return ErrRequestFailed
	default:
		return ErrUnknown
	}
}

// Materialize produces the byte buffer the guest copies out for a
// descriptor: raw UTF-8 for strings (and raw bytes for byte values)
// unless the descriptor was marked for structured encoding, in which case
// the structured binary encoding is used so the same data can be read
// back as a decodable record.
func Materialize(s *store.Store, d store.Descriptor) ([]byte, error) {
	v, ok := s.Get(d)
	if !ok {
		return nil, fmt.Errorf("descriptor %d not found", d)
	}
	if !s.IsEncoded(d) {
		switch v.Kind {
		case store.KindString:
			return []byte(v.Str), nil
		case store.KindBytes:
			return v.Bytes, nil
		}
	}
	return Encode(v)
}
