package fetcher

import (
	"github.com/goccy/go-json"
)

// Transcoder defines the contract for bidirectional conversion between a value of type T
// and its string representation. Users may implement custom transcoders (e.g. protobuf,
// msgpack, custom compression, etc.) to control exactly how payloads are serialized and stored.
// The interface is intentionally minimal and string-based because Redis stores values as strings.
type Transcoder[T any] interface {
	// Encode converts a value of type T into a string suitable for storage in Redis.
	// The implementation fully controls the format, encoding, and optional compression.
	Encode(T) (string, error)

	// Decode reconstructs a value of type T from the string previously produced by Encode.
	// It must perfectly reverse the Encode operation for the same transcoder instance.
	Decode(string) (T, error)
}

// KeyEncoder serializes the current argument list of a call into the suffix of its cache key.
// Implementations must be deterministic: equal arguments always produce the same string,
// otherwise recomputations of the same call would never reuse a cached result.
type KeyEncoder interface {
	EncodeKey(args []any) (string, error)
}

// KeyEncoderFunc is an adapter to allow the use of ordinary functions as a KeyEncoder.
type KeyEncoderFunc func(args []any) (string, error)

// EncodeKey implements the KeyEncoder interface.
func (f KeyEncoderFunc) EncodeKey(args []any) (string, error) { return f(args) }

// defaultTranscoder is the built-in transcoder used when the user does not provide a custom one.
// It performs straightforward JSON serialization with no additional compression.
// This makes payloads human-readable and is perfect for development, debugging,
// or situations where size is not a critical concern.
type defaultTranscoder[T any] struct{}

// Encode method converts the provided value into a JSON string representation.
// Any error produced during the serialization process is returned to the caller for handling.
func (defaultTranscoder[T]) Encode(src T) (string, error) {
	bytes, err := json.Marshal(src)

	return string(bytes), err
}

// Decode method reconstructs a value of the original type from its string representation.
// Any error encountered during decoding is returned together with the zero value of T.
func (defaultTranscoder[T]) Decode(src string) (T, error) {
	var entry T

	if err := json.Unmarshal([]byte(src), &entry); err != nil {
		var zero T
		return zero, err
	}

	return entry, nil
}

// EncodeKey renders the argument list as a JSON array, so a call with arguments 5 and "a" yields `[5,"a"]`.
// Map keys are emitted in sorted order, which keeps the encoding stable across recomputations.
func (t defaultTranscoder[T]) EncodeKey(args []any) (string, error) {
	if args == nil {
		args = []any{}
	}

	bytes, err := json.Marshal(args)
	if err != nil {
		return "", err
	}

	return string(bytes), nil
}
