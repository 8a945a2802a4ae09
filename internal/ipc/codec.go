package ipc

import (
	"encoding/binary"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// DefaultMaxMessageSize bounds a single frame when no limit is configured.
const DefaultMaxMessageSize = 1 << 20

// ToStruct converts d into a protobuf Struct.
func ToStruct(d Document) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(normalizeMap(d))
	if err != nil {
		return nil, fmt.Errorf("failed to convert document: %w", err)
	}
	return s, nil
}

// FromStruct converts a protobuf Struct into a Document.
func FromStruct(s *structpb.Struct) Document {
	if s == nil {
		return Document{}
	}
	return Document(s.AsMap())
}

// Marshal encodes d in protobuf wire format.
func Marshal(d Document) ([]byte, error) {
	s, err := ToStruct(d)
	if err != nil {
		return nil, err
	}
	data, err := proto.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	return data, nil
}

// Unmarshal decodes protobuf wire data produced by Marshal.
func Unmarshal(data []byte) (Document, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return FromStruct(&s), nil
}

// ParseJSON reads a JSON object, e.g. request data given on the command line.
func ParseJSON(data []byte) (Document, error) {
	var s structpb.Struct
	if err := protojson.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("invalid JSON object: %w", err)
	}
	return FromStruct(&s), nil
}

// FormatJSON renders d as indented JSON.
func FormatJSON(d Document) (string, error) {
	s, err := ToStruct(d)
	if err != nil {
		return "", err
	}
	out, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to format document: %w", err)
	}
	return string(out), nil
}

// WriteFrame writes d with a 4-byte big-endian length prefix.
func WriteFrame(w io.Writer, d Document) error {
	data, err := Marshal(d)
	if err != nil {
		return err
	}

	// Prefix and payload go out in one write so concurrent frames cannot interleave.
	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data))) //nolint:gosec // bounded by max message size
	copy(buf[4:], data)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	// Force flush if the writer supports it
	if flusher, ok := w.(interface{ Flush() error }); ok {
		_ = flusher.Flush()
	}
	return nil
}

// ReadFrame reads one length-prefixed document. Frames larger than maxSize are rejected.
func ReadFrame(r io.Reader, maxSize int) (Document, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}

	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, fmt.Errorf("failed to read message length: %w", err)
	}
	if int64(length) > int64(maxSize) {
		return nil, fmt.Errorf("message too large: %d bytes (max %d)", length, maxSize)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("failed to read message data: %w", err)
	}

	return Unmarshal(data)
}

// normalizeMap rewrites named and typed containers into the plain shapes structpb accepts.
func normalizeMap(d map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(d))
	for k, v := range d {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case Document:
		return normalizeMap(t)
	case map[string]interface{}:
		return normalizeMap(t)
	case []Document:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = normalizeMap(t[i])
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = normalizeValue(t[i])
		}
		return out
	case []string:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = t[i]
		}
		return out
	case []int:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = t[i]
		}
		return out
	default:
		return v
	}
}
