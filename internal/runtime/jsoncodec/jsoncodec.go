// Package jsoncodec wraps the sonic JSON implementation behind the small
// codec surface the dispatcher serialises with: debug snapshots, metrics
// dumps, and tap payloads. ConfigStd keeps the output byte-compatible with
// encoding/json.
package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

var std = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return std.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return std.Unmarshal(data, v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return std.MarshalIndent(v, prefix, indent)
}

func Encode(w io.Writer, v any) error {
	return std.NewEncoder(w).Encode(v)
}

func Decode(r io.Reader, v any) error {
	return std.NewDecoder(r).Decode(v)
}
