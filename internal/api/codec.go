// Package api serves vibecheck's Connect RPC surface and sign-in endpoints.
//
// Procedures live under /vibecheck.v1.<Service>/<Method>. Messages are plain
// Go structs exchanged as JSON, so any Connect client that speaks the JSON
// codec (or a curl with Content-Type: application/json) can call them.
package api

import (
	"encoding/json"
	"fmt"
)

// Codec is the JSON codec used by every handler and client. It replaces
// Connect's built-in "json" codec, which only accepts protobuf messages.
type Codec struct{}

func (Codec) Name() string { return "json" }

func (Codec) Marshal(msg any) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %T: %w", msg, err)
	}
	return b, nil
}

func (Codec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("failed to unmarshal %T: %w", msg, err)
	}
	return nil
}
