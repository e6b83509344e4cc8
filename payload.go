package typesetd

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// engineReply is the JSON shape both backends receive from the compiler
// module's compile call: an optional base64 artifact and an optional
// diagnostics payload of heterogeneous shape.
type engineReply struct {
	Result      *string         `json:"result"`
	Diagnostics json.RawMessage `json:"diagnostics"`
}

// parseEngineReply decodes the module's compile reply into a RawResult.
func parseEngineReply(data []byte) (*RawResult, error) {
	var reply engineReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, fmt.Errorf("decoding engine reply: %w", err)
	}

	res := &RawResult{Diagnostics: decodeRawPayload(reply.Diagnostics)}
	if reply.Result != nil && *reply.Result != "" {
		artifact, err := base64.StdEncoding.DecodeString(*reply.Result)
		if err != nil {
			return nil, fmt.Errorf("decoding artifact: %w", err)
		}
		res.Artifact = artifact
	}
	return res, nil
}

// decodeRawPayload interprets an engine diagnostics field by shape: a JSON
// string becomes a TextPayload, an array becomes a StructuredPayload, and
// anything else (null, absent, unrecognized) becomes nil, which the
// normalizer turns into the generic unknown-error diagnostic.
func decodeRawPayload(raw json.RawMessage) RawPayload {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		return TextPayload(s)
	case '[':
		var items []RawDiagnostic
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil
		}
		return StructuredPayload(items)
	default:
		return nil
	}
}
