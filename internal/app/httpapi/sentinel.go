package httpapi

import (
	"encoding/json"

	"github.com/ComputClaw/airlock/internal/app/domain"
)

// decodeSentinels parses body into a map of raw JSON values and projects
// each named field to a domain.Sentinel: an absent key is Unchanged, an
// explicit JSON null is Clear, and any other value is SetTo(v) (spec §9,
// "an explicit three-valued input {Unchanged, Clear, SetTo(v)} rather than
// a nullable field conflating 'don't touch' with 'clear'").
func decodeSentinels(raw map[string]json.RawMessage, fields ...string) (map[string]domain.Sentinel, error) {
	out := make(map[string]domain.Sentinel, len(fields))
	for _, field := range fields {
		data, present := raw[field]
		if !present {
			out[field] = domain.UnchangedSentinel
			continue
		}
		if string(data) == "null" {
			out[field] = domain.ClearSentinel
			continue
		}
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		out[field] = domain.SetToSentinel(v)
	}
	return out, nil
}
