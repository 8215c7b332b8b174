// ABOUTME: Saved design snapshots and their two-payload wire format (settings JSON and agents JSON).
// ABOUTME: Settings are decoded leniently so form-entered numeric strings and empty fields load cleanly.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/2389-research/clusterdesigner/topology"
)

// ErrNothingToLoad is returned by Load when no snapshot exists under a name.
var ErrNothingToLoad = errors.New("nothing to load")

// Snapshot is one saved design.
type Snapshot struct {
	Settings topology.Settings
	Agents   []topology.NodeRecord
}

// Backend stores and retrieves snapshots by name. Save returns a status
// message for the operator.
type Backend interface {
	Save(ctx context.Context, name string, snap *Snapshot) (string, error)
	Load(ctx context.Context, name string) (*Snapshot, error)
}

// envelope is the save request shape: {"agents": [...], "settings": {...}}.
type envelope struct {
	Agents   json.RawMessage `json:"agents"`
	Settings json.RawMessage `json:"settings"`
}

// EncodePayloads returns the settings and agents payloads of a snapshot.
func EncodePayloads(snap *Snapshot) (settings, agents []byte, err error) {
	settings, err = json.Marshal(snap.Settings)
	if err != nil {
		return nil, nil, fmt.Errorf("encode settings: %w", err)
	}
	records := snap.Agents
	if records == nil {
		records = []topology.NodeRecord{}
	}
	agents, err = json.Marshal(records)
	if err != nil {
		return nil, nil, fmt.Errorf("encode agents: %w", err)
	}
	return settings, agents, nil
}

// DecodePayloads parses the two payloads independently.
func DecodePayloads(settings, agents []byte) (*Snapshot, error) {
	snap := &Snapshot{Settings: topology.DefaultSettings()}
	if len(strings.TrimSpace(string(settings))) > 0 {
		var raw map[string]any
		if err := json.Unmarshal(settings, &raw); err != nil {
			return nil, fmt.Errorf("decode settings: %w", err)
		}
		s, err := DecodeSettings(raw)
		if err != nil {
			return nil, err
		}
		snap.Settings = s
	}
	if len(strings.TrimSpace(string(agents))) > 0 {
		if err := json.Unmarshal(agents, &snap.Agents); err != nil {
			return nil, fmt.Errorf("decode agents: %w", err)
		}
	}
	return snap, nil
}

// Marshal encodes a snapshot as a single {"agents","settings"} document.
func Marshal(snap *Snapshot) ([]byte, error) {
	settings, agents, err := EncodePayloads(snap)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(envelope{Agents: agents, Settings: settings}, "", "  ")
}

// Unmarshal decodes a {"agents","settings"} document.
func Unmarshal(data []byte) (*Snapshot, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return DecodePayloads(env.Settings, env.Agents)
}

// DecodeSettings converts loosely typed settings (JSON numbers, numeric
// strings, or empty strings and nulls for missing values) into Settings.
// Keys that are absent keep their default.
func DecodeSettings(raw map[string]any) (topology.Settings, error) {
	s := topology.DefaultSettings()
	if err := MergeSettings(&s, raw); err != nil {
		return topology.Settings{}, err
	}
	return s, nil
}

// MergeSettings applies loosely typed values on top of s. An empty string
// clears a numeric setting.
func MergeSettings(s *topology.Settings, raw map[string]any) error {
	*s = s.Clone()
	clean := make(map[string]any, len(raw))
	for k, v := range raw {
		if str, ok := v.(string); ok && strings.TrimSpace(str) == "" {
			clearSetting(s, k)
			if k == "fileName" || k == "exportPath" {
				clean[k] = ""
			}
			continue
		}
		if v == nil {
			clearSetting(s, k)
			continue
		}
		if str, ok := v.(string); ok {
			v = strings.TrimSpace(str)
		}
		clean[k] = v
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           s,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("build settings decoder: %w", err)
	}
	if err := dec.Decode(clean); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}
	if s.Zoom <= 0 {
		s.Zoom = 1
	}
	return nil
}

func clearSetting(s *topology.Settings, key string) {
	switch key {
	case "reference":
		s.Reference = nil
	case "min":
		s.Min = nil
	case "max":
		s.Max = nil
	case "step":
		s.Step = nil
	case "significance":
		s.Significance = nil
	}
}
