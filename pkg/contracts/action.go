package contracts

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MarshalJSON renders AgentAction the way the original Rust serde
// externally-tagged enum does: {"Nothing":null}, {"Detach":null},
// {"SwitchTo":{...}}. Kept to preserve the exact wire contract agents
// in the field already parse against.
func (a AgentAction) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case ActionNothing, "":
		return []byte(`{"Nothing":null}`), nil
	case ActionDetach:
		return []byte(`{"Detach":null}`), nil
	case ActionSwitchTo:
		if a.Remote == nil {
			return nil, fmt.Errorf("contracts: SwitchTo action missing remote store path")
		}
		payload, err := json.Marshal(a.Remote)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		buf.WriteString(`{"SwitchTo":`)
		buf.Write(payload)
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("contracts: unknown AgentAction kind %q", a.Kind)
	}
}

// UnmarshalJSON accepts the externally-tagged wire form.
func (a *AgentAction) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case isPresent(raw, "Nothing"):
		*a = Nothing()
	case isPresent(raw, "Detach"):
		*a = Detach()
	case isPresent(raw, "SwitchTo"):
		var remote RemoteStorePath
		if err := json.Unmarshal(raw["SwitchTo"], &remote); err != nil {
			return fmt.Errorf("contracts: decode SwitchTo: %w", err)
		}
		*a = SwitchTo(remote)
	default:
		return fmt.Errorf("contracts: unrecognized AgentAction payload")
	}
	return nil
}

func isPresent(raw map[string]json.RawMessage, key string) bool {
	_, ok := raw[key]
	return ok
}
