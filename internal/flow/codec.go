package flow

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	Step Step            `json:"step"`
	Data json.RawMessage `json:"data"`
}

// Encode serializes a state for storage. A nil state encodes to "".
func Encode(s State) (string, error) {
	if s == nil {
		return "", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode flow: %w", err)
	}
	out, err := json.Marshal(envelope{Step: s.Step(), Data: data})
	if err != nil {
		return "", fmt.Errorf("encode flow: %w", err)
	}
	return string(out), nil
}

// Decode restores a stored state. "" decodes to nil.
func Decode(raw string) (State, error) {
	if raw == "" || raw == "null" {
		return nil, nil
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("decode flow: %w", err)
	}

	var s State
	var err error
	switch env.Step {
	case StepSelectAsset:
		var v SelectAsset
		err = json.Unmarshal(env.Data, &v)
		s = v
	case StepEnterSize:
		var v EnterSize
		err = json.Unmarshal(env.Data, &v)
		s = v
	case StepEnterLeverage:
		var v EnterLeverage
		err = json.Unmarshal(env.Data, &v)
		s = v
	case StepConfirm:
		var v Confirm
		err = json.Unmarshal(env.Data, &v)
		s = v
	case StepEnterAmount:
		var v EnterAmount
		err = json.Unmarshal(env.Data, &v)
		s = v
	default:
		return nil, fmt.Errorf("decode flow: unknown step %q", env.Step)
	}
	if err != nil {
		return nil, fmt.Errorf("decode flow: %w", err)
	}
	return s, nil
}
