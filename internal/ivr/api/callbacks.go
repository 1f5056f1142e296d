package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/sebas/ivrcaller/internal/ivr/router"
)

// cloudEvent is the envelope the call-automation provider posts callbacks in.
type cloudEvent struct {
	ID     string       `json:"id"`
	Source string       `json:"source"`
	Type   string       `json:"type"`
	Data   callbackData `json:"data"`
}

type callbackData struct {
	OperationContext   string      `json:"operationContext"`
	CallConnectionID   string      `json:"callConnectionId"`
	DtmfResult         *toneResult `json:"dtmfResult,omitempty"`
	CollectTonesResult *toneResult `json:"collectTonesResult,omitempty"`
}

type toneResult struct {
	Tones []string `json:"tones"`
}

// decodeCallbacks parses a callback body. The provider posts an array,
// but a single event object is accepted too.
func decodeCallbacks(body []byte) ([]router.ProviderEvent, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("empty body")
	}

	var raw []cloudEvent
	if body[0] == '{' {
		var one cloudEvent
		if err := json.Unmarshal(body, &one); err != nil {
			return nil, fmt.Errorf("decode callback: %w", err)
		}
		raw = []cloudEvent{one}
	} else if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode callbacks: %w", err)
	}

	out := make([]router.ProviderEvent, 0, len(raw))
	for _, ce := range raw {
		pe := router.ProviderEvent{
			Type:             ce.Type,
			OperationContext: ce.Data.OperationContext,
			CallConnectionID: ce.Data.CallConnectionID,
		}
		switch {
		case ce.Data.DtmfResult != nil:
			pe.Tones = ce.Data.DtmfResult.Tones
		case ce.Data.CollectTonesResult != nil:
			pe.Tones = ce.Data.CollectTonesResult.Tones
		}
		out = append(out, pe)
	}
	return out, nil
}
