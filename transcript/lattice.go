package transcript

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// The batch backends return the recognized text as a word-level lattice
// nested inside the order result. Two shapes exist in the wild: "lattice2"
// carries json_1best as a plain object, the older "lattice" carries it as a
// JSON-encoded string. lattice2 is preferred when both are present.

type orderResult struct {
	Lattice2 []latticeItem `json:"lattice2"`
	Lattice  []latticeItem `json:"lattice"`
}

type latticeItem struct {
	JSON1Best json.RawMessage `json:"json_1best"`
}

type oneBest struct {
	ST struct {
		RT []struct {
			WS []WordSlot `json:"ws"`
		} `json:"rt"`
	} `json:"st"`
}

// WordSlot is one word position with its candidate list. Both the batch
// lattice and the streaming result frames use this shape.
type WordSlot struct {
	CW []struct {
		W string `json:"w"`
	} `json:"cw"`
}

// ExtractLatticeText parses a raw order result payload (the JSON string the
// poll response nests inside its envelope) and concatenates the best word
// candidates into the final transcript.
//
// Individual lattice items that fail to parse degrade to an empty
// contribution rather than failing the whole extraction; only a malformed
// outer payload is an error.
func ExtractLatticeText(raw string) (string, error) {
	var result orderResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return "", errors.Wrap(err, "parse order result")
	}

	items := result.Lattice2
	if len(items) == 0 {
		items = result.Lattice
	}

	var text string
	for _, item := range items {
		text += extractOneBest(item.JSON1Best)
	}
	return text, nil
}

// extractOneBest decodes a json_1best payload, detecting whether it arrived
// as an object or as a JSON-encoded string.
func extractOneBest(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	payload := []byte(raw)
	if payload[0] == '"' {
		var unquoted string
		if err := json.Unmarshal(payload, &unquoted); err != nil {
			return ""
		}
		payload = []byte(unquoted)
	}

	var best oneBest
	if err := json.Unmarshal(payload, &best); err != nil {
		return ""
	}

	var text string
	for _, rt := range best.ST.RT {
		text += JoinWords(rt.WS)
	}
	return text
}

// JoinWords concatenates the first candidate of every word slot.
func JoinWords(slots []WordSlot) string {
	var text string
	for _, ws := range slots {
		if len(ws.CW) > 0 {
			text += ws.CW[0].W
		}
	}
	return text
}
