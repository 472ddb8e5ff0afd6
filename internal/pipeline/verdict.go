package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/user/charterd/internal/state"
)

// Verdict statuses for a single principle.
const (
	PrincipleApproved = "approved"
	PrincipleRejected = "rejected"
	PrincipleAmended  = "amended"
)

// PrincipleVerdict is the judge's decision on one proposed principle.
type PrincipleVerdict struct {
	PrincipleName string `json:"principle_name"`
	Status        string `json:"status"`
	Reasoning     string `json:"reasoning"`
	AmendmentText string `json:"amendment_text,omitempty"`
}

// Verdict is the judge's structured feedback.
type Verdict struct {
	OverallStatus        string             `json:"overall_status"`
	Verdicts             []PrincipleVerdict `json:"verdicts"`
	MandatoryConstraints []string           `json:"mandatory_constraints"`
	InterpretiveGuidance string             `json:"interpretive_guidance"`
}

// Approved returns the principles that were approved or amended.
func (v *Verdict) Approved() []PrincipleVerdict {
	var out []PrincipleVerdict
	for _, p := range v.Verdicts {
		if p.Status == PrincipleApproved || p.Status == PrincipleAmended {
			out = append(out, p)
		}
	}
	return out
}

// DecodeVerdict reads a Verdict from a stored judge output. Raw values are
// parsed as JSON; absent values are an error.
func DecodeVerdict(v state.Value) (*Verdict, error) {
	var data []byte
	switch v.Kind() {
	case state.KindStructured:
		fields, _ := v.AsStructured()
		encoded, err := json.Marshal(fields)
		if err != nil {
			return nil, fmt.Errorf("encode feedback: %w", err)
		}
		data = encoded
	case state.KindRaw:
		raw, _ := v.AsRaw()
		data = []byte(raw)
	default:
		return nil, fmt.Errorf("no judge feedback")
	}

	var verdict Verdict
	if err := json.Unmarshal(data, &verdict); err != nil {
		return nil, fmt.Errorf("decode verdict: %w", err)
	}
	return &verdict, nil
}
