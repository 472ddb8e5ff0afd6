package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/user/charterd/internal/state"
	"github.com/user/charterd/internal/types"
)

// GateName is the author of escalation events.
const GateName = "escalation_checker"

// passFields are the feedback fields consulted, in order, for a pass.
var passFields = []string{"overall_status", "status"}

// passMarkers are the substrings that signal a pass in unparsed feedback.
var passMarkers = []string{`"overall_status": "pass"`, `"status": "pass"`}

// ShouldEscalate decides from the judge's feedback whether the loop ends.
// Missing or unrecognised feedback continues the loop.
func ShouldEscalate(feedback state.Value) bool {
	switch feedback.Kind() {
	case state.KindStructured:
		fields, _ := feedback.AsStructured()
		for _, name := range passFields {
			if s, ok := fields[name].(string); ok && s == "pass" {
				return true
			}
		}
		return false
	case state.KindRaw:
		raw, _ := feedback.AsRaw()
		for _, marker := range passMarkers {
			if strings.Contains(raw, marker) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Gate ends the loop once the judge's feedback passes.
type Gate struct {
	key string
}

// NewGate creates a gate reading feedback from key.
func NewGate(key string) *Gate {
	return &Gate{key: key}
}

func (g *Gate) Name() string { return GateName }

type escalationPayload struct {
	Escalate    bool     `json:"escalate"`
	Feedback    string   `json:"feedback"`
	Principles  int      `json:"principles,omitempty"`
	Approved    int      `json:"approved,omitempty"`
	Constraints []string `json:"mandatory_constraints,omitempty"`
}

// Run emits an escalation event carrying the decision and, when the
// feedback decodes as a verdict, its principle counts. It never fails.
func (g *Gate) Run(ctx context.Context, inv *Invocation) error {
	feedback := inv.Session.State.Get(g.key)
	escalate := ShouldEscalate(feedback)
	payload := escalationPayload{Escalate: escalate, Feedback: feedback.Kind().String()}

	log := slog.With("stage", GateName, "session_id", string(inv.Session.Key), "run_id", string(inv.RunID))
	if verdict, err := DecodeVerdict(feedback); err == nil {
		payload.Principles = len(verdict.Verdicts)
		payload.Approved = len(verdict.Approved())
		payload.Constraints = verdict.MandatoryConstraints
		log = log.With("principles", payload.Principles, "approved", payload.Approved)
	} else if !feedback.IsAbsent() {
		log.Debug("feedback is not a verdict", "error", err)
	}

	if escalate {
		log.Info("judge approved; moving to drafting")
	} else {
		log.Info("judge rejected or no feedback; loop continues", "feedback", payload.Feedback)
	}

	data, _ := json.Marshal(payload)
	inv.Emit(ctx, &types.Event{
		Type:     types.EventEscalation,
		Author:   GateName,
		Payload:  data,
		Escalate: escalate,
	})
	return nil
}
