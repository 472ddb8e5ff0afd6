// internal/server/card.go
package server

import (
	"github.com/user/charterd/internal/pipeline"
	"github.com/user/charterd/internal/remote"
)

// OrchestratorCard is the discovery document the server advertises for
// itself. An empty URL is filled from the request host.
func OrchestratorCard(version string) remote.AgentCard {
	return remote.AgentCard{
		Name:              "charterd",
		Description:       "Researches AI governance principles, reviews them against a judge, and drafts a constitution.",
		Version:           version,
		ProtocolVersion:   "0.3.0",
		Capabilities:      map[string]any{"streaming": true},
		DefaultInputModes: []string{"text/plain"},
		DefaultOutputModes: []string{
			"text/plain",
			"application/x-ndjson",
		},
		Skills: []remote.AgentSkill{{
			ID:          pipeline.PipelineName,
			Name:        "Draft constitution",
			Description: "Runs the research and review loop, then drafts the final document.",
			Tags:        []string{"governance", "constitution"},
		}},
	}
}
