package remote

import (
	"fmt"
	"net/http"

	"github.com/user/charterd/pkg/llm"
)

// Stage protocols.
const (
	ProtocolHTTP = "http"
	ProtocolA2A  = "a2a"
	ProtocolLLM  = "llm"
)

// Endpoint describes how to reach one stage.
type Endpoint struct {
	Name        string
	Protocol    string
	CardURL     string
	BaseURL     string
	Instruction string
}

// Dialer builds callers for endpoints and shares one HTTP client and card
// cache between them.
type Dialer struct {
	HTTPClient *http.Client
	Cards      *CardResolver
	Provider   llm.Provider
}

// NewDialer creates a Dialer. provider may be nil when no stage uses the
// llm protocol.
func NewDialer(client *http.Client, provider llm.Provider) *Dialer {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Dialer{
		HTTPClient: client,
		Cards:      NewCardResolver(client, nil),
		Provider:   provider,
	}
}

// Dial returns the caller for ep.
func (d *Dialer) Dial(ep Endpoint) (Caller, error) {
	switch ep.Protocol {
	case ProtocolA2A:
		if ep.CardURL == "" {
			return nil, fmt.Errorf("stage %s: a2a protocol needs a card url", ep.Name)
		}
		return NewA2ACaller(ep.CardURL, d.Cards, d.HTTPClient), nil
	case ProtocolHTTP, "":
		base := ep.BaseURL
		if base == "" {
			derived, err := BaseURL(ep.CardURL)
			if err != nil {
				return nil, fmt.Errorf("stage %s: %w", ep.Name, err)
			}
			base = derived
		}
		return NewHTTPCaller(base, d.HTTPClient), nil
	case ProtocolLLM:
		if d.Provider == nil {
			return nil, fmt.Errorf("stage %s: llm protocol needs an llm api key", ep.Name)
		}
		return NewLLMCaller(d.Provider, ep.Instruction, StageSchema(ep.Name)), nil
	default:
		return nil, fmt.Errorf("stage %s: unknown protocol %q", ep.Name, ep.Protocol)
	}
}
