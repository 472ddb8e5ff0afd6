package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
)

// WellKnownCardPath is where a service publishes its discovery document.
const WellKnownCardPath = "/.well-known/agent.json"

// AgentCard is the discovery document advertising one stage service.
type AgentCard struct {
	Name               string         `json:"name"`
	Description        string         `json:"description"`
	URL                string         `json:"url"`
	Version            string         `json:"version,omitempty"`
	ProtocolVersion    string         `json:"protocolVersion,omitempty"`
	Capabilities       map[string]any `json:"capabilities"`
	DefaultInputModes  []string       `json:"defaultInputModes"`
	DefaultOutputModes []string       `json:"defaultOutputModes"`
	Skills             []AgentSkill   `json:"skills"`
}

// AgentSkill describes one capability listed in an AgentCard.
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// CardResolver fetches and caches discovery documents. Successful fetches
// are cached for the life of the resolver; failures are not.
type CardResolver struct {
	httpClient *http.Client
	retry      *RetryPolicy

	mu    sync.Mutex
	cards map[string]*AgentCard
}

// NewCardResolver creates a resolver. Nil arguments get defaults.
func NewCardResolver(client *http.Client, retry *RetryPolicy) *CardResolver {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	if retry == nil {
		retry = DefaultRetryPolicy()
	}
	return &CardResolver{
		httpClient: client,
		retry:      retry,
		cards:      make(map[string]*AgentCard),
	}
}

// Resolve returns the card published at cardURL. A relative endpoint URL
// in the card is resolved against cardURL.
func (r *CardResolver) Resolve(ctx context.Context, cardURL string) (*AgentCard, error) {
	r.mu.Lock()
	if card, ok := r.cards[cardURL]; ok {
		r.mu.Unlock()
		return card, nil
	}
	r.mu.Unlock()

	var card *AgentCard
	err := r.retry.Execute(ctx, func() error {
		var fetchErr error
		card, fetchErr = r.fetch(ctx, cardURL)
		return fetchErr
	})
	if err != nil {
		return nil, fmt.Errorf("resolve agent card %s: %w", cardURL, err)
	}

	r.mu.Lock()
	r.cards[cardURL] = card
	r.mu.Unlock()
	return card, nil
}

// Forget drops a cached card so the next Resolve refetches it.
func (r *CardResolver) Forget(cardURL string) {
	r.mu.Lock()
	delete(r.cards, cardURL)
	r.mu.Unlock()
}

func (r *CardResolver) fetch(ctx context.Context, cardURL string) (*AgentCard, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cardURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch card: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read card: %w", err)
	}
	if err := checkStatus(resp, body); err != nil {
		return nil, err
	}

	var card AgentCard
	if err := json.Unmarshal(body, &card); err != nil {
		return nil, fmt.Errorf("parse card: %w", err)
	}
	if card.URL == "" {
		return nil, fmt.Errorf("card %s has no endpoint url", cardURL)
	}
	endpoint, err := resolveReference(cardURL, card.URL)
	if err != nil {
		return nil, err
	}
	card.URL = endpoint
	return &card, nil
}

func resolveReference(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse card url: %w", err)
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse endpoint url: %w", err)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

// BaseURL returns scheme://host of a card or endpoint URL.
func BaseURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}
