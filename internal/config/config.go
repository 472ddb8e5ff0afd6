package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Stage protocols.
const (
	ProtocolHTTP = "http"
	ProtocolA2A  = "a2a"
	ProtocolLLM  = "llm"
)

// StageConfig describes how the orchestrator reaches one stage service.
type StageConfig struct {
	Protocol    string `json:"protocol"`
	CardURL     string `json:"card_url"`
	BaseURL     string `json:"base_url,omitempty"`
	StateKey    string `json:"state_key"`
	Progress    string `json:"progress"`
	Instruction string `json:"instruction,omitempty"`
}

type Config struct {
	DataDir        string `json:"data_dir"`
	LogLevel       string `json:"log_level"`
	MaxConcurrent  int    `json:"max_concurrent"`
	Listen         string `json:"listen"`
	StageTimeout   string `json:"stage_timeout"`
	MaxInputTokens int    `json:"max_input_tokens"`
	Loop           struct {
		MaxIterations int `json:"max_iterations"`
	} `json:"loop"`
	Stages struct {
		Researcher     StageConfig `json:"researcher"`
		Judge          StageConfig `json:"judge"`
		ContentBuilder StageConfig `json:"content_builder"`
	} `json:"stages"`
	LLM struct {
		BaseURL     string  `json:"base_url"`
		APIKey      string  `json:"api_key"`
		Model       string  `json:"model"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float32 `json:"temperature"`
	} `json:"llm"`
	Telegram struct {
		Token string `json:"token"`
	} `json:"telegram"`
}

// Override adjusts a loaded Config. Overrides come from command-line flags
// and win over everything else.
type Override func(*Config)

// WithListen overrides the HTTP listen address.
func WithListen(addr string) Override {
	return func(c *Config) {
		if addr != "" {
			c.Listen = addr
		}
	}
}

// WithLogLevel overrides the log level.
func WithLogLevel(level string) Override {
	return func(c *Config) {
		if level != "" {
			c.LogLevel = level
		}
	}
}

// WithDataDir overrides the data directory.
func WithDataDir(dir string) Override {
	return func(c *Config) {
		if dir != "" {
			c.DataDir = dir
		}
	}
}

// DefaultPath returns ~/.charterd/config.json.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".charterd", "config.json")
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	cfg := &Config{
		DataDir:        filepath.Join(os.Getenv("HOME"), ".charterd"),
		LogLevel:       "info",
		MaxConcurrent:  2,
		Listen:         "127.0.0.1:8000",
		StageTimeout:   "60s",
		MaxInputTokens: 32000,
	}
	cfg.Loop.MaxIterations = 3
	cfg.Stages.Researcher = StageConfig{
		Protocol: ProtocolA2A,
		CardURL:  "http://localhost:8001/.well-known/agent.json",
		StateKey: "research_findings",
		Progress: "🔍 Researcher is gathering information...",
	}
	cfg.Stages.Judge = StageConfig{
		Protocol: ProtocolA2A,
		CardURL:  "http://localhost:8002/.well-known/agent.json",
		StateKey: "judge_feedback",
		Progress: "⚖️ Judge is evaluating findings...",
	}
	cfg.Stages.ContentBuilder = StageConfig{
		Protocol: ProtocolA2A,
		CardURL:  "http://localhost:8003/.well-known/agent.json",
		StateKey: "content_output",
		Progress: "✍️ Content Builder is writing the content...",
	}
	cfg.LLM.BaseURL = "https://api.openai.com/v1"
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.LLM.MaxTokens = 4000
	cfg.LLM.Temperature = 0.2
	return cfg
}

// Load resolves the configuration once: defaults, then the file at path
// (written with the defaults if missing), then the environment, then
// overrides.
func Load(path string, overrides ...Override) (*Config, error) {
	cfg := Defaults()

	if _, err := os.Stat(path); err == nil {
		m, err := readMap(path)
		if err != nil {
			return nil, err
		}
		if err := fromMap(m, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	for _, o := range overrides {
		o(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("RESEARCHER_AGENT_CARD_URL"); v != "" {
		cfg.Stages.Researcher.CardURL = v
	}
	if v := os.Getenv("JUDGE_AGENT_CARD_URL"); v != "" {
		cfg.Stages.Judge.CardURL = v
	}
	if v := os.Getenv("CONTENT_BUILDER_AGENT_CARD_URL"); v != "" {
		cfg.Stages.ContentBuilder.CardURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("CHARTERD_LISTEN"); v != "" {
		cfg.Listen = v
	}
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if _, err := c.Timeout(); err != nil {
		return err
	}
	if c.Loop.MaxIterations <= 0 {
		return fmt.Errorf("loop.max_iterations must be positive, got %d", c.Loop.MaxIterations)
	}
	for name, st := range c.StageMap() {
		switch st.Protocol {
		case ProtocolHTTP, ProtocolA2A:
			if st.CardURL == "" && st.BaseURL == "" {
				return fmt.Errorf("stages.%s needs card_url or base_url", name)
			}
		case ProtocolLLM:
		default:
			return fmt.Errorf("stages.%s.protocol: unknown protocol %q", name, st.Protocol)
		}
	}
	return nil
}

// Timeout parses stage_timeout.
func (c *Config) Timeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.StageTimeout)
	if err != nil {
		return 0, fmt.Errorf("stage_timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("stage_timeout must be positive, got %s", c.StageTimeout)
	}
	return d, nil
}

// StageMap returns the stage configurations keyed by stage name.
func (c *Config) StageMap() map[string]StageConfig {
	return map[string]StageConfig{
		"researcher":      c.Stages.Researcher,
		"judge":           c.Stages.Judge,
		"content_builder": c.Stages.ContentBuilder,
	}
}

// Save writes cfg to path atomically, as YAML for .yaml/.yml paths and
// indented JSON otherwise.
func Save(path string, cfg *Config) error {
	m, err := ToMap(cfg)
	if err != nil {
		return err
	}
	return writeMap(path, m)
}

// ToMap converts cfg to a generic nested map using its JSON field names.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// ListValues returns every config value keyed by dotted path, with secrets
// masked when mask is set. Unset optional fields are listed as "".
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	for _, k := range Keys() {
		if _, ok := flat[k]; !ok {
			flat[k] = ""
		}
	}
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue reads one dotted key from the config file at path, creating the
// file with defaults if it does not exist yet. Config keys missing from the
// file resolve to their default.
func GetValue(path, key string) (any, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if _, err := Load(path); err != nil {
			return nil, err
		}
	}
	m, err := readMap(path)
	if err != nil {
		return nil, err
	}
	if v, ok := Flatten(m)[key]; ok {
		return v, nil
	}
	if !IsKey(key) {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	cfg := Defaults()
	if err := fromMap(m, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	merged, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	if v, ok := Flatten(merged)[key]; ok {
		return v, nil
	}
	return "", nil
}

// SetValue writes one dotted key into the existing config file at path.
// raw is parsed as JSON when possible (numbers, booleans) and stored as a
// string otherwise.
func SetValue(path, key, raw string) error {
	m, err := readMap(path)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		v = raw
	}
	flat := Flatten(m)
	flat[key] = v
	return writeMap(path, Unflatten(flat))
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// readMap decodes the config file into a nested map. YAML numbers are
// normalised through JSON so both formats yield the same value types.
func readMap(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	m := map[string]any{}
	if isYAML(path) {
		var y map[string]any
		if err := yaml.Unmarshal(data, &y); err != nil {
			return nil, fmt.Errorf("parse yaml config: %w", err)
		}
		encoded, err := json.Marshal(y)
		if err != nil {
			return nil, fmt.Errorf("normalise yaml config: %w", err)
		}
		data = encoded
	}
	if len(strings.TrimSpace(string(data))) == 0 || string(data) == "null" {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return m, nil
}

func fromMap(m map[string]any, cfg *Config) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

func writeMap(path string, m map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(m)
	} else {
		data, err = json.MarshalIndent(m, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
