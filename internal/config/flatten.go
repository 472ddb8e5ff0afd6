package config

import (
	"reflect"
	"sort"
	"strings"
	"sync"
)

// secretKeys lists the dot-separated keys whose values should be masked.
// Stage endpoints are not secret; credentials for the llm protocol and the
// Telegram bot are.
var secretKeys = map[string]bool{
	"llm.api_key":    true,
	"telegram.token": true,
}

var (
	keysOnce  sync.Once
	knownKeys map[string]bool
)

// Keys returns every dotted key a Config understands, sorted. Optional
// fields left out of the file (stages.<name>.base_url,
// stages.<name>.instruction) are included.
func Keys() []string {
	keysOnce.Do(func() {
		knownKeys = make(map[string]bool)
		collectKeys("", reflect.TypeOf(Config{}), knownKeys)
	})
	out := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// IsKey reports whether key names a Config field.
func IsKey(key string) bool {
	Keys()
	return knownKeys[key]
}

func collectKeys(prefix string, t reflect.Type, out map[string]bool) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		if prefix != "" {
			name = prefix + "." + name
		}
		if f.Type.Kind() == reflect.Struct {
			collectKeys(name, f.Type, out)
			continue
		}
		out[name] = true
	}
}

// IsSecretKey returns true if the given dot-separated key is a secret.
func IsSecretKey(key string) bool {
	return secretKeys[key]
}

// Flatten converts a nested map into a flat map with dot-separated keys.
// For example, {"stages": {"judge": {"protocol": "a2a"}}} becomes
// {"stages.judge.protocol": "a2a"}.
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any)
	flatten("", m, out)
	return out
}

func flatten(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch child := v.(type) {
		case map[string]any:
			flatten(key, child, out)
		default:
			out[key] = v
		}
	}
}

// Unflatten converts a flat map with dot-separated keys back into a nested map.
// For example, {"loop.max_iterations": 3} becomes {"loop": {"max_iterations": 3}}.
func Unflatten(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range flat {
		parts := strings.Split(k, ".")
		current := out
		for i, part := range parts {
			if i == len(parts)-1 {
				current[part] = v
			} else {
				next, ok := current[part]
				if !ok {
					next = make(map[string]any)
					current[part] = next
				}
				m, ok := next.(map[string]any)
				if !ok {
					m = make(map[string]any)
					current[part] = m
				}
				current = m
			}
		}
	}
	return out
}

// MaskSecrets returns a copy of the flat map with secret values shown as
// "***xxxx", xxxx being the last 4 characters. Empty values stay empty.
func MaskSecrets(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		if secretKeys[k] {
			s, ok := v.(string)
			if ok && s != "" {
				if len(s) <= 4 {
					out[k] = "***" + s
				} else {
					out[k] = "***" + s[len(s)-4:]
				}
			} else {
				out[k] = v
			}
		} else {
			out[k] = v
		}
	}
	return out
}
