package remote

import "encoding/json"

// Output schemas for the built-in stages when they run on a local LLM.
var stageSchemas = map[string]json.RawMessage{
	"researcher": json.RawMessage(`{
  "type": "object",
  "properties": {
    "context_summary": {"type": "string"},
    "applicable_frameworks": {"type": "array", "items": {"type": "string"}},
    "proposed_principles": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "source": {"type": "string"},
          "definition": {"type": "string"}
        },
        "required": ["name", "source", "definition"]
      }
    },
    "known_risks": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["context_summary", "applicable_frameworks", "proposed_principles", "known_risks"]
}`),
	"judge": json.RawMessage(`{
  "type": "object",
  "properties": {
    "overall_status": {"type": "string", "enum": ["pass", "fail"]},
    "verdicts": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "principle_name": {"type": "string"},
          "status": {"type": "string", "enum": ["approved", "rejected", "amended"]},
          "reasoning": {"type": "string"},
          "amendment_text": {"type": "string"}
        },
        "required": ["principle_name", "status", "reasoning"]
      }
    },
    "mandatory_constraints": {"type": "array", "items": {"type": "string"}},
    "interpretive_guidance": {"type": "string"}
  },
  "required": ["overall_status", "verdicts", "mandatory_constraints", "interpretive_guidance"]
}`),
	"content_builder": json.RawMessage(`{
  "type": "object",
  "properties": {
    "title": {"type": "string"},
    "preamble": {"type": "string"},
    "articles": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "title": {"type": "string"},
          "content": {"type": "string"}
        },
        "required": ["title", "content"]
      }
    },
    "citable_axioms": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["title", "preamble", "articles", "citable_axioms"]
}`),
}

// StageSchema returns the output schema of a built-in stage, or nil.
func StageSchema(stage string) json.RawMessage {
	return stageSchemas[stage]
}
