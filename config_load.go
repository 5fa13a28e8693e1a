package meshgateway

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// LoadConfig reads and parses a config file from the given path.
// Supported formats: JSON (.json), YAML (.yaml, .yml).
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: use .json, .yaml, or .yml", ext)
	}

	return &cfg, nil
}

// ValidateConfig validates a Config for correctness: structural validation
// against the config schema, then the registry document's cross-reference
// checks.
func ValidateConfig(cfg Config) error {
	mode := cfg.Mode
	if mode == "" {
		mode = ModeSequential
	}
	switch mode {
	case ModeSequential, ModeConcurrent:
	default:
		return fmt.Errorf("unknown mode: %q", cfg.Mode)
	}

	if _, err := cfg.Timeout(); err != nil {
		return fmt.Errorf("invalid upstream_timeout: %w", err)
	}
	if cfg.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency must not be negative")
	}

	if err := validateSchema(cfg); err != nil {
		return err
	}
	return cfg.Registry.Validate()
}

// configSchema is the structural contract of the config file. Cross-reference
// rules (models pointing at declared services, join records at declared
// relationships) live in registry.Document.Validate, which JSON Schema cannot
// express.
const configSchema = `{
  "type": "object",
  "properties": {
    "mode": {"enum": ["", "sequential", "concurrent"]},
    "upstream_timeout": {"type": "string"},
    "max_concurrency": {"type": "integer", "minimum": 0},
    "registry": {
      "type": "object",
      "properties": {
        "services": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["name", "schema_url"],
            "properties": {
              "name": {"type": "string", "minLength": 1},
              "schema_url": {"type": "string", "minLength": 1},
              "base_url": {"type": "string"}
            }
          }
        },
        "models": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["service", "endpoint", "lookup_field"],
            "properties": {
              "service": {"type": "string", "minLength": 1},
              "endpoint": {"type": "string", "minLength": 1},
              "lookup_field": {"type": "string", "minLength": 1}
            }
          }
        },
        "relationships": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["key", "origin", "related"],
            "properties": {
              "key": {"type": "string", "minLength": 1},
              "origin": {"$ref": "#/$defs/modelRef"},
              "related": {"$ref": "#/$defs/modelRef"}
            }
          }
        },
        "join_records": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["relationship"],
            "properties": {
              "relationship": {"type": "string", "minLength": 1},
              "record_id": {"type": "integer"},
              "record_uuid": {"type": "string"},
              "related_record_id": {"type": "integer"},
              "related_record_uuid": {"type": "string"}
            }
          }
        }
      }
    }
  },
  "$defs": {
    "modelRef": {
      "type": "object",
      "required": ["service", "endpoint"],
      "properties": {
        "service": {"type": "string", "minLength": 1},
        "endpoint": {"type": "string", "minLength": 1}
      }
    }
  }
}`

func validateSchema(cfg Config) error {
	schema, err := jsonschema.CompileString("config.schema.json", configSchema)
	if err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}

	// Round-trip through JSON so the schema sees the wire representation.
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("serializing config for validation: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("deserializing config for validation: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("config schema validation: %w", err)
	}
	return nil
}
