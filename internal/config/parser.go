package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tailscale/hujson"
)

type jsoncConfig struct {
	Agent  *jsoncAgent  `json:"agent"`
	Client *jsoncClient `json:"client"`
	ADB    *jsoncADB    `json:"adb"`
	Log    *jsoncLog    `json:"log"`
}

type jsoncAgent struct {
	Host *string `json:"host"`
	Port *int    `json:"port"`
}

type jsoncClient struct {
	TimeoutMS     *int `json:"timeout_ms"`
	MaxChunkBytes *int `json:"max_chunk_bytes"`
}

type jsoncADB struct {
	Command        *string `json:"command"`
	SwipeDefaultMS *int    `json:"swipe_default_ms"`
}

type jsoncLog struct {
	Level *string `json:"level"`
}

// Parse reads JSONC configuration content on top of base.
//
// Comments and trailing commas are accepted. Unknown keys are errors.
func Parse(content string, base Config) (Config, []Warning, error) {
	if strings.TrimSpace(content) == "" {
		validatedWarnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, validatedWarnings, nil
	}

	standardized, err := hujson.Standardize([]byte(content))
	if err != nil {
		return Config{}, nil, fmt.Errorf("jsonc: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(standardized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(string(standardized), err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(string(standardized), err)
	}

	cfg := base
	if err := payload.applyTo(&cfg); err != nil {
		return Config{}, nil, err
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) error {
	if payload.Agent != nil {
		if payload.Agent.Host != nil {
			cfg.Agent.Host = strings.TrimSpace(*payload.Agent.Host)
		}
		if payload.Agent.Port != nil {
			cfg.Agent.Port = *payload.Agent.Port
		}
	}

	if payload.Client != nil {
		if payload.Client.TimeoutMS != nil {
			cfg.Client.TimeoutMS = *payload.Client.TimeoutMS
		}
		if payload.Client.MaxChunkBytes != nil {
			cfg.Client.MaxChunkBytes = *payload.Client.MaxChunkBytes
		}
	}

	if payload.ADB != nil {
		if payload.ADB.Command != nil {
			raw := *payload.ADB.Command
			argv, err := parseADBCommand(raw)
			if err != nil {
				return err
			}
			cfg.ADB.Command = CommandConfig{Raw: raw, Argv: argv}
		}
		if payload.ADB.SwipeDefaultMS != nil {
			cfg.ADB.SwipeDefaultMS = *payload.ADB.SwipeDefaultMS
		}
	}

	if payload.Log != nil && payload.Log.Level != nil {
		cfg.Log.Level = strings.ToLower(strings.TrimSpace(*payload.Log.Level))
	}

	return nil
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

// wrapJSONDecodeError prefixes decode errors with a position. Standardize
// blanks comments in place, so offsets still match the original file.
func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
