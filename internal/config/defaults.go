package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed defaults.json
var embeddedDefaultsJSON []byte

//go:embed defaults.schema.json
var embeddedDefaultsSchemaJSON []byte

const defaultsSchemaURL = "https://schemas.3leaps.dev/bundlefetch/defaults.schema.json"

// Defaults are the build-time values shipped inside the binary: where
// bundles and releases live and how the extension is named.
type Defaults struct {
	Schema    string    `json:"schema"`
	Version   int       `json:"version"`
	Endpoints Endpoints `json:"endpoints"`
	Repo      Repo      `json:"repo"`
	Bundle    struct {
		ExecutableName string `json:"executable_name"`
	} `json:"bundle"`
	Host struct {
		PackageName    string `json:"package_name"`
		SettingsPrefix string `json:"settings_prefix"`
	} `json:"host"`
}

var (
	defaultsOnce sync.Once
	defaults     *Defaults
	defaultsErr  error
)

// EmbeddedDefaults parses and validates the embedded defaults once.
func EmbeddedDefaults() (*Defaults, error) {
	defaultsOnce.Do(func() {
		defaults, defaultsErr = parseDefaults(embeddedDefaultsJSON)
	})
	return defaults, defaultsErr
}

func parseDefaults(data []byte) (*Defaults, error) {
	if len(data) == 0 {
		return nil, errors.New("embedded defaults are empty")
	}

	sch, err := compileDefaultsSchema()
	if err != nil {
		return nil, err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse embedded defaults: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return nil, fmt.Errorf("embedded defaults do not match schema: %w", err)
	}

	var d Defaults
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse embedded defaults: %w", err)
	}
	if err := validateDefaults(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

func compileDefaultsSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(embeddedDefaultsSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("internal error: parse defaults schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(defaultsSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("internal error: add defaults schema: %w", err)
	}
	sch, err := c.Compile(defaultsSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("internal error: compile defaults schema: %w", err)
	}
	return sch, nil
}

// validateDefaults checks what the schema cannot: URLs must parse with a host.
func validateDefaults(d *Defaults) error {
	var problems []string

	problems = append(problems, endpointProblems(d.Endpoints)...)
	if strings.ContainsAny(d.Bundle.ExecutableName, `/\`) {
		problems = append(problems, fmt.Sprintf("bundle.executable_name: must be a bare file name (got %q)", d.Bundle.ExecutableName))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid embedded defaults:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

func endpointProblems(e Endpoints) []string {
	var problems []string
	for _, f := range []struct{ key, raw string }{
		{"endpoints.update_base_url", e.UpdateBaseURL},
		{"endpoints.api_base_url", e.APIBaseURL},
		{"endpoints.download_base_url", e.DownloadBaseURL},
	} {
		if err := checkBaseURL(f.raw); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", f.key, err))
		}
	}
	return problems
}

func checkBaseURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
