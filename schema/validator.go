package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed theme_record.schema.json
var themeRecordSchemaJSON string

// ThemeRecord is the wire shape of one research theme.
type ThemeRecord struct {
	ID           string         `json:"id"`
	Statement    string         `json:"statement"`
	Subject      string         `json:"subject,omitempty"`
	Origin       string         `json:"origin,omitempty"`
	InterviewIDs []string       `json:"interview_ids,omitempty"`
	Language     *string        `json:"language,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateThemeRecord decodes one record strictly, checks it against the
// embedded schema and then applies checks JSON schema cannot express.
func ValidateThemeRecord(payload json.RawMessage) (*ThemeRecord, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode record JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize record JSON: %w", err)
	}

	var record ThemeRecord
	if err := json.Unmarshal(normalized, &record); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}

	if err := validateSemantics(&record); err != nil {
		return nil, err
	}

	return &record, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("theme_record.schema.json", strings.NewReader(themeRecordSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("theme_record.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("record is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("record contains trailing content")
	}

	return value, nil
}

func validateSemantics(record *ThemeRecord) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}

	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("id must not be empty")
	}
	if strings.TrimSpace(record.Statement) == "" {
		return fmt.Errorf("statement must not be empty")
	}

	for i, interviewID := range record.InterviewIDs {
		if strings.TrimSpace(interviewID) == "" {
			return fmt.Errorf("interview_ids[%d] must not be empty", i)
		}
	}

	if strings.TrimSpace(record.Origin) == "interview" && len(record.InterviewIDs) != 1 {
		return fmt.Errorf("interview-origin themes must reference exactly one interview (got %d)", len(record.InterviewIDs))
	}

	return nil
}
