package live

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/genai"
)

// ReportResultName is the only function the model may invoke
const ReportResultName = "report_result"

const reportResultDescription = "Report the final evaluation of the candidate's spoken level. " +
	"Call this exactly once, after the conversation has given enough evidence, and then stop speaking."

// ReportResultArgs are the arguments of a report_result call
type ReportResultArgs struct {
	Level    string       `json:"level" jsonschema:"CEFR band of the candidate, one of A1, A2, B1, B2, C1, C2"`
	Feedback FeedbackArgs `json:"feedback" jsonschema:"Feedback addressed to the candidate"`
}

// FeedbackArgs is the feedback object of a report_result call
type FeedbackArgs struct {
	Strengths  string `json:"strengths" jsonschema:"What the candidate did well"`
	Weaknesses string `json:"weaknesses" jsonschema:"Recurring mistakes or gaps"`
	Tips       string `json:"tips" jsonschema:"Concrete advice for improving"`
}

// ReportResultSchema derives the JSON schema of the report_result arguments.
// Unknown properties are tolerated so a chatty model does not invalidate an otherwise complete result.
func ReportResultSchema() (*jsonschema.Schema, error) {
	schema, err := jsonschema.For[ReportResultArgs](&jsonschema.ForOptions{})
	if err != nil {
		return nil, fmt.Errorf("derive %s schema: %w", ReportResultName, err)
	}
	allowAdditional(schema)
	return schema, nil
}

func allowAdditional(schema *jsonschema.Schema) {
	if schema == nil {
		return
	}
	schema.AdditionalProperties = nil
	for _, prop := range schema.Properties {
		allowAdditional(prop)
	}
}

// ReportResultTool builds the tool declaration sent in the handshake
func ReportResultTool() (*genai.Tool, error) {
	schema, err := ReportResultSchema()
	if err != nil {
		return nil, err
	}
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        ReportResultName,
				Description: reportResultDescription,
				Parameters:  toGenaiSchema(schema),
			},
		},
	}, nil
}

func toGenaiSchema(schema *jsonschema.Schema) *genai.Schema {
	if schema == nil {
		return nil
	}

	gs := genai.Schema{
		Description: schema.Description,
		Items:       toGenaiSchema(schema.Items),
		Required:    schema.Required,
	}
	if n := len(schema.Properties); n > 0 {
		gs.Properties = make(map[string]*genai.Schema, n)
		for k, prop := range schema.Properties {
			gs.Properties[k] = toGenaiSchema(prop)
		}
	}
	switch schema.Type {
	case "object":
		gs.Type = genai.TypeObject
	case "array":
		gs.Type = genai.TypeArray
	case "string":
		gs.Type = genai.TypeString
	case "number":
		gs.Type = genai.TypeNumber
	case "integer":
		gs.Type = genai.TypeInteger
	case "boolean":
		gs.Type = genai.TypeBoolean
	}
	return &gs
}
