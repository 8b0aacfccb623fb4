package live

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/satriahrh/oralexam/domain"
	"github.com/satriahrh/oralexam/domain/entities"
)

func decodeJSON(t *testing.T, v interface{}) map[string]interface{} {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func field(t *testing.T, m map[string]interface{}, key string) map[string]interface{} {
	t.Helper()
	v, ok := m[key].(map[string]interface{})
	if !ok {
		t.Fatalf("expected object at %q, got %T", key, m[key])
	}
	return v
}

func TestNewSetup(t *testing.T) {
	msg, err := NewSetup(SetupOptions{
		Model:       "gemini-2.0-flash-live-001",
		Voice:       "Puck",
		Instruction: "be an examiner",
	})
	if err != nil {
		t.Fatalf("NewSetup() error: %v", err)
	}

	root := decodeJSON(t, msg)
	if _, ok := root["realtimeInput"]; ok {
		t.Error("setup frame must not carry realtimeInput")
	}
	setup := field(t, root, "setup")

	if setup["model"] != "models/gemini-2.0-flash-live-001" {
		t.Errorf("Expected model with models/ prefix, got %v", setup["model"])
	}

	gen := field(t, setup, "generationConfig")
	modalities, _ := gen["responseModalities"].([]interface{})
	if len(modalities) != 1 || modalities[0] != "AUDIO" {
		t.Errorf("Expected responseModalities [AUDIO], got %v", gen["responseModalities"])
	}
	voice := field(t, field(t, field(t, gen, "speechConfig"), "voiceConfig"), "prebuiltVoiceConfig")
	if voice["voiceName"] != "Puck" {
		t.Errorf("Expected voice Puck, got %v", voice["voiceName"])
	}

	parts, _ := field(t, setup, "systemInstruction")["parts"].([]interface{})
	if len(parts) != 1 || parts[0].(map[string]interface{})["text"] != "be an examiner" {
		t.Errorf("Expected instruction part, got %v", parts)
	}

	tools, _ := setup["tools"].([]interface{})
	if len(tools) != 1 {
		t.Fatalf("Expected one tool, got %d", len(tools))
	}
	decls, _ := tools[0].(map[string]interface{})["functionDeclarations"].([]interface{})
	if len(decls) != 1 {
		t.Fatalf("Expected one function declaration, got %d", len(decls))
	}
	decl := decls[0].(map[string]interface{})
	if decl["name"] != ReportResultName {
		t.Errorf("Expected %s, got %v", ReportResultName, decl["name"])
	}

	params := field(t, decl, "parameters")
	if params["type"] != "OBJECT" {
		t.Errorf("Expected OBJECT parameters, got %v", params["type"])
	}
	assertRequired(t, params, "level", "feedback")

	feedback := field(t, field(t, params, "properties"), "feedback")
	if feedback["type"] != "OBJECT" {
		t.Errorf("Expected feedback OBJECT, got %v", feedback["type"])
	}
	assertRequired(t, feedback, "strengths", "weaknesses", "tips")
}

func assertRequired(t *testing.T, schema map[string]interface{}, names ...string) {
	t.Helper()
	required, _ := schema["required"].([]interface{})
	have := make(map[string]bool, len(required))
	for _, r := range required {
		have[r.(string)] = true
	}
	for _, name := range names {
		if !have[name] {
			t.Errorf("Expected %q to be required, got %v", name, required)
		}
	}
}

func TestNewSetup_DefaultInstruction(t *testing.T) {
	msg, err := NewSetup(SetupOptions{Model: "models/x"})
	if err != nil {
		t.Fatalf("NewSetup() error: %v", err)
	}
	if msg.Setup.Model != "models/x" {
		t.Errorf("Expected model untouched, got %s", msg.Setup.Model)
	}
	if msg.Setup.SystemInstruction.Parts[0].Text != DefaultInstruction {
		t.Error("Expected default instruction")
	}
	if msg.Setup.GenerationConfig.SpeechConfig.VoiceConfig != nil {
		t.Error("Expected no voice config without a voice")
	}
}

func TestNewAudioInput(t *testing.T) {
	chunk := entities.NewOutgoingAudioChunk(0, 16000, []int16{1, -1, 32767})
	root := decodeJSON(t, NewAudioInput(chunk))

	media, _ := field(t, root, "realtimeInput")["mediaChunks"].([]interface{})
	if len(media) != 1 {
		t.Fatalf("Expected one media chunk, got %d", len(media))
	}
	m := media[0].(map[string]interface{})
	if m["mimeType"] != "audio/pcm;rate=16000" {
		t.Errorf("Expected pcm mime type, got %v", m["mimeType"])
	}
	data, err := base64.StdEncoding.DecodeString(m["data"].(string))
	if err != nil {
		t.Fatalf("data is not base64: %v", err)
	}
	want := []byte{0x01, 0x00, 0xff, 0xff, 0xff, 0x7f}
	if string(data) != string(want) {
		t.Errorf("Expected %v, got %v", want, data)
	}
}

func TestParse(t *testing.T) {
	pcm := base64.StdEncoding.EncodeToString([]byte{0x00, 0x40, 0x00, 0xc0})

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"setup complete", `{"setupComplete":{}}`, []string{"setup"}},
		{
			"audio",
			`{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"` + pcm + `"}}]}}}`,
			[]string{"audio"},
		},
		{
			"text part ignored",
			`{"serverContent":{"modelTurn":{"parts":[{"text":"hello"}]}}}`,
			[]string{"unknown"},
		},
		{
			"audio then turn complete",
			`{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm","data":"` + pcm + `"}},{"inlineData":{"mimeType":"audio/pcm","data":"` + pcm + `"}}]},"turnComplete":true}}`,
			[]string{"audio", "audio", "turn"},
		},
		{"interrupted", `{"serverContent":{"interrupted":true}}`, []string{"interrupted"}},
		{
			"tool call",
			`{"toolCall":{"functionCalls":[{"id":"1","name":"report_result","args":{"level":"B1"}}]}}`,
			[]string{"tool"},
		},
		{"unknown key", `{"usageMetadata":{"totalTokenCount":3}}`, []string{"unknown"}},
		{"empty tool call", `{"toolCall":{"functionCalls":[]}}`, []string{"unknown"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := Parse([]byte(tt.input))
			if err != nil {
				t.Fatalf("Parse() error: %v", err)
			}
			if len(msgs) != len(tt.want) {
				t.Fatalf("Expected %d messages, got %d (%#v)", len(tt.want), len(msgs), msgs)
			}
			for i, msg := range msgs {
				if got := kindOf(msg); got != tt.want[i] {
					t.Errorf("message %d: expected %s, got %s", i, tt.want[i], got)
				}
			}
		})
	}
}

func kindOf(msg Message) string {
	switch msg.(type) {
	case SetupComplete:
		return "setup"
	case AudioPart:
		return "audio"
	case TurnComplete:
		return "turn"
	case Interrupted:
		return "interrupted"
	case ToolCall:
		return "tool"
	case Unknown:
		return "unknown"
	}
	return "?"
}

func TestParse_ToolCallArgs(t *testing.T) {
	msgs, err := Parse([]byte(`{"toolCall":{"functionCalls":[{"id":"c1","name":"report_result","args":{"level":"B1","feedback":{"tips":"read more"}}}]}}`))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	call := msgs[0].(ToolCall).Calls[0]
	if call.Name != ReportResultName || call.ID != "c1" {
		t.Errorf("Expected report_result/c1, got %s/%s", call.Name, call.ID)
	}
	if call.Args["level"] != "B1" {
		t.Errorf("Expected level B1, got %v", call.Args["level"])
	}
}

func TestParse_InvalidJSON(t *testing.T) {
	_, err := Parse([]byte(`not json`))
	var perr *domain.ProtocolParseError
	if !errors.As(err, &perr) {
		t.Errorf("Expected ProtocolParseError, got %v", err)
	}
}

func TestAudioPart_Decode(t *testing.T) {
	part := AudioPart{
		MIMEType: "audio/pcm;rate=24000",
		Data:     base64.StdEncoding.EncodeToString([]byte{0x00, 0x40, 0x00, 0xc0}),
	}
	chunk, err := part.Decode()
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if chunk.SampleRate != 24000 {
		t.Errorf("Expected 24000, got %d", chunk.SampleRate)
	}
	if len(chunk.Samples) != 2 || chunk.Samples[0] != 0.5 || chunk.Samples[1] != -0.5 {
		t.Errorf("Expected [0.5 -0.5], got %v", chunk.Samples)
	}

	for name, bad := range map[string]AudioPart{
		"not base64": {MIMEType: "audio/pcm", Data: "%%%"},
		"odd length": {MIMEType: "audio/pcm", Data: base64.StdEncoding.EncodeToString([]byte{1, 2, 3})},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := bad.Decode()
			var derr *domain.DecodeError
			if !errors.As(err, &derr) {
				t.Errorf("Expected DecodeError, got %v", err)
			}
		})
	}
}

func TestSampleRateOf(t *testing.T) {
	tests := map[string]int{
		"audio/pcm;rate=24000":   24000,
		"audio/pcm; rate=16000":  16000,
		"audio/pcm":              OutputSampleRate,
		"audio/pcm;rate=garbage": OutputSampleRate,
		"audio/pcm;channels=1":   OutputSampleRate,
	}
	for mime, want := range tests {
		if got := SampleRateOf(mime); got != want {
			t.Errorf("SampleRateOf(%q) = %d, want %d", mime, got, want)
		}
	}
}
