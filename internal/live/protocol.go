package live

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"

	"google.golang.org/genai"

	"github.com/satriahrh/oralexam/domain"
	"github.com/satriahrh/oralexam/domain/entities"
	"github.com/satriahrh/oralexam/internal/audio"
)

const (
	// InputSampleRate is the rate of PCM sent to the model
	InputSampleRate = 16000
	// OutputSampleRate is the rate of PCM the model answers with
	OutputSampleRate = 24000

	inputMIMEType = "audio/pcm;rate=16000"
	pcmMIMEPrefix = "audio/pcm"
)

// ClientMessage is one outbound frame. Exactly one field is set.
type ClientMessage struct {
	Setup         *Setup         `json:"setup,omitempty"`
	RealtimeInput *RealtimeInput `json:"realtimeInput,omitempty"`
}

// Setup is the handshake sent right after the connection opens
type Setup struct {
	Model             string           `json:"model"`
	GenerationConfig  GenerationConfig `json:"generationConfig"`
	SystemInstruction *genai.Content   `json:"systemInstruction,omitempty"`
	Tools             []*genai.Tool    `json:"tools,omitempty"`
}

// GenerationConfig selects the response modality and voice
type GenerationConfig struct {
	ResponseModalities []genai.Modality    `json:"responseModalities"`
	SpeechConfig       *genai.SpeechConfig `json:"speechConfig,omitempty"`
}

// RealtimeInput carries streamed microphone audio
type RealtimeInput struct {
	MediaChunks []*genai.Blob `json:"mediaChunks"`
}

// SetupOptions configures the handshake
type SetupOptions struct {
	Model        string
	Voice        string
	LanguageCode string
	Instruction  string
}

// NewSetup builds the handshake message declaring the report_result tool
func NewSetup(opts SetupOptions) (*ClientMessage, error) {
	tool, err := ReportResultTool()
	if err != nil {
		return nil, err
	}

	model := opts.Model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}

	speech := &genai.SpeechConfig{LanguageCode: opts.LanguageCode}
	if opts.Voice != "" {
		speech.VoiceConfig = &genai.VoiceConfig{
			PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: opts.Voice},
		}
	}

	instruction := opts.Instruction
	if instruction == "" {
		instruction = DefaultInstruction
	}

	return &ClientMessage{
		Setup: &Setup{
			Model: model,
			GenerationConfig: GenerationConfig{
				ResponseModalities: []genai.Modality{genai.ModalityAudio},
				SpeechConfig:       speech,
			},
			SystemInstruction: &genai.Content{
				Parts: []*genai.Part{{Text: instruction}},
			},
			Tools: []*genai.Tool{tool},
		},
	}, nil
}

// NewAudioInput frames one outgoing chunk
func NewAudioInput(chunk entities.OutgoingAudioChunk) *ClientMessage {
	return &ClientMessage{
		RealtimeInput: &RealtimeInput{
			MediaChunks: []*genai.Blob{{
				MIMEType: inputMIMEType,
				Data:     chunk.PCM(),
			}},
		},
	}
}

// Message is an inbound event. The concrete types are
// AudioPart, ToolCall, SetupComplete, TurnComplete, Interrupted and Unknown.
type Message interface {
	isMessage()
}

// AudioPart is one inline audio payload of a model turn
type AudioPart struct {
	MIMEType string
	Data     string
}

// ToolCall carries function invocations requested by the model
type ToolCall struct {
	Calls []*genai.FunctionCall
}

// SetupComplete acknowledges the handshake
type SetupComplete struct{}

// TurnComplete marks the end of a model turn
type TurnComplete struct{}

// Interrupted reports that the model dropped the rest of its turn
type Interrupted struct{}

// Unknown is any frame that matched no known shape
type Unknown struct {
	Raw []byte
}

func (AudioPart) isMessage()     {}
func (ToolCall) isMessage()      {}
func (SetupComplete) isMessage() {}
func (TurnComplete) isMessage()  {}
func (Interrupted) isMessage()   {}
func (Unknown) isMessage()       {}

type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete"`
	ServerContent *serverContent   `json:"serverContent"`
	ToolCall      *serverToolCall  `json:"toolCall"`
}

type serverContent struct {
	ModelTurn *struct {
		Parts []struct {
			InlineData *struct {
				MIMEType string `json:"mimeType"`
				Data     string `json:"data"`
			} `json:"inlineData"`
		} `json:"parts"`
	} `json:"modelTurn"`
	TurnComplete bool `json:"turnComplete"`
	Interrupted  bool `json:"interrupted"`
}

type serverToolCall struct {
	FunctionCalls []*genai.FunctionCall `json:"functionCalls"`
}

// Parse demultiplexes one inbound frame into events, in the order they must be handled.
// Only a frame that is not a JSON object is an error.
func Parse(data []byte) ([]Message, error) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, &domain.ProtocolParseError{Err: err}
	}

	var out []Message
	if msg.SetupComplete != nil {
		out = append(out, SetupComplete{})
	}
	if sc := msg.ServerContent; sc != nil {
		if sc.Interrupted {
			out = append(out, Interrupted{})
		}
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData == nil || !strings.HasPrefix(part.InlineData.MIMEType, pcmMIMEPrefix) {
					continue
				}
				out = append(out, AudioPart{MIMEType: part.InlineData.MIMEType, Data: part.InlineData.Data})
			}
		}
		if sc.TurnComplete {
			out = append(out, TurnComplete{})
		}
	}
	if msg.ToolCall != nil && len(msg.ToolCall.FunctionCalls) > 0 {
		out = append(out, ToolCall{Calls: msg.ToolCall.FunctionCalls})
	}

	if len(out) == 0 {
		out = append(out, Unknown{Raw: data})
	}
	return out, nil
}

// Decode turns the payload into a playback chunk
func (p AudioPart) Decode() (entities.PlaybackChunk, error) {
	raw, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		return entities.PlaybackChunk{}, &domain.DecodeError{MIMEType: p.MIMEType, Err: err}
	}
	samples, err := audio.DecodePCM16(raw)
	if err != nil {
		return entities.PlaybackChunk{}, &domain.DecodeError{MIMEType: p.MIMEType, Err: err}
	}
	return entities.PlaybackChunk{Samples: samples, SampleRate: SampleRateOf(p.MIMEType)}, nil
}

// SampleRateOf reads the rate parameter of a PCM MIME type, defaulting to OutputSampleRate
func SampleRateOf(mimeType string) int {
	for _, param := range strings.Split(mimeType, ";")[1:] {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || key != "rate" {
			continue
		}
		if rate, err := strconv.Atoi(value); err == nil && rate > 0 {
			return rate
		}
	}
	return OutputSampleRate
}
