package live

import (
	"github.com/buildtrack/voice-expense-service/internal/intent"
)

// CaptureMimeType is the media chunk MIME type for 16 kHz mono capture audio.
const CaptureMimeType = "audio/pcm;rate=16000"

// ClientMessage is the envelope for all messages sent to the conversational
// endpoint. Exactly one field is set per message.
type ClientMessage struct {
	Setup         *Setup         `json:"setup,omitempty"`
	RealtimeInput *RealtimeInput `json:"realtimeInput,omitempty"`
	ToolResponse  *ToolResponse  `json:"toolResponse,omitempty"`
}

// Setup is the first message of a session. The server acknowledges it with
// setupComplete before any audio is exchanged.
type Setup struct {
	Model             string            `json:"model"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	Tools             []Tool            `json:"tools,omitempty"`
}

// GenerationConfig selects the response modalities for the session.
type GenerationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

// Tool carries the function declarations offered to the endpoint.
type Tool struct {
	FunctionDeclarations []intent.Declaration `json:"functionDeclarations,omitempty"`
}

// Content is a role-tagged list of parts.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

// Part is either text or inline binary data.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData carries base64-encoded media with its MIME type.
type InlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

// RealtimeInput streams capture audio upstream.
type RealtimeInput struct {
	MediaChunks []MediaChunk `json:"mediaChunks,omitempty"`
}

// MediaChunk is one base64-encoded audio frame.
type MediaChunk struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// ToolResponse answers one or more function calls so the endpoint can
// resume its turn.
type ToolResponse struct {
	FunctionResponses []FunctionResponse `json:"functionResponses,omitempty"`
}

// FunctionResponse is the outcome of a single function call.
type FunctionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name,omitempty"`
	Response map[string]any `json:"response,omitempty"`
}

// ServerMessage is the envelope for all messages received from the
// endpoint. At most one field is set per message.
type ServerMessage struct {
	SetupComplete *SetupComplete `json:"setupComplete,omitempty"`
	ServerContent *ServerContent `json:"serverContent,omitempty"`
	ToolCall      *ToolCallMsg   `json:"toolCall,omitempty"`
	GoAway        *GoAway        `json:"goAway,omitempty"`
}

// SetupComplete acknowledges the setup message.
type SetupComplete struct{}

// ServerContent carries model output: speech segments, transcripts, and
// turn-boundary signals.
type ServerContent struct {
	ModelTurn           *Content    `json:"modelTurn,omitempty"`
	TurnComplete        bool        `json:"turnComplete,omitempty"`
	Interrupted         bool        `json:"interrupted,omitempty"`
	InputTranscription  *Transcript `json:"inputTranscription,omitempty"`
	OutputTranscription *Transcript `json:"outputTranscription,omitempty"`
}

// Transcript is a rolling transcription fragment. Each fragment replaces
// the previous one for its direction.
type Transcript struct {
	Text string `json:"text,omitempty"`
}

// ToolCallMsg requests execution of one or more declared functions.
type ToolCallMsg struct {
	FunctionCalls []FunctionCall `json:"functionCalls,omitempty"`
}

// FunctionCall is a single function invocation with its arguments.
type FunctionCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name,omitempty"`
	Args map[string]any `json:"args,omitempty"`
}

// GoAway warns that the server will close the connection shortly.
type GoAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}
