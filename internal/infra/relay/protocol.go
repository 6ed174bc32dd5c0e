package relay

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Client to relay.
const (
	msgStart = "start"
	msgStop  = "stop"
)

// Relay to client.
const (
	evReady        = "ready"
	evTranscript   = "transcript"
	evTurnComplete = "turn_complete"
	evError        = "error"
)

type clientMessage struct {
	Type string `json:"type"`
}

// Event is what the relay sends to its client.
type Event struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	IsFinal *bool  `json:"isFinal,omitempty"`
	Source  string `json:"source,omitempty"`
	Error   string `json:"error,omitempty"`
}

func readyEvent() Event        { return Event{Type: evReady} }
func turnCompleteEvent() Event { return Event{Type: evTurnComplete} }
func errorEvent(msg string) Event {
	return Event{Type: evError, Error: msg}
}

func transcriptEvent(text string, final bool) Event {
	return Event{Type: evTranscript, Text: text, IsFinal: &final, Source: "interviewer"}
}

// ---- upstream (BidiGenerateContent) ----

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type setupMessage struct {
	Setup setupBody `json:"setup"`
}

type setupBody struct {
	Model                   string           `json:"model"`
	GenerationConfig        generationConfig `json:"generation_config"`
	SystemInstruction       *content         `json:"system_instruction,omitempty"`
	InputAudioTranscription struct{}         `json:"input_audio_transcription"`
}

type generationConfig struct {
	ResponseModalities []string     `json:"response_modalities"`
	SpeechConfig       speechConfig `json:"speech_config"`
}

type speechConfig struct {
	LanguageCode string `json:"language_code,omitempty"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtime_input"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"media_chunks"`
}

type mediaChunk struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type upstreamMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
}

type serverContent struct {
	InputTranscription *transcription `json:"inputTranscription,omitempty"`
	TurnComplete       bool           `json:"turnComplete,omitempty"`
}

type transcription struct {
	Text     string `json:"text"`
	Unstable bool   `json:"unstable,omitempty"`
}

const systemInstruction = "Transcribe the interviewer's speech verbatim. Do not answer or comment."

func encodeSetup(model, language string) ([]byte, error) {
	msg := setupMessage{Setup: setupBody{
		Model: model,
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig:       speechConfig{LanguageCode: language},
		},
		SystemInstruction: &content{Parts: []part{{Text: systemInstruction}}},
	}}
	return json.Marshal(msg)
}

func encodeAudio(pcm []byte, sampleRate int) ([]byte, error) {
	msg := realtimeInputMessage{RealtimeInput: realtimeInput{MediaChunks: []mediaChunk{{
		MimeType: fmt.Sprintf("audio/pcm;rate=%d", sampleRate),
		Data:     base64.StdEncoding.EncodeToString(pcm),
	}}}}
	return json.Marshal(msg)
}

// translate maps one upstream message to zero or more client events. ready
// reports a handshake acknowledgement.
func translate(raw []byte) (events []Event, ready bool, err error) {
	var msg upstreamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, false, fmt.Errorf("decode upstream message: %w", err)
	}
	if msg.SetupComplete != nil {
		ready = true
	}
	if sc := msg.ServerContent; sc != nil {
		if t := sc.InputTranscription; t != nil && t.Text != "" {
			events = append(events, transcriptEvent(t.Text, !t.Unstable))
		}
		if sc.TurnComplete {
			events = append(events, turnCompleteEvent())
		}
	}
	return events, ready, nil
}
