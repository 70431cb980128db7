// Package piper implements tts.Speaker using a Piper Wyoming protocol server.
//
// Piper is a fast, local neural text-to-speech system. The linuxserver/piper
// container exposes the Wyoming protocol on TCP port 10200. Each utterance is
// synthesized into a WAV file under the output directory and, when a player
// command is configured, played with it before Speak returns.
//
// Wyoming protocol format (per event):
//
//	<json_length> <payload_length>\n
//	<json_bytes>\n
//	<payload_bytes>   (if payload_length > 0)
package piper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nadzzz/jarvis/internal/config"
	"github.com/nadzzz/jarvis/internal/tts"
)

// defaultVoices maps ISO-639-1 language codes to Piper voice model names.
var defaultVoices = map[string]string{
	"en": "en_US-ryan-medium",
	"fr": "fr_FR-siwis-medium",
	"es": "es_ES-davefx-medium",
	"de": "de_DE-thorsten-medium",
	"it": "it_IT-riccardo-x_low",
	"hi": "hi_IN-pratham-medium",
}

// Speaker implements tts.Speaker using the Wyoming protocol.
//
// The Wyoming synthesize event carries only text and voice, so Utterance
// Rate, Pitch and Volume are ignored: every personality sounds like the
// voice model's native delivery. Volume is left to the player.
type Speaker struct {
	endpoint  string            // default host:port of the Piper Wyoming server
	endpoints map[string]string // language -> host:port for per-language Piper instances
	voices    map[string]string // language -> voice name
	outputDir string
	player    string
}

// New creates a Piper speaker from config.
func New(cfg config.PiperConfig) *Speaker {
	voices := make(map[string]string, len(defaultVoices))
	for k, v := range defaultVoices {
		voices[k] = v
	}
	for k, v := range cfg.Voices {
		voices[k] = v
	}

	endpoints := make(map[string]string, len(cfg.Endpoints))
	for lang, ep := range cfg.Endpoints {
		endpoints[lang] = cleanEndpoint(ep)
	}

	outputDir := cfg.OutputDir
	if outputDir == "" {
		outputDir = os.TempDir()
	}

	return &Speaker{
		endpoint:  cleanEndpoint(cfg.Endpoint),
		endpoints: endpoints,
		voices:    voices,
		outputDir: outputDir,
		player:    cfg.Player,
	}
}

func cleanEndpoint(ep string) string {
	ep = strings.TrimPrefix(ep, "tcp://")
	return strings.TrimPrefix(ep, "http://")
}

// Voices implements tts.Speaker. The list is sorted by language.
func (s *Speaker) Voices() []tts.Voice {
	out := make([]tts.Voice, 0, len(s.voices))
	for lang, name := range s.voices {
		out = append(out, tts.Voice{Name: name, Lang: lang})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Lang < out[j].Lang })
	return out
}

// Speak implements tts.Speaker.
func (s *Speaker) Speak(ctx context.Context, u tts.Utterance) error {
	lang := "en"
	voice := ""
	if u.Voice != nil {
		voice = u.Voice.Name
		if u.Voice.Lang != "" {
			lang = strings.ToLower(strings.SplitN(u.Voice.Lang, "-", 2)[0])
		}
	}
	if voice == "" {
		voice = s.voices[lang]
	}

	wav, err := s.synthesize(ctx, u.Text, voice, lang)
	if err != nil {
		return err
	}

	path := filepath.Join(s.outputDir, "utterance-"+uuid.NewString()+".wav")
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		return fmt.Errorf("writing wav: %w", err)
	}
	slog.Debug("piper utterance written", "path", path, "bytes", len(wav))

	if s.player == "" {
		return nil
	}
	if err := exec.CommandContext(ctx, s.player, path).Run(); err != nil {
		return fmt.Errorf("playing %s: %w", path, err)
	}
	return nil
}

// Close is a no-op: connections are per-request.
func (s *Speaker) Close() error { return nil }

// synthesize sends text to the Piper server and returns the audio as WAV.
func (s *Speaker) synthesize(ctx context.Context, text, voice, lang string) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text for synthesis")
	}

	endpoint := s.endpoints[lang]
	if endpoint == "" {
		endpoint = s.endpoint
	}
	if endpoint == "" {
		return nil, fmt.Errorf("no piper endpoint configured for language %q", lang)
	}

	slog.Debug("piper synthesize", "text_length", len(text), "voice", voice, "language", lang, "endpoint", endpoint)

	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("connecting to piper: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(30 * time.Second))
	}

	data := map[string]any{"text": text}
	if voice != "" {
		data["voice"] = map[string]any{"name": voice}
	}
	if err := writeEvent(conn, wyomingEvent{Type: "synthesize", Data: data}, nil); err != nil {
		return nil, fmt.Errorf("sending synthesize event: %w", err)
	}

	// audio-start -> audio-chunk* -> audio-stop
	var (
		pcmBuf     bytes.Buffer
		sampleRate = 22050
		channels   = 1
		width      = 2
	)

	for {
		evt, payload, err := readEvent(conn)
		if err != nil {
			return nil, fmt.Errorf("reading piper event: %w", err)
		}

		switch evt.Type {
		case "audio-start":
			if rate, ok := evt.Data["rate"].(float64); ok {
				sampleRate = int(rate)
			}
			if ch, ok := evt.Data["channels"].(float64); ok {
				channels = int(ch)
			}
			if w, ok := evt.Data["width"].(float64); ok {
				width = int(w)
			}

		case "audio-chunk":
			pcmBuf.Write(payload)

		case "audio-stop":
			return pcmToWAV(pcmBuf.Bytes(), sampleRate, channels, width), nil

		case "error":
			msg := "unknown error"
			if text, ok := evt.Data["text"].(string); ok {
				msg = text
			}
			return nil, fmt.Errorf("piper error: %s", msg)

		default:
			slog.Debug("piper unknown event", "type", evt.Type)
		}
	}
}

type wyomingEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// writeEvent sends a Wyoming event over the connection.
func writeEvent(w io.Writer, evt wyomingEvent, payload []byte) error {
	jsonBytes, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d %d\n", len(jsonBytes), len(payload))
	buf.Write(jsonBytes)
	buf.WriteByte('\n')
	buf.Write(payload)

	_, err = w.Write(buf.Bytes())
	return err
}

// readEvent reads a Wyoming event from the connection.
func readEvent(r io.Reader) (*wyomingEvent, []byte, error) {
	headerBuf := make([]byte, 0, 64)
	oneByte := make([]byte, 1)
	for {
		if _, err := io.ReadFull(r, oneByte); err != nil {
			return nil, nil, fmt.Errorf("reading header: %w", err)
		}
		if oneByte[0] == '\n' {
			break
		}
		headerBuf = append(headerBuf, oneByte[0])
	}

	parts := strings.SplitN(string(headerBuf), " ", 2)
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("invalid wyoming header: %q", string(headerBuf))
	}
	jsonLen, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return nil, nil, fmt.Errorf("parsing json_length: %w", err)
	}
	payloadLen, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, nil, fmt.Errorf("parsing payload_length: %w", err)
	}

	jsonBuf := make([]byte, jsonLen+1) // trailing newline
	if _, err := io.ReadFull(r, jsonBuf); err != nil {
		return nil, nil, fmt.Errorf("reading json: %w", err)
	}

	var evt wyomingEvent
	if err := json.Unmarshal(jsonBuf[:jsonLen], &evt); err != nil {
		return nil, nil, fmt.Errorf("unmarshalling event: %w", err)
	}

	var payload []byte
	if payloadLen > 0 {
		payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, nil, fmt.Errorf("reading payload: %w", err)
		}
	}
	return &evt, payload, nil
}

// pcmToWAV wraps raw PCM data in a WAV container.
func pcmToWAV(pcm []byte, sampleRate, channels, bytesPerSample int) []byte {
	buf := &bytes.Buffer{}
	buf.Grow(44 + len(pcm))

	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate*channels*bytesPerSample))
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels*bytesPerSample))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bytesPerSample*8))

	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}
