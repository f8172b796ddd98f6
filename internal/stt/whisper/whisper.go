// Package whisper implements stt.Transcriber against Whisper-compatible HTTP
// endpoints.
//
// Two API flavors are supported:
//   - "openai": OpenAI-compatible /v1/audio/transcriptions (OpenAI, whisper.cpp
//     server, faster-whisper). Multipart field "file", optional bearer key.
//   - "asr":    ahmetoner/whisper-asr-webservice (POST /asr with query params,
//     multipart field "audio_file").
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/nadzzz/voiceloop/internal/config"
	"github.com/nadzzz/voiceloop/internal/stt"
)

// Transcriber sends recordings to a Whisper endpoint.
type Transcriber struct {
	endpoint        string
	flavor          string
	apiKey          string
	model           string
	defaultLanguage string
	vadFilter       bool
	client          *http.Client
}

var _ stt.Transcriber = (*Transcriber)(nil)

// New creates a transcriber from config.
func New(cfg config.STTConfig) *Transcriber {
	flavor := cfg.Type
	if flavor == "" {
		flavor = "openai"
	}
	return &Transcriber{
		endpoint:        cfg.Endpoint,
		flavor:          flavor,
		apiKey:          cfg.APIKey,
		model:           cfg.Model,
		defaultLanguage: cfg.Language,
		vadFilter:       cfg.VADFilter,
		client:          &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the backend identifier.
func (t *Transcriber) Name() string { return "whisper-" + t.flavor }

// Transcribe sends audio to the configured endpoint.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, contentType string, opts stt.TranscribeOpts) (*stt.Result, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("empty audio for transcription")
	}
	if opts.Language == "" {
		opts.Language = t.defaultLanguage
	}
	if t.flavor == "asr" {
		return t.transcribeASR(ctx, audio, contentType, opts)
	}
	return t.transcribeOpenAI(ctx, audio, contentType, opts)
}

// transcribeASR handles the ahmetoner/whisper-asr-webservice format.
// API: POST /asr?task=transcribe&language=en&output=json&vad_filter=true
func (t *Transcriber) transcribeASR(ctx context.Context, audio []byte, contentType string, opts stt.TranscribeOpts) (*stt.Result, error) {
	body, formType, err := multipartAudio("audio_file", audio, contentType, nil)
	if err != nil {
		return nil, err
	}

	q := make(url.Values)
	q.Set("task", "transcribe")
	q.Set("output", "json")
	q.Set("encode", "true")
	if opts.Language != "" {
		q.Set("language", opts.Language)
	}
	if opts.Prompt != "" {
		q.Set("initial_prompt", opts.Prompt)
	}
	if t.vadFilter {
		q.Set("vad_filter", "true")
	}

	sep := "?"
	if strings.Contains(t.endpoint, "?") {
		sep = "&"
	}
	reqURL := t.endpoint + sep + q.Encode()
	slog.Debug("whisper-asr request", "url", reqURL)
	return t.do(ctx, reqURL, body, formType)
}

// transcribeOpenAI handles OpenAI-compatible whisper endpoints.
func (t *Transcriber) transcribeOpenAI(ctx context.Context, audio []byte, contentType string, opts stt.TranscribeOpts) (*stt.Result, error) {
	fields := map[string]string{"response_format": "verbose_json"}
	if t.model != "" {
		fields["model"] = t.model
	}
	if opts.Language != "" {
		fields["language"] = opts.Language
	}
	if opts.Prompt != "" {
		fields["prompt"] = opts.Prompt
	}
	body, formType, err := multipartAudio("file", audio, contentType, fields)
	if err != nil {
		return nil, err
	}
	return t.do(ctx, t.endpoint, body, formType)
}

func (t *Transcriber) do(ctx context.Context, reqURL string, body *bytes.Buffer, formType string) (*stt.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", formType)
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("transcription failed (status %d): %s", resp.StatusCode, respBody)
	}

	var result struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding transcription: %w", err)
	}

	lang := normalizeLanguage(result.Language)
	slog.Debug("transcription complete", "backend", t.Name(), "text_length", len(result.Text), "language", lang)
	return &stt.Result{
		Text:     strings.TrimSpace(result.Text),
		Language: lang,
	}, nil
}

// Close is a no-op; connections are per-request.
func (t *Transcriber) Close() error { return nil }

func multipartAudio(field string, audio []byte, contentType string, fields map[string]string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile(field, "audio"+extFromContentType(contentType))
	if err != nil {
		return nil, "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", fmt.Errorf("writing audio: %w", err)
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("writing field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

func extFromContentType(ct string) string {
	switch {
	case strings.Contains(ct, "ogg"):
		return ".ogg"
	case strings.Contains(ct, "mp3"), strings.Contains(ct, "mpeg"):
		return ".mp3"
	case strings.Contains(ct, "flac"):
		return ".flac"
	case strings.Contains(ct, "webm"):
		return ".webm"
	default:
		return ".wav"
	}
}

// normalizeLanguage converts full language names (as returned by OpenAI) to ISO-639-1 codes.
func normalizeLanguage(lang string) string {
	if len(lang) == 2 {
		return strings.ToLower(lang)
	}
	known := map[string]string{
		"english":    "en",
		"french":     "fr",
		"spanish":    "es",
		"german":     "de",
		"italian":    "it",
		"portuguese": "pt",
		"dutch":      "nl",
		"polish":     "pl",
		"russian":    "ru",
		"japanese":   "ja",
		"korean":     "ko",
		"chinese":    "zh",
	}
	if code, ok := known[strings.ToLower(lang)]; ok {
		return code
	}
	return strings.ToLower(lang)
}
