// Package http implements the HTTP/WebSocket transport for voiceloop.
//
// The REST endpoints forward intents to the pipeline and expose the current
// state; GET /ws pushes a JSON state document on every change so browser
// clients can render the turn as it progresses.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/nadzzz/voiceloop/internal/pipeline"
	"github.com/nadzzz/voiceloop/internal/transport"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 30 * time.Second
)

// Transport implements transport.Transport over HTTP and WebSocket.
type Transport struct {
	port     int
	server   *http.Server
	upgrader websocket.Upgrader

	// playback runs in the background, detached from the request.
	playMu  sync.Mutex
	playing context.CancelFunc
	bg      sync.WaitGroup
}

var _ transport.Transport = (*Transport)(nil)

// New creates a new HTTP transport on the given port.
func New(port int) *Transport {
	return &Transport{
		port: port,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "http" }

// Handler returns the routes for p.
func (t *Transport) Handler(ctx context.Context, p transport.Pipeline) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /recording/start", func(w http.ResponseWriter, r *http.Request) { t.handleStart(w, r, p) })
	mux.HandleFunc("POST /recording/stop", func(w http.ResponseWriter, r *http.Request) { t.handleStop(w, r, p) })
	mux.HandleFunc("POST /reply/play", func(w http.ResponseWriter, r *http.Request) { t.handlePlay(ctx, w, r, p) })
	mux.HandleFunc("GET /reply/audio", func(w http.ResponseWriter, r *http.Request) { t.handleReplyAudio(w, r, p) })
	mux.HandleFunc("GET /transcript", func(w http.ResponseWriter, r *http.Request) { t.handleTranscript(w, r, p) })
	mux.HandleFunc("GET /state", func(w http.ResponseWriter, r *http.Request) { t.handleState(w, r, p) })
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) { t.handleWS(ctx, w, r, p) })

	// Swagger UI over the generated OpenAPI docs.
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	return mux
}

// Listen starts the HTTP server. It blocks until the context is cancelled.
func (t *Transport) Listen(ctx context.Context, p transport.Pipeline) error {
	t.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", t.port),
		Handler:           t.Handler(ctx, p),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("http transport listening", "port", t.port)

	go func() {
		<-ctx.Done()
		slog.Info("http transport shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.server.Shutdown(shutdownCtx)
	}()

	if err := t.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

// Close stops any playback in progress and waits for it to exit.
func (t *Transport) Close() error {
	t.playMu.Lock()
	if t.playing != nil {
		t.playing()
	}
	t.playMu.Unlock()
	t.bg.Wait()
	return nil
}

// errorResponse is the JSON body of every non-2xx response.
type errorResponse struct {
	Error string `json:"error" example:"capture: already recording"`
}

// startResponse is returned when a turn begins.
type startResponse struct {
	TurnID string `json:"turn_id" example:"6f1c2a9e-8d7b-4c1e-9a53-2f0b7d4e1c88"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// handleStart begins a new turn.
//
// @Summary     Start recording
// @Description Arms the microphone and begins a new turn. Any turn still being
// @Description transcribed, generated, or synthesized is superseded.
// @Tags        recording
// @Produce     json
// @Success     201  {object}  startResponse
// @Failure     409  {object}  errorResponse  "Already recording"
// @Failure     503  {object}  errorResponse  "Pipeline closed"
// @Router      /recording/start [post]
func (t *Transport) handleStart(w http.ResponseWriter, r *http.Request, p transport.Pipeline) {
	id, err := p.StartRecording(r.Context())
	switch {
	case errors.Is(err, pipeline.ErrAlreadyRecording):
		writeError(w, http.StatusConflict, err)
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeJSON(w, http.StatusCreated, startResponse{TurnID: id})
	}
}

// handleStop finalizes the recording.
//
// @Summary     Stop recording
// @Description Stops the microphone and starts transcription. An empty recording
// @Description ends the turn with the notice "No audio recorded.".
// @Tags        recording
// @Produce     json
// @Success     200  {object}  transport.State
// @Failure     409  {object}  errorResponse  "Not recording"
// @Router      /recording/stop [post]
func (t *Transport) handleStop(w http.ResponseWriter, r *http.Request, p transport.Pipeline) {
	if err := p.StopRecording(); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, transport.NewState(p.Snapshot()))
}

// handlePlay plays the synthesized reply on the server's audio output.
//
// @Summary     Play reply
// @Description Starts playback of the current reply in the background. A new
// @Description request replaces playback already in progress.
// @Tags        reply
// @Produce     json
// @Success     202
// @Failure     409  {object}  errorResponse  "Nothing to play"
// @Router      /reply/play [post]
func (t *Transport) handlePlay(ctx context.Context, w http.ResponseWriter, _ *http.Request, p transport.Pipeline) {
	if !p.Snapshot().Playable() {
		writeError(w, http.StatusConflict, pipeline.ErrNothingToPlay)
		return
	}

	playCtx, cancel := context.WithCancel(ctx)
	t.playMu.Lock()
	if t.playing != nil {
		t.playing()
	}
	t.playing = cancel
	t.playMu.Unlock()

	t.bg.Add(1)
	go func() {
		defer t.bg.Done()
		defer cancel()
		if err := p.PlayReply(playCtx); err != nil && playCtx.Err() == nil {
			slog.Error("reply playback failed", "error", err)
		}
	}()
	w.WriteHeader(http.StatusAccepted)
}

// handleReplyAudio returns the synthesized reply.
//
// @Summary     Download reply audio
// @Tags        reply
// @Produce     audio/wav
// @Success     200  {file}    binary
// @Failure     404  {object}  errorResponse  "No synthesized reply"
// @Router      /reply/audio [get]
func (t *Transport) handleReplyAudio(w http.ResponseWriter, _ *http.Request, p transport.Pipeline) {
	snap := p.Snapshot()
	if !snap.Playable() {
		writeError(w, http.StatusNotFound, pipeline.ErrNothingToPlay)
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", fmt.Sprint(len(snap.ReplyAudio)))
	_, _ = w.Write(snap.ReplyAudio)
}

// handleTranscript returns the transcript of the current turn.
//
// @Summary     Copy transcript
// @Tags        reply
// @Produce     plain
// @Success     200  {string}  string  "Transcript text"
// @Failure     404  {object}  errorResponse  "No transcript yet"
// @Router      /transcript [get]
func (t *Transport) handleTranscript(w http.ResponseWriter, _ *http.Request, p transport.Pipeline) {
	text, err := p.CopyTranscript()
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprint(w, text)
}

// handleState returns the current session state.
//
// @Summary     Session state
// @Tags        state
// @Produce     json
// @Success     200  {object}  transport.State
// @Router      /state [get]
func (t *Transport) handleState(w http.ResponseWriter, _ *http.Request, p transport.Pipeline) {
	writeJSON(w, http.StatusOK, transport.NewState(p.Snapshot()))
}

// handleWS streams state changes over a WebSocket.
//
// @Summary     Stream session state
// @Description Upgrades to a WebSocket and sends a transport.State JSON message
// @Description for the current state and after every change.
// @Tags        state
// @Success     101
// @Router      /ws [get]
func (t *Transport) handleWS(ctx context.Context, w http.ResponseWriter, r *http.Request, p transport.Pipeline) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, unsubscribe := p.Subscribe()
	defer unsubscribe()

	// Drain client frames so close and pong control messages are processed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	slog.Debug("websocket client connected", "remote", r.RemoteAddr)
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(wsWriteTimeout))
			return
		case <-closed:
			slog.Debug("websocket client disconnected", "remote", r.RemoteAddr)
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case snap, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(transport.NewState(snap)); err != nil {
				slog.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}
