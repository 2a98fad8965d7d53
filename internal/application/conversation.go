package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"

	"spark-assistant/internal/dispatch"
	"spark-assistant/internal/domain"
)

// ErrBusy is returned when a turn is requested while another one runs.
var ErrBusy = errors.New("a turn is already in progress")

type Options struct {
	SystemPrompt string
	Greeting     string
	Farewell     string
	ExitPhrases  []string
	OutputDir    string
	// LocalModels is the model file each local provider loads.
	LocalModels  map[domain.Capability]string
	TurnTimeout  time.Duration
}

// TurnResult describes a completed turn. AudioPath is empty when the turn
// produced no speech.
type TurnResult struct {
	ID        string             `json:"id"`
	Input     string             `json:"input"`
	Reply     string             `json:"reply"`
	AudioPath string             `json:"-"`
	Format    domain.AudioFormat `json:"format,omitempty"`
	Farewell  bool               `json:"farewell,omitempty"`
}

// Conversation runs capture -> transcribe -> respond -> speak turns for a
// single UI session. Turns are serialized; the history only changes when
// a reply was produced.
type Conversation struct {
	dispatcher Dispatcher
	creds      CredentialResolver
	recorder   Recorder
	playback   *Playback
	observer   Observer
	logger     *slog.Logger
	opts       Options

	turn sync.Mutex

	mu         sync.RWMutex
	history    *domain.History
	transcript []domain.Message
	selection  domain.Selection
	state      State
	lastAudio  *TurnResult
}

func NewConversation(
	dispatcher Dispatcher,
	creds CredentialResolver,
	recorder Recorder,
	playback *Playback,
	observer Observer,
	selection domain.Selection,
	opts Options,
	logger *slog.Logger,
) (*Conversation, error) {
	if err := dispatcher.Validate(selection); err != nil {
		return nil, fmt.Errorf("validating providers: %w", err)
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	if observer == nil {
		observer = NoopObserver{}
	}

	c := &Conversation{
		dispatcher: dispatcher,
		creds:      creds,
		recorder:   recorder,
		playback:   playback,
		observer:   observer,
		logger:     logger,
		opts:       opts,
		history:    domain.NewHistory(opts.SystemPrompt),
		selection:  selection,
		state:      StateIdle,
	}
	if opts.Greeting != "" {
		c.transcript = append(c.transcript, domain.AssistantMessage(opts.Greeting))
	}
	return c, nil
}

// HandleText runs a turn for typed input.
func (c *Conversation) HandleText(ctx context.Context, text string) (*TurnResult, error) {
	if !c.turn.TryLock() {
		return nil, ErrBusy
	}
	defer c.turn.Unlock()

	ctx, cancel := c.turnContext(ctx)
	defer cancel()

	id := xid.New().String()
	c.playback.Stop()
	defer c.setState(id, StateIdle)

	return c.respond(ctx, id, c.Settings(), text)
}

// HandleAudio runs a turn for audio that was already captured, such as a
// browser upload.
func (c *Conversation) HandleAudio(ctx context.Context, path string) (*TurnResult, error) {
	if !c.turn.TryLock() {
		return nil, ErrBusy
	}
	defer c.turn.Unlock()

	ctx, cancel := c.turnContext(ctx)
	defer cancel()

	id := xid.New().String()
	c.playback.Stop()
	defer c.setState(id, StateIdle)

	return c.fromAudio(ctx, id, path)
}

// Record captures from the server microphone and runs a turn.
func (c *Conversation) Record(ctx context.Context) (*TurnResult, error) {
	if c.recorder == nil {
		return nil, errors.New("no recorder configured")
	}
	if !c.turn.TryLock() {
		return nil, ErrBusy
	}
	defer c.turn.Unlock()

	ctx, cancel := c.turnContext(ctx)
	defer cancel()

	id := xid.New().String()
	c.playback.Stop()
	defer c.setState(id, StateIdle)

	c.setState(id, StateCapturing)
	path := filepath.Join(c.opts.OutputDir, "input.wav")
	if err := c.recorder.Record(ctx, path); err != nil {
		c.logger.Error("recording failed", "turn", id, "error", err)
		c.observer.Publish(Event{Type: EventError, TurnID: id, Error: "Recording failed: " + err.Error()})
		return nil, fmt.Errorf("recording: %w", err)
	}

	return c.fromAudio(ctx, id, path)
}

// Stop cancels playback. It reports whether anything was playing.
func (c *Conversation) Stop() bool {
	return c.playback.Stop()
}

// ApplySettings replaces the provider selection after checking every
// provider is registered. Turns already running keep their snapshot.
func (c *Conversation) ApplySettings(sel domain.Selection) error {
	if err := c.dispatcher.Validate(sel); err != nil {
		return err
	}

	c.mu.Lock()
	c.selection = sel
	c.mu.Unlock()

	c.logger.Info("settings applied",
		"transcription", sel.Transcription.Provider,
		"response", sel.Response.Provider,
		"speech", sel.Speech.Provider,
	)
	c.observer.Publish(Event{Type: EventSettings, Settings: &sel})
	return nil
}

func (c *Conversation) Settings() domain.Selection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selection
}

func (c *Conversation) History() []domain.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.history.Messages()
}

// Transcript is what the page shows: the greeting and every committed
// exchange, without the system preamble.
func (c *Conversation) Transcript() []domain.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Message(nil), c.transcript...)
}

func (c *Conversation) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// LatestAudio returns the last synthesized reply, if any.
func (c *Conversation) LatestAudio() (*TurnResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastAudio == nil {
		return nil, false
	}
	r := *c.lastAudio
	return &r, true
}

func (c *Conversation) Playing() bool {
	return c.playback.Playing()
}

func (c *Conversation) fromAudio(ctx context.Context, id, path string) (*TurnResult, error) {
	sel := c.Settings()

	c.setState(id, StateTranscribing)
	text, err := c.dispatcher.Transcribe(ctx, dispatch.TranscriptionRequest{
		Provider:       sel.Transcription.Provider,
		Model:          sel.Transcription.Model,
		APIKey:         c.creds.APIKey(sel.Transcription.Provider),
		AudioPath:      path,
		LocalModelPath: c.opts.LocalModels[domain.CapabilityTranscription],
	})
	if err != nil {
		c.fail(id, err)
		return nil, err
	}

	c.logger.Info("transcribed", "turn", id, "provider", sel.Transcription.Provider, "text", text)
	return c.respond(ctx, id, sel, text)
}

func (c *Conversation) respond(ctx context.Context, id string, sel domain.Selection, text string) (*TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		c.logger.Info("no input detected", "turn", id)
		c.observer.Publish(Event{Type: EventError, TurnID: id, Error: domain.Describe(domain.ErrNoInput)})
		return nil, domain.ErrNoInput
	}

	user := domain.UserMessage(text)
	result := &TurnResult{ID: id, Input: text}

	if c.isExit(text) {
		farewell := domain.AssistantMessage(c.opts.Farewell)
		if err := c.commit(id, user, farewell); err != nil {
			return nil, err
		}
		c.logger.Info("exit phrase detected", "turn", id)
		result.Reply = farewell.Content
		result.Farewell = true
		return result, nil
	}

	c.setState(id, StateResponding)
	reply, err := c.dispatcher.Respond(ctx, dispatch.ResponseRequest{
		Provider:       sel.Response.Provider,
		Model:          sel.Response.Model,
		APIKey:         c.creds.APIKey(sel.Response.Provider),
		History:        c.historyWith(user),
		LocalModelPath: c.opts.LocalModels[domain.CapabilityResponse],
	})
	if err == nil && strings.TrimSpace(reply) == "" {
		err = &domain.DispatchError{
			Kind:       domain.KindServiceUnavailable,
			Capability: domain.CapabilityResponse,
			Provider:   sel.Response.Provider,
			Err:        errors.New("empty reply"),
		}
	}
	if err != nil {
		c.fail(id, err)
		return nil, err
	}

	result.Reply = strings.TrimSpace(reply)
	if err := c.commit(id, user, domain.AssistantMessage(result.Reply)); err != nil {
		return nil, err
	}

	// the reply stays committed even if speech fails; only audio is missing
	c.setState(id, StateSynthesizing)
	path, format, err := c.speak(ctx, sel, result.Reply)
	if err != nil {
		c.fail(id, err)
		return result, err
	}

	result.AudioPath = path
	result.Format = format

	c.mu.Lock()
	last := *result
	c.lastAudio = &last
	c.mu.Unlock()

	c.observer.Publish(Event{Type: EventAudio, TurnID: id, Audio: string(format)})
	c.playback.Start(path)
	return result, nil
}

func (c *Conversation) speak(ctx context.Context, sel domain.Selection, text string) (string, domain.AudioFormat, error) {
	format, err := c.dispatcher.SpeechFormat(sel.Speech.Provider)
	if err != nil {
		return "", "", err
	}

	path := filepath.Join(c.opts.OutputDir, "output"+format.Extension())
	err = c.dispatcher.Synthesize(ctx, dispatch.SpeechRequest{
		Provider:       sel.Speech.Provider,
		Model:          sel.Speech.Model,
		Voice:          sel.Speech.Voice,
		APIKey:         c.creds.APIKey(sel.Speech.Provider),
		Text:           text,
		OutputPath:     path,
		LocalModelPath: c.opts.LocalModels[domain.CapabilitySpeech],
	})
	if err != nil {
		return "", "", err
	}
	return path, format, nil
}

func (c *Conversation) historyWith(msgs ...domain.Message) []domain.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.history.With(msgs...)
}

// commit appends a whole exchange to the history and the transcript.
func (c *Conversation) commit(id string, msgs ...domain.Message) error {
	c.mu.Lock()
	err := c.history.Append(msgs...)
	if err == nil {
		c.transcript = append(c.transcript, msgs...)
	}
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("committing turn: %w", err)
	}

	for i := range msgs {
		c.observer.Publish(Event{Type: EventMessage, TurnID: id, Message: &msgs[i]})
	}
	return nil
}

func (c *Conversation) fail(id string, err error) {
	var de *domain.DispatchError
	if errors.As(err, &de) {
		c.logger.Error("turn failed",
			"turn", id,
			"capability", de.Capability,
			"provider", de.Provider,
			"kind", de.Kind,
			"error", de.Err,
		)
	} else {
		c.logger.Error("turn failed", "turn", id, "error", err)
	}
	c.observer.Publish(Event{Type: EventError, TurnID: id, Error: domain.Describe(err)})
}

func (c *Conversation) setState(id string, s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()

	if changed {
		c.observer.Publish(Event{Type: EventState, TurnID: id, State: s})
	}
}

func (c *Conversation) isExit(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range c.opts.ExitPhrases {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

func (c *Conversation) turnContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.TurnTimeout > 0 {
		return context.WithTimeout(ctx, c.opts.TurnTimeout)
	}
	return context.WithCancel(ctx)
}
