package application_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spark-assistant/internal/application"
	"spark-assistant/internal/dispatch"
	"spark-assistant/internal/domain"
)

const preamble = "You are spark."

type staticCreds map[string]string

func (s staticCreds) APIKey(provider string) string { return s[provider] }

type recordingObserver struct {
	mu     sync.Mutex
	events []application.Event
}

func (o *recordingObserver) Publish(e application.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

func (o *recordingObserver) ofType(t application.EventType) []application.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []application.Event
	for _, e := range o.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fileRecorder struct {
	content []byte
	err     error
}

func (r *fileRecorder) Record(_ context.Context, path string) error {
	if r.err != nil {
		return r.err
	}
	return os.WriteFile(path, r.content, 0o644)
}

type blockingPlayer struct {
	started chan string
	stopped chan struct{}
}

func (p *blockingPlayer) Play(ctx context.Context, path string) error {
	p.started <- path
	<-ctx.Done()
	close(p.stopped)
	return ctx.Err()
}

type fixture struct {
	conv     *application.Conversation
	observer *recordingObserver
	dir      string

	transcript string
	transcribe error
	reply      string
	respondErr error
	synthErr   error

	responseRequests []dispatch.ResponseRequest
	speechRequests   []dispatch.SpeechRequest
	transcribeCalls  int
}

func newFixture(t *testing.T, player application.Player) *fixture {
	t.Helper()

	f := &fixture{
		observer:   &recordingObserver{},
		dir:        t.TempDir(),
		transcript: "what's the weather",
		reply:      "It is sunny.",
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := dispatch.New(logger)

	d.RegisterTranscriber("fake", func(_ context.Context, req dispatch.TranscriptionRequest) (string, error) {
		f.transcribeCalls++
		return f.transcript, f.transcribe
	})
	d.RegisterResponder("fake", func(_ context.Context, req dispatch.ResponseRequest) (string, error) {
		f.responseRequests = append(f.responseRequests, req)
		return f.reply, f.respondErr
	})
	d.RegisterResponder("other", func(_ context.Context, req dispatch.ResponseRequest) (string, error) {
		f.responseRequests = append(f.responseRequests, req)
		return "from other", nil
	})
	d.RegisterSynthesizer("fake", domain.AudioFormatMP3, func(_ context.Context, req dispatch.SpeechRequest) error {
		f.speechRequests = append(f.speechRequests, req)
		if f.synthErr != nil {
			return f.synthErr
		}
		return os.WriteFile(req.OutputPath, []byte("ID3"+req.Text), 0o644)
	})
	d.RegisterSynthesizer("wavfake", domain.AudioFormatWAV, func(_ context.Context, req dispatch.SpeechRequest) error {
		f.speechRequests = append(f.speechRequests, req)
		return os.WriteFile(req.OutputPath, []byte("RIFF"), 0o644)
	})

	sel := domain.Selection{
		Transcription: domain.ProviderChoice{Provider: "fake"},
		Response:      domain.ProviderChoice{Provider: "fake", Model: "m1"},
		Speech:        domain.ProviderChoice{Provider: "fake", Voice: "nova"},
	}

	conv, err := application.NewConversation(
		d,
		staticCreds{"fake": "secret"},
		&fileRecorder{content: []byte("RIFFrecorded")},
		application.NewPlayback(player, f.observer, logger),
		f.observer,
		sel,
		application.Options{
			SystemPrompt: preamble,
			Greeting:     "Hello! I'm Spark",
			Farewell:     "Goodbye! It was nice chatting with you.",
			ExitPhrases:  []string{"goodbye", "arrivederci"},
			OutputDir:    f.dir,
			LocalModels:  map[domain.Capability]string{domain.CapabilityResponse: "/models/llama.gguf"},
			TurnTimeout:  5 * time.Second,
		},
		logger,
	)
	require.NoError(t, err)

	f.conv = conv
	return f
}

func (f *fixture) writeAudio(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, "upload.wav")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestConversation_HandleText_AppendsExchange(t *testing.T) {
	f := newFixture(t, nil)
	before := f.conv.History()

	result, err := f.conv.HandleText(context.Background(), "  what's the weather  ")
	require.NoError(t, err)

	assert.Equal(t, "what's the weather", result.Input)
	assert.Equal(t, "It is sunny.", result.Reply)
	assert.Equal(t, domain.AudioFormatMP3, result.Format)
	assert.Equal(t, filepath.Join(f.dir, "output.mp3"), result.AudioPath)

	want := append(before,
		domain.UserMessage("what's the weather"),
		domain.AssistantMessage("It is sunny."),
	)
	assert.Equal(t, want, f.conv.History())

	require.Len(t, f.responseRequests, 1)
	req := f.responseRequests[0]
	assert.Equal(t, append(before, domain.UserMessage("what's the weather")), req.History)
	assert.Equal(t, "secret", req.APIKey)
	assert.Equal(t, "m1", req.Model)
	assert.Equal(t, "/models/llama.gguf", req.LocalModelPath)

	require.Len(t, f.speechRequests, 1)
	assert.Equal(t, "It is sunny.", f.speechRequests[0].Text)
	assert.Equal(t, "nova", f.speechRequests[0].Voice)

	data, err := os.ReadFile(result.AudioPath)
	require.NoError(t, err)
	assert.Equal(t, "ID3It is sunny.", string(data))

	transcript := f.conv.Transcript()
	require.Len(t, transcript, 3)
	assert.Equal(t, domain.AssistantMessage("Hello! I'm Spark"), transcript[0])

	latest, ok := f.conv.LatestAudio()
	require.True(t, ok)
	assert.Equal(t, result.AudioPath, latest.AudioPath)

	assert.Equal(t, application.StateIdle, f.conv.State())
	assert.NotEmpty(t, f.observer.ofType(application.EventMessage))
}

func TestConversation_HistoryStartsWithPreamble(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, []domain.Message{domain.SystemMessage(preamble)}, f.conv.History())
}

func TestConversation_ExitPhrase(t *testing.T) {
	f := newFixture(t, nil)

	result, err := f.conv.HandleText(context.Background(), "OK, Goodbye now")
	require.NoError(t, err)

	assert.True(t, result.Farewell)
	assert.Equal(t, "Goodbye! It was nice chatting with you.", result.Reply)
	assert.Empty(t, result.AudioPath)

	assert.Empty(t, f.responseRequests, "response provider must not be called")
	assert.Empty(t, f.speechRequests, "speech provider must not be called")

	history := f.conv.History()
	require.Len(t, history, 3)
	assert.Equal(t, domain.UserMessage("OK, Goodbye now"), history[1])
	assert.Equal(t, domain.AssistantMessage("Goodbye! It was nice chatting with you."), history[2])
}

func TestConversation_ResponseFailureLeavesHistory(t *testing.T) {
	f := newFixture(t, nil)
	f.respondErr = domain.NewError(domain.KindAuth, errors.New("401"))

	_, err := f.conv.HandleText(context.Background(), "hello")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuth)

	var de *domain.DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.CapabilityResponse, de.Capability)
	assert.Equal(t, "fake", de.Provider)

	assert.Equal(t, []domain.Message{domain.SystemMessage(preamble)}, f.conv.History())
	assert.Len(t, f.conv.Transcript(), 1)
	assert.Empty(t, f.speechRequests)

	errs := f.observer.ofType(application.EventError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error, "API key was rejected")
}

func TestConversation_EmptyReplyIsFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.reply = "   "

	_, err := f.conv.HandleText(context.Background(), "hello")

	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
	assert.Len(t, f.conv.History(), 1)
}

func TestConversation_SpeechFailureKeepsReply(t *testing.T) {
	f := newFixture(t, nil)
	f.synthErr = domain.NewError(domain.KindServiceUnavailable, errors.New("503"))

	result, err := f.conv.HandleText(context.Background(), "hello")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
	require.NotNil(t, result)
	assert.Equal(t, "It is sunny.", result.Reply)
	assert.Empty(t, result.AudioPath)

	assert.Len(t, f.conv.History(), 3)

	_, ok := f.conv.LatestAudio()
	assert.False(t, ok)
}

func TestConversation_HandleAudio(t *testing.T) {
	f := newFixture(t, nil)

	result, err := f.conv.HandleAudio(context.Background(), f.writeAudio(t, "RIFFdata"))
	require.NoError(t, err)

	assert.Equal(t, "what's the weather", result.Input)
	assert.Len(t, f.conv.History(), 3)
}

func TestConversation_HandleAudio_NoInput(t *testing.T) {
	f := newFixture(t, nil)
	f.transcript = "  "

	_, err := f.conv.HandleAudio(context.Background(), f.writeAudio(t, "RIFFsilence"))

	assert.ErrorIs(t, err, domain.ErrNoInput)
	assert.Len(t, f.conv.History(), 1)
	assert.Empty(t, f.responseRequests)
}

func TestConversation_HandleAudio_EmptyFile(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.conv.HandleAudio(context.Background(), f.writeAudio(t, ""))

	assert.ErrorIs(t, err, domain.ErrInvalidAudio)
	assert.Equal(t, 0, f.transcribeCalls)
	assert.Len(t, f.conv.History(), 1)
}

func TestConversation_Record(t *testing.T) {
	f := newFixture(t, nil)

	result, err := f.conv.Record(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "It is sunny.", result.Reply)

	recorded, err := os.ReadFile(filepath.Join(f.dir, "input.wav"))
	require.NoError(t, err)
	assert.Equal(t, "RIFFrecorded", string(recorded))

	states := f.observer.ofType(application.EventState)
	require.NotEmpty(t, states)
	assert.Equal(t, application.StateCapturing, states[0].State)
	assert.Equal(t, application.StateIdle, states[len(states)-1].State)
}

func TestConversation_Busy(t *testing.T) {
	f := newFixture(t, nil)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := dispatch.New(logger)
	entered := make(chan struct{})
	release := make(chan struct{})

	d.RegisterTranscriber("fake", func(context.Context, dispatch.TranscriptionRequest) (string, error) { return "x", nil })
	d.RegisterResponder("fake", func(context.Context, dispatch.ResponseRequest) (string, error) {
		close(entered)
		<-release
		return "done", nil
	})
	d.RegisterSynthesizer("fake", domain.AudioFormatWAV, func(_ context.Context, req dispatch.SpeechRequest) error {
		return os.WriteFile(req.OutputPath, []byte("RIFF"), 0o644)
	})

	conv, err := application.NewConversation(d, staticCreds{}, nil, application.NewPlayback(nil, nil, logger), nil,
		domain.Selection{
			Transcription: domain.ProviderChoice{Provider: "fake"},
			Response:      domain.ProviderChoice{Provider: "fake"},
			Speech:        domain.ProviderChoice{Provider: "fake"},
		},
		application.Options{OutputDir: f.dir},
		logger,
	)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := conv.HandleText(context.Background(), "first")
		done <- err
	}()

	<-entered
	_, err = conv.HandleText(context.Background(), "second")
	assert.ErrorIs(t, err, application.ErrBusy)

	close(release)
	require.NoError(t, <-done)
	assert.Len(t, conv.History(), 2)
}

func TestConversation_ApplySettings(t *testing.T) {
	f := newFixture(t, nil)
	original := f.conv.Settings()

	bad := original
	bad.Response.Provider = "nonexistent"
	err := f.conv.ApplySettings(bad)
	assert.ErrorIs(t, err, domain.ErrUnknownProvider)
	assert.Equal(t, original, f.conv.Settings())

	good := original
	good.Response.Provider = "other"
	good.Speech.Provider = "wavfake"
	require.NoError(t, f.conv.ApplySettings(good))
	assert.Equal(t, good, f.conv.Settings())

	result, err := f.conv.HandleText(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "from other", result.Reply)
	assert.Equal(t, filepath.Join(f.dir, "output.wav"), result.AudioPath)
}

func TestConversation_StopCancelsPlayback(t *testing.T) {
	player := &blockingPlayer{started: make(chan string, 1), stopped: make(chan struct{})}
	f := newFixture(t, player)

	result, err := f.conv.HandleText(context.Background(), "hello")
	require.NoError(t, err)

	select {
	case path := <-player.started:
		assert.Equal(t, result.AudioPath, path)
	case <-time.After(2 * time.Second):
		t.Fatal("playback did not start")
	}

	assert.True(t, f.conv.Playing())
	assert.True(t, f.conv.Stop())

	select {
	case <-player.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("player was not cancelled")
	}

	assert.False(t, f.conv.Playing())
	assert.False(t, f.conv.Stop())
}

func TestNewConversation_RejectsUnknownProvider(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := dispatch.New(logger)

	_, err := application.NewConversation(d, staticCreds{}, nil, application.NewPlayback(nil, nil, logger), nil,
		domain.Selection{Transcription: domain.ProviderChoice{Provider: "groq"}},
		application.Options{OutputDir: t.TempDir()},
		logger,
	)
	assert.ErrorIs(t, err, domain.ErrUnknownProvider)
}
