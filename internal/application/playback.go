package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Playback runs one player at a time in the background. Starting a new
// file or calling Stop cancels whatever is playing.
type Playback struct {
	player   Player
	observer Observer
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPlayback returns a controller for player. A nil player disables
// server-side playback; the web page still plays the latest file.
func NewPlayback(player Player, observer Observer, logger *slog.Logger) *Playback {
	if observer == nil {
		observer = NoopObserver{}
	}
	return &Playback{player: player, observer: observer, logger: logger}
}

func (p *Playback) Start(path string) {
	if p.player == nil {
		return
	}

	p.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	p.observer.Publish(Event{Type: EventPlayback, Audio: path, Playing: true})

	go func() {
		defer close(done)
		defer cancel()

		err := p.player.Play(ctx, path)
		switch {
		case err == nil:
			p.logger.Debug("playback finished", "path", path)
		case errors.Is(err, context.Canceled):
			p.logger.Info("playback stopped", "path", path)
		default:
			p.logger.Error("playing audio", "path", path, "error", err)
		}

		p.observer.Publish(Event{Type: EventPlayback, Audio: path, Playing: false})
	}()
}

// Stop cancels the current playback and waits for the player to return.
// It reports whether anything was playing.
func (p *Playback) Stop() bool {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return false
	}

	playing := true
	select {
	case <-done:
		playing = false
	default:
	}

	cancel()
	<-done
	return playing
}

func (p *Playback) Playing() bool {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()

	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}
