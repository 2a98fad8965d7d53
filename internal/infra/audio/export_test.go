package audio

import "context"

func (m *Microphone) SetCapture(fn func(ctx context.Context, sampleRate, frames int) ([]int16, error)) {
	m.capture = fn
}
