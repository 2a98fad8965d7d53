//go:build !portaudio
// +build !portaudio

package audio

import (
	"context"
	"fmt"
)

func captureDefaultInput(_ context.Context, _, _ int) ([]int16, error) {
	return nil, fmt.Errorf("microphone not available: rebuild with -tags portaudio")
}

// DevicePlayer stub when portaudio is not available
type DevicePlayer struct{}

func NewDevicePlayer() *DevicePlayer {
	return &DevicePlayer{}
}

func (p *DevicePlayer) Play(_ context.Context, _ string) error {
	return fmt.Errorf("device player not available: rebuild with -tags portaudio")
}
