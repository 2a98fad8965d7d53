//go:build portaudio
// +build portaudio

package audio

import (
	"context"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

const framesPerBuffer = 1024

func captureDefaultInput(ctx context.Context, sampleRate, frames int) ([]int16, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing portaudio: %w", err)
	}
	defer portaudio.Terminate()

	buffer := make([]int16, framesPerBuffer)

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), framesPerBuffer, buffer)
	if err != nil {
		return nil, fmt.Errorf("opening stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("starting stream: %w", err)
	}
	defer stream.Stop()

	samples := make([]int16, 0, frames)
	for len(samples) < frames {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := stream.Read(); err != nil {
			return nil, fmt.Errorf("reading from stream: %w", err)
		}
		samples = append(samples, buffer...)
	}

	return samples[:frames], nil
}

// DevicePlayer plays WAV files on the default output device.
type DevicePlayer struct{}

func NewDevicePlayer() *DevicePlayer {
	return &DevicePlayer{}
}

func (p *DevicePlayer) Play(ctx context.Context, path string) error {
	format, pcm, err := ReadWAV(path)
	if err != nil {
		return fmt.Errorf("device player: %w", err)
	}
	if format.BitsPerSample != 16 {
		return fmt.Errorf("device player: unsupported bit depth %d", format.BitsPerSample)
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}
	defer portaudio.Terminate()

	buffer := make([]int16, framesPerBuffer*format.Channels)

	stream, err := portaudio.OpenDefaultStream(0, format.Channels, float64(format.SampleRate), framesPerBuffer, buffer)
	if err != nil {
		return fmt.Errorf("opening stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("starting stream: %w", err)
	}
	defer stream.Stop()

	samples := pcmToSamples(pcm)
	for off := 0; off < len(samples); off += len(buffer) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n := copy(buffer, samples[off:])
		clear(buffer[n:])
		if err := stream.Write(); err != nil {
			return fmt.Errorf("writing to stream: %w", err)
		}
	}

	return nil
}

func pcmToSamples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
	}
	return out
}
