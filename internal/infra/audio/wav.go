package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const wavHeaderSize = 44

// PCMFormat describes interleaved little-endian integer PCM.
type PCMFormat struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// Mono16 is 16-bit mono PCM at the given rate.
func Mono16(sampleRate int) PCMFormat {
	return PCMFormat{SampleRate: sampleRate, Channels: 1, BitsPerSample: 16}
}

func (f PCMFormat) blockAlign() int {
	return f.Channels * f.BitsPerSample / 8
}

// WriteWAVHeader writes a 44-byte RIFF header for dataSize bytes of PCM.
func WriteWAVHeader(w io.Writer, f PCMFormat, dataSize int) error {
	hdr := make([]byte, wavHeaderSize)
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(36+dataSize))
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(f.SampleRate*f.blockAlign()))
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(f.blockAlign()))
	binary.LittleEndian.PutUint16(hdr[34:36], uint16(f.BitsPerSample))
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], uint32(dataSize))

	_, err := w.Write(hdr)
	return err
}

// EncodeWAV wraps raw PCM in a WAV container.
func EncodeWAV(pcm []byte, f PCMFormat) []byte {
	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + len(pcm))
	WriteWAVHeader(&buf, f, len(pcm))
	buf.Write(pcm)
	return buf.Bytes()
}

// SamplesToPCM converts int16 samples to little-endian bytes.
func SamplesToPCM(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// WAVFile writes PCM chunks to disk as they arrive. The header carries
// placeholder sizes until Close patches them.
type WAVFile struct {
	f       *os.File
	format  PCMFormat
	written int
}

func CreateWAV(path string, f PCMFormat) (*WAVFile, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating wav file: %w", err)
	}

	if err := WriteWAVHeader(file, f, 0); err != nil {
		file.Close()
		return nil, fmt.Errorf("writing wav header: %w", err)
	}

	return &WAVFile{f: file, format: f}, nil
}

func (w *WAVFile) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	w.written += n
	return n, err
}

// DataSize is the number of PCM bytes written so far.
func (w *WAVFile) DataSize() int {
	return w.written
}

func (w *WAVFile) Close() error {
	sizes := make([]byte, 4)

	binary.LittleEndian.PutUint32(sizes, uint32(36+w.written))
	if _, err := w.f.WriteAt(sizes, 4); err != nil {
		w.f.Close()
		return fmt.Errorf("patching riff size: %w", err)
	}

	binary.LittleEndian.PutUint32(sizes, uint32(w.written))
	if _, err := w.f.WriteAt(sizes, 40); err != nil {
		w.f.Close()
		return fmt.Errorf("patching data size: %w", err)
	}

	return w.f.Close()
}

var ErrNotWAV = errors.New("not a PCM wav file")

// ReadWAV returns the format and PCM payload of a WAV file. Chunks other
// than fmt and data are skipped.
func ReadWAV(path string) (PCMFormat, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PCMFormat{}, nil, fmt.Errorf("reading wav: %w", err)
	}

	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return PCMFormat{}, nil, ErrNotWAV
	}

	var (
		format  PCMFormat
		haveFmt bool
	)
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return PCMFormat{}, nil, ErrNotWAV
			}
			if binary.LittleEndian.Uint16(data[body:]) != 1 {
				return PCMFormat{}, nil, fmt.Errorf("%w: compressed audio", ErrNotWAV)
			}
			format.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			format.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			format.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14:]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return PCMFormat{}, nil, ErrNotWAV
			}
			end := body + size
			// streamed files may still carry a zero or oversized length
			if size == 0 || end > len(data) {
				end = len(data)
			}
			return format, data[body:end], nil
		}

		off = body + size + size%2
	}

	return PCMFormat{}, nil, ErrNotWAV
}
