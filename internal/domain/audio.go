package domain

type AudioFormat string

const (
	AudioFormatMP3 AudioFormat = "mp3"
	AudioFormatWAV AudioFormat = "wav"
)

func (f AudioFormat) Extension() string {
	return "." + string(f)
}

func (f AudioFormat) ContentType() string {
	switch f {
	case AudioFormatMP3:
		return "audio/mpeg"
	case AudioFormatWAV:
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
