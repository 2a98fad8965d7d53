package domain

type Capability string

const (
	CapabilityTranscription Capability = "transcription"
	CapabilityResponse      Capability = "response"
	CapabilitySpeech        Capability = "speech"
)

var Capabilities = []Capability{
	CapabilityTranscription,
	CapabilityResponse,
	CapabilitySpeech,
}

// ProviderChoice is the provider picked for one capability.
type ProviderChoice struct {
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model,omitempty" yaml:"model"`
	Voice    string `json:"voice,omitempty" yaml:"voice"`
}

// Selection is an immutable snapshot of the provider choices. It is
// replaced as a whole when settings are applied.
type Selection struct {
	Transcription ProviderChoice `json:"transcription"`
	Response      ProviderChoice `json:"response"`
	Speech        ProviderChoice `json:"speech"`
}

func (s Selection) For(c Capability) ProviderChoice {
	switch c {
	case CapabilityTranscription:
		return s.Transcription
	case CapabilityResponse:
		return s.Response
	case CapabilitySpeech:
		return s.Speech
	default:
		return ProviderChoice{}
	}
}
