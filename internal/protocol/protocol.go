package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello        = "HELLO"
	TypeWelcome      = "WELCOME"
	TypeSample       = "SAMPLE"
	TypeSampleGrid   = "SAMPLE_GRID"
	TypeSampleResult = "SAMPLE_RESULT"
	TypeConfigure    = "CONFIGURE"
	TypeGetConfig    = "GET_CONFIG"
	TypeConfig       = "CONFIG"
	TypeSavePreset   = "SAVE_PRESET"
	TypeLoadPreset   = "LOAD_PRESET"
	TypePresetSaved  = "PRESET_SAVED"
	TypeError        = "ERROR"
)

// Request limits.
const (
	MaxSamplePoints = 4096
	MaxGridSide     = 256
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	ReqID           string `json:"req_id,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
