package protocol

import "encoding/json"

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name,omitempty"`
	MaxQueue        int    `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	ConfigDigest    string `json:"config_digest"`
	MaxPoints       int    `json:"max_points"`
	MaxGridSide     int    `json:"max_grid_side"`
}

// SAMPLE (client -> server)
type SampleMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	ReqID           string       `json:"req_id,omitempty"`
	Seed            uint64       `json:"seed"`
	Points          [][2]float64 `json:"points"`
}

// SAMPLE_GRID (client -> server)
type SampleGridMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	ReqID           string  `json:"req_id,omitempty"`
	Seed            uint64  `json:"seed"`
	X0              float64 `json:"x0"`
	Z0              float64 `json:"z0"`
	Step            float64 `json:"step"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
}

type WeightedBiome struct {
	Weight float64 `json:"weight"`
	Biome  string  `json:"biome"`
}

// SAMPLE_RESULT (server -> client). Results follow request order; grids are
// row-major.
type SampleResultMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	ReqID           string            `json:"req_id"`
	ConfigDigest    string            `json:"config_digest"`
	Width           int               `json:"width,omitempty"`
	Height          int               `json:"height,omitempty"`
	Results         [][]WeightedBiome `json:"results"`
}

// CONFIGURE (client -> server). Config is a sampler config record.
type ConfigureMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	ReqID           string          `json:"req_id,omitempty"`
	Config          json.RawMessage `json:"config"`
}

// GET_CONFIG (client -> server)
type GetConfigMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
}

// CONFIG (server -> client)
type ConfigMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	ReqID           string          `json:"req_id"`
	Digest          string          `json:"digest"`
	Config          json.RawMessage `json:"config"`
}

// SAVE_PRESET / LOAD_PRESET (client -> server)
type PresetMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	Name            string `json:"name"`
}

// PRESET_SAVED (server -> client)
type PresetSavedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	Name            string `json:"name"`
	ID              string `json:"id"`
	Digest          string `json:"digest"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
