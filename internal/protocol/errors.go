package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Request layer.
	ErrBadRequest = "E_BAD_REQUEST"
	ErrTooLarge   = "E_TOO_LARGE"
	ErrBadConfig  = "E_BAD_CONFIG"
	ErrNotFound   = "E_NOT_FOUND"
	ErrNoStore    = "E_NO_STORE"
	ErrInternal   = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrBadRequest:      {},
	ErrTooLarge:        {},
	ErrBadConfig:       {},
	ErrNotFound:        {},
	ErrNoStore:         {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
