package protocol

import "errors"

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrEncoding    = errors.New("bad chunk encoding")
)

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Feed state.
	ErrCatalogMismatch = "E_CATALOG_MISMATCH"
	ErrChunkCorrupt    = "E_CHUNK_CORRUPT"
	ErrNotLoaded       = "E_NOT_LOADED"
	ErrRateLimit       = "E_RATE_LIMIT"
	ErrInternal        = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrCatalogMismatch: {},
	ErrChunkCorrupt:    {},
	ErrNotLoaded:       {},
	ErrRateLimit:       {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
