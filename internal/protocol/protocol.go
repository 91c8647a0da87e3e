package protocol

import (
	"encoding/json"
	"fmt"
)

const Version = "1.0"

// Message types.
const (
	TypeHello       = "HELLO"
	TypeWelcome     = "WELCOME"
	TypeCatalog     = "CATALOG"
	TypeChunk       = "CHUNK"
	TypeUnload      = "UNLOAD"
	TypeBlockUpdate = "BLOCK_UPDATE"
	TypeSelf        = "SELF"
	TypeError       = "ERROR"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

var decoders = map[string]func([]byte) (any, error){
	TypeHello:       decodeAs[HelloMsg],
	TypeWelcome:     decodeAs[WelcomeMsg],
	TypeCatalog:     decodeAs[CatalogMsg],
	TypeChunk:       decodeAs[ChunkMsg],
	TypeUnload:      decodeAs[UnloadMsg],
	TypeBlockUpdate: decodeAs[BlockUpdateMsg],
	TypeSelf:        decodeAs[SelfMsg],
	TypeError:       decodeAs[ErrorMsg],
}

// Decode parses a full message and returns it as one of the *Msg value types.
func Decode(b []byte) (any, error) {
	base, err := DecodeBase(b)
	if err != nil {
		return nil, err
	}
	dec, ok := decoders[base.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, base.Type)
	}
	m, err := dec(b)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", base.Type, err)
	}
	return m, nil
}

func decodeAs[T any](b []byte) (any, error) {
	var m T
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
