package protocol

import (
	"encoding/json"
	"fmt"

	"kashimo.ai/internal/sim/chunkmath"
	"kashimo.ai/internal/sim/mathx"
)

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	AgentName       string            `json:"agent_name"`
	Capabilities    HelloCapabilities `json:"capabilities"`
	Auth            *HelloAuth        `json:"auth,omitempty"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
	// ViewRadius is in chunks.
	ViewRadius int `json:"view_radius,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

func NewHello(name string, caps HelloCapabilities) HelloMsg {
	return HelloMsg{Type: TypeHello, ProtocolVersion: Version, AgentName: name, Capabilities: caps}
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id,omitempty"`
	WorldParams     WorldParams    `json:"world_params"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type WorldParams struct {
	ChunkSize [3]int `json:"chunk_size"`
	MinY      int    `json:"min_y"`
	MaxY      int    `json:"max_y"`
	Seed      int64  `json:"seed"`
}

type CatalogDigests struct {
	BlockPalette DigestRef `json:"block_palette"`
	CropsDigest  string    `json:"crops_digest,omitempty"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// CATALOG (server -> client): a chunk of catalog data.
// Each catalog is sent as a single part.
type CatalogMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	Name            string          `json:"name"`   // e.g. "block_palette"
	Digest          string          `json:"digest"` // sha256 hex
	Part            int             `json:"part"`
	TotalParts      int             `json:"total_parts"`
	Data            json.RawMessage `json:"data"`
}

const CatalogBlockPalette = "block_palette"

// CHUNK (server -> client): one full 16x16x16 section.
type ChunkMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Chunk           [3]int `json:"chunk"`
	Encoding        string `json:"encoding"`
	Data            string `json:"data"`
}

func (m ChunkMsg) Key() chunkmath.ChunkKey {
	return chunkmath.ChunkKey{X: m.Chunk[0], Y: m.Chunk[1], Z: m.Chunk[2]}
}

// NewChunk compresses a section of palette ids.
func NewChunk(key chunkmath.ChunkKey, blocks []uint16) (ChunkMsg, error) {
	return NewChunkEncoded(key, blocks, EncodingZstdU16)
}

func NewChunkEncoded(key chunkmath.ChunkKey, blocks []uint16, encoding string) (ChunkMsg, error) {
	var data string
	switch encoding {
	case EncodingZstdU16:
		d, err := EncodeBlocks(blocks)
		if err != nil {
			return ChunkMsg{}, err
		}
		data = d
	case EncodingRLE:
		data = EncodeRLE(blocks)
	default:
		return ChunkMsg{}, fmt.Errorf("%w: unknown encoding %q", ErrEncoding, encoding)
	}
	return ChunkMsg{
		Type:            TypeChunk,
		ProtocolVersion: Version,
		Chunk:           [3]int{key.X, key.Y, key.Z},
		Encoding:        encoding,
		Data:            data,
	}, nil
}

// Blocks decodes the section payload.
func (m ChunkMsg) Blocks() ([]uint16, error) {
	const volume = chunkmath.Size * chunkmath.Size * chunkmath.Size
	switch m.Encoding {
	case EncodingZstdU16:
		return DecodeBlocks(m.Data, volume)
	case EncodingRLE:
		return DecodeRLE(m.Data, volume)
	}
	return nil, fmt.Errorf("%w: unknown encoding %q", ErrEncoding, m.Encoding)
}

// UNLOAD (server -> client)
type UnloadMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Chunk           [3]int `json:"chunk"`
}

func (m UnloadMsg) Key() chunkmath.ChunkKey {
	return chunkmath.ChunkKey{X: m.Chunk[0], Y: m.Chunk[1], Z: m.Chunk[2]}
}

func NewUnload(key chunkmath.ChunkKey) UnloadMsg {
	return UnloadMsg{Type: TypeUnload, ProtocolVersion: Version, Chunk: [3]int{key.X, key.Y, key.Z}}
}

// BLOCK_UPDATE (server -> client). Old is omitted when the server does not know the
// previous state.
type BlockUpdateMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Tick            uint64  `json:"tick,omitempty"`
	Pos             [3]int  `json:"pos"`
	Old             *uint16 `json:"old,omitempty"`
	New             uint16  `json:"new"`
}

func (m BlockUpdateMsg) Position() mathx.Vec3 {
	return mathx.V(m.Pos[0], m.Pos[1], m.Pos[2])
}

func NewBlockUpdate(tick uint64, pos mathx.Vec3, old *uint16, id uint16) BlockUpdateMsg {
	return BlockUpdateMsg{
		Type:            TypeBlockUpdate,
		ProtocolVersion: Version,
		Tick:            tick,
		Pos:             [3]int{pos.X, pos.Y, pos.Z},
		Old:             old,
		New:             id,
	}
}

// SELF (server -> client): where the bot stands.
type SelfMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Tick            uint64     `json:"tick,omitempty"`
	Pos             [3]float64 `json:"pos"`
}

func (m SelfMsg) Point() mathx.Vec3f {
	return mathx.Vec3f{X: m.Pos[0], Y: m.Pos[1], Z: m.Pos[2]}
}

func NewSelf(tick uint64, p mathx.Vec3f) SelfMsg {
	return SelfMsg{Type: TypeSelf, ProtocolVersion: Version, Tick: tick, Pos: [3]float64{p.X, p.Y, p.Z}}
}

// ERROR (either direction)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}

func NewError(code, msg string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: msg}
}
