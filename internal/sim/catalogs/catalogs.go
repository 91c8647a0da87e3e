package catalogs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type Catalogs struct {
	Crops  *CropCatalog
	Blocks *BlockCatalog
}

// Default is the built-in crop table with its generated block palette.
func Default() *Catalogs {
	crops := DefaultCrops()
	return &Catalogs{Crops: crops, Blocks: DefaultBlocks(crops)}
}

// Load reads crops.json and blocks.json from configDir. Either file may be missing, in
// which case the built-in table (or the palette generated from the crops) is used.
func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	crops, err := LoadCrops(filepath.Join(configDir, "crops.json"))
	switch {
	case err == nil:
		c.Crops = crops
	case os.IsNotExist(err):
		c.Crops = DefaultCrops()
	default:
		return nil, err
	}

	blocks, err := LoadBlocks(filepath.Join(configDir, "blocks.json"))
	switch {
	case err == nil:
		c.Blocks = blocks
	case os.IsNotExist(err):
		c.Blocks = DefaultBlocks(c.Crops)
	default:
		return nil, err
	}
	return &c, nil
}

func LoadCrops(path string) (*CropCatalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := parseCrops(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return c, nil
}

func LoadBlocks(path string) (*BlockCatalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := parseBlocks(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return c, nil
}

// ParseBlocks decodes a block palette as sent in a CATALOG message.
func ParseBlocks(raw []byte) (*BlockCatalog, error) {
	return parseBlocks(raw)
}

// MarshalCrops encodes a crop catalog in the crops.json layout.
func MarshalCrops(c *CropCatalog) ([]byte, error) {
	return json.Marshal(cropFileFrom(c))
}
