package loaders

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic uint32 = 0x07230203

type BinaryLoader struct{}

func (bl *BinaryLoader) Load(path string, assetType ResourceType, params interface{}) (*Resource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	res, err := DecodeSPIRV(buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &Resource{
		Name:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		FullPath: path,
		Type:     assetType,
		DataSize: uint64(len(buf)),
		Data:     res,
	}, nil
}

func (bl *BinaryLoader) Unload(*Resource) error {
	return nil
}

// DecodeSPIRV turns a little-endian SPIR-V blob into words and checks the
// magic number.
func DecodeSPIRV(b []byte) ([]uint32, error) {
	if len(b) < 20 || len(b)%4 != 0 {
		return nil, fmt.Errorf("spir-v blob of %d bytes is not a whole module", len(b))
	}
	words := bytesToBytecode(b)
	if words[0] != SPIRVMagic {
		return nil, fmt.Errorf("bad spir-v magic %#08x", words[0])
	}
	return words, nil
}

func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := range byteCode {
		byteCode[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return byteCode
}
