package securedfinance

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
)

// deploymentFile is the subset of a contract deployment artifact we read.
type deploymentFile struct {
	Address string `json:"address"`
}

// LoadAddress reads the "address" field of a contract deployment JSON file.
func LoadAddress(path string) (common.Address, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return common.Address{}, fmt.Errorf("securedfinance: read %s: %w", path, err)
	}
	var f deploymentFile
	if err := json.Unmarshal(data, &f); err != nil {
		return common.Address{}, fmt.Errorf("securedfinance: parse %s: %w", path, err)
	}
	return ParseAddress(f.Address)
}

// ParseAddress validates a hex address.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("securedfinance: invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}
