package cow

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// AppDataVersion is the app data schema version written into orders
const AppDataVersion = "1.1.0"

// AppData is the order metadata document. Orders carry its keccak256 hash.
type AppData struct {
	AppCode  string   `json:"appCode"`
	Metadata struct{} `json:"metadata"`
	Version  string   `json:"version"`
}

// NewAppData returns the serialized document for appCode and its hash
func NewAppData(appCode string) (string, common.Hash, error) {
	doc, err := json.Marshal(AppData{AppCode: appCode, Version: AppDataVersion})
	if err != nil {
		return "", common.Hash{}, fmt.Errorf("failed to encode app data: %w", err)
	}
	return string(doc), crypto.Keccak256Hash(doc), nil
}
