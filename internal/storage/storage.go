package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNoRecord is returned when no run was journaled for a chain
var ErrNoRecord = errors.New("no recorded run")

// RunRecord is what the journal remembers about the last run on a chain
type RunRecord struct {
	Chain       string    `json:"chain"`
	SafeAddress string    `json:"safe_address"`
	BatchTx     string    `json:"batch_tx,omitempty"`
	OrderUID    string    `json:"order_uid,omitempty"`
	Scheme      string    `json:"scheme,omitempty"`
	PresignTx   string    `json:"presign_tx,omitempty"`
	Status      string    `json:"status,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Journal stores one RunRecord per chain as a JSON file under dir
type Journal struct {
	dir string
}

// GetAppDataDir returns the application data directory
func GetAppDataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".safe-swap"), nil
}

// NewJournal creates a journal in dir, or in the application data directory when dir is empty
func NewJournal(dir string) (*Journal, error) {
	if dir == "" {
		appDataDir, err := GetAppDataDir()
		if err != nil {
			return nil, err
		}
		dir = appDataDir
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create app data directory: %w", err)
	}
	return &Journal{dir: dir}, nil
}

// Dir returns the directory the journal writes to
func (j *Journal) Dir() string {
	return j.dir
}

func (j *Journal) path(chain string) string {
	return filepath.Join(j.dir, fmt.Sprintf("%s_last_run.json", chain))
}

// Save replaces the record for rec.Chain
func (j *Journal) Save(rec RunRecord) error {
	if rec.Chain == "" {
		return errors.New("run record has no chain")
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	jsonData, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}

	// write then rename so a crash never leaves half a file
	tmp := j.path(rec.Chain) + ".tmp"
	if err := os.WriteFile(tmp, jsonData, 0600); err != nil {
		return fmt.Errorf("failed to write run record: %w", err)
	}
	if err := os.Rename(tmp, j.path(rec.Chain)); err != nil {
		return fmt.Errorf("failed to write run record: %w", err)
	}
	return nil
}

// Last returns the record for chain, or ErrNoRecord
func (j *Journal) Last(chain string) (*RunRecord, error) {
	fileData, err := os.ReadFile(j.path(chain))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w for %s", ErrNoRecord, chain)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run record: %w", err)
	}

	var rec RunRecord
	if err := json.Unmarshal(fileData, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run record: %w", err)
	}
	return &rec, nil
}
