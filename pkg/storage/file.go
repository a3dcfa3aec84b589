package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/01000101/cloudbridge/pkg/cloud"
	"github.com/01000101/cloudbridge/pkg/models"
)

// FileStorage is a ledger of the resources created through the CLI, kept as
// a JSON file keyed by resource ref
type FileStorage struct {
	filePath string
	mutex    sync.RWMutex
}

// DefaultPath returns ~/.cloudbridge/resources.json
func DefaultPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "cloudbridge-resources.json")
	}
	return filepath.Join(homeDir, ".cloudbridge", "resources.json")
}

// NewFileStorage creates a ledger at filePath, DefaultPath() when empty
func NewFileStorage(filePath string) *FileStorage {
	if filePath == "" {
		filePath = DefaultPath()
	}

	// Ensure directory exists
	dir := filepath.Dir(filePath)
	_ = os.MkdirAll(dir, 0755)

	return &FileStorage{
		filePath: filePath,
	}
}

// Path returns the location of the ledger file
func (fs *FileStorage) Path() string {
	return fs.filePath
}

// StorageRecord represents the structure stored in the file
type StorageRecord struct {
	Resources map[string]*models.ResourceRecord `json:"resources"`
	UpdatedAt time.Time                         `json:"updated_at"`
}

// Save records a resource handle. Saving the same ref again refreshes its
// name and UpdatedAt.
func (fs *FileStorage) Save(r cloud.Resource) error {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	data, err := fs.loadData()
	if err != nil {
		return err
	}

	now := time.Now()
	ref := r.Ref().String()
	record, exists := data.Resources[ref]
	if !exists {
		record = &models.ResourceRecord{
			Ref:       ref,
			Kind:      string(r.Kind()),
			ID:        r.ID(),
			CreatedAt: now,
		}
		data.Resources[ref] = record
	}
	record.Name = r.Name()
	record.UpdatedAt = now
	data.UpdatedAt = now

	return fs.saveData(data)
}

// Get returns the record stored under ref
func (fs *FileStorage) Get(ref string) (*models.ResourceRecord, error) {
	fs.mutex.RLock()
	defer fs.mutex.RUnlock()

	data, err := fs.loadData()
	if err != nil {
		return nil, err
	}

	record, exists := data.Resources[ref]
	if !exists {
		return nil, fmt.Errorf("resource %s not in ledger: %w", ref, cloud.ErrNotFound)
	}
	return record, nil
}

// List returns the records of the given kind, all records when kind is
// empty, newest first
func (fs *FileStorage) List(kind cloud.Kind) ([]*models.ResourceRecord, error) {
	fs.mutex.RLock()
	defer fs.mutex.RUnlock()

	data, err := fs.loadData()
	if err != nil {
		return nil, err
	}

	records := []*models.ResourceRecord{}
	for _, record := range data.Resources {
		if kind == "" || record.Kind == string(kind) {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].Ref < records[j].Ref
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// Delete removes a record; removing an unknown ref is not an error
func (fs *FileStorage) Delete(ref string) error {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	data, err := fs.loadData()
	if err != nil {
		return err
	}
	if _, exists := data.Resources[ref]; !exists {
		return nil
	}

	delete(data.Resources, ref)
	data.UpdatedAt = time.Now()

	return fs.saveData(data)
}

// loadData loads data from the storage file
func (fs *FileStorage) loadData() (*StorageRecord, error) {
	if _, err := os.Stat(fs.filePath); os.IsNotExist(err) {
		return &StorageRecord{
			Resources: make(map[string]*models.ResourceRecord),
		}, nil
	}

	data, err := os.ReadFile(fs.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage file: %w", err)
	}

	var record StorageRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal storage data: %w", err)
	}

	if record.Resources == nil {
		record.Resources = make(map[string]*models.ResourceRecord)
	}

	return &record, nil
}

// saveData saves data to the storage file
func (fs *FileStorage) saveData(data *StorageRecord) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal storage data: %w", err)
	}

	err = os.WriteFile(fs.filePath, jsonData, 0600)
	if err != nil {
		return fmt.Errorf("failed to write storage file: %w", err)
	}

	return nil
}
