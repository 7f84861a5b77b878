package fileops

import (
	"sync"
	"time"
)

// Metrics tracks counts for file operations
type Metrics struct {
	TotalOperations       int64
	SuccessfulOps         int64
	FailedOps             int64
	TotalBytesTransferred int64
	DirectoriesEnsured    int64
	DirectoryFailures     int64
	LastOperation         time.Time
	mu                    sync.RWMutex
}

func (m *Metrics) record(success bool, bytesTransferred int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalOperations++
	if success {
		m.SuccessfulOps++
	} else {
		m.FailedOps++
	}
	m.TotalBytesTransferred += bytesTransferred
	m.LastOperation = time.Now()
}

func (m *Metrics) recordDir(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if success {
		m.DirectoriesEnsured++
	} else {
		m.DirectoryFailures++
	}
}

// Snapshot returns the metrics as a map
func (m *Metrics) Snapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"total_operations":        m.TotalOperations,
		"successful_ops":          m.SuccessfulOps,
		"failed_ops":              m.FailedOps,
		"total_bytes_transferred": m.TotalBytesTransferred,
		"directories_ensured":     m.DirectoriesEnsured,
		"directory_failures":      m.DirectoryFailures,
		"last_operation":          m.LastOperation,
	}
}
