package backup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ASDFGHan123/unichat/internal/api"
	"github.com/ASDFGHan123/unichat/internal/backoff"
	"github.com/ASDFGHan123/unichat/internal/bus"
)

// ErrPollExhausted is returned by Await when the backup job is still running
// after the full poll window. The job itself keeps running server-side; the
// caller can re-check later with Status.
var ErrPollExhausted = errors.New("backup: job not finished within poll window")

const (
	pollAttempts = 30
	pollInterval = time.Second
)

// Terminal backend statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// adminAPI is the slice of the REST client the manager needs.
type adminAPI interface {
	CreateBackup(ctx context.Context, name, backupType string) (*api.Backup, error)
	BackupStatus(ctx context.Context, id string) (*api.Backup, error)
	ListBackups(ctx context.Context) ([]api.Backup, error)
	DownloadBackup(ctx context.Context, id string) ([]byte, error)
	DeleteBackup(ctx context.Context, id string) error
	RestoreBackup(ctx context.Context, id string) error
	GetSettings(ctx context.Context) (*api.Settings, error)
}

// Manager drives backup jobs against the admin backend: create, bounded
// status poll, download, delete, restore. The job lifecycle is owned by the
// backend; the manager never invents state, it only reports what the server
// said last.
type Manager struct {
	api    adminAPI
	bus    *bus.Bus
	logger *zap.Logger

	attempts int
	interval time.Duration

	mu       sync.RWMutex
	settings *api.Settings

	cancel context.CancelFunc
}

// NewManager creates a backup manager. Settings are tracked from
// settings.updated bus events once Start is called.
func NewManager(a adminAPI, b *bus.Bus, logger *zap.Logger) *Manager {
	return &Manager{
		api:      a,
		bus:      b,
		logger:   logger,
		attempts: pollAttempts,
		interval: pollInterval,
	}
}

// SetPoll overrides the poll schedule. Test seam.
func (m *Manager) SetPoll(attempts int, interval time.Duration) {
	m.attempts = attempts
	m.interval = interval
}

// Start subscribes to settings updates so auto-backup configuration stays
// current without each caller re-fetching it.
func (m *Manager) Start() {
	ch, unsub := m.bus.Subscribe(bus.KindSettingsUpdated, 16)
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				s, ok := evt.Payload.(api.Settings)
				if !ok {
					continue
				}
				m.mu.Lock()
				m.settings = &s
				m.mu.Unlock()
				m.logger.Info("settings updated",
					zap.Bool("auto_backup", s.AutoBackup),
					zap.Int("retention_days", s.RetentionDays))
			}
		}
	}()
}

// Stop stops the settings watcher.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

// Settings returns the last settings snapshot, fetching once if no
// settings.updated event has arrived yet.
func (m *Manager) Settings(ctx context.Context) (*api.Settings, error) {
	m.mu.RLock()
	s := m.settings
	m.mu.RUnlock()
	if s != nil {
		return s, nil
	}
	fetched, err := m.api.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.settings = fetched
	m.mu.Unlock()
	return fetched, nil
}

// Create starts a backup job of the given type (full, users, messages,
// settings) and returns the initial job record without waiting for it.
func (m *Manager) Create(ctx context.Context, name, backupType string) (*api.Backup, error) {
	b, err := m.api.CreateBackup(ctx, name, backupType)
	if err != nil {
		return nil, fmt.Errorf("create backup: %w", err)
	}
	m.logger.Info("backup created",
		zap.String("id", b.ID),
		zap.String("type", b.BackupType))
	return b, nil
}

// Await polls the job at a fixed interval until it reaches a terminal status
// or the attempt budget runs out. On exhaustion it returns the last record
// seen together with ErrPollExhausted, never a nil record, so callers can
// still show the in-flight state.
func (m *Manager) Await(ctx context.Context, id string) (*api.Backup, error) {
	var last *api.Backup
	err := backoff.Poll(ctx, m.attempts, m.interval, func(ctx context.Context) (bool, error) {
		b, err := m.api.BackupStatus(ctx, id)
		if err != nil {
			return false, err
		}
		last = b
		return b.Status == StatusCompleted || b.Status == StatusFailed, nil
	})
	if errors.Is(err, backoff.ErrExhausted) {
		return last, ErrPollExhausted
	}
	if err != nil {
		return last, err
	}
	return last, nil
}

// Status fetches the job's current state once.
func (m *Manager) Status(ctx context.Context, id string) (*api.Backup, error) {
	return m.api.BackupStatus(ctx, id)
}

// List returns all backup records.
func (m *Manager) List(ctx context.Context) ([]api.Backup, error) {
	return m.api.ListBackups(ctx)
}

// Download fetches a completed backup's archive bytes.
func (m *Manager) Download(ctx context.Context, id string) ([]byte, error) {
	b, err := m.api.BackupStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != StatusCompleted {
		return nil, fmt.Errorf("backup %s is %s, not completed", id, b.Status)
	}
	return m.api.DownloadBackup(ctx, id)
}

// Delete removes a backup record and its archive.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.api.DeleteBackup(ctx, id)
}

// Restore asks the backend to restore from a backup.
func (m *Manager) Restore(ctx context.Context, id string) error {
	return m.api.RestoreBackup(ctx, id)
}
