package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ASDFGHan123/unichat/internal/bus"
)

// Admin-domain endpoints. These are backend-owned collaborators: the client
// only creates, polls, downloads, and deletes.

// CreateBackup starts a backup job of the given type
// (full, users, messages, settings).
func (c *Client) CreateBackup(ctx context.Context, name, backupType string) (*Backup, error) {
	var b Backup
	body := map[string]string{"name": name, "backup_type": backupType}
	if err := c.doJSON(ctx, http.MethodPost, "/admin/backups/", body, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// BackupStatus fetches a backup job's current status.
func (c *Client) BackupStatus(ctx context.Context, id string) (*Backup, error) {
	var b Backup
	if err := c.doJSON(ctx, http.MethodGet, "/admin/backups/"+url.PathEscape(id)+"/status/", nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBackups returns all backup records.
func (c *Client) ListBackups(ctx context.Context) ([]Backup, error) {
	var out []Backup
	if err := c.doJSON(ctx, http.MethodGet, "/admin/backups/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DownloadBackup fetches the backup archive bytes.
func (c *Client) DownloadBackup(ctx context.Context, id string) ([]byte, error) {
	return c.download(ctx, "/admin/backups/"+url.PathEscape(id)+"/download/")
}

// DeleteBackup removes a backup record and its archive.
func (c *Client) DeleteBackup(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/admin/backups/"+url.PathEscape(id)+"/", nil, nil)
}

// RestoreBackup asks the backend to restore from a completed backup.
func (c *Client) RestoreBackup(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPost, "/admin/backups/"+url.PathEscape(id)+"/restore/", nil, nil)
}

// ListAuditLog fetches audit entries, newest first. limit <= 0 means the
// backend default.
func (c *Client) ListAuditLog(ctx context.Context, limit int) ([]AuditEntry, error) {
	path := "/admin/audit-logs/"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []AuditEntry
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSettings fetches the admin settings document.
func (c *Client) GetSettings(ctx context.Context) (*Settings, error) {
	var s Settings
	if err := c.doJSON(ctx, http.MethodGet, "/admin/settings/", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateSettings writes the settings document and publishes settings.updated
// so subscribers (the backup manager) pick up the change without polling.
func (c *Client) UpdateSettings(ctx context.Context, s *Settings) error {
	if err := c.doJSON(ctx, http.MethodPut, "/admin/settings/", s, nil); err != nil {
		return err
	}
	if c.bus != nil {
		c.bus.Publish(bus.Event{
			Kind:      bus.KindSettingsUpdated,
			Timestamp: time.Now(),
			Payload:   *s,
		})
	}
	return nil
}
