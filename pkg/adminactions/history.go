package adminactions

import (
	"context"
	"database/sql/driver"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"
)

// JSONMap is a GORM column type for map[string]any stored as JSON text.
type JSONMap map[string]any

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported type for JSONMap: %T", value)
	}
	return json.Unmarshal(raw, m)
}

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// InstanceActionRecord is one entry of an instance's action history.
type InstanceActionRecord struct {
	ID         string    `gorm:"primaryKey;column:id;type:varchar(36)" json:"-"`
	RequestID  string    `gorm:"column:request_id;uniqueIndex;not null" json:"request_id"`
	InstanceID string    `gorm:"column:instance_id;index:idx_action_instance_time,priority:1;not null" json:"instance_uuid"`
	Action     string    `gorm:"column:action;not null" json:"action"`
	UserID     string    `gorm:"column:user_id" json:"user_id"`
	Role       string    `gorm:"column:role" json:"role,omitempty"`
	Outcome    string    `gorm:"column:outcome;not null" json:"outcome"`
	ErrorKind  string    `gorm:"column:error_kind" json:"error_kind,omitempty"`
	Message    string    `gorm:"column:message" json:"message,omitempty"`
	StatusCode int       `gorm:"column:status_code" json:"status_code"`
	PriorState string    `gorm:"column:prior_state" json:"prior_state,omitempty"`
	Params     JSONMap   `gorm:"column:params;type:text" json:"params,omitempty"`
	StartTime  time.Time `gorm:"column:start_time;index:idx_action_instance_time,priority:2" json:"start_time"`
	FinishTime time.Time `gorm:"column:finish_time" json:"finish_time"`
}

// TableName returns the GORM table name.
func (InstanceActionRecord) TableName() string { return "instance_actions" }

// Recorder receives one record per handled request.
type Recorder interface {
	Append(ctx context.Context, rec *InstanceActionRecord) error
}

// HistoryStore persists instance action records.
type HistoryStore struct {
	db *gorm.DB
}

var _ Recorder = (*HistoryStore)(nil)

// NewHistoryStore creates a new HistoryStore.
func NewHistoryStore(db *gorm.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// AutoMigrate creates or updates the history table.
func (s *HistoryStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&InstanceActionRecord{}); err != nil {
		return fmt.Errorf("auto-migrate instance_actions: %w", err)
	}
	return nil
}

// Append stores a record. Records are never updated. Times are stored in UTC
// so page cursors compare consistently across dialects.
func (s *HistoryStore) Append(ctx context.Context, rec *InstanceActionRecord) error {
	rec.StartTime = rec.StartTime.UTC()
	rec.FinishTime = rec.FinishTime.UTC()
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("append instance action: %w", err)
	}
	return nil
}

// ListByInstance returns an instance's actions, newest first. pageToken is
// the opaque cursor returned with the previous page; it holds the start time
// and ID of that page's last record, so records sharing a start time are
// neither skipped nor repeated.
func (s *HistoryStore) ListByInstance(ctx context.Context, instanceID string, pageSize int, pageToken string) ([]InstanceActionRecord, string, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	query := s.db.WithContext(ctx).
		Where("instance_id = ?", instanceID).
		Order("start_time DESC").Order("id DESC").
		Limit(pageSize + 1)
	if pageToken != "" {
		start, id, err := decodePageToken(pageToken)
		if err != nil {
			return nil, "", err
		}
		query = query.Where("start_time < ? OR (start_time = ? AND id < ?)", start, start, id)
	}

	var records []InstanceActionRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, "", fmt.Errorf("list instance actions: %w", err)
	}

	var next string
	if len(records) > pageSize {
		last := records[pageSize-1]
		next = encodePageToken(last.StartTime, last.ID)
		records = records[:pageSize]
	}
	return records, next, nil
}

func encodePageToken(start time.Time, id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(start.UTC().Format(time.RFC3339Nano) + "|" + id))
}

func decodePageToken(token string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid page token: %w", err)
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return time.Time{}, "", fmt.Errorf("invalid page token %q", token)
	}
	start, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid page token: %w", err)
	}
	return start.UTC(), id, nil
}

// Get returns the record for a request on an instance, or nil if none.
func (s *HistoryStore) Get(ctx context.Context, instanceID, requestID string) (*InstanceActionRecord, error) {
	var rec InstanceActionRecord
	err := s.db.WithContext(ctx).
		Where("instance_id = ? AND request_id = ?", instanceID, requestID).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get instance action: %w", err)
	}
	return &rec, nil
}

// DeleteOlderThan removes records started before cutoff and returns the
// number deleted.
func (s *HistoryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("start_time < ?", cutoff).Delete(&InstanceActionRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old instance actions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// RetentionWorker periodically deletes old history records.
type RetentionWorker struct {
	store     *HistoryStore
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

// NewRetentionWorker creates a worker keeping retentionDays of history. It
// runs every interval, daily when interval is zero.
func NewRetentionWorker(store *HistoryStore, retentionDays int, interval time.Duration, logger *slog.Logger) *RetentionWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &RetentionWorker{
		store:     store,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		interval:  interval,
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled. It returns immediately when retention
// is disabled.
func (w *RetentionWorker) Run(ctx context.Context) {
	if w.store == nil || w.retention <= 0 {
		w.logger.Info("history retention disabled")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("history retention started",
		"retentionDays", int(w.retention.Hours()/24),
		"interval", w.interval.String())

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("history retention stopped")
			return
		case <-ticker.C:
			w.Cleanup(ctx, time.Now())
		}
	}
}

// Cleanup performs one retention pass relative to now.
func (w *RetentionWorker) Cleanup(ctx context.Context, now time.Time) int64 {
	cutoff := now.Add(-w.retention)
	deleted, err := w.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		w.logger.Error("history retention cleanup failed", "error", err)
		return 0
	}
	if deleted > 0 {
		w.logger.Info("history retention cleanup completed",
			"deleted", deleted,
			"cutoff", cutoff.Format(time.RFC3339))
	}
	return deleted
}
