package compute

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// AutoMigrate creates or updates the compute tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&InstanceRecord{}); err != nil {
		return fmt.Errorf("auto-migrate instances: %w", err)
	}
	if err := db.AutoMigrate(&HostRecord{}); err != nil {
		return fmt.Errorf("auto-migrate hosts: %w", err)
	}
	if err := db.AutoMigrate(&ImageRecord{}); err != nil {
		return fmt.Errorf("auto-migrate images: %w", err)
	}
	if err := db.AutoMigrate(&NetworkRecord{}, &FloatingIPRecord{}); err != nil {
		return fmt.Errorf("auto-migrate networks: %w", err)
	}
	return nil
}

// InstanceStore provides persistence for instance records.
type InstanceStore struct {
	db *gorm.DB
}

// NewInstanceStore creates a new InstanceStore.
func NewInstanceStore(db *gorm.DB) *InstanceStore {
	return &InstanceStore{db: db}
}

var _ ResourceStore = (*InstanceStore)(nil)

// Create inserts a new instance.
func (s *InstanceStore) Create(ctx context.Context, inst *Instance) error {
	rec := &InstanceRecord{
		ID:             inst.ID,
		Name:           inst.Name,
		VMState:        string(inst.VMState),
		TaskState:      string(inst.TaskState),
		Host:           inst.Host,
		Locked:         inst.Locked,
		HypervisorType: inst.HypervisorType,
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("create instance %s: %w", inst.ID, err)
	}
	return nil
}

// Get returns the instance with the given ID or ErrInstanceNotFound.
func (s *InstanceStore) Get(ctx context.Context, id string) (*Instance, error) {
	var rec InstanceRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
		}
		return nil, fmt.Errorf("get instance %s: %w", id, err)
	}
	return rec.toInstance(), nil
}

// List returns all instances ordered by ID.
func (s *InstanceStore) List(ctx context.Context) ([]*Instance, error) {
	var recs []InstanceRecord
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	out := make([]*Instance, len(recs))
	for i := range recs {
		out[i] = recs[i].toInstance()
	}
	return out, nil
}

// ResetState overwrites vm_state and clears task_state unconditionally.
func (s *InstanceStore) ResetState(ctx context.Context, id string, state VMState) error {
	result := s.db.WithContext(ctx).Model(&InstanceRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{"vm_state": string(state), "task_state": ""})
	if result.Error != nil {
		return fmt.Errorf("reset state of instance %s: %w", id, result.Error)
	}
	return s.checkUpdated(ctx, id, result.RowsAffected)
}

// checkUpdated tells a missing instance apart from an update that changed
// nothing. MySQL reports matched-but-unchanged rows as not affected.
func (s *InstanceStore) checkUpdated(ctx context.Context, id string, affected int64) error {
	if affected > 0 {
		return nil
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&InstanceRecord{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("check instance %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	return nil
}

// BeginTask sets task_state on an instance that has no task in progress and
// is still in the given vm_state. The update is a single conditional write so
// two concurrent callers cannot both start a task.
func (s *InstanceStore) BeginTask(ctx context.Context, id string, from VMState, task TaskState, method string) error {
	result := s.db.WithContext(ctx).Model(&InstanceRecord{}).
		Where("id = ? AND vm_state = ? AND task_state = ?", id, string(from), "").
		Update("task_state", string(task))
	if result.Error != nil {
		return fmt.Errorf("begin %s on instance %s: %w", method, id, result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.TaskState != TaskNone {
		return &InvalidStateError{InstanceID: id, Attr: "task_state", State: string(current.TaskState), Method: method}
	}
	return &InvalidStateError{InstanceID: id, Attr: "vm_state", State: string(current.VMState), Method: method}
}

// FinishTask records the result of a task and clears task_state.
func (s *InstanceStore) FinishTask(ctx context.Context, id string, state VMState, host string) error {
	updates := map[string]any{"vm_state": string(state), "task_state": ""}
	if host != "" {
		updates["host"] = host
	}
	result := s.db.WithContext(ctx).Model(&InstanceRecord{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("finish task on instance %s: %w", id, result.Error)
	}
	return s.checkUpdated(ctx, id, result.RowsAffected)
}

// SetLocked updates the locked flag.
func (s *InstanceStore) SetLocked(ctx context.Context, id string, locked bool) error {
	result := s.db.WithContext(ctx).Model(&InstanceRecord{}).Where("id = ?", id).Update("locked", locked)
	if result.Error != nil {
		return fmt.Errorf("set locked on instance %s: %w", id, result.Error)
	}
	return s.checkUpdated(ctx, id, result.RowsAffected)
}

// HostStore provides persistence for compute hosts.
type HostStore struct {
	db *gorm.DB
}

// NewHostStore creates a new HostStore.
func NewHostStore(db *gorm.DB) *HostStore {
	return &HostStore{db: db}
}

// Upsert creates or replaces a host.
func (s *HostStore) Upsert(ctx context.Context, h Host) error {
	rec := &HostRecord{
		Name:              h.Name,
		Service:           h.Service,
		Zone:              h.Zone,
		Enabled:           h.Enabled,
		HypervisorType:    h.HypervisorType,
		HypervisorVersion: h.HypervisorVersion,
	}
	if rec.Service == "" {
		rec.Service = "compute"
	}
	if err := s.db.WithContext(ctx).Save(rec).Error; err != nil {
		return fmt.Errorf("save host %s: %w", h.Name, err)
	}
	return nil
}

// Get returns the named host or ErrHostNotFound.
func (s *HostStore) Get(ctx context.Context, name string) (*Host, error) {
	var rec HostRecord
	err := s.db.WithContext(ctx).Where("host_name = ?", name).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrHostNotFound, name)
		}
		return nil, fmt.Errorf("get host %s: %w", name, err)
	}
	h := rec.toHost()
	return &h, nil
}

// List returns hosts, optionally filtered by service.
func (s *HostStore) List(ctx context.Context, service string) ([]Host, error) {
	query := s.db.WithContext(ctx).Order("host_name ASC")
	if service != "" {
		query = query.Where("service = ?", service)
	}
	var recs []HostRecord
	if err := query.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list hosts: %w", err)
	}
	out := make([]Host, len(recs))
	for i := range recs {
		out[i] = recs[i].toHost()
	}
	return out, nil
}

// SetEnabled changes whether a host accepts new instances.
func (s *HostStore) SetEnabled(ctx context.Context, name string, enabled bool) error {
	result := s.db.WithContext(ctx).Model(&HostRecord{}).Where("host_name = ?", name).Update("enabled", enabled)
	if result.Error != nil {
		return fmt.Errorf("set enabled on host %s: %w", name, result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&HostRecord{}).Where("host_name = ?", name).Count(&n).Error; err != nil {
		return fmt.Errorf("check host %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrHostNotFound, name)
	}
	return nil
}

// ImageStore provides persistence for backup and snapshot images.
type ImageStore struct {
	db *gorm.DB
}

// NewImageStore creates a new ImageStore.
func NewImageStore(db *gorm.DB) *ImageStore {
	return &ImageStore{db: db}
}

// Create inserts a new image record.
func (s *ImageStore) Create(ctx context.Context, img *Image) error {
	rec := &ImageRecord{
		ID:         img.ID,
		InstanceID: img.InstanceID,
		BackupType: img.BackupType,
		Name:       img.Name,
		ImageType:  img.ImageType,
		Properties: JSONStringMap(img.Properties),
		CreatedAt:  img.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("create image %s: %w", img.ID, err)
	}
	return nil
}

// Get returns an image by ID, or nil if it does not exist.
func (s *ImageStore) Get(ctx context.Context, id string) (*Image, error) {
	var rec ImageRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get image %s: %w", id, err)
	}
	return rec.toImage(), nil
}

// ListBackups returns the backups of one type for an instance, newest first.
func (s *ImageStore) ListBackups(ctx context.Context, instanceID, backupType string) ([]*Image, error) {
	var recs []ImageRecord
	err := s.db.WithContext(ctx).
		Where("instance_id = ? AND backup_type = ? AND image_type = ?", instanceID, backupType, "backup").
		Order("created_at DESC").Order("id DESC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list backups for instance %s: %w", instanceID, err)
	}
	out := make([]*Image, len(recs))
	for i := range recs {
		out[i] = recs[i].toImage()
	}
	return out, nil
}

// Rotate deletes the oldest backups of a type beyond the rotation count and
// returns the number removed. A rotation of zero removes every backup of that
// type, including one that was just created.
func (s *ImageStore) Rotate(ctx context.Context, instanceID, backupType string, rotation int) (int, error) {
	backups, err := s.ListBackups(ctx, instanceID, backupType)
	if err != nil {
		return 0, err
	}
	if len(backups) <= rotation {
		return 0, nil
	}
	stale := backups[rotation:]
	ids := make([]string, len(stale))
	for i, img := range stale {
		ids[i] = img.ID
	}
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&ImageRecord{}).Error; err != nil {
		return 0, fmt.Errorf("rotate backups for instance %s: %w", instanceID, err)
	}
	return len(ids), nil
}
