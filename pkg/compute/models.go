package compute

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONStringMap is a custom GORM type for map[string]string stored as JSON.
type JSONStringMap map[string]string

// Scan implements the sql.Scanner interface for JSONStringMap.
func (m *JSONStringMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for JSONStringMap: %T", value)
	}
	return json.Unmarshal(bytes, m)
}

// Value implements the driver.Valuer interface for JSONStringMap.
func (m JSONStringMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// InstanceRecord stores an instance and its lifecycle fields.
type InstanceRecord struct {
	ID             string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	Name           string    `gorm:"column:name"`
	VMState        string    `gorm:"column:vm_state;index;not null"`
	TaskState      string    `gorm:"column:task_state"`
	Host           string    `gorm:"column:host;index"`
	Locked         bool      `gorm:"column:locked;not null;default:false"`
	HypervisorType string    `gorm:"column:hypervisor_type"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides the default table name.
func (InstanceRecord) TableName() string { return "instances" }

func (r *InstanceRecord) toInstance() *Instance {
	return &Instance{
		ID:             r.ID,
		Name:           r.Name,
		VMState:        VMState(r.VMState),
		TaskState:      TaskState(r.TaskState),
		Host:           r.Host,
		Locked:         r.Locked,
		HypervisorType: r.HypervisorType,
		UpdatedAt:      r.UpdatedAt,
	}
}

// HostRecord stores a compute host.
type HostRecord struct {
	Name              string    `gorm:"primaryKey;column:host_name;type:varchar(255)"`
	Service           string    `gorm:"column:service;index;not null;default:compute"`
	Zone              string    `gorm:"column:zone"`
	Enabled           bool      `gorm:"column:enabled;not null"`
	HypervisorType    string    `gorm:"column:hypervisor_type"`
	HypervisorVersion int       `gorm:"column:hypervisor_version"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides the default table name.
func (HostRecord) TableName() string { return "hosts" }

func (r *HostRecord) toHost() Host {
	return Host{
		Name:              r.Name,
		Service:           r.Service,
		Zone:              r.Zone,
		Enabled:           r.Enabled,
		HypervisorType:    r.HypervisorType,
		HypervisorVersion: r.HypervisorVersion,
	}
}

// ImageRecord stores a backup or snapshot image.
type ImageRecord struct {
	ID         string        `gorm:"primaryKey;column:id;type:varchar(36)"`
	InstanceID string        `gorm:"column:instance_id;index:idx_image_rotation,priority:1;not null"`
	BackupType string        `gorm:"column:backup_type;index:idx_image_rotation,priority:2"`
	Name       string        `gorm:"column:name;not null"`
	ImageType  string        `gorm:"column:image_type;not null"`
	Properties JSONStringMap `gorm:"column:properties;type:text"`
	CreatedAt  time.Time     `gorm:"column:created_at;index:idx_image_rotation,priority:3"`
}

// TableName overrides the default table name.
func (ImageRecord) TableName() string { return "images" }

func (r *ImageRecord) toImage() *Image {
	return &Image{
		ID:         r.ID,
		InstanceID: r.InstanceID,
		Name:       r.Name,
		ImageType:  r.ImageType,
		BackupType: r.BackupType,
		Properties: map[string]string(r.Properties),
		CreatedAt:  r.CreatedAt,
	}
}
