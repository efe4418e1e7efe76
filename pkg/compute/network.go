package compute

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrFloatingIPNotFound is returned when a floating IP ID does not resolve
// within the caller's project.
var ErrFloatingIPNotFound = errors.New("floating ip not found")

// Network is a project network. VPNPublicAddress and VPNPublicPort locate
// the cloudpipe VPN endpoint that serves it.
type Network struct {
	ID               string `json:"id"`
	ProjectID        string `json:"project_id"`
	Label            string `json:"label"`
	CIDR             string `json:"cidr"`
	VPNPublicAddress string `json:"vpn_public_address,omitempty"`
	VPNPublicPort    int    `json:"vpn_public_port,omitempty"`
}

// FloatingIP is a public address that may be associated with an instance.
type FloatingIP struct {
	ID         string `json:"id"`
	IP         string `json:"ip"`
	Pool       string `json:"pool,omitempty"`
	ProjectID  string `json:"-"`
	InstanceID string `json:"instance_id"`
	FixedIP    string `json:"fixed_ip"`
}

// NetworkRecord stores a project network.
type NetworkRecord struct {
	ID               string `gorm:"primaryKey;column:id;type:varchar(36)"`
	ProjectID        string `gorm:"column:project_id;index"`
	Label            string `gorm:"column:label"`
	CIDR             string `gorm:"column:cidr"`
	VPNPublicAddress string `gorm:"column:vpn_public_address"`
	VPNPublicPort    int    `gorm:"column:vpn_public_port"`
}

// TableName overrides the default table name.
func (NetworkRecord) TableName() string { return "networks" }

// FloatingIPRecord stores a floating IP allocation.
type FloatingIPRecord struct {
	ID         string `gorm:"primaryKey;column:id;type:varchar(36)"`
	Address    string `gorm:"column:address;uniqueIndex;not null"`
	Pool       string `gorm:"column:pool"`
	ProjectID  string `gorm:"column:project_id;index"`
	InstanceID string `gorm:"column:instance_id"`
	FixedIP    string `gorm:"column:fixed_ip"`
}

// TableName overrides the default table name.
func (FloatingIPRecord) TableName() string { return "floating_ips" }

func (r *FloatingIPRecord) toFloatingIP() FloatingIP {
	return FloatingIP{
		ID:         r.ID,
		IP:         r.Address,
		Pool:       r.Pool,
		ProjectID:  r.ProjectID,
		InstanceID: r.InstanceID,
		FixedIP:    r.FixedIP,
	}
}

// NetworkStore provides persistence for project networks.
type NetworkStore struct {
	db *gorm.DB
}

// NewNetworkStore creates a new NetworkStore.
func NewNetworkStore(db *gorm.DB) *NetworkStore {
	return &NetworkStore{db: db}
}

// Upsert inserts or replaces a network.
func (s *NetworkStore) Upsert(ctx context.Context, n Network) error {
	rec := &NetworkRecord{
		ID:               n.ID,
		ProjectID:        n.ProjectID,
		Label:            n.Label,
		CIDR:             n.CIDR,
		VPNPublicAddress: n.VPNPublicAddress,
		VPNPublicPort:    n.VPNPublicPort,
	}
	if err := s.db.WithContext(ctx).Save(rec).Error; err != nil {
		return fmt.Errorf("upsert network %s: %w", n.ID, err)
	}
	return nil
}

// ListByProject returns the networks of a project ordered by ID.
func (s *NetworkStore) ListByProject(ctx context.Context, projectID string) ([]Network, error) {
	var recs []NetworkRecord
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Order("id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list networks of project %s: %w", projectID, err)
	}
	out := make([]Network, len(recs))
	for i, r := range recs {
		out[i] = Network{
			ID:               r.ID,
			ProjectID:        r.ProjectID,
			Label:            r.Label,
			CIDR:             r.CIDR,
			VPNPublicAddress: r.VPNPublicAddress,
			VPNPublicPort:    r.VPNPublicPort,
		}
	}
	return out, nil
}

// ConfigureVPN points every network of a project at the given cloudpipe
// endpoint. A project without networks is not an error.
func (s *NetworkStore) ConfigureVPN(ctx context.Context, projectID, address string, port int) error {
	err := s.db.WithContext(ctx).Model(&NetworkRecord{}).
		Where("project_id = ?", projectID).
		Updates(map[string]any{"vpn_public_address": address, "vpn_public_port": port}).Error
	if err != nil {
		return fmt.Errorf("configure vpn for project %s: %w", projectID, err)
	}
	return nil
}

// FloatingIPStore provides read access to floating IP allocations.
type FloatingIPStore struct {
	db *gorm.DB
}

// NewFloatingIPStore creates a new FloatingIPStore.
func NewFloatingIPStore(db *gorm.DB) *FloatingIPStore {
	return &FloatingIPStore{db: db}
}

// Upsert inserts or replaces a floating IP.
func (s *FloatingIPStore) Upsert(ctx context.Context, ip FloatingIP) error {
	rec := &FloatingIPRecord{
		ID:         ip.ID,
		Address:    ip.IP,
		Pool:       ip.Pool,
		ProjectID:  ip.ProjectID,
		InstanceID: ip.InstanceID,
		FixedIP:    ip.FixedIP,
	}
	if err := s.db.WithContext(ctx).Save(rec).Error; err != nil {
		return fmt.Errorf("upsert floating ip %s: %w", ip.ID, err)
	}
	return nil
}

// List returns the floating IPs of a project ordered by address. An empty
// projectID lists every allocation.
func (s *FloatingIPStore) List(ctx context.Context, projectID string) ([]FloatingIP, error) {
	query := s.db.WithContext(ctx).Order("address ASC")
	if projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}
	var recs []FloatingIPRecord
	if err := query.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list floating ips: %w", err)
	}
	out := make([]FloatingIP, len(recs))
	for i := range recs {
		out[i] = recs[i].toFloatingIP()
	}
	return out, nil
}

// Get returns one floating IP. An ID owned by another project is reported
// as missing.
func (s *FloatingIPStore) Get(ctx context.Context, projectID, id string) (*FloatingIP, error) {
	query := s.db.WithContext(ctx).Where("id = ?", id)
	if projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}
	var rec FloatingIPRecord
	if err := query.First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrFloatingIPNotFound, id)
		}
		return nil, fmt.Errorf("get floating ip %s: %w", id, err)
	}
	ip := rec.toFloatingIP()
	return &ip, nil
}
