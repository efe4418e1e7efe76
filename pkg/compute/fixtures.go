package compute

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Fixtures seeds hosts, instances and project networking at startup.
type Fixtures struct {
	Hosts []struct {
		Name              string `yaml:"name"`
		Service           string `yaml:"service"`
		Zone              string `yaml:"zone"`
		Enabled           *bool  `yaml:"enabled"`
		HypervisorType    string `yaml:"hypervisorType"`
		HypervisorVersion int    `yaml:"hypervisorVersion"`
	} `yaml:"hosts"`
	Instances []struct {
		ID             string `yaml:"id"`
		Name           string `yaml:"name"`
		VMState        string `yaml:"vmState"`
		TaskState      string `yaml:"taskState"`
		Host           string `yaml:"host"`
		HypervisorType string `yaml:"hypervisorType"`
	} `yaml:"instances"`
	Networks []struct {
		ID        string `yaml:"id"`
		ProjectID string `yaml:"projectId"`
		Label     string `yaml:"label"`
		CIDR      string `yaml:"cidr"`
	} `yaml:"networks"`
	FloatingIPs []struct {
		ID         string `yaml:"id"`
		IP         string `yaml:"ip"`
		Pool       string `yaml:"pool"`
		ProjectID  string `yaml:"projectId"`
		InstanceID string `yaml:"instanceId"`
		FixedIP    string `yaml:"fixedIp"`
	} `yaml:"floatingIps"`
}

// LoadFixtures parses a fixtures file.
func LoadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures %s: %w", path, err)
	}
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixtures %s: %w", path, err)
	}
	return &f, nil
}

// Apply writes the fixtures into the stores. Existing hosts are replaced;
// instances that already exist are left untouched.
func (f *Fixtures) Apply(ctx context.Context, hosts *HostStore, instances *InstanceStore) error {
	for _, h := range f.Hosts {
		enabled := true
		if h.Enabled != nil {
			enabled = *h.Enabled
		}
		if err := hosts.Upsert(ctx, Host{
			Name:              h.Name,
			Service:           h.Service,
			Zone:              h.Zone,
			Enabled:           enabled,
			HypervisorType:    h.HypervisorType,
			HypervisorVersion: h.HypervisorVersion,
		}); err != nil {
			return err
		}
	}
	for _, i := range f.Instances {
		if _, err := instances.Get(ctx, i.ID); err == nil {
			continue
		} else if !errors.Is(err, ErrInstanceNotFound) {
			return err
		}
		state := VMState(i.VMState)
		if state == "" {
			state = VMStateActive
		}
		if err := instances.Create(ctx, &Instance{
			ID:             i.ID,
			Name:           i.Name,
			VMState:        state,
			TaskState:      TaskState(i.TaskState),
			Host:           i.Host,
			HypervisorType: i.HypervisorType,
		}); err != nil {
			return err
		}
	}
	return nil
}

// ApplyNetworks writes the network and floating IP fixtures. Existing rows
// with the same ID are replaced.
func (f *Fixtures) ApplyNetworks(ctx context.Context, networks *NetworkStore, ips *FloatingIPStore) error {
	for _, n := range f.Networks {
		if err := networks.Upsert(ctx, Network{ID: n.ID, ProjectID: n.ProjectID, Label: n.Label, CIDR: n.CIDR}); err != nil {
			return err
		}
	}
	for _, ip := range f.FloatingIPs {
		if err := ips.Upsert(ctx, FloatingIP{
			ID:         ip.ID,
			IP:         ip.IP,
			Pool:       ip.Pool,
			ProjectID:  ip.ProjectID,
			InstanceID: ip.InstanceID,
			FixedIP:    ip.FixedIP,
		}); err != nil {
			return err
		}
	}
	return nil
}
