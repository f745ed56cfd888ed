package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// InMemory is a map-backed Directory for tests, development, and deployments
// that load the org chart from a snapshot file.
type InMemory struct {
	mu sync.RWMutex
	// managers maps companyID -> personID -> manager personID.
	managers map[string]map[string]string
	// roles maps companyID -> role -> ordered holder list.
	roles map[string]map[string][]string
}

func NewInMemory() *InMemory {
	return &InMemory{
		managers: make(map[string]map[string]string),
		roles:    make(map[string]map[string][]string),
	}
}

type snapshotFile struct {
	Managers map[string]map[string]string   `json:"managers"`
	Roles    map[string]map[string][]string `json:"roles"`
}

// LoadFile builds an in-memory directory from a JSON snapshot on disk.
func LoadFile(path string) (*InMemory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory snapshot: %w", err)
	}

	var snapshot snapshotFile

	err = json.Unmarshal(data, &snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to parse directory snapshot: %w", err)
	}

	dir := NewInMemory()
	if snapshot.Managers != nil {
		dir.managers = snapshot.Managers
	}

	if snapshot.Roles != nil {
		dir.roles = snapshot.Roles
	}

	return dir, nil
}

// SetManager records personID's manager within a company.
func (d *InMemory) SetManager(companyID, personID, managerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.managers[companyID] == nil {
		d.managers[companyID] = make(map[string]string)
	}

	d.managers[companyID][personID] = managerID
}

// AssignRole adds personID as a holder of the role in the company.
func (d *InMemory) AssignRole(companyID, role, personID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.roles[companyID] == nil {
		d.roles[companyID] = make(map[string][]string)
	}

	for _, holder := range d.roles[companyID][role] {
		if holder == personID {
			return
		}
	}

	d.roles[companyID][role] = append(d.roles[companyID][role], personID)
}

func (d *InMemory) ManagerOf(_ context.Context, companyID, personID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.managers[companyID][personID], nil
}

func (d *InMemory) RoleHolders(_ context.Context, companyID, role string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	holders := d.roles[companyID][role]
	out := make([]string, len(holders))
	copy(out, holders)

	return out, nil
}

func (d *InMemory) HasRole(_ context.Context, companyID, personID, role string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, holder := range d.roles[companyID][role] {
		if holder == personID {
			return true, nil
		}
	}

	return false, nil
}

func (d *InMemory) RolesOf(_ context.Context, personID string) ([]CompanyRole, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var grants []CompanyRole

	for companyID, roles := range d.roles {
		for role, holders := range roles {
			for _, holder := range holders {
				if holder == personID {
					grants = append(grants, CompanyRole{CompanyID: companyID, Role: role})

					break
				}
			}
		}
	}

	return grants, nil
}
