package agent

import (
	"errors"
	"sort"
	"sync"

	"github.com/dutlab/dutctl/internal/device"
)

var (
	ErrDeviceNotFound = errors.New("agent: device not found")
	ErrDeviceExists   = errors.New("agent: device already registered")
	ErrSessionNil     = errors.New("agent: session is nil")
)

// Fleet stores the sessions this agent drives, keyed by device id.
// Lookups are concurrent; operations against one device serialize
// through its Unit, since sessions are single-driver.
type Fleet struct {
	mu    sync.RWMutex
	units map[string]*Unit
}

// Unit is one registered device plus the lock that serializes its
// operations.
type Unit struct {
	mu      sync.Mutex
	session *device.Session
}

// Do runs fn with exclusive access to the unit's session.
func (u *Unit) Do(fn func(*device.Session) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return fn(u.session)
}

func NewFleet() *Fleet {
	return &Fleet{units: make(map[string]*Unit)}
}

// Register adds a session to the fleet.
func (f *Fleet) Register(s *device.Session) error {
	if s == nil {
		return ErrSessionNil
	}
	id := s.Device().ID

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.units[id]; ok {
		return ErrDeviceExists
	}
	f.units[id] = &Unit{session: s}
	return nil
}

// Resolve returns the unit for a device id.
func (f *Fleet) Resolve(id string) (*Unit, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	unit, ok := f.units[id]
	return unit, ok
}

// DeviceInfo is the outward description of one registered device.
type DeviceInfo struct {
	ID       string `json:"id"`
	Mode     string `json:"mode"`
	IRRemote string `json:"ir_remote,omitempty"`
}

// Describe returns deterministic device descriptions ordered by id.
func (f *Fleet) Describe() []DeviceInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()

	list := make([]DeviceInfo, 0, len(f.units))
	for _, unit := range f.units {
		dev := unit.session.Device()
		list = append(list, DeviceInfo{
			ID:       dev.ID,
			Mode:     string(dev.Mode),
			IRRemote: unit.session.IRRemote(),
		})
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})
	return list
}
