// Package registry holds the closed set of devices the ingestion
// pipeline is allowed to attribute reports to.
package registry

import "strings"

// Device describes one registered unit. EquipmentID doubles as the
// token searched for in message bodies.
type Device struct {
	EquipmentID  string `mapstructure:"equipment_id" json:"equipment_id"`
	ModelName    string `mapstructure:"model_name" json:"model_name"`
	SerialNumber string `mapstructure:"serial_number" json:"serial_number"`
}

// Registry answers "which known device does this body mention" and
// "what do we know about this equipment id". Unknown identifiers are
// rejected: messages from unregistered devices are never attributed.
type Registry struct {
	devices []Device
	byID    map[string]Device
}

// New builds a registry from configured devices. Entries without an
// equipment id are dropped.
func New(devices []Device) *Registry {
	r := &Registry{byID: make(map[string]Device, len(devices))}
	for _, d := range devices {
		d.EquipmentID = strings.TrimSpace(d.EquipmentID)
		if d.EquipmentID == "" {
			continue
		}
		if _, exists := r.byID[d.EquipmentID]; exists {
			continue
		}
		r.devices = append(r.devices, d)
		r.byID[d.EquipmentID] = d
	}
	return r
}

// Default returns the registry shipped with the service.
func Default() *Registry {
	return New([]Device{
		{EquipmentID: "prn-bln-02-mfp", ModelName: "ECOSYS M5521cdn", SerialNumber: "VDX9X39783"},
	})
}

// MatchBody scans a message body for a registered equipment id,
// matched as a literal substring.
func (r *Registry) MatchBody(body string) (Device, bool) {
	if r == nil || body == "" {
		return Device{}, false
	}
	for _, d := range r.devices {
		if strings.Contains(body, d.EquipmentID) {
			return d, true
		}
	}
	return Device{}, false
}

// lookup resolves an equipment id to its registered metadata.
func (r *Registry) lookup(equipmentID string) (Device, bool) {
	if r == nil {
		return Device{}, false
	}
	d, ok := r.byID[equipmentID]
	return d, ok
}

// Len reports the number of registered devices.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.devices)
}
