package audiomoth

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// DeviceProfile lets a deployment retarget the flasher at a variant device
// without a rebuild: alternate USB identifiers or memory-map limits. Zero
// values fall back to the built-in constants, the same override-by-omission
// convention the PIC8 profile file used.
type DeviceProfile struct {
	VendorIDs         []string `yaml:"vendorIDs,omitempty"`
	RunningPID        string   `yaml:"runningPID,omitempty"`
	BootloaderPID     string   `yaml:"bootloaderPID,omitempty"`
	MaxNonDestructive int      `yaml:"maxNonDestructive,omitempty"`
	MaxDestructive    int      `yaml:"maxDestructive,omitempty"`
	MaxUSBHID         int      `yaml:"maxUSBHID,omitempty"`
}

// LoadDeviceProfile reads and parses a YAML profile file.
func LoadDeviceProfile(path string) (DeviceProfile, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return DeviceProfile{}, errors.Wrapf(err, "read profile file %s", path)
	}
	var p DeviceProfile
	if err := yaml.Unmarshal(f, &p); err != nil {
		return DeviceProfile{}, errors.Wrapf(err, "parse profile file %s", path)
	}
	return p, nil
}

// resolvedVIDs returns the profile's vendor IDs parsed to uint16, or the
// built-in defaults when the profile doesn't override them.
func (p DeviceProfile) resolvedVIDs() []uint16 {
	if len(p.VendorIDs) == 0 {
		return runningFirmwareVIDs
	}
	vids := make([]uint16, 0, len(p.VendorIDs))
	for _, s := range p.VendorIDs {
		if v, ok := parseHexID(s); ok {
			vids = append(vids, v)
		}
	}
	if len(vids) == 0 {
		return runningFirmwareVIDs
	}
	return vids
}
