package audiomoth

import "testing"

func TestRunningFirmwareVIDs(t *testing.T) {
	want := map[uint16]bool{vidSiliconLabs: true, vidEnergyMicro: true}
	if len(runningFirmwareVIDs) != len(want) {
		t.Fatalf("expected %d VIDs, got %d", len(want), len(runningFirmwareVIDs))
	}
	for _, v := range runningFirmwareVIDs {
		if !want[v] {
			t.Fatalf("unexpected VID %#04X in runningFirmwareVIDs", v)
		}
	}
}

func TestDeviceProfileResolvedVIDsFallsBackToDefaults(t *testing.T) {
	p := DeviceProfile{}
	vids := p.resolvedVIDs()
	if len(vids) != len(runningFirmwareVIDs) {
		t.Fatalf("expected default VIDs when profile is empty, got %v", vids)
	}
}

func TestDeviceProfileResolvedVIDsHonorsOverride(t *testing.T) {
	p := DeviceProfile{VendorIDs: []string{"0x1234"}}
	vids := p.resolvedVIDs()
	if len(vids) != 1 || vids[0] != 0x1234 {
		t.Fatalf("expected overridden VID 0x1234, got %v", vids)
	}
}
