package audiomoth

import "testing"

func TestNewReadyCommandChoosesByte(t *testing.T) {
	if newReadyCommand(true).Byte != 'd' {
		t.Error("expected destructive ready command to use 'd'")
	}
	if newReadyCommand(false).Byte != 'u' {
		t.Error("expected non-destructive ready command to use 'u'")
	}
}

func TestNewImageCRCCommandChoosesByte(t *testing.T) {
	if newImageCRCCommand(true).Byte != 'v' {
		t.Error("expected destructive CRC command to use 'v'")
	}
	if newImageCRCCommand(false).Byte != 'c' {
		t.Error("expected non-destructive CRC command to use 'c'")
	}
}

func TestParseIdentityResponse(t *testing.T) {
	raw := []byte("BOOTLOADER version 1.02, Chip ID 0123456789ABCDEF")
	v, err := parseIdentityResponse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Major != 1 || v.Minor != 2 {
		t.Fatalf("expected version 1.02, got %d.%d", v.Major, v.Minor)
	}
	if v.String() != "1.02" {
		t.Fatalf("expected String() to render 1.02, got %s", v.String())
	}
	if v.ChipID != "0123456789ABCDEF" {
		t.Fatalf("unexpected chip ID: %s", v.ChipID)
	}
}

func TestParseIdentityResponseRejectsGarbage(t *testing.T) {
	if _, err := parseIdentityResponse([]byte("not an identity response")); err == nil {
		t.Fatal("expected an error for an unparseable identity response")
	}
}

func TestParseCRCResponse(t *testing.T) {
	crc, err := parseCRCResponse([]byte("CRC: 00000A1B"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if crc != "0A1B" {
		t.Fatalf("expected 0A1B, got %s", crc)
	}
}

func TestParseCRCResponseRejectsGarbage(t *testing.T) {
	if _, err := parseCRCResponse([]byte("garbage")); err == nil {
		t.Fatal("expected an error for a malformed CRC response")
	}
}

func TestBootloaderVersionIdentifiesUpdateCandidates(t *testing.T) {
	// The version gate in stateCheckingBootloaderVersion compares against
	// these two exact strings; a parse regression here would silently
	// disable the bootloader-updater sub-flash.
	v1 := bootloaderVersion{Major: 1, Minor: 0}
	v2 := bootloaderVersion{Major: 1, Minor: 1}
	if v1.String() != "1.00" {
		t.Fatalf("expected 1.00, got %s", v1.String())
	}
	if v2.String() != "1.01" {
		t.Fatalf("expected 1.01, got %s", v2.String())
	}
}
