package audiomoth

import "testing"

func TestBlockCRC16(t *testing.T) {
	tests := []struct {
		name     string
		payload  []byte
		expected uint16
	}{
		{
			name:     "128 zero bytes",
			payload:  make([]byte, 128),
			expected: 0x0000,
		},
		{
			name:     "empty payload",
			payload:  []byte{},
			expected: 0x0000,
		},
		{
			name:     "single byte",
			payload:  []byte{0x01},
			expected: blockCRC16([]byte{0x01}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := blockCRC16(tt.payload)
			if result != tt.expected {
				t.Errorf("blockCRC16() = %#04X, want %#04X", result, tt.expected)
			}
		})
	}
}

func TestBlockCRC16ZeroBlockMatchesUserDataTrailer(t *testing.T) {
	// The clear-user-data sub-protocol reuses blockCRC16 for its synthetic
	// all-zero blocks and expects a "0000" trailer with no special case.
	crc := blockCRC16(make([]byte, xmodemBlockSize))
	if crcHex(crc) != "0000" {
		t.Fatalf("expected zero-block CRC to be 0000, got %s", crcHex(crc))
	}
}

func TestImageCRCDeterministic(t *testing.T) {
	a := imageCRC([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	b := imageCRC([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	if a != b {
		t.Fatalf("imageCRC is not deterministic: %#04X != %#04X", a, b)
	}
}

func TestImageCRCPaddingIsStable(t *testing.T) {
	// A short image and its 0xFF-padded-to-window equivalent must produce
	// the same CRC, since imageCRC always pads internally to the full
	// window before shifting the trailing zero bits through.
	short := []byte{0x01, 0x02, 0x03}
	padded := make([]byte, imageCRCPadSize)
	copy(padded, short)
	for i := len(short); i < len(padded); i++ {
		padded[i] = imageCRCPadByte
	}

	if imageCRC(short) != imageCRC(padded) {
		t.Fatal("imageCRC of a short image should equal imageCRC of its fully-padded form")
	}
}

func TestImageCRCDiffersOnSingleBitFlip(t *testing.T) {
	base := []byte{0x01, 0x02, 0x03, 0x04}
	flipped := []byte{0x01, 0x02, 0x03, 0x05}
	if imageCRC(base) == imageCRC(flipped) {
		t.Fatal("expected different CRCs for different images")
	}
}

func TestCrcHexFormat(t *testing.T) {
	tests := []struct {
		crc      uint16
		expected string
	}{
		{0x0000, "0000"},
		{0x0A1B, "0A1B"},
		{0xFFFF, "FFFF"},
		{0xA435, "A435"},
	}
	for _, tt := range tests {
		if got := crcHex(tt.crc); got != tt.expected {
			t.Errorf("crcHex(%#04X) = %s, want %s", tt.crc, got, tt.expected)
		}
	}
}
