package audiomoth

import "testing"

func TestParseHexID(t *testing.T) {
	tests := []struct {
		in      string
		want    uint16
		wantOK  bool
	}{
		{"10C4", 0x10C4, true},
		{"0x10C4", 0x10C4, true},
		{"0X0003", 0x0003, true},
		{"not-hex", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseHexID(tt.in)
		if ok != tt.wantOK {
			t.Fatalf("parseHexID(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
		}
		if ok && got != tt.want {
			t.Fatalf("parseHexID(%q) = %#04X, want %#04X", tt.in, got, tt.want)
		}
	}
}
