package hotkey

import "testing"

func TestParseAccel(t *testing.T) {
	tests := []struct {
		in      string
		want    accel
		wantErr bool
	}{
		{"Alt+Space", accel{alt: true, key: "space"}, false},
		{"Ctrl+Shift+R", accel{ctrl: true, shift: true, key: "r"}, false},
		{"Cmd+F9", accel{cmd: true, key: "f9"}, false},
		{"Option+Space", accel{alt: true, key: "space"}, false},
		{"space", accel{key: "space"}, false},
		{"Hyper+Space", accel{}, true},
		{"Alt+", accel{}, true},
		{"", accel{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseAccel(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseAccel(%q) succeeded, want error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseAccel(%q) failed: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("parseAccel(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}
