package version

import "testing"

func TestFormat(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"dev", "dev"},
		{"1.2.1", "v1.2.1"},
		{"v1.2.1", "v1.2.1"},
	}
	for _, tc := range cases {
		if got := Format(tc.in); got != tc.want {
			t.Errorf("Format(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestForTesting(t *testing.T) {
	restore := ForTesting("9.9.9")
	if String() != "9.9.9" {
		t.Fatalf("String() = %q after ForTesting", String())
	}
	restore()
	if String() != "dev" {
		t.Fatalf("String() = %q after restore", String())
	}
}
