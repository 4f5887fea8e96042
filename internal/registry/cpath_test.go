package registry

import "testing"

func TestNormalizeCpath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", defaultCpath},
		{"/", defaultCpath},
		{"/spotifyconnect/zeroconf/", "/spotifyconnect/zeroconf"},
		{"zeroconf", "/zeroconf"},
		{"  ", defaultCpath},
		{"/custom/path", "/custom/path"},
	}

	for _, c := range cases {
		if got := normalizeCpath(c.in); got != c.want {
			t.Errorf("normalizeCpath(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
