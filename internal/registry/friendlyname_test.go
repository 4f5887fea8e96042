package registry

import "testing"

func TestResolveFriendlyNamePrefersGetInfo(t *testing.T) {
	got := resolveFriendlyName(" Kitchen Speaker ", map[string]string{"Name": "ignored"}, "kitchen._spotify-connect._tcp.local.")
	if got != "Kitchen Speaker" {
		t.Errorf("got %q, want %q", got, "Kitchen Speaker")
	}
}

func TestResolveFriendlyNameFallsBackToTXT(t *testing.T) {
	got := resolveFriendlyName("", map[string]string{"DisplayName": "Living Room"}, "livingroom._spotify-connect._tcp.local.")
	if got != "Living Room" {
		t.Errorf("got %q, want %q", got, "Living Room")
	}
}

func TestResolveFriendlyNameStripsInstanceSuffix(t *testing.T) {
	got := resolveFriendlyName("", nil, "Office Speaker._spotify-connect._tcp.local.")
	if got != "Office Speaker" {
		t.Errorf("got %q, want %q", got, "Office Speaker")
	}
}

func TestResolveFriendlyNameFallsBackToRawInstanceWhenSuffixTrivial(t *testing.T) {
	got := resolveFriendlyName("", nil, "Den")
	if got != "Den" {
		t.Errorf("got %q, want %q", got, "Den")
	}
}
