package cmd

import "testing"

// findDevice and ListDevices only call into GetPlatformInfo/SelectDevices,
// which enumerate zero platforms (and return no error) on a machine with no
// opencl runtime installed, so these run unconditionally.

func TestFindDeviceReturnsErrorWhenNothingMatches(t *testing.T) {
	_, err := findDevice([]string{"some-device-name-nothing-will-ever-match"})
	if err == nil {
		t.Fatalf("expected an error when no candidate name matches any device")
	}
}

func TestFindDeviceWithNoCandidatesReturnsError(t *testing.T) {
	if _, err := findDevice(nil); err == nil {
		t.Fatalf("expected an error when given no candidate names")
	}
}
