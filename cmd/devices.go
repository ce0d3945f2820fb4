package cmd

import (
	"bytes"
	"fmt"

	"github.com/achilleasa/go-atomtrace/compute/cl/device"
	"github.com/urfave/cli"
)

// ListDevices prints the opencl platforms and devices available on this
// system, the same way findDevice's candidates are reported when the render
// command selects a backend.
func ListDevices(ctx *cli.Context) error {
	setupLogging(ctx)

	platforms, err := device.GetPlatformInfo()
	if err != nil {
		logger.Error(err)
		return err
	}

	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("\nSystem provides %d opencl platform(s):\n\n", len(platforms)))
	for pIdx, platform := range platforms {
		buf.WriteString(fmt.Sprintf(
			"[Platform %02d]\n  Name    %s\n  Vendor  %s\n  Version %s\n  Profile %s\n  Devices %d\n\n",
			pIdx, platform.Name, platform.Vendor, platform.Version, platform.Profile, len(platform.Devices),
		))
		for dIdx, dev := range platform.Devices {
			buf.WriteString(fmt.Sprintf(
				"  [Device %02d]\n    Name  %s\n    Type  %s\n    Speed %d GFlops\n\n",
				dIdx, dev.Name, dev.Type, dev.Speed,
			))
		}
	}

	logger.Notice(buf.String())
	return nil
}

// findDevice returns the first device matching any name in priority order,
// scanning every platform reported by GetPlatformInfo.
func findDevice(names []string) (*device.Device, error) {
	for _, name := range names {
		devs, err := device.SelectDevices(device.AllDevices, name)
		if err != nil {
			return nil, err
		}
		if len(devs) != 0 {
			return devs[0], nil
		}
	}
	return nil, fmt.Errorf("no suitable device found")
}
