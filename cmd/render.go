package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/achilleasa/go-atomtrace/compute/cl"
	"github.com/achilleasa/go-atomtrace/config"
	"github.com/achilleasa/go-atomtrace/driver"
	"github.com/achilleasa/go-atomtrace/scene"
	"github.com/achilleasa/go-atomtrace/shade"
	"github.com/achilleasa/go-atomtrace/types"
)

// RenderFrames drives a short sequence of frames through the reference host
// pipeline against a synthetic lattice of atoms. There is no scene file format in
// this tool, so -atoms/-spacing/-element describe the lattice to generate
// instead of a path to read. -device selects an opencl device to dispatch
// grid building to instead of the host reference builder, by name substring
// (see findDevice); the default, an empty string, keeps the host path.
func RenderFrames(ctx *cli.Context) error {
	setupLogging(ctx)

	cfg := config.Default()
	cfg.WorldEdgeNM = float32(ctx.Float64("world-edge"))
	cfg.TextureSize = uint32(ctx.Int("size"))

	if err := cfg.Validate(); err != nil {
		return err
	}

	n := ctx.Int("atoms")
	spacing := float32(ctx.Float64("spacing"))
	element := uint8(ctx.Int("element"))
	frames := ctx.Int("frames")

	atoms := latticeAtoms(n, spacing, element)
	logger.Infof("generated a %d-atom lattice (spacing %.3fnm, element %d)", len(atoms), spacing, element)

	camera := scene.Camera{
		Position:      types.XYZ(0, 0, float32(ctx.Float64("camera-z"))),
		Basis:         types.Ident3(),
		FOVMultiplier: 1,
	}

	var opts []driver.Option
	if name := ctx.String("device"); name != "" {
		dev, err := findDevice([]string{name})
		if err != nil {
			return err
		}
		backend := cl.New(cfg, dev)
		if err := backend.Init(); err != nil {
			return err
		}
		defer backend.Close()
		logger.Infof("dispatching grid build to opencl device %q", dev.Name)
		opts = append(opts, driver.WithGridBuilder(backend))
	}

	d := driver.New(cfg, scene.DefaultElementRadii(), shade.DefaultElementColors(), rand.Int63(), opts...)

	var lastErr error
	for i := 0; i < frames; i++ {
		_, err := d.RenderFrame(atoms, camera)
		if err != nil {
			logger.Warningf("frame %d: %v", i, err)
			var driverErr *driver.DriverError
			if errors.As(err, &driverErr) && driverErr.Advice() != "" {
				logger.Warning(driverErr.Advice())
			}
			lastErr = err
		}
	}

	displayFrameStats(d.Reports())

	return lastErr
}

// latticeAtoms arranges n atoms of the given element on a cubic grid
// centered on the origin, n^(1/3) atoms per axis (rounded up), spacing
// nanometers apart.
func latticeAtoms(n int, spacing float32, element uint8) []scene.Atom {
	if n <= 0 {
		return nil
	}

	perAxis := 1
	for perAxis*perAxis*perAxis < n {
		perAxis++
	}

	half := float32(perAxis-1) * spacing * 0.5
	atoms := make([]scene.Atom, 0, n)
	for x := 0; x < perAxis && len(atoms) < n; x++ {
		for y := 0; y < perAxis && len(atoms) < n; y++ {
			for z := 0; z < perAxis && len(atoms) < n; z++ {
				atoms = append(atoms, scene.Atom{
					Position: types.XYZ(
						float32(x)*spacing-half,
						float32(y)*spacing-half,
						float32(z)*spacing-half,
					),
					Element: element,
				})
			}
		}
	}
	return atoms
}

func displayFrameStats(reports []driver.FrameReport) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Frame", "Preprocess", "Build", "Shade", "Status"})

	var total struct {
		preprocess, build, shade int64
		dropped                  int
	}
	for _, r := range reports {
		status := "ok"
		if r.Dropped {
			status = fmt.Sprintf("dropped: %v", r.Err)
			total.dropped++
		}
		table.Append([]string{
			fmt.Sprintf("%d", r.FrameID),
			r.Stages.Preprocess.String(),
			r.Stages.Build.String(),
			r.Stages.Shade.String(),
			status,
		})
		total.preprocess += r.Stages.Preprocess.Nanoseconds()
		total.build += r.Stages.Build.Nanoseconds()
		total.shade += r.Stages.Shade.Nanoseconds()
	}
	table.SetFooter([]string{
		"TOTAL",
		fmt.Sprintf("%dns", total.preprocess),
		fmt.Sprintf("%dns", total.build),
		fmt.Sprintf("%dns", total.shade),
		fmt.Sprintf("%d dropped", total.dropped),
	})

	table.Render()
	logger.Noticef("frame statistics\n%s", buf.String())
}
