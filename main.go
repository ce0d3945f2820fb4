package main

import (
	"os"

	"github.com/achilleasa/go-atomtrace/cmd"
	"github.com/urfave/cli"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "go-atomtrace"
	app.Usage = "ray-trace atomic spheres against a two-level uniform-grid BVH"
	app.Version = "0.0.1"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "list-devices",
			Usage:  "list available opencl devices",
			Action: cmd.ListDevices,
		},
		{
			Name:  "render",
			Usage: "render a sequence of frames of a synthetic atom lattice",
			Description: `
Render a sequence of frames through the preprocess/build/shade pipeline
against a synthetic lattice of atoms, and print per-frame stage timings.`,
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "frames",
					Value: 1,
					Usage: "number of frames to render",
				},
				cli.IntFlag{
					Name:  "size",
					Value: 512,
					Usage: "output texture width/height in pixels",
				},
				cli.Float64Flag{
					Name:  "world-edge",
					Value: 128,
					Usage: "world volume edge length in nanometers",
				},
				cli.IntFlag{
					Name:  "atoms",
					Value: 64,
					Usage: "number of atoms in the generated lattice",
				},
				cli.Float64Flag{
					Name:  "spacing",
					Value: 0.3,
					Usage: "lattice spacing in nanometers",
				},
				cli.IntFlag{
					Name:  "element",
					Value: 6,
					Usage: "atomic number assigned to every lattice atom",
				},
				cli.Float64Flag{
					Name:  "camera-z",
					Value: 5.0,
					Usage: "camera distance from the origin along +z, in nanometers",
				},
				cli.StringFlag{
					Name:  "device",
					Usage: "opencl device name substring to dispatch grid building to (default: host reference builder)",
				},
			},
			Action: cmd.RenderFrames,
		},
		{
			Name:  "debug",
			Usage: "build a grid over a synthetic atom scattering and verify its compacted-table invariants",
			Flags: []cli.Flag{
				cli.Float64Flag{
					Name:  "world-edge",
					Value: 32,
					Usage: "world volume edge length in nanometers",
				},
				cli.IntFlag{
					Name:  "atoms",
					Value: 512,
					Usage: "number of atoms in the generated scattering",
				},
				cli.StringFlag{
					Name:  "device",
					Usage: "opencl device name substring to check instead of the host reference builder",
				},
			},
			Action: cmd.Debug,
		},
	}

	app.Run(os.Args)
}
