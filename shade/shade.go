// Package shade implements the pixel shader (component D): primary ray
// generation, the traverser dispatch, cosine-weighted ambient occlusion,
// and the three output textures (color, depth, motion) the upscaler
// consumes.
package shade

import (
	"runtime"
	"sync"

	"github.com/chewxy/math32"

	"github.com/achilleasa/go-atomtrace/bvh"
	"github.com/achilleasa/go-atomtrace/config"
	"github.com/achilleasa/go-atomtrace/scene"
	"github.com/achilleasa/go-atomtrace/traverse"
	"github.com/achilleasa/go-atomtrace/types"
)

// aoOffset nudges an AO probe ray's origin off the hit surface along its
// normal, avoiding immediate self-intersection with the hit atom.
const aoOffset = 1e-4

// pixelJob is one dispatch slot: a pixel coordinate plus its Morton-ordered
// position in the overall sequence, used to derive a deterministic
// per-pixel RNG seed independent of how work is split across workers.
type pixelJob struct {
	x, y  uint32
	order uint32
}

// Shade renders one frame's color/depth/motion textures for the given grid,
// atom set and camera. prevCamera, if non-nil, is used to reproject each
// hit into the previous frame for the motion vector; a nil prevCamera
// produces all-zero motion (no previous-frame data).
//
// Per-pixel traversal faults (*traverse.FaultError) are non-fatal: the
// pixel is rendered with a marker color and shading continues. Any other
// error aborts the frame.
func Shade(
	grid *bvh.Grid,
	atoms []scene.ConvertedAtom,
	cfg config.Config,
	colors ElementColors,
	camera scene.Camera,
	prevCamera *scene.Camera,
	frameSeed uint32,
) (*Output, error) {
	width, height := cfg.TextureSize, cfg.TextureSize
	out := NewOutput(width, height)

	jobs := make([]pixelJob, 0, int(width)*int(height))
	var order uint32
	forEachPixelInTileOrder(width, height, func(x, y uint32) {
		jobs = append(jobs, pixelJob{x: x, y: y, order: order})
		order++
	})

	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > len(jobs) {
		numWorkers = len(jobs)
	}
	if numWorkers == 0 {
		return out, nil
	}
	chunk := (len(jobs) + numWorkers - 1) / numWorkers

	var firstFault error
	var faultMu sync.Mutex
	var wg sync.WaitGroup
	for start := 0; start < len(jobs); start += chunk {
		end := start + chunk
		if end > len(jobs) {
			end = len(jobs)
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				job := jobs[i]
				if err := shadePixel(grid, atoms, cfg, colors, camera, prevCamera, frameSeed, int(width), job, out); err != nil {
					faultMu.Lock()
					if firstFault == nil {
						firstFault = err
					}
					faultMu.Unlock()
				}
			}
		}(start, end)
	}
	wg.Wait()

	return out, firstFault
}

func shadePixel(
	grid *bvh.Grid,
	atoms []scene.ConvertedAtom,
	cfg config.Config,
	colors ElementColors,
	camera scene.Camera,
	prevCamera *scene.Camera,
	frameSeed uint32,
	n int,
	job pixelJob,
	out *Output,
) error {
	origin, dir := camera.PrimaryRay(int(job.x), int(job.y), n)

	hit, err := traverse.Primary(grid, atoms, cfg, origin, dir)
	if err != nil {
		if _, ok := err.(*traverse.FaultError); ok {
			out.setColor(job.x, job.y, faultMarkerColor, 1)
			out.setDepth(job.x, job.y, 0)
			return nil
		}
		return err
	}

	if hit.AtomIndex < 0 {
		out.setColor(job.x, job.y, types.Vec3{}, 0)
		out.setDepth(job.x, job.y, math32.Inf(1))
		out.setMotion(job.x, job.y, types.Vec2{})
		return nil
	}

	atom := atoms[hit.AtomIndex]
	hitPoint := origin.Add(dir.Mul(hit.Distance))
	normal := hitPoint.Sub(atom.Position).Normalize()

	diffuse := max32(0, normal.Dot(dir.Mul(-1)))

	seed := pixelSeed(job.order, frameSeed)
	aoFactor, aoErr := ambientOcclusion(grid, atoms, cfg, hitPoint, normal, seed)
	if aoErr != nil {
		if _, ok := aoErr.(*traverse.FaultError); ok {
			out.setColor(job.x, job.y, faultMarkerColor, 1)
			out.setDepth(job.x, job.y, 0)
			return nil
		}
		return aoErr
	}

	color := colors[atom.Element].Mul(diffuse * aoFactor)
	out.setColor(job.x, job.y, color, 1)
	out.setDepth(job.x, job.y, hit.Distance)

	if prevCamera != nil {
		if px, py, ok := reproject(*prevCamera, hitPoint, n); ok {
			out.setMotion(job.x, job.y, types.XY(px-float32(job.x), py-float32(job.y)))
		} else {
			out.setMotion(job.x, job.y, types.Vec2{})
		}
	} else {
		out.setMotion(job.x, job.y, types.Vec2{})
	}

	return nil
}

// ambientOcclusion casts cfg.AOSamples cosine-weighted probe rays from
// point in the hemisphere around normal, returning the fraction that are
// unoccluded within cfg.AOCutoffNM.
func ambientOcclusion(grid *bvh.Grid, atoms []scene.ConvertedAtom, cfg config.Config, point, normal types.Vec3, seed uint32) (float32, error) {
	if cfg.AOSamples == 0 {
		return 1, nil
	}
	origin := point.Add(normal.Mul(aoOffset))

	var occluded uint32
	for s := uint32(0); s < cfg.AOSamples; s++ {
		u, v := sampleUV(seed, s)
		dir := cosineSampleHemisphere(normal, u, v)
		hit, err := traverse.AO(grid, atoms, cfg, origin, dir)
		if err != nil {
			return 0, err
		}
		if hit.Occluded {
			occluded++
		}
	}
	return 1 - float32(occluded)/float32(cfg.AOSamples), nil
}

// reproject projects worldPoint into the previous frame's NxN pixel space
// by inverting the primary-ray construction (§4.D), returning ok=false if
// the point falls behind the previous camera.
func reproject(prevCamera scene.Camera, worldPoint types.Vec3, n int) (px, py float32, ok bool) {
	local := prevCamera.Basis.Transpose().MulVec3(worldPoint.Sub(prevCamera.Position))
	if local[2] >= -1e-6 || prevCamera.FOVMultiplier == 0 {
		return 0, 0, false
	}
	half := float32(n) * 0.5

	x := -local[0] / (local[2] * prevCamera.FOVMultiplier)
	y := -local[1] / (local[2] * prevCamera.FOVMultiplier)

	px = x - 0.5 - prevCamera.Jitter[0] + half
	py = -y - 0.5 - prevCamera.Jitter[1] + half
	return px, py, true
}

var faultMarkerColor = types.XYZ(1, 0, 1)
