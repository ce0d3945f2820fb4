package device

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"unsafe"

	"github.com/achilleasa/gopencl/v1.2/cl"
)

type DeviceType uint8

// Supported device types.
const (
	CpuDevice   DeviceType = 1 << iota
	GpuDevice              = 1 << iota
	OtherDevice            = 1 << iota
	AllDevices             = 0xFF
)

var (
	indentRegex = regexp.MustCompile("(?m)^")
)

func (dt DeviceType) String() string {
	switch dt {
	case CpuDevice:
		return "CPU"
	case GpuDevice:
		return "GPU"
	case OtherDevice:
		return "Other"
	}
	panic("opencl: unsupported device type")
}

// Device wraps one OpenCL device: the CL/main.cl grid-build and render_atoms
// kernels this backend dispatches, and the buffers behind them, all run
// against whichever Device findDevice selects (see cmd.findDevice).
type Device struct {
	Name string
	Id   cl.DeviceId
	Type DeviceType

	compUnits  uint32
	clockSpeed uint32

	// Speed estimate in GFlops. cmd.ListDevices reports it per device so a
	// caller choosing a -device name substring can see which candidates
	// are worth dispatching the grid build to.
	Speed uint32

	// Opencl handles; allocated when device is initialized.
	ctx      *cl.Context
	cmdQueue cl.CommandQueue
	program  cl.Program
}

// Implements Stringer.
func (d Device) String() string {
	return fmt.Sprintf(
		"Name: %s\nType: %s\nSpecs: %d computation units, %d Mhz clock, %d GFlops approximate speed",
		d.Name,
		d.Type.String(),
		d.compUnits,
		d.clockSpeed,
		d.Speed,
	)
}

// Init compiles CL/main.cl on this device. compute/cl.Backend.Init calls
// this once per selected device before dispatching any of the eight grid
// and render kernels.
func (d *Device) Init(programFile string) error {
	var errCode cl.ErrorCode

	// Already initialized
	if d.ctx != nil {
		return nil
	}

	// Create context
	d.ctx = cl.CreateContext(nil, 1, &d.Id, nil, nil, (*int32)(&errCode))
	if errCode != cl.SUCCESS {
		defer d.Close()
		return fmt.Errorf("opencl device (%s): could not create opencl context (error: %s; code %d)", d.Name, ErrorName(errCode), errCode)
	}

	// Create command queue
	d.cmdQueue = cl.CreateCommandQueue(*d.ctx, d.Id, 0, (*int32)(&errCode))
	if errCode != cl.SUCCESS {
		defer d.Close()
		return fmt.Errorf("opencl device (%s): could not create opencl command queue (error: %s; code %d)", d.Name, ErrorName(errCode), errCode)
	}

	// Load program source
	absProgramPath, err := filepath.Abs(programFile)
	if err != nil {
		defer d.Close()
		return err
	}

	data, err := os.ReadFile(absProgramPath)
	if err != nil {
		defer d.Close()
		return err
	}
	progSrc := cl.Str(string(data) + "\x00")

	// Create and build program
	d.program = cl.CreateProgramWithSource(
		*d.ctx,
		1,
		&progSrc,
		nil,
		(*int32)(&errCode),
	)
	if errCode != cl.SUCCESS {
		defer d.Close()
		return fmt.Errorf("opencl device (%s): could not create program (error: %s; code %d)", d.Name, ErrorName(errCode), errCode)
	}

	errCode = cl.BuildProgram(
		d.program,
		1,
		&d.Id,
		cl.Str(fmt.Sprintf("-I %s\x00", filepath.Dir(absProgramPath))),
		nil,
		nil,
	)
	if errCode != cl.SUCCESS {
		var dataLen uint64
		data := make([]byte, 120000)

		cl.GetProgramBuildInfo(d.program, d.Id, cl.PROGRAM_BUILD_LOG, uint64(len(data)), unsafe.Pointer(&data[0]), &dataLen)
		defer d.Close()
		return fmt.Errorf("opencl device (%s): could not build kernel (error: %s; code %d):\n%s", d.Name, ErrorName(errCode), errCode, string(data[0:dataLen-1]))
	}

	return nil
}

// Shut down the device.
func (d *Device) Close() {
	if d.program != nil {
		cl.ReleaseProgram(d.program)
		d.program = nil
	}

	if d.cmdQueue != nil {
		cl.ReleaseCommandQueue(d.cmdQueue)
		d.cmdQueue = nil
	}

	if d.ctx != nil {
		cl.ReleaseContext(d.ctx)
		d.ctx = nil
	}
}

// Kernel loads one of CL/main.cl's eight kernels by name (see kernel_type.go
// for the full list compute/cl.Backend.Init resolves at startup).
func (d *Device) Kernel(name string) (*Kernel, error) {
	var errCode cl.ErrorCode
	kernelHandle := cl.CreateKernel(
		d.program,
		cl.Str(name+"\x00"),
		(*int32)(&errCode),
	)

	if errCode != cl.SUCCESS {
		return nil, fmt.Errorf("opencl device (%s): could not load kernel %s (error: %s; code %d)", d.Name, name, ErrorName(errCode), errCode)
	}

	return &Kernel{
		device:       d,
		kernelHandle: kernelHandle,
		name:         name,
	}, nil
}

// Buffer creates an empty buffer, named for the table it will back (e.g.
// "largeCells", "smallAtomRefs" — see bufferSet in compute/cl/buffers.go).
func (d *Device) Buffer(name string) *Buffer {
	return &Buffer{
		device: d,
		name:   name,
	}
}

// detectSpeed estimates GFlops from compute units and clock speed, used by
// GetPlatformInfo to populate Speed for cmd.ListDevices' report.
func (d *Device) detectSpeed() error {
	// Calculate theoretical device speed as: compute units * 2ops/cycle * clock speed
	errCode := cl.GetDeviceInfo(d.Id, cl.DEVICE_MAX_COMPUTE_UNITS, 4, unsafe.Pointer(&d.compUnits), nil)
	if errCode != cl.SUCCESS {
		return fmt.Errorf("opencl device (%s): could not query MAX_COMPUTE_UNITS (error: %s; code %d)", d.Name, ErrorName(errCode), errCode)
	}
	errCode = cl.GetDeviceInfo(d.Id, cl.DEVICE_MAX_CLOCK_FREQUENCY, 4, unsafe.Pointer(&d.clockSpeed), nil)
	if errCode != cl.SUCCESS {
		return fmt.Errorf("opencl device (%s): could not query MAX_CLOCK_FREQUENCY (error: %s; code %d)", d.Name, ErrorName(errCode), errCode)
	}
	d.Speed = d.compUnits * d.clockSpeed / 1000

	return nil
}

// clErrorNames maps OpenCL 1.2 error codes to their symbolic names, for
// error-message formatting throughout this package.
var clErrorNames = map[cl.ErrorCode]string{
	0:   "SUCCESS",
	-1:  "DEVICE_NOT_FOUND",
	-2:  "DEVICE_NOT_AVAILABLE",
	-3:  "COMPILER_NOT_AVAILABLE",
	-4:  "MEM_OBJECT_ALLOCATION_FAILURE",
	-5:  "OUT_OF_RESOURCES",
	-6:  "OUT_OF_HOST_MEMORY",
	-7:  "PROFILING_INFO_NOT_AVAILABLE",
	-8:  "MEM_COPY_OVERLAP",
	-9:  "IMAGE_FORMAT_MISMATCH",
	-10: "IMAGE_FORMAT_NOT_SUPPORTED",
	-11: "BUILD_PROGRAM_FAILURE",
	-12: "MAP_FAILURE",
	-30: "INVALID_VALUE",
	-31: "INVALID_DEVICE_TYPE",
	-32: "INVALID_PLATFORM",
	-33: "INVALID_DEVICE",
	-34: "INVALID_CONTEXT",
	-35: "INVALID_QUEUE_PROPERTIES",
	-36: "INVALID_COMMAND_QUEUE",
	-37: "INVALID_HOST_PTR",
	-38: "INVALID_MEM_OBJECT",
	-39: "INVALID_IMAGE_FORMAT_DESCRIPTOR",
	-40: "INVALID_IMAGE_SIZE",
	-41: "INVALID_SAMPLER",
	-42: "INVALID_BINARY",
	-43: "INVALID_BUILD_OPTIONS",
	-44: "INVALID_PROGRAM",
	-45: "INVALID_PROGRAM_EXECUTABLE",
	-46: "INVALID_KERNEL_NAME",
	-47: "INVALID_KERNEL_DEFINITION",
	-48: "INVALID_KERNEL",
	-49: "INVALID_ARG_INDEX",
	-50: "INVALID_ARG_VALUE",
	-51: "INVALID_ARG_SIZE",
	-52: "INVALID_KERNEL_ARGS",
	-53: "INVALID_WORK_DIMENSION",
	-54: "INVALID_WORK_GROUP_SIZE",
	-55: "INVALID_WORK_ITEM_SIZE",
	-56: "INVALID_GLOBAL_OFFSET",
	-57: "INVALID_EVENT_WAIT_LIST",
	-58: "INVALID_EVENT",
	-59: "INVALID_OPERATION",
	-60: "INVALID_GL_OBJECT",
	-61: "INVALID_BUFFER_SIZE",
	-62: "INVALID_MIP_LEVEL",
	-63: "INVALID_GLOBAL_WORK_SIZE",
}

// ErrorName returns a textual description of an opencl error code.
func ErrorName(errCode cl.ErrorCode) string {
	if name, ok := clErrorNames[errCode]; ok {
		return name
	}
	return fmt.Sprintf("unknown error code %d", errCode)
}
