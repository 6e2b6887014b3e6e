//go:build cuda

package device

/*
#cgo LDFLAGS: -lcudart

// Minimal CUDA runtime forward declarations to avoid requiring headers at
// compile time. The linker still requires libcudart when building with the
// cuda tag.
typedef int cudaError_t;

extern const char* cudaGetErrorString(cudaError_t err);
extern cudaError_t cudaGetDeviceCount(int* count);
extern cudaError_t cudaMalloc(void** ptr, unsigned long long size);
extern cudaError_t cudaFree(void* ptr);
extern cudaError_t cudaMallocHost(void** ptr, unsigned long long size);
extern cudaError_t cudaFreeHost(void* ptr);
extern cudaError_t cudaMemcpy(void* dst, const void* src, unsigned long long size, int kind);

#define LOOM_CUDA_MEMCPY_HOST_TO_DEVICE 1
#define LOOM_CUDA_MEMCPY_DEVICE_TO_HOST 2

static const char* loomCudaGetErrorString(cudaError_t err) {
	return cudaGetErrorString(err);
}

static int loomCudaGetDeviceCount(int* out) {
	return (int)cudaGetDeviceCount(out);
}

static int loomCudaMalloc(void** ptr, unsigned long long size) {
	return (int)cudaMalloc(ptr, size);
}

static int loomCudaFree(void* ptr) {
	return (int)cudaFree(ptr);
}

static int loomCudaMallocHost(void** ptr, unsigned long long size) {
	return (int)cudaMallocHost(ptr, size);
}

static int loomCudaFreeHost(void* ptr) {
	return (int)cudaFreeHost(ptr);
}

static int loomCudaMemcpyToDevice(void* dst, const void* src, unsigned long long size) {
	return (int)cudaMemcpy(dst, src, size, LOOM_CUDA_MEMCPY_HOST_TO_DEVICE);
}

static int loomCudaMemcpyToHost(void* dst, const void* src, unsigned long long size) {
	return (int)cudaMemcpy(dst, src, size, LOOM_CUDA_MEMCPY_DEVICE_TO_HOST);
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

const cudaEnabled = true

func cudaErr(code C.int) error {
	if code == 0 {
		return nil
	}
	return fmt.Errorf("cuda error %d: %s", int(code), C.GoString(C.loomCudaGetErrorString(C.cudaError_t(code))))
}

func hasCUDA() bool {
	var count C.int
	if err := cudaErr(C.loomCudaGetDeviceCount(&count)); err != nil {
		return false
	}
	return count > 0
}

func newCUDA() (*Device, error) {
	var count C.int
	if err := cudaErr(C.loomCudaGetDeviceCount(&count)); err != nil {
		return nil, fmt.Errorf("cuda device query failed: %w", err)
	}
	if count < 1 {
		return nil, fmt.Errorf("no cuda devices detected")
	}
	return &Device{
		kind:    CUDA,
		host:    cudaHostAllocator{},
		accel:   cudaAccelAllocator{},
		toHost:  cudaCopyToHost,
		toAccel: cudaCopyToAccel,
	}, nil
}

// Buffers on both sides are carried as byte slices over the raw pointers.
// Accelerator-side slices are never indexed from Go; only cudaMemcpy
// touches them.

type cudaHostAllocator struct{}

func (cudaHostAllocator) Name() string { return "cuda-pinned" }

func (cudaHostAllocator) Alloc(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrAllocationFailed
	}
	if n == 0 {
		return []byte{}, nil
	}
	var ptr unsafe.Pointer
	if err := cudaErr(C.loomCudaMallocHost((*unsafe.Pointer)(&ptr), C.ulonglong(n))); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocationFailed, err)
	}
	return unsafe.Slice((*byte)(ptr), n), nil
}

func (cudaHostAllocator) Free(buf []byte) {
	if len(buf) == 0 {
		return
	}
	_ = cudaErr(C.loomCudaFreeHost(unsafe.Pointer(&buf[0])))
}

type cudaAccelAllocator struct{}

func (cudaAccelAllocator) Name() string { return "cuda" }

func (cudaAccelAllocator) Alloc(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrAllocationFailed
	}
	if n == 0 {
		return []byte{}, nil
	}
	var ptr unsafe.Pointer
	if err := cudaErr(C.loomCudaMalloc((*unsafe.Pointer)(&ptr), C.ulonglong(n))); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocationFailed, err)
	}
	return unsafe.Slice((*byte)(ptr), n), nil
}

func (cudaAccelAllocator) Free(buf []byte) {
	if len(buf) == 0 {
		return
	}
	_ = cudaErr(C.loomCudaFree(unsafe.Pointer(&buf[0])))
}

func cudaCopyToHost(dst, src []byte) error {
	if len(dst) != len(src) {
		return fmt.Errorf("%w: copy size %d != %d", ErrDeviceTransfer, len(dst), len(src))
	}
	if len(dst) == 0 {
		return nil
	}
	if err := cudaErr(C.loomCudaMemcpyToHost(unsafe.Pointer(&dst[0]), unsafe.Pointer(&src[0]), C.ulonglong(len(src)))); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceTransfer, err)
	}
	return nil
}

func cudaCopyToAccel(dst, src []byte) error {
	if len(dst) != len(src) {
		return fmt.Errorf("%w: copy size %d != %d", ErrDeviceTransfer, len(dst), len(src))
	}
	if len(dst) == 0 {
		return nil
	}
	if err := cudaErr(C.loomCudaMemcpyToDevice(unsafe.Pointer(&dst[0]), unsafe.Pointer(&src[0]), C.ulonglong(len(src)))); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceTransfer, err)
	}
	return nil
}
