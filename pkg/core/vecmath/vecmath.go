// Package vecmath provides the dense float64 vector kernels used by the
// model: dot products, scaled additions and the three-way product at the
// core of the DistMult scorer.
//
// The package dispatches at init time between pure Go reference loops and
// Gonum's BLAS implementation, which carries SIMD kernels on amd64 and arm64.
package vecmath

import (
	"errors"
	"fmt"

	"github.com/klauspost/cpuid/v2"
	"gonum.org/v1/gonum/blas/gonum"
)

// ErrLengthMismatch is the panic value of the kernels when operands differ in length.
var ErrLengthMismatch = errors.New("vecmath: vectors must have the same length")

type dotFunc func(a, b []float64) float64
type axpyFunc func(alpha float64, x, y []float64)

var (
	dotImpl     dotFunc  = dotGo
	axpyImpl    axpyFunc = axpyGo
	backendName          = "pure-go"
)

var gonumEngine = gonum.Implementation{}

func init() {
	// Gonum's asm kernels need SSE2 on amd64 or ASIMD on arm64.
	if cpuid.CPU.Has(cpuid.SSE2) || cpuid.CPU.Has(cpuid.ASIMD) {
		dotImpl = dotGonum
		axpyImpl = axpyGonum
		backendName = "gonum"
	}
}

// Backend describes the kernel implementation in use and the host CPU.
type Backend struct {
	Name    string
	CPU     string
	Cores   int
	HasAVX2 bool
	HasFMA3 bool
}

// CurrentBackend reports which kernels were selected at init.
func CurrentBackend() Backend {
	return Backend{
		Name:    backendName,
		CPU:     cpuid.CPU.BrandName,
		Cores:   cpuid.CPU.PhysicalCores,
		HasAVX2: cpuid.CPU.Has(cpuid.AVX2),
		HasFMA3: cpuid.CPU.Has(cpuid.FMA3),
	}
}

func (b Backend) String() string {
	return fmt.Sprintf("%s (cpu=%q cores=%d avx2=%t fma3=%t)", b.Name, b.CPU, b.Cores, b.HasAVX2, b.HasFMA3)
}

// --- REFERENCE IMPLEMENTATIONS (PURE GO) ---

func dotGo(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func axpyGo(alpha float64, x, y []float64) {
	for i := range x {
		y[i] += alpha * x[i]
	}
}

// --- Gonum-based Implementations ---

func dotGonum(a, b []float64) float64 {
	return gonumEngine.Ddot(len(a), a, 1, b, 1)
}

func axpyGonum(alpha float64, x, y []float64) {
	gonumEngine.Daxpy(len(x), alpha, x, 1, y, 1)
}

// --- Public kernels ---

// Dot returns Σ a[i]*b[i]. The slices must have the same length.
func Dot(a, b []float64) float64 {
	if len(a) != len(b) {
		panic(ErrLengthMismatch)
	}
	if len(a) == 0 {
		return 0
	}
	return dotImpl(a, b)
}

// Axpy computes y += alpha*x in place.
func Axpy(alpha float64, x, y []float64) {
	if len(x) != len(y) {
		panic(ErrLengthMismatch)
	}
	if len(x) == 0 || alpha == 0 {
		return
	}
	axpyImpl(alpha, x, y)
}

// TripleDot returns Σ a[i]*r[i]*b[i].
func TripleDot(a, r, b []float64) float64 {
	if len(a) != len(r) || len(a) != len(b) {
		panic(ErrLengthMismatch)
	}
	var sum float64
	for i := range a {
		sum += a[i] * r[i] * b[i]
	}
	return sum
}

// AddTripleScaled computes dst[i] += alpha * a[i] * b[i].
func AddTripleScaled(dst []float64, alpha float64, a, b []float64) {
	if len(dst) != len(a) || len(dst) != len(b) {
		panic(ErrLengthMismatch)
	}
	for i := range dst {
		dst[i] += alpha * a[i] * b[i]
	}
}
