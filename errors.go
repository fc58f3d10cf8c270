package gpuval

import (
	"errors"
	"fmt"

	"github.com/gogpu/wgpu/core"
	"github.com/gogpu/wgpu/hal"
)

// ErrorKind classifies an error reported to the device error channel.
type ErrorKind int

const (
	// ErrorKindValidation marks API misuse caught while recording or while
	// validating a command buffer.
	ErrorKindValidation ErrorKind = iota

	// ErrorKindOutOfMemory marks a backend allocation failure.
	ErrorKindOutOfMemory

	// ErrorKindInternal marks a backend failure that is not the caller's fault.
	ErrorKindInternal
)

// String returns the name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindValidation:
		return "Validation"
	case ErrorKindOutOfMemory:
		return "OutOfMemory"
	case ErrorKindInternal:
		return "Internal"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Filter returns the error scope filter capturing errors of this kind.
func (k ErrorKind) Filter() core.ErrorFilter {
	switch k {
	case ErrorKindOutOfMemory:
		return core.ErrorFilterOutOfMemory
	case ErrorKindInternal:
		return core.ErrorFilterInternal
	default:
		return core.ErrorFilterValidation
	}
}

// Error is an error reported to the device error channel.
// errors.Is reaches the wrapped sentinel.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// Error formats the error as "op: message".
func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying sentinel chain.
func (e *Error) Unwrap() error { return e.Err }

// validationError wraps err as a validation error of op.
func validationError(op string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: ErrorKindValidation, Op: op, Err: err}
}

// backendError classifies a failure returned by a backend.
func backendError(op string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	kind := ErrorKindInternal
	if errors.Is(err, hal.ErrDeviceOutOfMemory) || errors.Is(err, ErrOutOfMemory) {
		kind = ErrorKindOutOfMemory
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errors reported while validating the resource usage of a pass.
var (
	ErrStorageUsedMultipleTimes = errors.New("gpuval: storage resource used multiple times in compute pass")
	ErrBufferMissingUsage       = errors.New("gpuval: buffer missing usage for the pass")
	ErrBufferWritableConflict   = errors.New("gpuval: buffer used as writable usage and another usage in pass")
	ErrTextureMissingUsage      = errors.New("gpuval: texture missing usage for the pass")
	ErrTextureWritableConflict  = errors.New("gpuval: texture used as writable usage and another usage in pass")
)

// Errors reported by the command buffer state machine.
var (
	ErrDisallowedOutsidePass     = errors.New("gpuval: command disallowed outside of a pass")
	ErrDisallowedInRenderPass    = errors.New("gpuval: command disallowed inside a render pass")
	ErrDisallowedInComputePass   = errors.New("gpuval: command disallowed inside a compute pass")
	ErrPassEnded                 = errors.New("gpuval: command disallowed after the end of the pass")
	ErrIncompatiblePipeline      = errors.New("gpuval: pipeline is incompatible with this render pass")
	ErrNoRenderPipeline          = errors.New("gpuval: no active render pipeline")
	ErrNoComputePipeline         = errors.New("gpuval: no active compute pipeline")
	ErrIndexBufferNotSet         = errors.New("gpuval: index buffer not set")
	ErrMissingBindGroup          = errors.New("gpuval: missing bind group")
	ErrMissingVertexBuffer       = errors.New("gpuval: missing vertex buffer")
	ErrBindGroupLayoutMismatch   = errors.New("gpuval: bind group layout does not match the pipeline layout")
	ErrPushConstantsRenderStages = errors.New("gpuval: push constants stage must be a subset of vertex|fragment in render passes")
	ErrPushConstantsComputeStage = errors.New("gpuval: push constants stage must be compute or none in compute passes")
	ErrUnfinishedRenderPass      = errors.New("gpuval: unfinished render pass")
	ErrUnfinishedComputePass     = errors.New("gpuval: unfinished compute pass")
)

// Errors reported when validating copies.
var (
	ErrCopyMipLevel          = errors.New("gpuval: copy mip-level out of range")
	ErrCopyArrayLayer        = errors.New("gpuval: copy array-layer out of range")
	ErrCopyOutsideTexture    = errors.New("gpuval: copy would touch outside of the texture")
	ErrCopyDepth             = errors.New("gpuval: copies with z != 0 or depth != 1 are not supported")
	ErrCopyOverflowsBuffer   = errors.New("gpuval: copy would overflow the buffer")
	ErrRowPitchAlignment     = errors.New("gpuval: row pitch must be a multiple of 256")
	ErrRowPitchTooSmall      = errors.New("gpuval: row pitch must not be less than the number of bytes per row")
	ErrBufferOffsetAlignment = errors.New("gpuval: buffer offset must be a multiple of the texel size")
	ErrCopyFormatMismatch    = errors.New("gpuval: copy source and destination formats differ")
	ErrCopySameTexture       = errors.New("gpuval: copy source and destination are the same texture")
	ErrBufferNoTransferSrc   = errors.New("gpuval: buffer needs the transfer source usage bit")
	ErrBufferNoTransferDst   = errors.New("gpuval: buffer needs the transfer destination usage bit")
	ErrTextureNoTransferSrc  = errors.New("gpuval: texture needs the transfer source usage bit")
	ErrTextureNoTransferDst  = errors.New("gpuval: texture needs the transfer destination usage bit")
)

// Errors reported immediately by CommandBufferBuilder calls.
var (
	ErrTooManyPushConstants   = errors.New("gpuval: too many push constants")
	ErrBindGroupIndexOverMax  = errors.New("gpuval: bind group index over max")
	ErrVertexSlotOverMax      = errors.New("gpuval: vertex buffer slot over max")
	ErrVertexBuffersMismatch  = errors.New("gpuval: vertex buffers and offsets differ in length")
	ErrBuilderFinalized       = errors.New("gpuval: command buffer already finalized")
	ErrNilResource            = errors.New("gpuval: nil resource")
	ErrForeignResource        = errors.New("gpuval: resource belongs to another device")
	ErrCommandBufferInvalid   = errors.New("gpuval: command buffer is invalid")
	ErrCommandBufferSubmitted = errors.New("gpuval: command buffer already submitted")
)

// Errors reported by resource creation and resource methods.
var (
	ErrInitialUsageNotAllowed = errors.New("gpuval: initial usage is not allowed")
	ErrZeroSize               = errors.New("gpuval: zero size")
	ErrInvalidMipLevelCount   = errors.New("gpuval: mip level count out of range")
	ErrFormatNotCopyable      = errors.New("gpuval: texture format has no texel size")
	ErrBufferViewOutOfBounds  = errors.New("gpuval: buffer view end is out of bounds")
	ErrBindingMismatch        = errors.New("gpuval: bind group entry does not match its layout binding")
	ErrUnsupportedBinding     = errors.New("gpuval: unsupported binding type")
	ErrBindingUsage           = errors.New("gpuval: resource does not allow the usage implied by its binding")
	ErrAttachmentSizeMismatch = errors.New("gpuval: render pass attachments differ in size")
	ErrNoAttachments          = errors.New("gpuval: render pass has no attachments")
	ErrAttachmentUsage        = errors.New("gpuval: attachment texture needs the output attachment usage bit")
	ErrMissingShaderModule    = errors.New("gpuval: missing shader module")
	ErrShaderCompile          = errors.New("gpuval: shader compilation failed")
	ErrTooManyBindGroups      = errors.New("gpuval: pipeline layout has too many bind groups")
	ErrBufferDestroyed        = errors.New("gpuval: buffer destroyed")
	ErrTextureDestroyed       = errors.New("gpuval: texture destroyed")
	ErrBindGroupDestroyed     = errors.New("gpuval: bind group destroyed")
	ErrBufferMapped           = errors.New("gpuval: buffer is mapped")
	ErrBufferAlreadyMapped    = errors.New("gpuval: buffer already mapped or map pending")
	ErrMapUsageMismatch       = errors.New("gpuval: buffer needs the map read usage bit")
	ErrSubDataUsage           = errors.New("gpuval: buffer needs the transfer destination usage bit for sub data")
	ErrInvalidMapRange        = errors.New("gpuval: map range out of bounds")
	ErrCallbackNil            = errors.New("gpuval: callback must not be nil")
	ErrDeviceDestroyed        = errors.New("gpuval: device destroyed")
	ErrOutOfMemory            = errors.New("gpuval: out of memory")
)
