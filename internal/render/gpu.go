// Package render turns per-tile feature sets into ordered, batched draw
// calls against an abstract GPU interface. The concrete GPU lives in the
// host (internal/glhost); tests substitute a recording implementation.
package render

// Handle types for GPU-owned objects.
type (
	BufferID      uint32
	ProgramID     uint32
	VertexArrayID uint32
	TextureID     uint32
)

// DrawMode selects the primitive topology of a draw call.
type DrawMode int

const (
	Triangles DrawMode = iota
	Lines
	Points
)

// Color is a straight-alpha RGBA color with components in [0,1].
type Color [4]float32

// VertexAttribute describes one interleaved vertex attribute.
type VertexAttribute struct {
	Index  int // shader attribute location
	Size   int // components (floats)
	Stride int // bytes between consecutive vertices
	Offset int // byte offset of the first component
}

// GPU is the device interface the renderer draws through. All calls
// happen on the render thread.
type GPU interface {
	CompileProgram(name, vertexSrc, fragmentSrc string) (ProgramID, error)
	UseProgram(ProgramID)

	CreateBuffer() BufferID
	UploadVertexData(buf BufferID, data []float32, dynamic bool)
	UploadIndexData(buf BufferID, data []uint32, dynamic bool)

	CreateVertexArray(vertexBuf, indexBuf BufferID, attrs []VertexAttribute) VertexArrayID
	BindVertexArray(VertexArrayID)

	CreateTexture(width, height int, rgba []byte) TextureID
	BindTexture(tex TextureID, unit int)

	SetUniformMat4(prog ProgramID, name string, m [16]float32)
	SetUniformVec4(prog ProgramID, name string, v [4]float32)
	SetUniformFloat(prog ProgramID, name string, v float32)
	SetUniformInt(prog ProgramID, name string, v int32)

	DrawIndexed(mode DrawMode, indexCount int)
	DrawArrays(mode DrawMode, first, count int)
}
