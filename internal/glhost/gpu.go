// Package glhost is the desktop host: a GLFW window pump and an OpenGL
// 4.1 implementation of the renderer's GPU interface. Everything here is
// glue; no map logic lives in this package.
package glhost

import (
	"fmt"
	"strings"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/MeKo-Tech/vectormap/internal/render"
)

// Device implements render.GPU on an OpenGL 4.1 core context. All calls
// must happen on the thread that owns the context.
type Device struct {
	uniforms map[uniformKey]int32
	current  render.ProgramID
}

type uniformKey struct {
	prog render.ProgramID
	name string
}

// NewDevice configures the fixed pipeline state the renderer expects:
// straight-alpha blending, no depth test.
func NewDevice() (*Device, error) {
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("initializing OpenGL: %w", err)
	}

	gl.Enable(gl.BLEND)
	gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
	gl.Disable(gl.DEPTH_TEST)
	gl.DepthMask(false)

	return &Device{uniforms: make(map[uniformKey]int32)}, nil
}

// Clear wipes the framebuffer to the background color.
func (d *Device) Clear(r, g, b, a float32) {
	gl.ClearColor(r, g, b, a)
	gl.Clear(gl.COLOR_BUFFER_BIT)
}

// Viewport sets the GL viewport in framebuffer pixels.
func (d *Device) Viewport(w, h int) {
	gl.Viewport(0, 0, int32(w), int32(h))
}

// CompileProgram implements render.GPU. Failure here is fatal to
// startup by design of the renderer.
func (d *Device) CompileProgram(name, vertexSrc, fragmentSrc string) (render.ProgramID, error) {
	vert, err := compileShader(vertexSrc, gl.VERTEX_SHADER)
	if err != nil {
		return 0, fmt.Errorf("%s vertex shader: %w", name, err)
	}
	defer gl.DeleteShader(vert)

	frag, err := compileShader(fragmentSrc, gl.FRAGMENT_SHADER)
	if err != nil {
		return 0, fmt.Errorf("%s fragment shader: %w", name, err)
	}
	defer gl.DeleteShader(frag)

	prog := gl.CreateProgram()
	gl.AttachShader(prog, vert)
	gl.AttachShader(prog, frag)
	gl.LinkProgram(prog)

	var status int32
	gl.GetProgramiv(prog, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetProgramiv(prog, gl.INFO_LOG_LENGTH, &logLen)
		log := strings.Repeat("\x00", int(logLen+1))
		gl.GetProgramInfoLog(prog, logLen, nil, gl.Str(log))
		return 0, fmt.Errorf("linking %s: %s", name, log)
	}

	return render.ProgramID(prog), nil
}

func compileShader(src string, kind uint32) (uint32, error) {
	shader := gl.CreateShader(kind)
	csrc, free := gl.Strs(src + "\x00")
	gl.ShaderSource(shader, 1, csrc, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLen)
		log := strings.Repeat("\x00", int(logLen+1))
		gl.GetShaderInfoLog(shader, logLen, nil, gl.Str(log))
		return 0, fmt.Errorf("compile error: %s", log)
	}
	return shader, nil
}

// UseProgram implements render.GPU.
func (d *Device) UseProgram(p render.ProgramID) {
	gl.UseProgram(uint32(p))
	d.current = p
}

// CreateBuffer implements render.GPU.
func (d *Device) CreateBuffer() render.BufferID {
	var id uint32
	gl.GenBuffers(1, &id)
	return render.BufferID(id)
}

// UploadVertexData implements render.GPU.
func (d *Device) UploadVertexData(buf render.BufferID, data []float32, dynamic bool) {
	if len(data) == 0 {
		return
	}
	gl.BindBuffer(gl.ARRAY_BUFFER, uint32(buf))
	gl.BufferData(gl.ARRAY_BUFFER, len(data)*4, gl.Ptr(data), usage(dynamic))
}

// UploadIndexData implements render.GPU.
func (d *Device) UploadIndexData(buf render.BufferID, data []uint32, dynamic bool) {
	if len(data) == 0 {
		return
	}
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, uint32(buf))
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(data)*4, gl.Ptr(data), usage(dynamic))
}

// CreateVertexArray implements render.GPU.
func (d *Device) CreateVertexArray(vertexBuf, indexBuf render.BufferID, attrs []render.VertexAttribute) render.VertexArrayID {
	var vao uint32
	gl.GenVertexArrays(1, &vao)
	gl.BindVertexArray(vao)

	gl.BindBuffer(gl.ARRAY_BUFFER, uint32(vertexBuf))
	for _, a := range attrs {
		gl.EnableVertexAttribArray(uint32(a.Index))
		gl.VertexAttribPointerWithOffset(uint32(a.Index), int32(a.Size), gl.FLOAT, false, int32(a.Stride), uintptr(a.Offset))
	}
	if indexBuf != 0 {
		gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, uint32(indexBuf))
	}

	gl.BindVertexArray(0)
	return render.VertexArrayID(vao)
}

// BindVertexArray implements render.GPU.
func (d *Device) BindVertexArray(vao render.VertexArrayID) {
	gl.BindVertexArray(uint32(vao))
}

// CreateTexture implements render.GPU.
func (d *Device) CreateTexture(width, height int, rgba []byte) render.TextureID {
	var tex uint32
	gl.GenTextures(1, &tex)
	gl.BindTexture(gl.TEXTURE_2D, tex)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA, int32(width), int32(height), 0, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(rgba))
	return render.TextureID(tex)
}

// BindTexture implements render.GPU.
func (d *Device) BindTexture(tex render.TextureID, unit int) {
	gl.ActiveTexture(gl.TEXTURE0 + uint32(unit))
	gl.BindTexture(gl.TEXTURE_2D, uint32(tex))
}

// SetUniformMat4 implements render.GPU.
func (d *Device) SetUniformMat4(prog render.ProgramID, name string, m [16]float32) {
	gl.UniformMatrix4fv(d.location(prog, name), 1, false, &m[0])
}

// SetUniformVec4 implements render.GPU.
func (d *Device) SetUniformVec4(prog render.ProgramID, name string, v [4]float32) {
	gl.Uniform4f(d.location(prog, name), v[0], v[1], v[2], v[3])
}

// SetUniformFloat implements render.GPU.
func (d *Device) SetUniformFloat(prog render.ProgramID, name string, v float32) {
	gl.Uniform1f(d.location(prog, name), v)
}

// SetUniformInt implements render.GPU.
func (d *Device) SetUniformInt(prog render.ProgramID, name string, v int32) {
	gl.Uniform1i(d.location(prog, name), v)
}

// DrawIndexed implements render.GPU.
func (d *Device) DrawIndexed(mode render.DrawMode, indexCount int) {
	gl.DrawElements(glMode(mode), int32(indexCount), gl.UNSIGNED_INT, nil)
}

// DrawArrays implements render.GPU.
func (d *Device) DrawArrays(mode render.DrawMode, first, count int) {
	gl.DrawArrays(glMode(mode), int32(first), int32(count))
}

func (d *Device) location(prog render.ProgramID, name string) int32 {
	key := uniformKey{prog: prog, name: name}
	if loc, ok := d.uniforms[key]; ok {
		return loc
	}
	loc := gl.GetUniformLocation(uint32(prog), gl.Str(name+"\x00"))
	d.uniforms[key] = loc
	return loc
}

func glMode(mode render.DrawMode) uint32 {
	switch mode {
	case render.Lines:
		return gl.LINES
	case render.Points:
		return gl.POINTS
	default:
		return gl.TRIANGLES
	}
}

func usage(dynamic bool) uint32 {
	if dynamic {
		return gl.DYNAMIC_DRAW
	}
	return gl.STATIC_DRAW
}
