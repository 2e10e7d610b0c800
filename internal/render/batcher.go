package render

import (
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/vectormap/internal/camera"
	"github.com/MeKo-Tech/vectormap/internal/geometry"
	"github.com/MeKo-Tech/vectormap/internal/store"
)

// depthStep is the per-layer stacking offset fed to uDepth.
const depthStep = 1.0 / 4096.0

// kindOrder draws fills under outlines under points within one layer.
var kindOrder = []geometry.Kind{geometry.KindPolygon, geometry.KindLine, geometry.KindPoint}

// Batcher aggregates feature sets across the renderable tiles of one
// frame into per-layer buckets and submits them in global layer order.
// It holds tile data only for the duration of a Draw call.
type Batcher struct {
	gpu  GPU
	log  *slog.Logger
	prog ProgramID
	vbo  BufferID
	ibo  BufferID
	vao  VertexArrayID

	colors   map[string]Color
	disabled map[string]bool

	// per-frame scratch, reused across frames
	verts []float32
	index []uint32
}

// NewBatcher compiles the map shader and allocates the streaming
// buffers. Shader failure is fatal to startup.
func NewBatcher(gpu GPU, colors map[string]Color, logger *slog.Logger) (*Batcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	prog, err := gpu.CompileProgram("map", mapVertexShader, mapFragmentShader)
	if err != nil {
		return nil, fmt.Errorf("compiling map shader: %w", err)
	}

	merged := make(map[string]Color, len(DefaultColors)+len(colors))
	for name, c := range DefaultColors {
		merged[name] = c
	}
	for name, c := range colors {
		merged[name] = c
	}

	vbo := gpu.CreateBuffer()
	ibo := gpu.CreateBuffer()
	vao := gpu.CreateVertexArray(vbo, ibo, []VertexAttribute{
		{Index: 0, Size: 2, Stride: 8, Offset: 0},
	})

	return &Batcher{
		gpu:      gpu,
		log:      logger,
		prog:     prog,
		vbo:      vbo,
		ibo:      ibo,
		vao:      vao,
		colors:   merged,
		disabled: make(map[string]bool),
	}, nil
}

// SetLayerColor overrides the fill color of a layer.
func (b *Batcher) SetLayerColor(name string, c Color) {
	b.colors[name] = c
}

// SetLayerDisabled toggles a layer off or on.
func (b *Batcher) SetLayerDisabled(name string, disabled bool) {
	b.disabled[name] = disabled
}

// Draw renders all renderable tiles for the frame. Tiles are borrowed:
// no reference outlives this call.
func (b *Batcher) Draw(cam *camera.Camera, tiles []*store.Tile) {
	mx, my := cam.Center()
	vp := cam.RelativeViewProjectionF32()

	layers := presentLayers(tiles)
	if len(layers) == 0 {
		return
	}

	b.gpu.UseProgram(b.prog)
	b.gpu.BindVertexArray(b.vao)
	b.gpu.SetUniformMat4(b.prog, "uVP", vp)

	depth := float32(0)
	for _, layer := range orderLayers(layers) {
		if b.disabled[layer] {
			depth += depthStep
			continue
		}

		color, ok := b.colors[layer]
		if !ok {
			color = Color{0.5, 0.5, 0.5, 1.0}
		}

		for _, kind := range kindOrder {
			b.drawBucket(tiles, layer, kind, mx, my, color, depth)
		}
		depth += depthStep
	}
}

// drawBucket concatenates every matching feature set into one vertex and
// one index stream, re-offsetting indices by the running vertex count,
// and submits a single draw.
func (b *Batcher) drawBucket(tiles []*store.Tile, layer string, kind geometry.Kind, mx, my float64, color Color, depth float32) {
	b.verts = b.verts[:0]
	b.index = b.index[:0]

	for _, t := range tiles {
		for i := range t.Features {
			fs := &t.Features[i]
			if fs.Layer != layer || fs.Kind != kind || fs.Empty() {
				continue
			}

			base := uint32(len(b.verts) / 2)
			for j := 0; j < len(fs.Vertices); j += 2 {
				// Rebase in double precision, downcast camera-relative.
				b.verts = append(b.verts,
					float32(fs.Vertices[j]-mx),
					float32(fs.Vertices[j+1]-my),
				)
			}
			for _, idx := range fs.Indices {
				b.index = append(b.index, base+idx)
			}
		}
	}

	if len(b.verts) == 0 {
		return
	}

	b.gpu.UploadVertexData(b.vbo, b.verts, true)
	b.gpu.SetUniformVec4(b.prog, "uColor", [4]float32(color))
	b.gpu.SetUniformFloat(b.prog, "uDepth", depth)

	switch kind {
	case geometry.KindPolygon:
		b.gpu.UploadIndexData(b.ibo, b.index, true)
		b.gpu.DrawIndexed(Triangles, len(b.index))
	case geometry.KindLine:
		b.gpu.UploadIndexData(b.ibo, b.index, true)
		b.gpu.DrawIndexed(Lines, len(b.index))
	case geometry.KindPoint:
		b.gpu.DrawArrays(Points, 0, len(b.verts)/2)
	}
}

func presentLayers(tiles []*store.Tile) []string {
	var names []string
	seen := make(map[string]bool)
	for _, t := range tiles {
		for i := range t.Features {
			name := t.Features[i].Layer
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}
