package label

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/MeKo-Tech/vectormap/internal/camera"
	"github.com/MeKo-Tech/vectormap/internal/mvt"
	"github.com/MeKo-Tech/vectormap/internal/render"
	"github.com/MeKo-Tech/vectormap/internal/store"
)

const (
	gridCols = 120
	gridRows = 100

	// cullMargin extends the viewport when rejecting projections so
	// labels straddling the edge still place.
	cullMargin = 20.0

	// maxLabelsProcessed bounds per-frame placement work.
	maxLabelsProcessed = 2000
)

// Placement is one accepted label with its screen box.
type Placement struct {
	Label          mvt.Label
	X0, Y0, X1, Y1 float64
}

// Engine projects, collides and draws labels. All state lives on the
// render thread; tile labels are borrowed per frame.
type Engine struct {
	atlas *Atlas
	gpu   render.GPU
	log   *slog.Logger

	prog render.ProgramID
	vbo  render.BufferID
	vao  render.VertexArrayID
	tex  render.TextureID

	grid  [gridCols * gridRows]bool
	verts []float32

	// Frame cache: when neither the camera state nor the tile set
	// changed, the previous vertex buffer is reused untouched.
	cacheState camera.State
	cacheTiles string
	cacheValid bool
	cacheCount int
}

// NewEngine compiles the text shader and uploads the font atlas.
func NewEngine(gpu render.GPU, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	prog, err := gpu.CompileProgram("label", labelVertexShader, labelFragmentShader)
	if err != nil {
		return nil, fmt.Errorf("compiling label shader: %w", err)
	}

	atlas := NewAtlas()
	tex := gpu.CreateTexture(atlas.Width, atlas.Height, atlas.Pixels())

	vbo := gpu.CreateBuffer()
	vao := gpu.CreateVertexArray(vbo, 0, []render.VertexAttribute{
		{Index: 0, Size: 2, Stride: 16, Offset: 0}, // position
		{Index: 1, Size: 2, Stride: 16, Offset: 8}, // uv
	})

	return &Engine{
		atlas: atlas,
		gpu:   gpu,
		log:   logger,
		prog:  prog,
		vbo:   vbo,
		vao:   vao,
		tex:   tex,
	}, nil
}

// Plan projects and collides all tile labels for the frame and returns
// the accepted placements in draw order. It is side-effect free apart
// from the collision grid and is exercised directly by tests.
func (e *Engine) Plan(cam *camera.Camera, tiles []*store.Tile) []Placement {
	var labels []mvt.Label
	for _, t := range tiles {
		labels = append(labels, t.Labels...)
	}
	if len(labels) == 0 {
		return nil
	}

	sort.SliceStable(labels, func(i, j int) bool {
		return labels[i].Priority > labels[j].Priority
	})
	if len(labels) > maxLabelsProcessed {
		e.log.Debug("label budget exceeded", "total", len(labels), "budget", maxLabelsProcessed)
		labels = labels[:maxLabelsProcessed]
	}

	for i := range e.grid {
		e.grid[i] = false
	}

	w, h := cam.Viewport()
	fw, fh := float64(w), float64(h)

	var placed []Placement
	for _, lbl := range labels {
		sx, sy := cam.WorldToScreen(lbl.X, lbl.Y)
		if sx == camera.OffscreenSentinel ||
			sx < -cullMargin || sx > fw+cullMargin ||
			sy < -cullMargin || sy > fh+cullMargin {
			continue
		}

		bw := float64(len(lbl.Text)) * EstCharWidth
		x0 := sx - bw/2
		y0 := sy - EstHeight/2
		x1 := x0 + bw
		y1 := y0 + EstHeight

		if e.collides(x0, y0, x1, y1, fw, fh) {
			continue
		}
		e.mark(x0, y0, x1, y1, fw, fh)

		placed = append(placed, Placement{Label: lbl, X0: x0, Y0: y0, X1: x1, Y1: y1})
	}
	return placed
}

// Draw places and renders labels under an orthographic pixel-space
// overlay. When the camera and tile set are unchanged since the previous
// frame the cached vertex buffer is resubmitted as-is.
func (e *Engine) Draw(cam *camera.Camera, tiles []*store.Tile) {
	tileKey := tileSetKey(tiles)
	state := cam.State()

	if !e.cacheValid || state != e.cacheState || tileKey != e.cacheTiles {
		placed := e.Plan(cam, tiles)
		e.buildQuads(placed)
		e.gpu.UploadVertexData(e.vbo, e.verts, true)
		e.cacheState = state
		e.cacheTiles = tileKey
		e.cacheValid = true
		e.cacheCount = len(e.verts) / 4
	}

	if e.cacheCount == 0 {
		return
	}

	w, h := cam.Viewport()
	ortho := orthoPixelMatrix(w, h)

	e.gpu.UseProgram(e.prog)
	e.gpu.BindVertexArray(e.vao)
	e.gpu.BindTexture(e.tex, 0)
	e.gpu.SetUniformInt(e.prog, "uAtlas", 0)
	e.gpu.SetUniformMat4(e.prog, "uOrtho", ortho)
	e.gpu.SetUniformVec4(e.prog, "uColor", [4]float32{0.15, 0.15, 0.2, 1.0})
	e.gpu.DrawArrays(render.Triangles, 0, e.cacheCount)
}

// Invalidate drops the frame cache (viewport resize, style change).
func (e *Engine) Invalidate() {
	e.cacheValid = false
}

// buildQuads walks each placed string and emits two textured triangles
// per glyph into the reused vertex scratch.
func (e *Engine) buildQuads(placed []Placement) {
	e.verts = e.verts[:0]
	for _, p := range placed {
		pen := float32(p.X0)
		top := float32(p.Y0) + (EstHeight-glyphHeight)/2

		for _, r := range p.Label.Text {
			g := e.atlas.Glyph(r)
			x0, y0 := pen, top
			x1, y1 := pen+glyphWidth, top+glyphHeight

			e.verts = append(e.verts,
				x0, y0, g.U0, g.V0,
				x1, y0, g.U1, g.V0,
				x1, y1, g.U1, g.V1,

				x0, y0, g.U0, g.V0,
				x1, y1, g.U1, g.V1,
				x0, y1, g.U0, g.V1,
			)
			pen += float32(EstCharWidth)
		}
	}
}

func (e *Engine) collides(x0, y0, x1, y1, w, h float64) bool {
	c0, r0, c1, r1 := e.cellRange(x0, y0, x1, y1, w, h)
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			if e.grid[r*gridCols+c] {
				return true
			}
		}
	}
	return false
}

func (e *Engine) mark(x0, y0, x1, y1, w, h float64) {
	c0, r0, c1, r1 := e.cellRange(x0, y0, x1, y1, w, h)
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			e.grid[r*gridCols+c] = true
		}
	}
}

func (e *Engine) cellRange(x0, y0, x1, y1, w, h float64) (c0, r0, c1, r1 int) {
	c0 = clampCell(int(x0/w*gridCols), gridCols)
	c1 = clampCell(int(x1/w*gridCols), gridCols)
	r0 = clampCell(int(y0/h*gridRows), gridRows)
	r1 = clampCell(int(y1/h*gridRows), gridRows)
	return
}

func clampCell(v, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}

func orthoPixelMatrix(w, h int) [16]float32 {
	m := mgl64.Ortho(0, float64(w), float64(h), 0, -1, 1)
	var out [16]float32
	for i, v := range m {
		out[i] = float32(v)
	}
	return out
}

func tileSetKey(tiles []*store.Tile) string {
	key := make([]byte, 0, len(tiles)*24)
	for _, t := range tiles {
		key = append(key, t.Coord.Key()...)
		key = append(key, '@')
		key = strconv.AppendInt(key, t.LoadedAt.UnixNano(), 10)
		key = append(key, ';')
	}
	return string(key)
}
