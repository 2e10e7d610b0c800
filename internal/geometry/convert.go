package geometry

// BuildPolygon cleans the raw rings of one polygon feature and appends
// its tessellation to the feature set. Rings that collapse under
// cleaning are skipped; a tessellator failure drops the feature and
// leaves the set untouched.
func BuildPolygon(fs *FeatureSet, tess *Tessellator, rings [][]Point) {
	cleaned := make([][]Point, 0, len(rings))
	for _, ring := range rings {
		if c := CleanRing(ring); c != nil {
			cleaned = append(cleaned, c)
		}
	}
	if len(cleaned) == 0 {
		return
	}

	verts, indices, err := tess.Tessellate(cleaned)
	if err != nil {
		return
	}

	base := uint32(fs.VertexCount())
	fs.Vertices = append(fs.Vertices, verts...)
	for _, i := range indices {
		fs.Indices = append(fs.Indices, base+i)
	}
}

// BuildLine cleans a line string and appends its vertices plus pair
// indices (i, i+1) per segment for a GL_LINES-style draw.
func BuildLine(fs *FeatureSet, line []Point) {
	cleaned := CleanLine(line)
	if cleaned == nil {
		return
	}

	base := uint32(fs.VertexCount())
	for _, p := range cleaned {
		fs.Vertices = append(fs.Vertices, p.X, p.Y)
	}
	for i := 0; i < len(cleaned)-1; i++ {
		fs.Indices = append(fs.Indices, base+uint32(i), base+uint32(i)+1)
	}
}

// BuildPoints appends point vertices to the feature set.
func BuildPoints(fs *FeatureSet, pts []Point) {
	for _, p := range pts {
		fs.Vertices = append(fs.Vertices, p.X, p.Y)
	}
}
