package render

// Map geometry shaders. Vertices arrive camera-relative in mercator
// units; uVP is the camera-relative view-projection matrix. uDepth adds
// a small stacking offset without a hardware depth test.
const (
	mapVertexShader = `#version 410 core
layout (location = 0) in vec2 aPosition;

uniform mat4 uVP;
uniform float uDepth;

void main() {
    vec4 p = uVP * vec4(aPosition, 0.0, 1.0);
    p.z += uDepth * p.w;
    gl_Position = p;
}
`

	mapFragmentShader = `#version 410 core
uniform vec4 uColor;

out vec4 FragColor;

void main() {
    FragColor = uColor;
}
`
)
