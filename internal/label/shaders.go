package label

// Text overlay shaders: orthographic pixel space, glyphs sampled from
// the font atlas with a hard alpha cutoff.
const (
	labelVertexShader = `#version 410 core
layout (location = 0) in vec2 aPosition;
layout (location = 1) in vec2 aUV;

uniform mat4 uOrtho;

out vec2 vUV;

void main() {
    vUV = aUV;
    gl_Position = uOrtho * vec4(aPosition, 0.0, 1.0);
}
`

	labelFragmentShader = `#version 410 core
in vec2 vUV;

uniform sampler2D uAtlas;
uniform vec4 uColor;

out vec4 FragColor;

void main() {
    float alpha = texture(uAtlas, vUV).a;
    if (alpha < 0.1) {
        discard;
    }
    FragColor = vec4(uColor.rgb, uColor.a * alpha);
}
`
)
