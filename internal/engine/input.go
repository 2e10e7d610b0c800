package engine

// Input events delivered by the host. Coordinates are window pixels.

// MouseButton identifies which button an event refers to.
type MouseButton int

const (
	ButtonLeft MouseButton = iota
	ButtonRight
)

// PressEvent reports a mouse button press.
type PressEvent struct {
	X, Y   float64
	Button MouseButton
}

// ReleaseEvent reports a mouse button release.
type ReleaseEvent struct {
	X, Y   float64
	Button MouseButton
}

// MoveEvent reports cursor motion. The map pans while the left button is
// held and rotates/pitches while the right button is held.
type MoveEvent struct {
	X, Y float64
}

// WheelEvent reports scroll input; Delta is in zoom levels, anchored at
// the cursor position.
type WheelEvent struct {
	Delta float64
	X, Y  float64
}
