package counter

import "context"

// Frame is one decoded video frame. Pixel data is opaque to the workflow;
// only the dimensions and the frame index participate in counting.
type Frame struct {
	Index  int
	Width  int
	Height int
	Pixels []byte
}

// Source is the external frame acquisition collaborator: a camera, a video
// file, or a replayed detection log. Next returns io.EOF when the stream
// ends cleanly and any other error for connection or decode failures.
type Source interface {
	Next(ctx context.Context) (*Frame, error)
	Close() error
}
