// Package annotate writes the optional side-artifact preview video: the
// decoded color stream re-encoded with the current live track boxes drawn
// on every frame. It never feeds back into tracking state (spec §1's
// Non-goals frame the core as "not a video codec" beyond this one output).
// Drawing primitives (Rectangle, PutTextWithParams, BGR color packing) are
// adapted from nmichlo-norfair-go's drawing.Drawer, narrowed from its
// general Circle/Text/Line/Rectangle surface to the one box+label overlay
// this writer needs.
package annotate

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/adverant/nexus/videotrack-worker/internal/models"
)

const (
	boxThickness = 2
	fontScale    = 0.5
	labelOffsetY = 6
)

// trackBoxColor is a single fixed BGR-as-RGBA green, matching the
// convention drawing.Color.ToRGBA() uses for gocv calls.
var trackBoxColor = color.RGBA{R: 0, G: 200, B: 0, A: 255}

// Writer lazily opens a VideoWriter on the first frame (so it can read the
// frame's own dimensions) and draws one rectangle + track_id label per live
// track per frame, matching video.go's Video.Write lazy-init pattern.
type Writer struct {
	path   string
	fps    float64
	writer *gocv.VideoWriter
}

// New builds a Writer for the given output path and source frame rate.
func New(path string, fps float64) *Writer {
	return &Writer{path: path, fps: fps}
}

// Box is one track's current box and identity to draw.
type Box struct {
	TrackID uint32
	Box     models.Box
}

// WriteFrame draws every box onto a copy of color and appends it to the
// output video, opening the writer on the first call.
func (w *Writer) WriteFrame(colorFrame gocv.Mat, boxes []Box) error {
	if w.writer == nil {
		writer, err := gocv.VideoWriterFile(w.path, "mp4v", w.fps, colorFrame.Cols(), colorFrame.Rows(), true)
		if err != nil {
			return fmt.Errorf("annotate: open writer %s: %w", w.path, err)
		}
		w.writer = writer
	}

	frame := colorFrame.Clone()
	defer frame.Close()

	for _, b := range boxes {
		pt1 := image.Pt(int(b.Box.X1), int(b.Box.Y1))
		pt2 := image.Pt(int(b.Box.X2), int(b.Box.Y2))
		gocv.Rectangle(&frame, image.Rectangle{Min: pt1, Max: pt2}, trackBoxColor, boxThickness)

		label := fmt.Sprintf("#%d", b.TrackID)
		labelPt := image.Pt(pt1.X, pt1.Y-labelOffsetY)
		gocv.PutTextWithParams(&frame, label, labelPt, gocv.FontHersheySimplex, fontScale, trackBoxColor, 1, gocv.LineAA, false)
	}

	return w.writer.Write(frame)
}

// Close releases the underlying VideoWriter, if one was opened.
func (w *Writer) Close() error {
	if w.writer == nil {
		return nil
	}
	return w.writer.Close()
}
