// Package frames decodes a video blob into a sequential, non-restartable
// stream of frames, pairing each with a grayscale copy for similarity and
// flow work. Grounded on nmichlo-norfair-go's video.go use of
// gocv.OpenVideoCapture / VideoCapture.Get.
package frames

import (
	"gocv.io/x/gocv"

	"github.com/adverant/nexus/videotrack-worker/internal/trackerr"
)

// Frame is one decoded video frame in both color and grayscale, with its
// presentation timestamp and monotone index.
type Frame struct {
	Index         uint64
	TimestampMs   int64
	Color         gocv.Mat
	Gray          gocv.Mat
	Width, Height int
}

// Close releases the underlying OpenCV buffers.
func (f Frame) Close() {
	f.Color.Close()
	f.Gray.Close()
}

// Source decodes frames from a video file path, one at a time.
type Source struct {
	capture *gocv.VideoCapture
	fps     float64
	width   int
	height  int
	index   uint64
}

// Open opens the container at path. Returns trackerr.ErrVideoOpen if the
// decoder cannot open it.
func Open(path string) (*Source, error) {
	cap, err := gocv.OpenVideoCapture(path)
	if err != nil {
		return nil, trackerr.Wrap(trackerr.ErrVideoOpen, "open %s: %v", path, err)
	}

	fps := cap.Get(gocv.VideoCaptureFPS)
	if fps == 0 {
		fps = 30
	}

	return &Source{
		capture: cap,
		fps:     fps,
		width:   int(cap.Get(gocv.VideoCaptureFrameWidth)),
		height:  int(cap.Get(gocv.VideoCaptureFrameHeight)),
	}, nil
}

// FPS returns the container's reported frame rate, or the 30fps substitute
// if the container reported zero.
func (s *Source) FPS() float64 { return s.fps }

// Width and Height return the frame dimensions.
func (s *Source) Width() int  { return s.width }
func (s *Source) Height() int { return s.height }

// Next decodes the next frame, or returns (Frame{}, false, nil) at end of
// stream. The caller owns the returned Frame's buffers and must Close them.
func (s *Source) Next() (Frame, bool, error) {
	color := gocv.NewMat()
	if ok := s.capture.Read(&color); !ok || color.Empty() {
		color.Close()
		return Frame{}, false, nil
	}

	gray := gocv.NewMat()
	gocv.CvtColor(color, &gray, gocv.ColorBGRToGray)

	timestampMs := int64(float64(s.index) * 1000 / s.fps)

	f := Frame{
		Index:       s.index,
		TimestampMs: timestampMs,
		Color:       color,
		Gray:        gray,
		Width:       s.width,
		Height:      s.height,
	}
	s.index++
	return f, true, nil
}

// Close releases the underlying VideoCapture.
func (s *Source) Close() error {
	return s.capture.Close()
}
