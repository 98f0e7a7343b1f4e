package tracking

import (
	hungarian "github.com/arthurkushman/go-hungarian"

	"github.com/adverant/nexus/videotrack-worker/internal/models"
)

// Assignment is one matched (detection, track) pair.
type Assignment struct {
	DetIdx   int
	TrackIdx int
	IoU      float64
}

// AssignDetections builds the IoU matrix between detections and predicted
// track boxes and solves the rectangular assignment maximizing total IoU,
// exactly the cost=-IoU / profit=IoU pattern internal/scipy/optimize.go and
// object_tracker/sort.go both use over go-hungarian's SolveMax. Any pair
// below iouThreshold is pushed back to the unmatched sets.
func AssignDetections(detBoxes, trackBoxes []models.Box, iouThreshold float64) (matches []Assignment, unmatchedDets, unmatchedTracks []int) {
	numDets := len(detBoxes)
	numTracks := len(trackBoxes)

	if numDets == 0 || numTracks == 0 {
		for i := 0; i < numDets; i++ {
			unmatchedDets = append(unmatchedDets, i)
		}
		for j := 0; j < numTracks; j++ {
			unmatchedTracks = append(unmatchedTracks, j)
		}
		return
	}

	size := numDets
	if numTracks > size {
		size = numTracks
	}

	profit := make([][]float64, size)
	for i := range profit {
		profit[i] = make([]float64, size)
		for j := range profit[i] {
			if i < numDets && j < numTracks {
				profit[i][j] = models.IoU(detBoxes[i], trackBoxes[j])
			}
		}
	}

	result := hungarian.SolveMax(profit)

	matchedDet := make(map[int]bool, numDets)
	matchedTrack := make(map[int]bool, numTracks)

	for i := 0; i < numDets; i++ {
		if i >= len(result) {
			continue
		}
		j := argmaxCol(result[i], numTracks)
		if j < 0 {
			continue
		}
		iou := profit[i][j]
		if iou < iouThreshold {
			continue
		}
		matches = append(matches, Assignment{DetIdx: i, TrackIdx: j, IoU: iou})
		matchedDet[i] = true
		matchedTrack[j] = true
	}

	for i := 0; i < numDets; i++ {
		if !matchedDet[i] {
			unmatchedDets = append(unmatchedDets, i)
		}
	}
	for j := 0; j < numTracks; j++ {
		if !matchedTrack[j] {
			unmatchedTracks = append(unmatchedTracks, j)
		}
	}
	return
}

// argmaxCol returns the column index of the single cell SolveMax assigned
// for this row (its profit row has exactly one non-zero entry among real
// columns), or -1 if the row has no assignment within bounds.
func argmaxCol(row []float64, numTracks int) int {
	best := -1
	bestVal := 0.0
	for j := 0; j < len(row) && j < numTracks; j++ {
		if row[j] > bestVal {
			bestVal = row[j]
			best = j
		}
	}
	return best
}
