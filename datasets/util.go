package datasets

import (
	"fmt"
)

// Argmax returns the index of the largest value in row, or -1 if row is empty.
func Argmax(row []float32) int {
	best := -1
	for i, v := range row {
		if best == -1 || v > row[best] {
			best = i
		}
	}
	return best
}

// ClassCounts counts the argmax class of every numClasses-long row of labels.
func ClassCounts(labels []float32, numClasses int) []int {
	counts := make([]int, numClasses)
	if numClasses <= 0 {
		return counts
	}
	for start := 0; start+numClasses <= len(labels); start += numClasses {
		counts[Argmax(labels[start:start+numClasses])]++
	}
	return counts
}

// ValidatePixels checks that every value is within [0, 1].
func ValidatePixels(pixels []float32) error {
	for i, v := range pixels {
		// Written this way so NaN fails too.
		if !(v >= 0 && v <= 1) {
			return fmt.Errorf("pixel %d has value %v outside [0, 1]", i, v)
		}
	}
	return nil
}

// ValidateOneHot checks that labels is made of numClasses-long rows with
// exactly one entry equal to 1 and all others 0.
func ValidateOneHot(labels []float32, numClasses int) error {
	if numClasses <= 0 {
		return fmt.Errorf("number of classes must be positive, got %d", numClasses)
	}
	if len(labels)%numClasses != 0 {
		return fmt.Errorf("labels length %d is not a multiple of %d", len(labels), numClasses)
	}
	for row := 0; row*numClasses < len(labels); row++ {
		ones := 0
		for j, v := range labels[row*numClasses : (row+1)*numClasses] {
			switch v {
			case 0:
			case 1:
				ones++
			default:
				return fmt.Errorf("label row %d has value %v at class %d", row, v, j)
			}
		}
		if ones != 1 {
			return fmt.Errorf("label row %d has %d hot entries, want 1", row, ones)
		}
	}
	return nil
}
