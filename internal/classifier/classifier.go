// Package classifier provides the model adapters behind schemas.Classifier.
package classifier

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/xkilldash9x/aegiscore/api/schemas"
)

// ErrFeatureMismatch is returned when a vector does not carry the exact
// feature set, in order, that the model was trained on.
var ErrFeatureMismatch = errors.New("feature vector does not match model")

// Categories is the stable order used to break probability ties.
var Categories = []string{
	schemas.CategoryNormal,
	schemas.CategoryDDoS,
	schemas.CategoryBruteForce,
	schemas.CategoryPortScan,
}

// CheckFeatures verifies that vector carries exactly expected, in order.
func CheckFeatures(vector schemas.FeatureVector, expected []string) error {
	if got := vector.Names(); !slices.Equal(got, expected) {
		return fmt.Errorf("%w: got %v, want %v", ErrFeatureMismatch, got, expected)
	}
	return nil
}

// argmax picks the most probable label. Ties go to the label that sorts first
// in Categories, then alphabetically for labels outside it.
func argmax(probs map[string]float64) string {
	labels := make([]string, 0, len(probs))
	for l := range probs {
		labels = append(labels, l)
	}
	rank := func(l string) int {
		if i := slices.Index(Categories, l); i >= 0 {
			return i
		}
		return len(Categories)
	}
	sort.Slice(labels, func(i, j int) bool {
		if probs[labels[i]] != probs[labels[j]] {
			return probs[labels[i]] > probs[labels[j]]
		}
		if rank(labels[i]) != rank(labels[j]) {
			return rank(labels[i]) < rank(labels[j])
		}
		return labels[i] < labels[j]
	})
	if len(labels) == 0 {
		return ""
	}
	return labels[0]
}
