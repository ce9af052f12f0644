package retrieval

import (
	"sort"

	"github.com/bull/rca-code-retrieval/internal/storage"
)

// Pass names used for fusion, logging and metrics.
const (
	PassDirect  = "direct"
	PassLog     = "log"
	PassKeyword = "keyword"
	PassTheme   = "theme"
)

// Weights are the per-pass multipliers applied during fusion.
type Weights struct {
	Direct  float64
	Log     float64
	Keyword float64
	Theme   float64
}

// DefaultWeights returns the standard pass weights.
func DefaultWeights() Weights {
	return Weights{
		Direct:  1.5,
		Log:     1.0,
		Keyword: 1.2,
		Theme:   0.8,
	}
}

// Pass is the ordered output of one retrieval pass.
type Pass struct {
	Name      string
	Fragments []storage.Fragment
	Weight    float64
}

// Fuse merges passes into a single ranking. Every occurrence of a fragment
// adds its pass weight to the fragment's total. The result is sorted by
// weight descending, equal weights keep first-seen order, and at most topK
// entries are returned.
func Fuse(passes []Pass, topK int) []ScoredFragment {
	if topK <= 0 {
		return nil
	}

	index := make(map[string]int)
	var fused []ScoredFragment
	for _, pass := range passes {
		for _, f := range pass.Fragments {
			key := fragmentKey(f)
			if i, ok := index[key]; ok {
				fused[i].Weight += pass.Weight
				continue
			}
			index[key] = len(fused)
			fused = append(fused, ScoredFragment{Fragment: f, Weight: pass.Weight})
		}
	}

	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Weight > fused[j].Weight
	})

	if len(fused) > topK {
		fused = fused[:topK]
	}
	return fused
}

// fragmentKey identifies a fragment across passes. Fragments without an id
// fall back to their text.
func fragmentKey(f storage.Fragment) string {
	if f.ID != "" {
		return "id:" + f.ID
	}
	return "doc:" + f.Document
}
