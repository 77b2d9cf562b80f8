package discovery

import (
	"encoding/binary"
	"hash/fnv"
	"path/filepath"
	"slices"
)

// WithSample keeps at most limit images from each directory. The choice is a
// pseudo-random function of seed and each image's path relative to the root,
// so repeated walks pick the same images and a resumed run sees the same
// sample. A limit of zero or less disables sampling.
func WithSample(limit int, seed int64) Option {
	return func(w *walker) {
		w.sampleLimit = limit
		w.sampleSeed = seed
	}
}

// sample filters the sorted paths down to the per-directory limit, keeping
// their order. It returns the kept paths and how many were left out.
func (w *walker) sample(root string, paths []string) ([]string, int) {
	if w.sampleLimit <= 0 {
		return paths, 0
	}
	byDir := make(map[string][]string)
	for _, path := range paths {
		dir := filepath.Dir(path)
		byDir[dir] = append(byDir[dir], path)
	}
	keep := make(map[string]struct{}, len(paths))
	for _, group := range byDir {
		if len(group) > w.sampleLimit {
			group = slices.Clone(group)
			slices.SortStableFunc(group, func(a, b string) int {
				ra, rb := w.sampleRank(root, a), w.sampleRank(root, b)
				switch {
				case ra < rb:
					return -1
				case ra > rb:
					return 1
				}
				return 0
			})
			group = group[:w.sampleLimit]
		}
		for _, path := range group {
			keep[path] = struct{}{}
		}
	}
	kept := make([]string, 0, len(keep))
	for _, path := range paths {
		if _, ok := keep[path]; ok {
			kept = append(kept, path)
		}
	}
	return kept, len(paths) - len(kept)
}

func (w *walker) sampleRank(root, path string) uint64 {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	h := fnv.New64a()
	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], uint64(w.sampleSeed))
	_, _ = h.Write(seed[:])
	_, _ = h.Write([]byte(filepath.ToSlash(rel)))
	return h.Sum64()
}
