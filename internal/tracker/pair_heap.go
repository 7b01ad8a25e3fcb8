package tracker

// candidatePair is one (tracker, measurement, distance) triple from
// spec §4.3 step 2. seq records insertion order so that ties are
// broken deterministically by "earliest generation order" (step 3).
type candidatePair struct {
	trackerIdx     int
	measurementIdx int
	dist           float64
	seq            int
}

// pairHeap is a small min-heap over candidatePair, ordered by distance
// then by insertion order. Copied in shape from the reference mot-go
// tracker's distanceHeap (container/heap reimplemented locally to
// avoid a type assertion at every Push/Pop).
type pairHeap []candidatePair

func (h pairHeap) Len() int { return len(h) }

func (h pairHeap) less(i, j int) bool {
	if h[i].dist != h[j].dist {
		return h[i].dist < h[j].dist
	}
	return h[i].seq < h[j].seq
}

func (h pairHeap) swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *pairHeap) push(p candidatePair) {
	*h = append(*h, p)
	h.up(h.Len() - 1)
}

func (h *pairHeap) pop() candidatePair {
	old := *h
	n := len(old) - 1
	old.swap(0, n)
	h.down(0, n)
	top := old[n]
	*h = old[:n]
	return top
}

func (h pairHeap) up(j int) {
	for {
		i := (j - 1) / 2
		if i == j || !h.less(j, i) {
			break
		}
		h.swap(i, j)
		j = i
	}
}

func (h pairHeap) down(i0, n int) {
	i := i0
	for {
		j1 := 2*i + 1
		if j1 >= n || j1 < 0 {
			break
		}
		j := j1
		if j2 := j1 + 1; j2 < n && h.less(j2, j1) {
			j = j2
		}
		if !h.less(j, i) {
			break
		}
		h.swap(i, j)
		i = j
	}
}
