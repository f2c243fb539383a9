package compression

// kosinskiStep is one operation chosen by the parser: a literal if length is 1,
// otherwise a match copying `length` bytes from `distance` bytes back.
type kosinskiStep struct {
	length   int
	distance int
}

// matchCandidate says that every length in (previous candidate's length,
// length] can be copied from `distance` bytes back, and that no closer
// position gives a match that long.
type matchCandidate struct {
	length   int
	distance int
}

// matchFinder finds back-references using hash chains keyed on the first two
// bytes of each position.
type matchFinder struct {
	src  []byte
	head []int32
	prev []int32
}

func newMatchFinder(src []byte) *matchFinder {
	head := make([]int32, 1<<16)
	for i := range head {
		head[i] = -1
	}
	return &matchFinder{
		src:  src,
		head: head,
		prev: make([]int32, len(src)),
	}
}

func (finder *matchFinder) hashAt(position int) int {
	return int(finder.src[position])<<8 | int(finder.src[position+1])
}

// insert adds `position` to the chains. Positions must be inserted in
// increasing order.
func (finder *matchFinder) insert(position int) {
	if position+1 >= len(finder.src) {
		return
	}
	key := finder.hashAt(position)
	finder.prev[position] = finder.head[key]
	finder.head[key] = int32(position)
}

// find appends to `candidates` the matches for `position`, closest first. Each
// appended candidate is strictly longer than the one before it. Matches may
// overlap `position` itself; the decompressor copies one byte at a time so
// this is fine.
func (finder *matchFinder) find(position int, candidates []matchCandidate) []matchCandidate {
	src := finder.src
	maxLength := len(src) - position
	if maxLength < kosinskiMinInlineLength {
		return candidates
	}
	if maxLength > kosinskiMaxMatchLength {
		maxLength = kosinskiMaxMatchLength
	}

	bestLength := 1
	for j := finder.head[finder.hashAt(position)]; j >= 0; j = finder.prev[j] {
		start := int(j)
		distance := position - start
		if distance > kosinskiWindow {
			break
		}

		// Cheap rejection: a longer match has to agree on the byte just past
		// the current best.
		if src[start+bestLength] != src[position+bestLength] {
			continue
		}

		length := 0
		for length < maxLength && src[start+length] == src[position+length] {
			length++
		}

		if length > bestLength {
			bestLength = length
			candidates = append(
				candidates, matchCandidate{length: length, distance: distance})
			if length == maxLength {
				break
			}
		}
	}
	return candidates
}

// planKosinski returns, for every position of `src`, the cheapest operation to
// encode starting there. Only the positions actually reached by walking the
// plan from 0 matter.
func planKosinski(src []byte) []kosinskiStep {
	n := len(src)
	finder := newMatchFinder(src)

	// Collect all candidates first. offsets[i] is where the candidates for
	// position i begin in `candidates`.
	candidates := make([]matchCandidate, 0, n)
	offsets := make([]int, n+1)
	for i := 0; i < n; i++ {
		offsets[i] = len(candidates)
		candidates = finder.find(i, candidates)
		finder.insert(i)
	}
	offsets[n] = len(candidates)

	// cost[i] is the minimum number of bits needed to encode src[i:].
	cost := make([]int, n+1)
	plan := make([]kosinskiStep, n)

	for i := n - 1; i >= 0; i-- {
		best := kosinskiStep{length: 1}
		bestCost := kosinskiLiteralCost + cost[i+1]

		nextLength := kosinskiMinInlineLength
		for _, candidate := range candidates[offsets[i]:offsets[i+1]] {
			for length := nextLength; length <= candidate.length; length++ {
				matchCost, ok := kosinskiMatchCost(candidate.distance, length)
				if !ok {
					continue
				}
				if total := matchCost + cost[i+length]; total < bestCost {
					bestCost = total
					best = kosinskiStep{length: length, distance: candidate.distance}
				}
			}
			nextLength = candidate.length + 1
		}

		cost[i] = bestCost
		plan[i] = best
	}
	return plan
}
