package writer

const (
	pageShift = 16
	pageBits  = 1 << pageShift
	pageWords = pageBits / 64
	pageCount = 1 << (32 - pageShift)
)

// valueSet is an append-only set of uint32 values backed by a paged bitset.
// Pages of 8 KB are allocated on first use, so memory grows with the spread
// of the stored values and tops out at 512 MB for the full uint32 range
// (about 120 MB for 9 digit values).
//
// Thread-safety: not safe for concurrent use, the caller synchronizes.
type valueSet struct {
	pages [pageCount]*[pageWords]uint64
	size  int
}

// add inserts value and reports whether it was not yet present
func (s *valueSet) add(value uint32) bool {
	page := s.pages[value>>pageShift]
	if page == nil {
		page = new([pageWords]uint64)
		s.pages[value>>pageShift] = page
	}

	offset := value & (pageBits - 1)
	word, mask := offset/64, uint64(1)<<(offset%64)
	if page[word]&mask != 0 {
		return false
	}
	page[word] |= mask
	s.size++
	return true
}

// len returns the number of values in the set
func (s *valueSet) len() int {
	return s.size
}

// pagesInUse counts the allocated pages, used for debugging memory usage
func (s *valueSet) pagesInUse() int {
	n := 0
	for _, p := range s.pages {
		if p != nil {
			n++
		}
	}
	return n
}
