package chunk

// lineIndex is a run-length-encoded mapping from byte offset to source
// line number, grounded on the reference Rle<T> (original_source/rle.rs):
// push extends the last run when the new line matches, otherwise starts
// a fresh run of length 1; get walks runs accumulating lengths until
// the queried offset falls inside one. The index is append-only and
// purely positional — functionally indistinguishable from a dense
// per-byte array of line numbers, just smaller for typical source where
// many consecutive bytecode bytes come from one source line.
type lineIndex struct {
	runs []lineRun
}

type lineRun struct {
	line  int
	count int
}

// push records one more byte at the given source line.
func (idx *lineIndex) push(line int) {
	if n := len(idx.runs); n > 0 && idx.runs[n-1].line == line {
		idx.runs[n-1].count++
		return
	}
	idx.runs = append(idx.runs, lineRun{line: line, count: 1})
}

// get returns the line number associated with byte offset i, and
// whether i was in range.
func (idx *lineIndex) get(i int) (line int, ok bool) {
	skipped := 0
	for _, r := range idx.runs {
		if skipped+r.count > i {
			return r.line, true
		}
		skipped += r.count
	}
	return 0, false
}

// len reports the total logical length: the sum of every run's count,
// i.e. the number of bytes this index has line data for.
func (idx *lineIndex) len() int {
	total := 0
	for _, r := range idx.runs {
		total += r.count
	}
	return total
}
