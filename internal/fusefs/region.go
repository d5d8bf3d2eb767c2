package fusefs

import "github.com/mufanc/fpatch/internal/patch"

// region describes, for one read request, which byte range of the target's
// original bytes (the "S" slice) and which byte range of the patch content
// (the "D" slice) contribute to the response, and in what order they are
// concatenated.
type region struct {
	sBegin, sEnd int
	dBegin, dEnd int
}

func (r region) sSize() int { return r.sEnd - r.sBegin }
func (r region) dSize() int { return r.dEnd - r.dBegin }

func clampSub(a, b int) int {
	if a < b {
		return 0
	}
	return a - b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// virtualSize returns the total size a patched file reports to callers:
// Replace always reports exactly the content length; Prepend/Append report
// the original size plus the content length.
func virtualSize(mode patch.Mode, srcSize, contentLen int) int {
	switch mode {
	case patch.Replace:
		return contentLen
	default:
		return srcSize + contentLen
	}
}

// computeRegion maps a [begin, begin+size) read window (clamped to
// maxIndex, the file's reported virtual size) onto the source and content
// sub-ranges that must be concatenated to satisfy it.
//
// Prepend:  [ content ][ source ]
// Append:   [ source ][ content ]
// Replace:  [ content ]
func computeRegion(mode patch.Mode, begin, size, maxIndex, srcSize, contentLen int) region {
	end := minInt(begin+size, maxIndex)
	if end < begin {
		end = begin
	}

	switch mode {
	case patch.Prepend:
		return region{
			sBegin: clampSub(begin, contentLen),
			sEnd:   clampSub(end, contentLen),
			dBegin: minInt(begin, contentLen),
			dEnd:   minInt(end, contentLen),
		}
	case patch.Append:
		return region{
			sBegin: minInt(begin, srcSize),
			sEnd:   minInt(end, srcSize),
			dBegin: clampSub(begin, srcSize),
			dEnd:   clampSub(end, srcSize),
		}
	default: // Replace
		return region{
			sBegin: 0,
			sEnd:   0,
			dBegin: minInt(begin, contentLen),
			dEnd:   minInt(end, contentLen),
		}
	}
}
