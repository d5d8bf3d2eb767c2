package fusefs

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mufanc/fpatch/internal/patch"
)

func TestVirtualSize(t *testing.T) {
	assert.Equal(t, 13, virtualSize(patch.Prepend, 10, 3))
	assert.Equal(t, 13, virtualSize(patch.Append, 10, 3))
	assert.Equal(t, 3, virtualSize(patch.Replace, 10, 3))
	assert.Equal(t, 0, virtualSize(patch.Replace, 10, 0))
}

func TestComputeRegion_Prepend(t *testing.T) {
	// content "ABC" (3 bytes), source 10 bytes, virtual size 13.
	full := computeRegion(patch.Prepend, 0, 13, 13, 10, 3)
	assert.Equal(t, region{sBegin: 0, sEnd: 10, dBegin: 0, dEnd: 3}, full)

	// read entirely inside the prepended content.
	headOnly := computeRegion(patch.Prepend, 0, 2, 13, 10, 3)
	assert.Equal(t, 0, headOnly.sSize())
	assert.Equal(t, 2, headOnly.dSize())

	// read straddling the content/source boundary.
	straddle := computeRegion(patch.Prepend, 2, 4, 13, 10, 3)
	assert.Equal(t, region{sBegin: 0, sEnd: 3, dBegin: 2, dEnd: 3}, straddle)

	// read entirely inside source, past the content.
	tailOnly := computeRegion(patch.Prepend, 5, 4, 13, 10, 3)
	assert.Equal(t, region{sBegin: 2, sEnd: 6, dBegin: 3, dEnd: 3}, tailOnly)
}

func TestComputeRegion_Append(t *testing.T) {
	full := computeRegion(patch.Append, 0, 13, 13, 10, 3)
	assert.Equal(t, region{sBegin: 0, sEnd: 10, dBegin: 0, dEnd: 3}, full)

	srcOnly := computeRegion(patch.Append, 0, 4, 13, 10, 3)
	assert.Equal(t, region{sBegin: 0, sEnd: 4, dBegin: 0, dEnd: 0}, srcOnly)

	straddle := computeRegion(patch.Append, 8, 4, 13, 10, 3)
	assert.Equal(t, region{sBegin: 8, sEnd: 10, dBegin: 0, dEnd: 2}, straddle)

	contentOnly := computeRegion(patch.Append, 11, 2, 13, 10, 3)
	assert.Equal(t, region{sBegin: 10, sEnd: 10, dBegin: 1, dEnd: 3}, contentOnly)
}

func TestComputeRegion_Replace(t *testing.T) {
	reg := computeRegion(patch.Replace, 1, 2, 3, 999, 3)
	assert.Equal(t, region{sBegin: 0, sEnd: 0, dBegin: 1, dEnd: 3}, reg)

	// window fully past the content is empty, not clamped to content's tail.
	past := computeRegion(patch.Replace, 5, 2, 3, 999, 3)
	assert.Equal(t, 0, past.dSize())
}

func TestComputeRegion_ReadPastEnd(t *testing.T) {
	reg := computeRegion(patch.Append, 20, 5, 13, 10, 3)
	assert.Equal(t, 0, reg.sSize())
	assert.Equal(t, 0, reg.dSize())
}

func TestComputeRegion_EmptyContent(t *testing.T) {
	reg := computeRegion(patch.Prepend, 0, 10, 10, 10, 0)
	assert.Equal(t, region{sBegin: 0, sEnd: 10, dBegin: 0, dEnd: 0}, reg)
}
