package variant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvidenceStrongerTieBreakChain(t *testing.T) {
	higherTotal := Evidence{TumorFwd: 10, NormalFwd: 0}
	lowerTotal := Evidence{TumorFwd: 2, NormalFwd: 0}
	assert.True(t, higherTotal.Stronger(lowerTotal))
	assert.False(t, lowerTotal.Stronger(higherTotal))

	sameTotalHigherTumor := Evidence{TumorFwd: 8, NormalFwd: 2}
	sameTotalLowerTumor := Evidence{TumorFwd: 2, NormalFwd: 8}
	assert.True(t, sameTotalHigherTumor.Stronger(sameTotalLowerTumor))

	equalInAllRespects := Evidence{TumorFwd: 5, NormalFwd: 5}
	assert.False(t, equalInAllRespects.Stronger(equalInAllRespects))
}

func TestEvidenceMerge(t *testing.T) {
	e := Evidence{TumorFwd: 1, NormalFwd: 2}
	e.Merge(Evidence{TumorFwd: 3, NormalRev: 4})
	assert.Equal(t, uint32(4), e.TumorFwd)
	assert.Equal(t, uint32(2), e.NormalFwd)
	assert.Equal(t, uint32(4), e.NormalRev)
}

func TestKindOfUnwrapsWrappedError(t *testing.T) {
	base := Errorf(ReferenceError, "boom")
	wrapped := Wrap(IOError, base, "while flushing")
	assert.Equal(t, IOError, KindOf(wrapped))
	assert.Equal(t, ReferenceError, KindOf(base))
}
