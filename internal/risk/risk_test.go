package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/aegiscore/api/schemas"
)

func TestSeverity(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		category   string
		want       float64
	}{
		{"brute force at full confidence", 1.0, schemas.CategoryBruteForce, 100},
		{"normal baseline", 0.5, schemas.CategoryNormal, 5},
		{"unknown category uses default weight", 0.5, "unknown-category", 25},
		{"ddos", 0.8, schemas.CategoryDDoS, 72},
		{"port scan rounds to two decimals", 0.333, schemas.CategoryPortScan, 19.98},
		{"negative confidence clamps to zero", -0.4, schemas.CategoryDDoS, 0},
		{"overconfident input clamps to 100", 1.7, schemas.CategoryBruteForce, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Severity(tt.confidence, tt.category), 1e-9)
		})
	}
}

func TestSeverityIsBoundedAndMonotone(t *testing.T) {
	categories := []string{
		schemas.CategoryNormal, schemas.CategoryDDoS, schemas.CategoryBruteForce,
		schemas.CategoryPortScan, "something-else",
	}
	for _, category := range categories {
		prev := -1.0
		for i := 0; i <= 100; i++ {
			s := Severity(float64(i)/100, category)
			assert.GreaterOrEqual(t, s, 0.0)
			assert.LessOrEqual(t, s, 100.0)
			assert.GreaterOrEqual(t, s, prev, "severity must not decrease (category %s, c=%d%%)", category, i)
			prev = s
		}
	}
}

func TestLevelOf(t *testing.T) {
	assert.Equal(t, LevelCritical, LevelOf(80))
	assert.Equal(t, LevelHigh, LevelOf(79.99))
	assert.Equal(t, LevelHigh, LevelOf(60))
	assert.Equal(t, LevelMedium, LevelOf(30))
	assert.Equal(t, LevelLow, LevelOf(29.99))
}

func TestEscalator(t *testing.T) {
	t.Run("repeat offender is escalated without compounding", func(t *testing.T) {
		e, err := NewEscalator(16, schemas.CategoryNormal)
		require.NoError(t, err)

		var scores []float64
		var flags []bool
		for i := 0; i < 3; i++ {
			s, f := e.Score("192.168.1.50", schemas.CategoryDDoS, 50)
			scores = append(scores, s)
			flags = append(flags, f)
		}
		assert.Equal(t, []float64{50, 60, 60}, scores)
		assert.Equal(t, []bool{false, true, true}, flags)
		assert.Equal(t, 3, e.Count("192.168.1.50"))
	})

	t.Run("escalation caps at 100", func(t *testing.T) {
		e, err := NewEscalator(16, schemas.CategoryNormal)
		require.NoError(t, err)
		e.Score("10.1.1.1", schemas.CategoryBruteForce, 95)
		s, f := e.Score("10.1.1.1", schemas.CategoryBruteForce, 95)
		assert.Equal(t, 100.0, s)
		assert.True(t, f)
	})

	t.Run("baseline never counts", func(t *testing.T) {
		e, err := NewEscalator(16, schemas.CategoryNormal)
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			s, f := e.Score("192.168.1.2", schemas.CategoryNormal, 5)
			assert.Equal(t, 5.0, s)
			assert.False(t, f)
		}
		assert.Equal(t, 0, e.Count("192.168.1.2"))

		_, f := e.Score("192.168.1.2", schemas.CategoryPortScan, 30)
		assert.False(t, f, "first non-baseline alert is not a repeat")
	})

	t.Run("sources are counted independently across categories", func(t *testing.T) {
		e, err := NewEscalator(16, schemas.CategoryNormal)
		require.NoError(t, err)
		_, f1 := e.Score("a", schemas.CategoryDDoS, 40)
		_, f2 := e.Score("b", schemas.CategoryDDoS, 40)
		_, f3 := e.Score("a", schemas.CategoryPortScan, 40)
		assert.Equal(t, []bool{false, false, true}, []bool{f1, f2, f3})
	})

	t.Run("capacity evicts the least recent source", func(t *testing.T) {
		e, err := NewEscalator(2, schemas.CategoryNormal)
		require.NoError(t, err)
		e.Score("a", schemas.CategoryDDoS, 40)
		e.Score("b", schemas.CategoryDDoS, 40)
		e.Score("c", schemas.CategoryDDoS, 40)
		assert.Equal(t, 0, e.Count("a"))
		_, escalated := e.Score("a", schemas.CategoryDDoS, 40)
		assert.False(t, escalated)
	})

	t.Run("invalid capacity", func(t *testing.T) {
		_, err := NewEscalator(0, schemas.CategoryNormal)
		assert.Error(t, err)
	})
}
