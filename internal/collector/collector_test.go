package collector

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/wpspectre/internal/models"
)

func finding(i int) models.Finding {
	return models.Finding{Severity: models.SeverityInfo, Type: "t", Subject: fmt.Sprintf("f%d", i)}
}

func TestAddRespectsCap(t *testing.T) {
	c := New("files", 3)
	for i := 0; i < 10; i++ {
		accepted := c.Add(finding(i))
		assert.Equal(t, i < 3, accepted, "item %d", i)
	}

	require.Equal(t, 3, c.Len())
	assert.True(t, c.Full())
	assert.True(t, c.Truncated())
	assert.Equal(t, 7, c.Dropped())

	got := c.Findings()
	for i, f := range got {
		assert.Equal(t, fmt.Sprintf("f%d", i), f.Subject)
		assert.Equal(t, "files", f.Scanner)
		assert.NotEmpty(t, f.Fingerprint)
	}
}

func TestNotTruncatedAtExactCap(t *testing.T) {
	c := New("x", 2)
	c.Add(finding(0))
	c.Add(finding(1))
	assert.True(t, c.Full())
	assert.False(t, c.Truncated())
}

func TestDefaultMax(t *testing.T) {
	assert.Equal(t, DefaultMax, New("x", 0).Max())
	assert.Equal(t, DefaultMax, New("x", -5).Max())
}

func TestFindingsReturnsCopy(t *testing.T) {
	c := New("x", 5)
	c.Add(finding(0))
	got := c.Findings()
	got[0].Subject = "mutated"
	assert.Equal(t, "f0", c.Findings()[0].Subject)
}

func TestKeepsExplicitScanner(t *testing.T) {
	c := New("x", 5)
	f := finding(0)
	f.Scanner = "other"
	c.Add(f)
	assert.Equal(t, "other", c.Findings()[0].Scanner)
}
