package ppg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func faceSample(g float64) ROISample {
	return newSample(time.Unix(0, 0), 100, g, 100)
}

func TestPolicyFor(t *testing.T) {
	p, err := PolicyFor(ModeFace)
	require.NoError(t, err)
	assert.Equal(t, ModeFace, p.Mode())

	p, err = PolicyFor(ModeFingertip)
	require.NoError(t, err)
	assert.Equal(t, ModeFingertip, p.Mode())

	_, err = PolicyFor("ear")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Webcam ")
	require.NoError(t, err)
	assert.Equal(t, ModeFace, m)

	m, err = ParseMode("finger")
	require.NoError(t, err)
	assert.Equal(t, ModeFingertip, m)

	_, err = ParseMode("")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestPolicy_Signals(t *testing.T) {
	face, _ := PolicyFor(ModeFace)
	assert.InDelta(t, 120/200.001, face.Signal(faceSample(120)), 1e-12)
	assert.True(t, face.Covered(faceSample(120)))

	tip, _ := PolicyFor(ModeFingertip)
	covered := newSample(time.Unix(0, 0), 200, 60, 60)
	assert.Equal(t, -200.0, tip.Signal(covered))
	assert.True(t, tip.Covered(covered))
	assert.False(t, tip.Covered(newSample(time.Unix(0, 0), 140, 40, 40)), "red too weak")
	assert.False(t, tip.Covered(newSample(time.Unix(0, 0), 200, 150, 60)), "green too strong")
}

func TestConditioner_WarmUpThenDetecting(t *testing.T) {
	face, _ := PolicyFor(ModeFace)
	c := NewConditioner(face, 90, 30)

	for i := 0; i < 29; i++ {
		assert.Equal(t, StatusWarmingUp, c.Push(faceSample(float64(100+i%5))))
	}
	assert.Equal(t, StatusDetecting, c.Push(faceSample(104)))
	assert.Equal(t, 30, c.Len())

	prev, cur, mean := c.Window()
	assert.InDelta(t, 103/200.001, prev, 1e-12)
	assert.InDelta(t, 104/200.001, cur, 1e-12)
	assert.Greater(t, mean, 0.0)
}

func TestConditioner_TooDarkClearsBuffer(t *testing.T) {
	face, _ := PolicyFor(ModeFace)
	c := NewConditioner(face, 90, 30)
	for i := 0; i < 10; i++ {
		c.Push(faceSample(float64(100 + i)))
	}

	dark := newSample(time.Unix(0, 0), 20, 30, 20)
	assert.Equal(t, StatusTooDark, c.Push(dark))
	assert.Zero(t, c.Len())
}

func TestConditioner_NoCoverage(t *testing.T) {
	tip, _ := PolicyFor(ModeFingertip)
	c := NewConditioner(tip, 90, 30)
	c.Push(newSample(time.Unix(0, 0), 200, 60, 60))

	assert.Equal(t, StatusNoCoverage, c.Push(newSample(time.Unix(0, 0), 120, 110, 100)))
	assert.Zero(t, c.Len())
}

func TestConditioner_FlatSignalIsNoCoverage(t *testing.T) {
	face, _ := PolicyFor(ModeFace)
	c := NewConditioner(face, 90, 30)

	for i := 0; i < 29; i++ {
		require.Equal(t, StatusWarmingUp, c.Push(faceSample(120)))
	}
	assert.Equal(t, StatusNoCoverage, c.Push(faceSample(120)))
	assert.Zero(t, c.Len())
}
