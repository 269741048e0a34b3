package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/navledger/internal/domain"
)

func TestParsePeriod(t *testing.T) {
	want := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)

	for _, in := range []string{"2024-03-14", "03142024"} {
		got, err := parsePeriod(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	got, err := parsePeriod("")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = parsePeriod("14/03/2024")
	assert.ErrorIs(t, err, domain.ErrInvalidPeriod)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b "))
	assert.Nil(t, splitList(""))
}
