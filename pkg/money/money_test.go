package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	assert.Equal(t, "19.99", Format(1999))
	assert.Equal(t, "0.05", Format(5))
	assert.Equal(t, "200.00", Format(20000))
	assert.Equal(t, "-1.50", Format(-150))
}

func TestParseCents(t *testing.T) {
	got, err := ParseCents("19.99")
	require.NoError(t, err)
	assert.EqualValues(t, 1999, got)

	got, err = ParseCents("7")
	require.NoError(t, err)
	assert.EqualValues(t, 700, got)

	_, err = ParseCents("1.999")
	assert.Error(t, err)
	_, err = ParseCents("abc")
	assert.Error(t, err)
}

func TestPercentFloors(t *testing.T) {
	assert.EqualValues(t, 33, Percent(333, 10))
	assert.EqualValues(t, 20, Percent(200, 10))
	assert.EqualValues(t, 999, Percent(999, 100))
	assert.EqualValues(t, 0, Percent(9, 5))
}

func TestNewAmount(t *testing.T) {
	assert.Equal(t, Amount{Cents: 1250, Display: "12.50"}, NewAmount(1250))
}
