package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsCRN(t *testing.T) {
	testCases := []struct {
		in     string
		expect bool
	}{
		{in: "12345", expect: true},
		{in: "00001", expect: true},
		{in: "1234", expect: false},
		{in: "123456", expect: false},
		{in: "1234a", expect: false},
		{in: "", expect: false},
	}
	for _, test := range testCases {
		assert.Equal(t, test.expect, IsCRN(test.in), test.in)
	}
}

func TestIsHHMM(t *testing.T) {
	assert.True(t, IsHHMM(0))
	assert.True(t, IsHHMM(1430))
	assert.True(t, IsHHMM(2359))
	assert.False(t, IsHHMM(2400))
	assert.False(t, IsHHMM(1260))
	assert.False(t, IsHHMM(-5))
}

type sample struct {
	CRN   string `validate:"crn"`
	Start int    `validate:"hhmm"`
	Name  string `validate:"required"`
}

func TestStruct(t *testing.T) {
	require.NoError(t, Struct(sample{CRN: "12345", Start: 830, Name: "x"}))

	err := Struct(sample{CRN: "123", Start: 2500})
	require.Error(t, err)

	var verr *Error
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Fields, 3)

	tags := []string{verr.Fields[0].Tag, verr.Fields[1].Tag, verr.Fields[2].Tag}
	assert.ElementsMatch(t, []string{"crn", "hhmm", "required"}, tags)
}
