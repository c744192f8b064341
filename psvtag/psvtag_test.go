package psvtag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keg/psv"
)

type versionRow struct {
	Region      string `psv:"Region"`
	BuildConfig string `psv:"BuildConfig"`
	BuildID     int    `psv:"BuildId"`
}

func TestUnmarshal(t *testing.T) {
	const input = "Region!STRING:0|BuildConfig!HEX:16|BuildId!DEC:4\n" +
		"us|deadbeef|12345\n" +
		"eu|cafebabe|12346\n"

	doc, err := psv.Parse(strings.NewReader(input))
	require.NoError(t, err)

	var rows []versionRow
	require.NoError(t, Unmarshal(doc, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "us", rows[0].Region)
	assert.Equal(t, "deadbeef", rows[0].BuildConfig)
	assert.Equal(t, 12345, rows[0].BuildID)
	assert.Equal(t, 12346, rows[1].BuildID)
}

func TestUnmarshalRejectsNonSlicePointer(t *testing.T) {
	doc := &psv.Document{}
	var notASlice int
	err := Unmarshal(doc, &notASlice)
	require.Error(t, err)
}
