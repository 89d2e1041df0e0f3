package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFieldArg(t *testing.T) {
	n, value, err := parseFieldArg(" 70 =301")
	require.NoError(t, err)
	assert.Equal(t, 70, n)
	assert.Equal(t, "301", value)

	n, value, err = parseFieldArg("48=a=b")
	require.NoError(t, err)
	assert.Equal(t, 48, n)
	assert.Equal(t, "a=b", value)

	_, _, err = parseFieldArg("70")
	assert.Error(t, err)
	_, _, err = parseFieldArg("x=1")
	assert.Error(t, err)
}

func TestDecodeHexArg(t *testing.T) {
	data, err := decodeHexArg("30 38\n30 30")
	require.NoError(t, err)
	assert.Equal(t, "0800", string(data))

	_, err = decodeHexArg("3G")
	assert.Error(t, err)
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestEncodeThenDecode(t *testing.T) {
	encoded := strings.TrimSpace(run(t, "encode", "--log-level", "error", "--mti", "0800", "--field", "11=000001", "--field", "70=301"))
	// "0800" in ASCII
	assert.True(t, strings.HasPrefix(encoded, "30383030"), encoded)

	decoded := run(t, "decode", "--log-level", "error", "--hex", encoded)
	assert.Contains(t, decoded, "0800")
	assert.Contains(t, decoded, "000001")
	assert.Contains(t, decoded, "301")
}
