package context

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCountTokensEmpty(t *testing.T) {
	var tok Tokenizer
	require.Equal(t, 0, tok.CountTokens(""))
}

func TestCountTokensDeterministic(t *testing.T) {
	var tok Tokenizer
	a := tok.CountTokens("hello, world! this is a test.")
	b := tok.CountTokens("hello, world! this is a test.")
	require.Equal(t, a, b)
	require.Greater(t, a, 0)
}

func TestCountTokensWhitespaceOnly(t *testing.T) {
	var tok Tokenizer
	require.Equal(t, 0, tok.CountTokens("   \n\t  "))
}
