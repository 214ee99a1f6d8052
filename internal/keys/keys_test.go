package keys

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keyPattern = regexp.MustCompile(`^[ABCDEFGHJKLMNPQRSTUVWXYZ23456789]{4}(-[ABCDEFGHJKLMNPQRSTUVWXYZ23456789]{4}){3}$`)

func TestAlphabet(t *testing.T) {
	assert.Len(t, Alphabet, 32)
	for _, ambiguous := range []string{"I", "O", "0", "1"} {
		assert.NotContains(t, Alphabet, ambiguous)
	}
	seen := make(map[rune]bool)
	for _, r := range Alphabet {
		assert.False(t, seen[r], "duplicate symbol %q", r)
		seen[r] = true
	}
}

func TestGenerateFormat(t *testing.T) {
	for i := 0; i < 500; i++ {
		k, err := Generate()
		require.NoError(t, err)
		require.Len(t, k, Length)
		require.Regexp(t, keyPattern, k)
		require.Equal(t, 3, strings.Count(k, "-"))
		require.True(t, Valid(k), "generated key %q should be valid", k)
	}
}

func TestGenerateUsesWholeAlphabet(t *testing.T) {
	seen := make(map[rune]bool)
	for i := 0; i < 2000 && len(seen) < len(Alphabet); i++ {
		k, err := Generate()
		require.NoError(t, err)
		for _, r := range strings.ReplaceAll(k, "-", "") {
			seen[r] = true
		}
	}
	assert.Len(t, seen, len(Alphabet))
}

func TestGenerateDistinct(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		k, err := Generate()
		require.NoError(t, err)
		require.False(t, seen[k], "duplicate key %q", k)
		seen[k] = true
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abcd-efgh-jklm-npqr", "ABCD-EFGH-JKLM-NPQR"},
		{"  ABCD-EFGH-JKLM-NPQR\n", "ABCD-EFGH-JKLM-NPQR"},
		{"\t", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "Normalize(%q)", tt.in)
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"well formed", "ABCD-EFGH-JKLM-NPQR", true},
		{"digits", "2345-6789-ABCD-EFGH", true},
		{"lower case", "abcd-efgh-jklm-npqr", false},
		{"ambiguous O", "ABCD-EFGH-JKLM-NPQO", false},
		{"ambiguous 1", "ABCD-EFGH-JKLM-NPQ1", false},
		{"missing hyphen", "ABCDEFGH-JKLM-NPQR2", false},
		{"too short", "ABCD-EFGH-JKLM", false},
		{"too long", "ABCD-EFGH-JKLM-NPQR-", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Valid(tt.in))
		})
	}
}
