package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIssueRef(t *testing.T) {
	owner, repo, number, err := parseIssueRef("rust-lang/rust#12345")
	require.NoError(t, err)
	assert.Equal(t, "rust-lang", owner)
	assert.Equal(t, "rust", repo)
	assert.Equal(t, 12345, number)
}

func TestParseIssueRefMalformed(t *testing.T) {
	cases := []string{"no-hash/rust", "no-slash#5", "owner/repo#notanumber", ""}
	for _, c := range cases {
		_, _, _, err := parseIssueRef(c)
		assert.Error(t, err, c)
	}
}
