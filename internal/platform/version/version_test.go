package version

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	info := Get()

	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
}

func TestUserAgent(t *testing.T) {
	assert.True(t, strings.HasPrefix(UserAgent(), "weet-ai/"+Version+" ("))
}

func TestGet_LinkTimeCommitWins(t *testing.T) {
	orig := Commit
	t.Cleanup(func() { Commit = orig })
	Commit = "abc1234"

	assert.Equal(t, "abc1234", Get().Commit)
}
