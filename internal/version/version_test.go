package version_test

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ludo-technologies/pyjit/internal/version"
)

func TestShort(t *testing.T) {
	assert.NotEmpty(t, version.Short())

	saved := version.Version
	defer func() { version.Version = saved }()

	version.Version = "v1.2.3"
	assert.Equal(t, "v1.2.3", version.Short())
}

func TestInfo(t *testing.T) {
	info := version.Info()

	lines := strings.Split(info, "\n")
	assert.True(t, strings.HasPrefix(lines[0], "pyjit "))
	for _, field := range []string{"Commit:", "Built:", "Go:", "OS/Arch:"} {
		assert.Contains(t, info, field)
	}
	assert.Contains(t, info, runtime.Version())
	assert.Contains(t, info, runtime.GOOS+"/"+runtime.GOARCH)
}
