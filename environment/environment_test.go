package environment

import (
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"testing"
)

func TestManager(t *testing.T) {
	m := NewManager(
		Environment{Name: "Firefox on Linux", Browser: "*firefox"},
		Environment{Name: "Chrome on Linux", Browser: "*googlechrome"},
	)

	env, ok := m.Lookup("Firefox on Linux")
	assert.True(t, ok)
	assert.Equal(t, "*firefox", env.Browser)

	_, ok = m.Lookup("firefox on linux")
	assert.False(t, ok)

	m.Add(Environment{Name: "Firefox on Linux", Browser: "*chrome"})
	want := []Environment{
		{Name: "Chrome on Linux", Browser: "*googlechrome"},
		{Name: "Firefox on Linux", Browser: "*chrome"},
	}
	if diff := cmp.Diff(want, m.Environments()); diff != "" {
		t.Errorf("Environments() mismatch (-want +got):\n%s", diff)
	}
}
