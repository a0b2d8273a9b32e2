package dig_container

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolgate/core"
)

func TestNewStorage(t *testing.T) {
	conf := core.NewTestConfig()

	out, err := newStorage(conf, core.NopLogger())
	require.NoError(t, err)
	exists, err := out.Profiles.AdminExists(context.Background())
	assert.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, out.Closer())

	conf.Database.Engine = "mongo"
	_, err = newStorage(conf, core.NopLogger())
	assert.EqualError(t, err, `unknown database engine "mongo"`)
}

func TestContainerBuildsServer(t *testing.T) {
	conf := core.NewTestConfig()
	c := New(func() {})
	require.NoError(t, c.Decorate(func(*core.Config) *core.Config { return conf }))

	var stopped bool
	err := c.Invoke(func(p ServerParams) {
		assert.Same(t, conf, p.Conf)
		assert.NotNil(t, p.ProfileSvc)
		p.Shutdown()
		stopped = true
	})
	assert.NoError(t, err)
	assert.True(t, stopped)
}
