package corewp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultOptions(t *testing.T) {
	o := loadOptions()
	assert.Equal(t, 1, o.ThreadCount)
	assert.Equal(t, 64, o.NBPolls)
	assert.Equal(t, 100, o.PollSleep)
	assert.NotNil(t, o.IdleSessionHook)
	assert.NotNil(t, o.ZombieHook)
	assert.NotNil(t, o.Module)
}

func TestWithOptionsOverrideDefaults(t *testing.T) {
	var initCalled, finishCalled bool
	module := fakeModule{
		onInit:   func(id int) error { initCalled = true; return nil },
		onFinish: func(id int) { finishCalled = true },
	}

	o := loadOptions(
		WithThreadCount(4),
		WithNBPolls(8),
		WithPollSleep(250),
		WithModuleLifecycle(module),
	)

	assert.Equal(t, 4, o.ThreadCount)
	assert.Equal(t, 8, o.NBPolls)
	assert.Equal(t, 250, o.PollSleep)

	assert.NoError(t, o.Module.Init(0))
	assert.True(t, initCalled)

	o.Module.Finish(0)
	assert.True(t, finishCalled)
}

type fakeModule struct {
	onInit   func(id int) error
	onFinish func(id int)
}

func (m fakeModule) Init(id int) error { return m.onInit(id) }
func (m fakeModule) Finish(id int)     { m.onFinish(id) }
