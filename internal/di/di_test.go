package di

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fridahub/retrieval-go/internal/config"
	"github.com/fridahub/retrieval-go/internal/gpu"
)

func TestDependencyInjectionContainer(t *testing.T) {
	// 初始化DI容器
	container := InitContainer()
	assert.NotNil(t, container)

	// 验证容器已创建
	assert.NotNil(t, Container)
}

func TestContainerBasicOperations(t *testing.T) {
	container := InitContainer()

	type TestService struct {
		Name string
	}

	err := container.Provide(func() *TestService {
		return &TestService{Name: "test"}
	})
	require.NoError(t, err)

	err = container.Invoke(func(svc *TestService) {
		assert.Equal(t, "test", svc.Name)
	})
	assert.NoError(t, err)
}

func TestRegisterProviders(t *testing.T) {
	container := InitContainer()
	require.NoError(t, RegisterProviders(container))

	// провайдеры ленивые: без загруженного конфига резолв падает,
	// с загруженным — конфиг и GPU-лок строятся
	require.NoError(t, config.LoadConfig())
	err := container.Invoke(func(cfg *config.Config, lock *gpu.Lock) {
		assert.NotNil(t, cfg)
		assert.NotNil(t, lock)
	})
	assert.NoError(t, err)
}
