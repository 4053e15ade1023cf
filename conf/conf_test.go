package conf

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPluginItem_UnmarshalJSON(t *testing.T) {
	var item PluginItem
	require.NoError(t, json.Unmarshal([]byte(`{"enable":false,"package":"redis","dependencies":["log"],"optionalDependencies":null}`), &item))
	assert.True(t, item.ExplicitlyDisabled())
	assert.False(t, item.Enabled())
	assert.Equal(t, []string{"log"}, item.Dependencies)
	assert.Nil(t, item.OptionalDependencies)
	assert.Equal(t, "redis", item.PackageOr("cache"))

	var unset PluginItem
	require.NoError(t, json.Unmarshal([]byte(`{}`), &unset))
	assert.False(t, unset.ExplicitlyDisabled())
	assert.Equal(t, "cache", unset.PackageOr("cache"))
	unset.SetEnabled(true)
	assert.True(t, unset.Enabled())
}

func TestPluginItem_RejectsNonListDependencies(t *testing.T) {
	for _, in := range []string{
		`{"dependencies":"redis"}`,
		`{"optionalDependencies":{"a":1}}`,
		`{"dependencies":["redis",""]}`,
	} {
		var item PluginItem
		err := json.Unmarshal([]byte(in), &item)
		assert.ErrorIs(t, err, ErrInvalidDependencies, in)
	}
}

func TestBootstrap_ScanFromKratosConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
hive:
  log:
    level: debug
  plugins:
    redis:
      enable: true
    mq:
      enable: true
      dependencies: [redis]
  mservice:
    enable: true
    port: 18000
    finder:
      enable: true
      base:
        namespace: dev
        redis:
          addr: 127.0.0.1:6379
      naming:
        enable: true
        serviceName: demo
        subscribe:
          - serviceName: billing
      config:
        enable: true
        dependencies: [mysql]
        subscribe:
          - dataId: feature
            alias: flags
`), 0o644))

	c := config.New(config.WithSource(file.NewSource(path)))
	require.NoError(t, c.Load())
	t.Cleanup(func() { _ = c.Close() })

	var bc Bootstrap
	require.NoError(t, c.Value(RootKey).Scan(&bc))
	bc.Normalize("10.0.0.7")

	assert.Equal(t, "debug", bc.Log.Level)
	assert.Equal(t, "10.0.0.7", bc.MService.IP)
	assert.Equal(t, "10.0.0.7_18000", bc.NodeName)
	assert.Equal(t, "10.0.0.7:18000", bc.MService.Addr())
	require.Contains(t, bc.Plugins, "mq")
	assert.Equal(t, []string{"redis"}, bc.Plugins["mq"].Dependencies)
	assert.True(t, bc.MService.FinderEnabled())
	assert.True(t, bc.MService.ConfigDistributionEnabled())

	f := bc.MService.Finder
	assert.Equal(t, "dev", f.Base.Namespace)
	assert.Equal(t, "127.0.0.1:6379", f.Base.Redis.Addr)
	assert.Equal(t, "demo", f.Naming.ServiceName)
	assert.Equal(t, "billing", f.Naming.Subscribe[0].ServiceName)
	assert.Equal(t, "flags", f.Config.Subscribe[0].Alias)
	assert.Equal(t, []string{"mysql"}, f.Config.Dependencies)
}

func TestBootstrap_MalformedPluginFailsScan(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
hive:
  plugins:
    mq:
      enable: true
      dependencies: redis
`), 0o644))

	c := config.New(config.WithSource(file.NewSource(path)))
	require.NoError(t, c.Load())
	t.Cleanup(func() { _ = c.Close() })

	var bc Bootstrap
	assert.ErrorIs(t, c.Value(RootKey).Scan(&bc), ErrInvalidDependencies)
}
