package registry

import (
	"context"
	"testing"

	"github.com/ajitpratap0/tap-jotform/pkg/config"
	"github.com/ajitpratap0/tap-jotform/pkg/connector/core"
	"github.com/ajitpratap0/tap-jotform/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type stubSource struct{}

func (stubSource) Initialize(context.Context, *config.Config) error { return nil }
func (stubSource) Streams() []*core.Stream                         { return nil }
func (stubSource) Read(context.Context, *core.Stream, *core.StreamRequest) (*core.RecordStream, error) {
	return nil, nil
}
func (stubSource) Close(context.Context) error { return nil }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	factory := func(*zap.Logger) (core.Source, error) { return stubSource{}, nil }

	require.NoError(t, r.RegisterSource("stub", factory))
	err := r.RegisterSource("stub", factory)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	require.NoError(t, r.RegisterSource("another", factory))
	assert.Equal(t, []string{"another", "stub"}, r.ListSources())
	assert.True(t, r.HasSource("stub"))

	src, err := r.CreateSource("stub", zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NotNil(t, src)

	_, err = r.CreateSource("missing", zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestRegistry_FactoryError(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterSource("broken", func(*zap.Logger) (core.Source, error) {
		return nil, errors.New(errors.ErrorTypeInternal, "boom")
	}))

	_, err := r.CreateSource("broken", zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestRegistry_Info(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterInfo(&ConnectorInfo{Name: "stub", Version: "1.0.0"}))
	assert.Error(t, r.RegisterInfo(&ConnectorInfo{Name: "stub"}))

	info, err := r.GetInfo("stub")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", info.Version)

	_, err = r.GetInfo("missing")
	assert.Error(t, err)
}
