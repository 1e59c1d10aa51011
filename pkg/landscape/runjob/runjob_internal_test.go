package runjob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landscapesim/pkg/batch/util/exception"
	"landscapesim/pkg/landscape/pipeline"
	"landscapesim/pkg/landscape/pipeline/pipelinetest"
)

func TestExpectedRasters(t *testing.T) {
	total, ok := expectedRasters(pipelinetest.MinimalConfig())
	require.True(t, ok)
	assert.Equal(t, int64(8), total)

	tests := []struct {
		name string
		rc   any
	}{
		{"missing", nil},
		{"not spatial", map[string]any{"min_iteration": 1.0, "max_iteration": 1.0, "min_timestep": 0.0, "max_timestep": 5.0, "is_spatial": false}},
		{"fractional", map[string]any{"min_iteration": 1.5, "max_iteration": 2.0, "min_timestep": 0.0, "max_timestep": 5.0, "is_spatial": true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := expectedRasters(map[string]any{"run_control": tt.rc})
			assert.False(t, ok)
		})
	}
}

func TestCheckConfigKeys(t *testing.T) {
	known := []string{"a", "b"}
	assert.NoError(t, checkConfigKeys(known, map[string]any{"a": nil, "b": 1}))

	err := checkConfigKeys(known, map[string]any{"a": nil, "d": 1, "c": 2})
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindValidation))
	assert.Contains(t, err.Error(), "missing keys: b; unknown keys: c, d")
}

func TestPollSkipsLibraryWithRunInProgress(t *testing.T) {
	f := pipelinetest.New(t)
	p := f.Register(t)
	svc := NewService(Options{Store: f.Store, Pipelines: map[string]*pipeline.Pipeline{pipelinetest.LibraryName: p}})

	ctx := context.Background()
	require.NoError(t, p.ImportConfig(ctx, f.Scenario(t, 10), pipelinetest.MinimalConfig()))
	_, err := p.Console().RunModel(ctx, 10)
	require.NoError(t, err)

	lock := svc.lockFor(pipelinetest.LibraryName)
	lock.Lock()
	created, err := NewPoller(svc).Poll(ctx, pipelinetest.LibraryName)
	lock.Unlock()
	require.NoError(t, err)
	assert.Empty(t, created)

	created, err = NewPoller(svc).Poll(ctx, pipelinetest.LibraryName)
	require.NoError(t, err)
	assert.Len(t, created, 1)
}
