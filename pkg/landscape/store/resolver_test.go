package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landscapesim/pkg/batch/util/exception"
	"landscapesim/pkg/landscape/model"
)

func TestResolver(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p := &model.Project{LibraryID: 1, PID: 1}
	require.NoError(t, s.CreateProject(ctx, p))
	a := &model.Record{Kind: model.KindStratum, ProjectID: p.ID, Name: "A"}
	b := &model.Record{Kind: model.KindStratum, ProjectID: p.ID, Name: "B"}
	other := &model.Record{Kind: model.KindStratum, ProjectID: p.ID + 100, Name: "C"}
	require.NoError(t, s.CreateRecords(ctx, []*model.Record{a, b, other}))
	r := NewResolver(s)

	id, err := r.Resolve(ctx, model.KindStratum, "A", p.ID)
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, a.ID, *id)

	id, err = r.Resolve(ctx, model.KindStratum, "", p.ID)
	require.NoError(t, err)
	assert.Nil(t, id)

	_, err = r.Resolve(ctx, model.KindStratum, "C", p.ID)
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindIntegrity))

	// Same name under another kind does not match.
	_, err = r.Resolve(ctx, model.KindStateClass, "A", p.ID)
	assert.True(t, exception.IsKind(err, exception.KindIntegrity))

	dup := &model.Record{Kind: model.KindStratum, ProjectID: p.ID, Name: "A"}
	require.NoError(t, s.CreateRecords(ctx, []*model.Record{dup}))
	_, err = r.Resolve(ctx, model.KindStratum, "A", p.ID)
	assert.True(t, exception.IsKind(err, exception.KindIntegrity))

	name, err := r.Name(ctx, model.KindStratum, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "B", name)

	_, err = r.Name(ctx, model.KindStateClass, b.ID)
	assert.True(t, exception.IsKind(err, exception.KindIntegrity))
}
