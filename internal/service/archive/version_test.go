package archive

import (
	"context"
	"testing"

	"archive/internal/domain"
	models "archive/internal/domain/models/archive"
	archiveSvc "archive/internal/domain/services/archive"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextVersion(t *testing.T) {
	tests := []struct {
		name   string
		max    models.Version
		exists bool
		kind   models.Kind
		bump   archiveSvc.Bump
		want   models.Version
	}{
		{name: "new module", kind: models.KindModule, bump: archiveSvc.BumpMajor, want: models.Version{Major: 1}},
		{name: "new collection", kind: models.KindCollection, bump: archiveSvc.BumpMajor, want: models.Version{Major: 1, Minor: 1}},
		{name: "new collection minor bump", kind: models.KindCollection, bump: archiveSvc.BumpMinor, want: models.Version{Major: 1, Minor: 1}},
		{name: "module revision", max: models.Version{Major: 4}, exists: true, kind: models.KindModule, bump: archiveSvc.BumpMajor, want: models.Version{Major: 5}},
		{name: "collection major", max: models.Version{Major: 2, Minor: 7}, exists: true, kind: models.KindCollection, bump: archiveSvc.BumpMajor, want: models.Version{Major: 3, Minor: 1}},
		{name: "collection minor", max: models.Version{Major: 2, Minor: 7}, exists: true, kind: models.KindCollection, bump: archiveSvc.BumpMinor, want: models.Version{Major: 2, Minor: 8}},
		{name: "subcollection minor", max: models.Version{Major: 1, Minor: 1}, exists: true, kind: models.KindSubCollection, bump: archiveSvc.BumpMinor, want: models.Version{Major: 1, Minor: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextVersion(tt.max, tt.exists, tt.kind, tt.bump)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, got.ValidateFor(tt.kind))
			if tt.exists {
				assert.True(t, tt.max.Less(got), "next version must sort above %s", tt.max)
			}
		})
	}
}

func TestVersionResolver_ModuleMinorBump(t *testing.T) {
	env := newTestEnv(t, Options{})

	_, err := env.svcs.Versions.NextVersion(context.Background(), uuid.New(), models.KindModule, archiveSvc.BumpMinor)
	assert.ErrorIs(t, err, domain.ErrInvalidVersionKind)
}

func TestVersionResolver_UsesHighestRevisionInAnyState(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	first := env.module(t, nil, "Page")
	env.publish(t, &archiveSvc.PublishRequest{
		Identity: &first.Identity,
		Kind:     models.KindModule,
		Title:    "Page",
		State:    models.StateError,
	})

	next, err := env.svcs.Versions.NextVersion(ctx, first.Identity, models.KindModule, archiveSvc.BumpMajor)
	require.NoError(t, err)
	assert.Equal(t, models.Version{Major: 3}, next)
}

func TestRenderedVersionRoundTrip(t *testing.T) {
	for _, v := range []models.Version{{Major: 1}, {Major: 12}, {Major: 1, Minor: 1}, {Major: 3, Minor: 14}} {
		parsed, err := models.ParseVersion(v.String())
		require.NoError(t, err)
		assert.Equal(t, v, parsed)
	}
}
