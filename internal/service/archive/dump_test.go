package archive

import (
	"bytes"
	"context"
	"testing"

	models "archive/internal/domain/models/archive"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDump_ExportRestore(t *testing.T) {
	src := newTestEnv(t, Options{})
	ctx := context.Background()

	m1 := src.module(t, nil, "Intro")
	m2 := src.module(t, nil, "Forces")
	col := src.collection(t, nil, "Physics", leaf("", m1.ID), group("Mechanics", leaf("", m2.ID)))
	require.NoError(t, src.acl.GrantACL(ctx, models.ACLEntry{Identity: col.Identity, UserID: "editor", Permission: "publish"}))

	bundle, err := src.svcs.Dump.Export(ctx, col.ID)
	require.NoError(t, err)
	assert.Equal(t, col.Ident(), bundle.Root)
	assert.Len(t, bundle.Documents, 4)
	assert.Len(t, bundle.Nodes, 4)
	assert.Len(t, bundle.Controls, 4)
	assert.NotEmpty(t, bundle.ACL)

	var buf bytes.Buffer
	require.NoError(t, WriteBundle(&buf, bundle))
	decoded, err := ReadBundle(&buf)
	require.NoError(t, err)
	assert.Equal(t, bundle.Root, decoded.Root)
	require.Len(t, decoded.Documents, len(bundle.Documents))
	assert.Equal(t, bundle.Documents[0].Identity, decoded.Documents[0].Identity)
	assert.Equal(t, bundle.Documents[0].Version, decoded.Documents[0].Version)

	dst := newTestEnv(t, Options{})
	result, err := dst.svcs.Dump.Restore(ctx, decoded)
	require.NoError(t, err)
	assert.Equal(t, 4, result.Documents)
	assert.Equal(t, 4, result.Nodes)
	assert.Zero(t, result.Skipped)

	// identifiers survive the round trip
	restored, err := dst.docs.GetByID(ctx, col.ID)
	require.NoError(t, err)
	assert.Equal(t, col.Identity, restored.Identity)
	assert.Equal(t, src.tree(t, col.ID), dst.tree(t, col.ID))

	p := dst.latestOf(t, m1.Identity)
	require.NotNil(t, p)
	assert.Equal(t, m1.ID, p.DocumentID)

	acl, err := dst.acl.ListACL(ctx, col.Identity)
	require.NoError(t, err)
	assert.Contains(t, acl, models.ACLEntry{Identity: col.Identity, UserID: "editor", Permission: "publish"})

	again, err := dst.svcs.Dump.Restore(ctx, decoded)
	require.NoError(t, err)
	assert.Zero(t, again.Documents)
	assert.Zero(t, again.Nodes)
	assert.Equal(t, 8, again.Skipped)

	// new rows continue after the restored identifiers
	next := dst.module(t, nil, "Later")
	assert.Greater(t, next.ID, col.ID)
}
