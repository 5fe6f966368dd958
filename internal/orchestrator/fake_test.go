package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake_CreateWakeHibernateDestroyLifecycle(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	id, name, err := f.Create(ctx, CreateConfig{PoolName: "p", DeploymentNamePrefix: "eval"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Contains(t, name, "eval-")

	status, err := f.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusHibernated, status)

	require.NoError(t, f.Wake(ctx, id))
	status, err = f.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, status)

	require.NoError(t, f.Hibernate(ctx, id))
	status, err = f.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusHibernated, status)

	require.NoError(t, f.Destroy(ctx, id))
	status, err = f.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, status)
}

func TestFake_InjectedFailuresAreConsumedOnce(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	f.FailCreate = 1

	_, _, err := f.Create(ctx, CreateConfig{PoolName: "p"})
	assert.ErrorIs(t, err, ErrTransient)

	id, _, err := f.Create(ctx, CreateConfig{PoolName: "p"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestFake_StatusUnknownForMissingDeployment(t *testing.T) {
	f := NewFake()
	status, err := f.Status(context.Background(), "never-created")
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, status)
}
