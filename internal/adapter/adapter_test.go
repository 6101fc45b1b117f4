package adapter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remedian/internal/types"
)

// stubBackend records the parameters of the last call.
type stubBackend struct {
	lastParams types.ListParams
	resource   *types.Resource
}

func (s *stubBackend) Get(_ context.Context, id string) (*types.Resource, error) {
	return s.resource, nil
}

func (s *stubBackend) List(_ context.Context, params types.ListParams) ([]*types.Resource, types.PageInfo, error) {
	s.lastParams = params
	return nil, types.PageInfo{}, nil
}

func (s *stubBackend) Create(_ context.Context, fields map[string]any) (*types.Resource, error) {
	return s.resource, nil
}

func (s *stubBackend) Update(_ context.Context, id string, fields map[string]any) (*types.Resource, error) {
	return s.resource, nil
}

func (s *stubBackend) Delete(_ context.Context, id string) error {
	return nil
}

func TestAdapter_RejectsUnknownKind(t *testing.T) {
	a := New()
	a.Register(types.KindService, &stubBackend{})

	_, err := a.Get(context.Background(), "gadget", "x-1")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationInvalidKind, appErr.Code)

	// Known kind, but nothing registered for it in this deployment.
	_, err = a.Get(context.Background(), types.KindCart, "c-1")
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationInvalidKind, appErr.Code)
}

func TestAdapter_DispatchesByKind(t *testing.T) {
	svc := &stubBackend{resource: &types.Resource{Kind: types.KindService, ID: "svc-1"}}
	acct := &stubBackend{resource: &types.Resource{Kind: types.KindAccount, ID: "acct-1"}}

	a := New()
	a.Register(types.KindService, svc)
	a.Register(types.KindAccount, acct)

	got, err := a.Get(context.Background(), types.KindService, "svc-1")
	require.NoError(t, err)
	assert.Equal(t, "svc-1", got.ID)

	got, err = a.Get(context.Background(), types.KindAccount, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", got.ID)
}

func TestAdapter_ListNormalizesParams(t *testing.T) {
	backend := &stubBackend{}
	a := New()
	a.Register(types.KindService, backend)

	_, _, err := a.List(context.Background(), types.KindService, types.ListParams{})
	require.NoError(t, err)
	assert.Equal(t, types.DefaultListLimit, backend.lastParams.Limit)

	_, _, err = a.List(context.Background(), types.KindService, types.ListParams{Limit: 9999})
	require.NoError(t, err)
	assert.Equal(t, types.MaxListLimit, backend.lastParams.Limit, "limits are clamped before the backend sees them")
}

func TestAdapter_LaterRegistrationOverrides(t *testing.T) {
	first := &stubBackend{resource: &types.Resource{ID: "from-first"}}
	second := &stubBackend{resource: &types.Resource{ID: "from-second"}}

	a := New()
	a.Register(types.KindService, first)
	a.Register(types.KindService, second)

	got, err := a.Get(context.Background(), types.KindService, "svc-1")
	require.NoError(t, err)
	assert.Equal(t, "from-second", got.ID, "deployment config may move a kind between backends")
}
