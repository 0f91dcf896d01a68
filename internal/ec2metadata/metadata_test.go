package ec2metadata_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/falmar/swarmman/internal/ec2metadata"
	"github.com/falmar/swarmman/internal/mockec2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (ec2metadata.Service, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(mockec2.NewHandler(&mockec2.Config{InstanceID: "i-0abc"}))
	t.Cleanup(srv.Close)

	svc := ec2metadata.NewService(&ec2metadata.Config{
		TokenTTL: 300,
		Host:     srv.URL,
	})

	return svc, srv
}

func TestGetToken_Cached(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "300", r.Header.Get("X-aws-ec2-metadata-token-ttl-seconds"))
		w.Write([]byte("tok\n"))
	}))
	defer srv.Close()

	svc := ec2metadata.NewService(&ec2metadata.Config{TokenTTL: 300, Host: srv.URL})

	for range 3 {
		token, err := svc.GetToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tok", token)
	}

	assert.Equal(t, int32(1), calls.Load())
}

func TestGetToken_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	svc := ec2metadata.NewService(&ec2metadata.Config{TokenTTL: 300, Host: srv.URL})

	_, err := svc.GetToken(context.Background())
	assert.ErrorIs(t, err, ec2metadata.ErrTokenNotFound)
}

func TestInstanceID(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	token, err := svc.GetToken(ctx)
	require.NoError(t, err)

	id, err := svc.GetInstanceID(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "i-0abc", id)

	_, err = svc.GetInstanceID(ctx, "wrong")
	assert.ErrorContains(t, err, "401")
}

func TestNotices(t *testing.T) {
	svc, srv := newService(t)
	ctx := context.Background()

	token, err := svc.GetToken(ctx)
	require.NoError(t, err)

	_, err = svc.GetSpotInterruption(ctx, token)
	assert.ErrorIs(t, err, ec2metadata.ErrInterruptionNotFound)
	_, err = svc.GetASGReBalance(ctx, token)
	assert.ErrorIs(t, err, ec2metadata.ErrRebalanceNotFound)

	for _, path := range []string{"/spot-interruption", "/asg-rebalance"} {
		res, err := http.Post(srv.URL+path, "", nil)
		require.NoError(t, err)
		res.Body.Close()
	}

	interruption, err := svc.GetSpotInterruption(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "terminate", interruption.Action)
	assert.False(t, interruption.Time.IsZero())

	rebalance, err := svc.GetASGReBalance(ctx, token)
	require.NoError(t, err)
	assert.False(t, rebalance.Time.IsZero())
}
