package secrets

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeSecretClient struct {
	mu     sync.Mutex
	values map[string]string
	errors map[string]error
	calls  map[string]int
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{values: map[string]string{}, errors: map[string]error{}, calls: map[string]int{}}
}

func (c *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[req.GetName()]++
	if err := c.errors[req.GetName()]; err != nil {
		return nil, err
	}
	value, ok := c.values[req.GetName()]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "unknown secret")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)}}, nil
}

func (c *fakeSecretClient) Close() error { return nil }

func TestResolveCachesRemoteSecret(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	resource := "projects/shop/secrets/stripe-api-key/versions/latest"
	client.values[resource] = "sk_test_remote"

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithDefaultProject("shop"))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		got, err := fetcher.Resolve(ctx, "sm://stripe-api-key")
		require.NoError(t, err)
		assert.Equal(t, "sk_test_remote", got)
	}
	assert.Equal(t, 1, client.calls[resource])
}

func TestResolveHonoursVersionAndProject(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values["projects/other/secrets/redis-password/versions/3"] = "pinned"

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithDefaultProject("shop"))
	require.NoError(t, err)

	got, err := fetcher.ResolveSecret(ctx, "secret://redis-password?version=3&project=other")
	require.NoError(t, err)
	assert.Equal(t, "pinned", got)
}

func TestResolveFallsBackWhenSecretManagerUnavailable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	require.NoError(t, os.WriteFile(path, []byte("# local\nsecret://stripe-api-key=sk_test_local\n"), 0o600))

	client := newFakeSecretClient()
	client.errors["projects/shop/secrets/stripe-api-key/versions/latest"] = status.Error(codes.PermissionDenied, "denied")

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithDefaultProject("shop"), WithFallbackFile(path))
	require.NoError(t, err)

	got, err := fetcher.Resolve(ctx, "secret://stripe-api-key")
	require.NoError(t, err)
	assert.Equal(t, "sk_test_local", got)
}

func TestResolveSurfacesNonFallbackErrors(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithDefaultProject("shop"), WithFallbackFile(""))
	require.NoError(t, err)

	_, err = fetcher.Resolve(ctx, "secret://missing")
	assert.Error(t, err)
}

func TestParseReferenceRejectsBadInput(t *testing.T) {
	for _, ref := range []string{"", "https://example.com/x", "secret://"} {
		_, err := parseReference(ref)
		assert.Error(t, err, ref)
	}
}
