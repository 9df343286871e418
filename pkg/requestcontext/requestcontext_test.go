package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClientMetadataRoundTrip(t *testing.T) {
	ctx := WithClientMetadata(context.Background(), "203.0.113.7", "curl/8.0")
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithDeviceFingerprint(ctx, "fp")

	assert.Equal(t, "203.0.113.7", ClientIP(ctx))
	assert.Equal(t, "curl/8.0", UserAgent(ctx))
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, "fp", DeviceFingerprint(ctx))
}

func TestMissingValuesAreEmpty(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, ClientIP(ctx))
	assert.Empty(t, RequestID(ctx))
	assert.Empty(t, DeviceFingerprint(ctx))
}

func TestNow(t *testing.T) {
	pinned := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, pinned, Now(WithTime(context.Background(), pinned)))

	before := time.Now()
	got := Now(context.Background())
	assert.False(t, got.Before(before))
}
