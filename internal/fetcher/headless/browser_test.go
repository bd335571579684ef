package headless

import (
	"sync"
	"testing"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"
)

func documentResponse(status int64) *network.EventResponseReceived {
	return &network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: status},
	}
}

func TestResponseMetaKeepsFirstDocumentStatus(t *testing.T) {
	meta := newResponseMeta()

	// Non-document resources never count.
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 500},
	})
	meta.captureEvent(documentResponse(404))
	// A later frame finishing must not overwrite the main document.
	meta.captureEvent(documentResponse(200))

	require.Equal(t, 404, meta.status())
}

func TestResponseMetaDefaultsToOK(t *testing.T) {
	require.Equal(t, 200, newResponseMeta().status())

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{Type: network.ResourceTypeDocument})
	require.Equal(t, 200, meta.status())
}

func TestResponseMetaConcurrentCapture(t *testing.T) {
	meta := newResponseMeta()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				meta.captureEvent(documentResponse(503))
				_ = meta.status()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 503, meta.status())
}
