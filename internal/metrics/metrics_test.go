// ABOUTME: Tests for the Prometheus collector
// ABOUTME: Covers counters, per-collector isolation and the metrics handler
package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorCounts(t *testing.T) {
	c := New()

	c.ActiveStreams(3)
	c.Memberships(7)
	c.Rejected("stream_limit")
	c.Rejected("stream_limit")
	c.FrameDropped("spoofed")
	c.StreamEnded("timeout")
	c.Notification("start")
	c.ChunkForwarded(4)
	c.TickDuration(2 * time.Millisecond)
	c.ClientConnected()
	c.ClientConnected()
	c.ClientDisconnected()
	c.MessageReceived("entity/update")

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"active streams", testutil.ToFloat64(c.activeStreams), 3},
		{"memberships", testutil.ToFloat64(c.memberships), 7},
		{"rejections", testutil.ToFloat64(c.rejections.WithLabelValues("stream_limit")), 2},
		{"dropped", testutil.ToFloat64(c.framesDropped.WithLabelValues("spoofed")), 1},
		{"ended", testutil.ToFloat64(c.streamsEnded.WithLabelValues("timeout")), 1},
		{"notifications", testutil.ToFloat64(c.notifications.WithLabelValues("start")), 1},
		{"chunks", testutil.ToFloat64(c.chunks), 1},
		{"active clients", testutil.ToFloat64(c.activeClients), 1},
		{"connections", testutil.ToFloat64(c.clientsConnected), 2},
		{"messages", testutil.ToFloat64(c.messagesReceived.WithLabelValues("entity/update")), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := New()
	b := New()

	a.ActiveStreams(5)
	if got := testutil.ToFloat64(b.activeStreams); got != 0 {
		t.Errorf("second collector saw %v active streams", got)
	}
}

func TestHandler(t *testing.T) {
	c := New()
	c.Rejected("bad_sample_rate")

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !strings.Contains(string(body), `proxaudio_stream_rejections_total{reason="bad_sample_rate"} 1`) {
		t.Errorf("metrics output missing rejection counter:\n%s", body)
	}
}
