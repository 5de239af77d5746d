package blackholio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mattsp1290/blackholio-go-client/internal/pipeline"
	"github.com/mattsp1290/blackholio-go-client/model"
	"github.com/mattsp1290/blackholio-go-client/pool"
)

var clientTestUpgrader = websocket.Upgrader{
	Subprotocols: []string{model.Subprotocol},
	CheckOrigin:  func(*http.Request) bool { return true },
}

func newClientTestServer(t *testing.T) (model.Endpoint, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := clientTestUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}))

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse test server url: %v", err)
	}
	idx := strings.LastIndex(u.Host, ":")
	host := u.Host[:idx]
	port, err := strconv.Atoi(u.Host[idx+1:])
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}

	return model.Endpoint{
		Language:     model.LanguageGo,
		Host:         host,
		Port:         port,
		DatabaseName: "blackholio",
	}, srv.Close
}

func TestNewBuildsUsableClient(t *testing.T) {
	endpoint, closeSrv := newClientTestServer(t)
	defer closeSrv()

	dir := t.TempDir()
	c, err := New(Config{
		Endpoint:       endpoint,
		CredentialPath: dir + "/credentials.json",
		Pool:           pool.Config{MinConns: 0, MaxConns: 2, HealthChecksOn: false},
		Pipeline:       pipeline.Config{SerializationFormat: pipeline.FormatJSON, Validation: false, Adaptation: false},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close(context.Background())

	handle, err := c.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer handle.Release(nil)

	if handle.Session().State() != "connected" {
		t.Fatalf("state = %v, want connected", handle.Session().State())
	}

	stats, metrics := c.Metrics()
	if stats.TotalPools != 1 {
		t.Fatalf("total pools = %d, want 1", stats.TotalPools)
	}
	if metrics == nil {
		t.Fatal("expected non-nil pipeline metrics snapshot")
	}
}

func TestCallReducerTimesOutWithoutReply(t *testing.T) {
	endpoint, closeSrv := newClientTestServer(t)
	defer closeSrv()

	dir := t.TempDir()
	c, err := New(Config{
		Endpoint:       endpoint,
		CredentialPath: dir + "/credentials.json",
		Pool:           pool.Config{MinConns: 0, MaxConns: 1, HealthChecksOn: false},
		Pipeline:       pipeline.Config{SerializationFormat: pipeline.FormatJSON, Validation: false, Adaptation: false},
		RequestTimeout: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = c.CallReducer(ctx, "move", map[string]any{"dx": 1.0, "dy": 0.0})
	if err == nil {
		t.Fatal("expected a timeout since the test server never replies to reducer calls")
	}
	merr, ok := model.AsError(err)
	if !ok || merr.Kind != model.KindTimeout {
		t.Fatalf("error kind = %v, want KindTimeout", merr)
	}
}
