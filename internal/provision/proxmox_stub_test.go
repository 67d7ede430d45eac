package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cs2hvh/cryptocloud/internal/domain"
	"github.com/cs2hvh/cryptocloud/internal/proxmox"
)

// fakeProxmox is a scriptable stand-in for a Proxmox endpoint. Zero value
// behaves like a healthy host; knobs inject failures at individual steps.
type fakeProxmox struct {
	mu sync.Mutex

	authFail     bool
	cloneExit    string // task exit status for the clone task; "" means OK
	configStatus int    // non-zero: HTTP status returned by the config call
	resizeStatus int    // non-zero: HTTP status returned by the resize call
	startHangs   bool   // start task never reaches a terminal state
	guests       []proxmox.VM

	nextID      int
	configForm  url.Values
	resizeCalls int
	powerCalls  []string
	guestStatus string
}

func newFakeProxmox(t *testing.T) (*fakeProxmox, *httptest.Server) {
	t.Helper()
	f := &fakeProxmox{nextID: 105, guestStatus: "running"}
	srv := httptest.NewTLSServer(f.handler())
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeProxmox) handler() http.Handler {
	writeData := func(w http.ResponseWriter, data any) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		path := r.URL.Path
		switch {
		case path == "/api2/json/nodes":
			if f.authFail {
				http.Error(w, "authentication failure", http.StatusUnauthorized)
				return
			}
			writeData(w, []map[string]any{{"node": "pve1", "status": "online"}})

		case path == "/api2/json/access/ticket":
			if f.authFail {
				http.Error(w, "authentication failure", http.StatusUnauthorized)
				return
			}
			writeData(w, map[string]any{"ticket": "PVE:ticket", "CSRFPreventionToken": "csrf"})

		case path == "/api2/json/cluster/nextid":
			writeData(w, fmt.Sprintf("%d", f.nextID))

		case path == "/api2/json/nodes/pve1/qemu" && r.Method == http.MethodGet:
			writeData(w, f.guests)

		case strings.HasSuffix(path, "/clone"):
			writeData(w, "UPID:pve1:clone:1")

		case strings.Contains(path, "/tasks/") && strings.HasSuffix(path, "/status"):
			switch {
			case strings.Contains(path, "clone"):
				exit := f.cloneExit
				if exit == "" {
					exit = "OK"
				}
				writeData(w, map[string]any{"status": "stopped", "exitstatus": exit})
			case strings.Contains(path, "start") && f.startHangs:
				writeData(w, map[string]any{"status": "running", "exitstatus": ""})
			default:
				writeData(w, map[string]any{"status": "stopped", "exitstatus": "OK"})
			}

		case strings.HasSuffix(path, "/config"):
			if f.configStatus != 0 {
				http.Error(w, "config rejected", f.configStatus)
				return
			}
			_ = r.ParseForm()
			f.configForm = r.PostForm
			writeData(w, nil)

		case strings.HasSuffix(path, "/resize"):
			f.resizeCalls++
			if f.resizeStatus != 0 {
				http.Error(w, "resize rejected", f.resizeStatus)
				return
			}
			writeData(w, nil)

		case strings.Contains(path, "/status/current"):
			writeData(w, map[string]any{"status": f.guestStatus, "name": "vm-test"})

		case strings.Contains(path, "/status/"):
			parts := strings.Split(path, "/")
			f.powerCalls = append(f.powerCalls, parts[len(parts)-1])
			writeData(w, "UPID:pve1:start:1")

		default:
			http.NotFound(w, r)
		}
	})
}

// stubFactory builds clients that talk to the fake server regardless of the
// host profile's configured URL, with instant task polling.
func stubFactory(srv *httptest.Server) ClientFactory {
	return func(domain.Host) *proxmox.Client {
		return proxmox.New(srv.URL, true, proxmox.WithSleep(func(ctx context.Context, d time.Duration) error {
			return ctx.Err()
		}))
	}
}
