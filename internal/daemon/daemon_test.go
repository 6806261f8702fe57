package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/matheus3301/crmchat/internal/api"
	"github.com/matheus3301/crmchat/internal/config"
	"github.com/matheus3301/crmchat/internal/lock"
	"github.com/matheus3301/crmchat/internal/message"
	"github.com/matheus3301/crmchat/internal/metrics"
	"github.com/matheus3301/crmchat/internal/profile"
	"github.com/matheus3301/crmchat/internal/status"
	"github.com/matheus3301/crmchat/internal/transport"
)

// testHome points the profile tree at a short /tmp dir (Unix socket paths are
// limited to ~104 chars on macOS).
func testHome(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "crm-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	t.Setenv(profile.HomeEnv, dir)
	return dir
}

func dial(t *testing.T, socketPath string) *api.Client {
	t.Helper()
	c, err := api.Dial(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// TestDaemonOffline starts the full fx graph without a backend: extraction
// and templates work, sends fail and stay in the list.
func TestDaemonOffline(t *testing.T) {
	home := testHome(t)
	socketPath := filepath.Join(home, "d.sock")

	app := fxtest.New(t, Module(Params{ProfileName: "test", SocketPath: socketPath}), fx.NopLogger)
	app.RequireStart()
	defer app.RequireStop()

	c := dial(t, socketPath)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := c.Status(ctx)
	if err != nil {
		t.Fatalf("Status error = %v", err)
	}
	if st.Profile != "test" {
		t.Errorf("profile = %q, want test", st.Profile)
	}
	if st.State != string(status.Offline) {
		t.Errorf("state = %s, want OFFLINE; daemon must not stay in BOOTING without a backend", st.State)
	}

	fields, err := c.ExtractText(ctx, "姓名：王芳\n手机：13912345678\n年收入：12万")
	if err != nil {
		t.Fatalf("ExtractText error = %v", err)
	}
	if fields.Fields["name"] != "王芳" || fields.Fields["annual_income"] != "12" {
		t.Errorf("fields = %v", fields.Fields)
	}

	sent, err := c.Send(ctx, &api.SendRequest{ConversationID: "c1", Content: "hello"})
	if err != nil {
		t.Fatalf("Send error = %v", err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for {
		list, err := c.List(ctx, "c1")
		if err != nil {
			t.Fatal(err)
		}
		if len(list.Messages) == 1 && list.Messages[0].Status == message.StatusFailed {
			if list.Messages[0].ID != sent.TempID {
				t.Errorf("failed message id = %s, want %s", list.Messages[0].ID, sent.TempID)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("message never failed: %+v", list.Messages)
		}
		time.Sleep(50 * time.Millisecond)
	}

	if _, err := os.Stat(profile.DBPath("test")); err != nil {
		t.Errorf("database not created under the profile: %v", err)
	}
}

// TestDaemonWithBackend runs a send through the configured REST backend.
func TestDaemonWithBackend(t *testing.T) {
	home := testHome(t)
	socketPath := filepath.Join(home, "d.sock")

	r := chi.NewRouter()
	r.Post("/conversations/{conv}/messages", func(w http.ResponseWriter, req *http.Request) {
		var body transport.SendRequest
		_ = json.NewDecoder(req.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(message.Message{ID: "srv-1", Kind: body.Kind, Content: body.Content, SenderID: "agent-1"})
	})
	r.Get("/conversations/{conv}/messages", func(w http.ResponseWriter, req *http.Request) {
		_ = json.NewEncoder(w).Encode(transport.Page{Cursor: req.URL.Query().Get("after")})
	})
	backend := httptest.NewServer(r)
	defer backend.Close()

	cfg := config.Default()
	cfg.SenderID = "agent-1"
	cfg.API.BaseURL = backend.URL
	if err := config.Save(profile.ConfigPath("test"), cfg); err != nil {
		t.Fatal(err)
	}

	app := fxtest.New(t, Module(Params{ProfileName: "test", SocketPath: socketPath}), fx.NopLogger)
	app.RequireStart()
	defer app.RequireStop()

	c := dial(t, socketPath)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := c.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.State != string(status.Ready) {
		t.Errorf("state = %s, want READY", st.State)
	}

	if _, err := c.Send(ctx, &api.SendRequest{ConversationID: "c1", Content: "保单已寄出"}); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for {
		list, err := c.List(ctx, "c1")
		if err != nil {
			t.Fatal(err)
		}
		if len(list.Messages) == 1 && list.Messages[0].ID == "srv-1" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("message never confirmed: %+v", list.Messages)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// TestLockHeldFailsStartup verifies a second daemon on the same profile is
// refused before it touches the database.
func TestLockHeldFailsStartup(t *testing.T) {
	home := testHome(t)

	lk, err := lock.Acquire(profile.LockPath("busy"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	app := fx.New(Module(Params{ProfileName: "busy", SocketPath: filepath.Join(home, "d.sock")}), fx.NopLogger)
	err = app.Err()
	if err == nil {
		t.Fatal("expected startup error while lock is held")
	}
	if !strings.Contains(err.Error(), "profile lock held") {
		t.Errorf("error = %v, want lock held", err)
	}
}

func TestNewServerUsesParamsSocket(t *testing.T) {
	home := testHome(t)
	socketPath := filepath.Join(home, "d.sock")

	srv, err := NewServer(Params{ProfileName: "fxtest", SocketPath: socketPath}, zapNop(), nil, nil, nil)
	if err != nil {
		t.Fatalf("NewServer() failed: %v", err)
	}
	if _, statErr := os.Stat(socketPath); statErr != nil {
		t.Fatalf("socket not created at %s: %v", socketPath, statErr)
	}
	info, _ := os.Stat(socketPath)
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("socket permission = %o, want 0600", perm)
	}
	srv.Stop(context.Background())
	if _, statErr := os.Stat(socketPath); !os.IsNotExist(statErr) {
		t.Error("socket not removed on Stop")
	}
}

func TestNewServerReplacesStaleSocket(t *testing.T) {
	socketPath := filepath.Join(testHome(t), "stale.sock")
	if err := os.WriteFile(socketPath, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	srv, err := NewServer(Params{SocketPath: socketPath}, zapNop(), nil, nil, nil)
	if err != nil {
		t.Fatalf("NewServer() over stale socket: %v", err)
	}
	info, err := os.Stat(socketPath)
	if err != nil || info.Mode()&os.ModeSocket == 0 {
		t.Errorf("stale file not replaced by a socket: %v", err)
	}
	srv.Stop(context.Background())
}

func TestObserveUnaryRecordsCode(t *testing.T) {
	before := testutil.CollectAndCount(metrics.RPCDuration)
	interceptor := observeUnary(zapNop())
	info := &grpc.UnaryServerInfo{FullMethod: "/test.Observe/Reject"}
	_, err := interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return nil, grpcstatus.Error(codes.NotFound, "message not found")
	})
	if grpcstatus.Code(err) != codes.NotFound {
		t.Fatalf("interceptor changed the error: %v", err)
	}
	if got := testutil.CollectAndCount(metrics.RPCDuration); got != before+1 {
		t.Errorf("series = %d, want %d", got, before+1)
	}
}

func zapNop() *zap.Logger { return zap.NewNop() }
