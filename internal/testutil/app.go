package testutil

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vrsandeep/transdoc-go/internal/api"
	"github.com/vrsandeep/transdoc-go/internal/config"
	"github.com/vrsandeep/transdoc-go/internal/core"
	"github.com/vrsandeep/transdoc-go/internal/llm"
)

// FakeClient answers every call with a fixed reply.
type FakeClient struct {
	Reply string
	Calls atomic.Int64
}

func (f *FakeClient) ChatWithText(ctx context.Context, message string) (string, error) {
	f.Calls.Add(1)
	return f.Reply, nil
}

func (f *FakeClient) ChatWithImage(ctx context.Context, message string, img llm.Image) (string, error) {
	f.Calls.Add(1)
	return f.Reply, nil
}

// TestConfig returns a configuration rooted in temporary directories with
// short timings.
func TestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{Port: 0}
	cfg.Database.Path = ":memory:"
	cfg.Storage.Root = t.TempDir()
	cfg.Storage.Uploads = t.TempDir()
	cfg.Storage.Work = t.TempDir()
	cfg.Pool = config.PoolConfig{Cap: 2, MaxRetries: 2, RetryDelay: time.Millisecond}
	cfg.Pipeline = config.PipelineConfig{
		Workers:         1,
		FanoutFactor:    2,
		FanoutCeiling:   4,
		TargetLanguage:  "Simplified Chinese",
		SourceCode:      "en",
		TargetCode:      "zh",
		PullTimeout:     10 * time.Millisecond,
		ShutdownTimeout: time.Second,
	}
	cfg.Converter.Binary = "soffice"
	cfg.Render.DPI = 72
	return cfg
}

// SetupTestApp builds a core.App over an in-memory database. Remote clients
// are FakeClients; the scheduler is not started.
func SetupTestApp(t *testing.T, opts ...core.Option) *core.App {
	t.Helper()
	factory := func(cred llm.Credential) (llm.RemoteClient, error) {
		return &FakeClient{Reply: "ok"}, nil
	}
	opts = append([]core.Option{core.WithClientFactory(factory)}, opts...)

	app, err := core.Build(TestConfig(t), SetupTestDB(t), opts...)
	if err != nil {
		t.Fatalf("Failed to build test app: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		app.Shutdown(ctx)
	})
	return app
}

// SetupTestServer returns an API server over a fresh test app.
func SetupTestServer(t *testing.T, opts ...core.Option) (*api.Server, *core.App) {
	t.Helper()
	app := SetupTestApp(t, opts...)
	return api.NewServer(app), app
}
