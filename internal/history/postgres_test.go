package history_test

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"

	"github.com/ashita-ai/hibana/internal/history"
	"github.com/ashita-ai/hibana/internal/testutil"
)

// postgresDSN is set by TestMain when the container is available; empty
// means the postgres tests skip.
var postgresDSN string

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	tc, err := testutil.StartPostgres(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres container unavailable, skipping postgres tests: %v\n", err)
		os.Exit(m.Run())
	}
	postgresDSN = tc.DSN

	code := m.Run()
	tc.Terminate()
	os.Exit(code)
}

func openPostgres(t *testing.T) *history.PostgresStore {
	t.Helper()
	if postgresDSN == "" {
		t.Skip("postgres container not available")
	}
	s, err := history.OpenPostgres(context.Background(), postgresDSN)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgresStore(t *testing.T) {
	storeTest(t, openPostgres(t))
}
