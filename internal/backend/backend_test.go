package backend

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"mealtracker/internal/amqp"
	"mealtracker/internal/config"
	"mealtracker/internal/log"
)

func testFactory(t *testing.T) *DefaultFactory {
	t.Helper()
	f := NewFactory(log.New(log.Config{Output: &bytes.Buffer{}})).(*DefaultFactory)
	f.dialAMQP = func(string, string, string) (*amqp.Client, error) {
		return nil, errors.New("connection refused")
	}
	return f
}

func TestFromAppConfig(t *testing.T) {
	cfg := &config.Config{DataBackend: "sqlite", SQLiteDBPath: "x.db", AMQPURL: "amqp://localhost", AMQPExchange: "e", AMQPQueue: "q"}
	got, err := FromAppConfig(cfg)
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if got.Type != SQLiteBackend || got.SQLiteDBPath != "x.db" || got.AMQPQueue != "q" {
		t.Fatalf("unexpected config: %+v", got)
	}

	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil || !strings.Contains(err.Error(), "sqlite, memory") {
		t.Fatalf("expected error listing supported backends, got %v", err)
	}
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestCreateBackend(t *testing.T) {
	ctx := context.Background()
	f := testFactory(t)

	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "meals.db")}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"unknown", Config{Type: "sheets"}, true},
		{"broker unreachable", Config{Type: MemoryBackend, AMQPURL: "amqp://localhost:1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.CreateBackend(ctx, tt.config)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateBackend: %v", err)
			}
			if res.Publisher != nil {
				t.Fatal("publisher should be nil without a reachable broker")
			}
			if err := res.Store.Ping(ctx); err != nil {
				t.Fatalf("ping: %v", err)
			}
			if err := res.Cleanup(); err != nil {
				t.Fatalf("cleanup: %v", err)
			}
		})
	}
}

func TestGetBackendTypeStrings(t *testing.T) {
	got := GetBackendTypeStrings()
	if len(got) != 2 || got[0] != "sqlite" || got[1] != "memory" {
		t.Fatalf("unexpected types: %v", got)
	}
}
