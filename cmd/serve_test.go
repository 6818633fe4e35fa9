package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/wegman-software/revgeo-go/internal/search"
)

func TestPublishThenServe(t *testing.T) {
	buildErr := errors.New("tier-2 file unreadable")

	tests := []struct {
		name      string
		buildErr  error
		wantServe bool
	}{
		{name: "build succeeds", wantServe: true},
		{name: "build fails", buildErr: buildErr, wantServe: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := search.NewRegistry()
			served := false
			readyAtServe := false

			build := func(ctx context.Context) error {
				if tt.buildErr != nil {
					return tt.buildErr
				}
				return registry.Publish(&search.Index{})
			}
			serve := func(ctx context.Context) error {
				served = true
				readyAtServe = registry.Ready()
				return nil
			}

			err := publishThenServe(context.Background(), build, serve)
			if served != tt.wantServe {
				t.Fatalf("served = %v, want %v", served, tt.wantServe)
			}
			if tt.buildErr != nil {
				if !errors.Is(err, tt.buildErr) {
					t.Errorf("expected build error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !readyAtServe {
				t.Error("index should be published before serving starts")
			}
		})
	}
}
