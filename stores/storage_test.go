package stores

import (
	"codecollab-server/config"
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestGetActivityStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	tests := []struct {
		name    string
		cfg     config.Config
		wantErr bool
	}{
		{name: "default", cfg: config.Config{}},
		{name: "memory", cfg: config.Config{ActivityStore: "memory"}},
		{name: "redis", cfg: config.Config{ActivityStore: "redis", RedisAddr: mr.Addr(), RedisKeyPrefix: "t:"}},
		{name: "unknown", cfg: config.Config{ActivityStore: "filesystem"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := GetActivityStore(context.Background(), tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("GetActivityStore() should fail")
				}
				return
			}
			if err != nil {
				t.Fatalf("GetActivityStore() failed: %v", err)
			}
			if err := store.TouchRoom(context.Background(), "room"); err != nil {
				t.Errorf("TouchRoom() failed: %v", err)
			}
		})
	}
}
