package model

import (
	"sync"
	"testing"

	"github.com/hugo-lorenzo-mato/agora-ai/internal/config"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/core"
)

func TestRegistry_CachesByKey(t *testing.T) {
	r := NewRegistry(nil)

	a1, err := r.Get(config.ParticipantConfig{Provider: "mock", Model: "m1"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	a2, err := r.Get(config.ParticipantConfig{Provider: "mock", Model: "m1"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a1 != a2 {
		t.Error("identical keys must share one adapter instance")
	}

	b, err := r.Get(config.ParticipantConfig{Provider: "mock", Model: "m2"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a1 == b {
		t.Error("different models must not share an adapter")
	}
}

func TestRegistry_UnknownProvider(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Get(config.ParticipantConfig{Provider: "carrier-pigeon"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if core.IsRetryable(err) {
		t.Error("construction failures must be non-retryable")
	}
}

func TestRegistry_ConcurrentGet(t *testing.T) {
	r := NewRegistry(nil)
	cfg := config.ParticipantConfig{Provider: "mock", Model: "shared"}

	var wg sync.WaitGroup
	adapters := make([]core.ModelAdapter, 16)
	for i := range adapters {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := r.Get(cfg)
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			adapters[i] = a
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(adapters); i++ {
		if adapters[i] != adapters[0] {
			t.Fatal("concurrent construction produced distinct instances")
		}
	}
}

func TestRegistry_Clear(t *testing.T) {
	r := NewRegistry(nil)
	cfg := config.ParticipantConfig{Provider: "mock", Model: "m"}
	a1, _ := r.Get(cfg)
	r.Clear()
	a2, _ := r.Get(cfg)
	if a1 == a2 {
		t.Error("Clear must drop cached adapters")
	}
}
