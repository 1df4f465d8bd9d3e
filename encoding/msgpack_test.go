package encoding

import (
	"sync"
	"testing"

	"github.com/maxpert/mongoriver/oplog"
)

func TestUnmarshal_StringNotBytes(t *testing.T) {
	data, err := Marshal(map[string]interface{}{"ns": "app.users"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded interface{}
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	m, ok := decoded.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map, got %T", decoded)
	}
	if _, ok := m["ns"].(string); !ok {
		t.Errorf("expected string value, got %T", m["ns"])
	}
}

func TestMarshal_PositionTags(t *testing.T) {
	data, err := Marshal(oplog.Position{T: 10, I: 3})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var raw map[string]interface{}
	if err := Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if _, ok := raw["t"]; !ok {
		t.Errorf("expected key t in %v", raw)
	}
	if _, ok := raw["i"]; !ok {
		t.Errorf("expected key i in %v", raw)
	}
}

func TestMarshal_Concurrent(t *testing.T) {
	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				result, err := Marshal(map[string]interface{}{"goroutine": id, "iteration": j})
				if err != nil {
					t.Errorf("Marshal failed: %v", err)
					return
				}
				if len(result) == 0 {
					t.Error("Expected non-empty result")
					return
				}
			}
		}(i)
	}

	wg.Wait()
}
