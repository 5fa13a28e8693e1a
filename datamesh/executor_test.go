package datamesh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// mockRequester answers sub-requests from a canned table. Entries with a nil
// object and nil error simulate dropped results (non-2xx, non-object body).
type mockRequester struct {
	mu      sync.Mutex
	objects map[string]map[string]any
	errs    map[string]error
	delay   map[string]time.Duration
	calls   []string
	warmed  []string
}

func (m *mockRequester) key(service, model, pk string) string {
	return service + "/" + model + "/" + pk
}

func (m *mockRequester) Subrequest(_ context.Context, service, model, pk string) (map[string]any, error) {
	k := m.key(service, model, pk)
	if d := m.delay[k]; d > 0 {
		time.Sleep(d)
	}
	m.mu.Lock()
	m.calls = append(m.calls, k)
	m.mu.Unlock()
	if err := m.errs[k]; err != nil {
		return nil, err
	}
	return m.objects[k], nil
}

func (m *mockRequester) WarmSpec(_ context.Context, service string) error {
	m.mu.Lock()
	m.warmed = append(m.warmed, service)
	m.mu.Unlock()
	return nil
}

func orderObj(id int) map[string]any {
	return map[string]any{"id": json.Number(fmt.Sprint(id))}
}

func planFor(t *testing.T, body string) (*Plan, map[string]any) {
	t.Helper()
	p := &Planner{Registry: productsOrdersRegistry()}
	v := decode(t, body)
	plan, err := p.Plan(context.Background(), v, productsModel())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	obj, _ := v.Object()
	return plan, obj
}

func embedded(t *testing.T, record map[string]any, key string) []any {
	t.Helper()
	list, ok := record[key].([]any)
	if !ok {
		t.Fatalf("relationship key %q missing or not a list: %v", key, record[key])
	}
	return list
}

func executors() map[string]Executor {
	return map[string]Executor{
		"sequential": &Sequential{},
		"concurrent": &Concurrent{},
		"bounded":    &Concurrent{MaxInFlight: 2},
	}
}

func TestExecute_EmbedsResults(t *testing.T) {
	for name, exec := range executors() {
		t.Run(name, func(t *testing.T) {
			plan, record := planFor(t, `{"id": 1}`)
			req := &mockRequester{objects: map[string]map[string]any{
				"orders/orders/10": orderObj(10),
				"orders/orders/11": orderObj(11),
			}}

			if err := exec.Execute(context.Background(), plan, req); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			list := embedded(t, record, "orders")
			if len(list) != 2 {
				t.Fatalf("expected 2 embedded records, got %d", len(list))
			}
		})
	}
}

func TestExecute_PreservesJoinRecordOrder(t *testing.T) {
	// The first sub-request is slower than the second; the embed order must
	// still follow the join records.
	plan, record := planFor(t, `{"id": 1}`)
	req := &mockRequester{
		objects: map[string]map[string]any{
			"orders/orders/10": orderObj(10),
			"orders/orders/11": orderObj(11),
		},
		delay: map[string]time.Duration{
			"orders/orders/10": 30 * time.Millisecond,
		},
	}

	exec := &Concurrent{}
	if err := exec.Execute(context.Background(), plan, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	list := embedded(t, record, "orders")
	if len(list) != 2 {
		t.Fatalf("expected 2 embedded records, got %d", len(list))
	}
	first, _ := list[0].(map[string]any)
	second, _ := list[1].(map[string]any)
	if first["id"] != json.Number("10") || second["id"] != json.Number("11") {
		t.Errorf("order not preserved: %v", list)
	}
}

func TestExecute_FailedSubrequestDropsSlot(t *testing.T) {
	for name, exec := range executors() {
		t.Run(name, func(t *testing.T) {
			plan, record := planFor(t, `{"id": 1}`)
			req := &mockRequester{
				objects: map[string]map[string]any{
					"orders/orders/11": orderObj(11),
				},
				errs: map[string]error{
					"orders/orders/10": errors.New("boom"),
				},
			}

			if err := exec.Execute(context.Background(), plan, req); err != nil {
				t.Fatalf("executors are fail-open, got %v", err)
			}

			list := embedded(t, record, "orders")
			if len(list) != 1 {
				t.Fatalf("expected 1 embedded record, got %d", len(list))
			}
			obj, _ := list[0].(map[string]any)
			if obj["id"] != json.Number("11") {
				t.Errorf("wrong survivor: %v", obj)
			}
		})
	}
}

func TestExecute_DroppedResultLeavesSlotEmpty(t *testing.T) {
	plan, record := planFor(t, `{"id": 1}`)
	// Neither sub-request yields an embeddable object.
	req := &mockRequester{}

	exec := &Sequential{}
	if err := exec.Execute(context.Background(), plan, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if list := embedded(t, record, "orders"); len(list) != 0 {
		t.Errorf("expected empty list, got %v", list)
	}
}

func TestSequential_RunsInPlanOrder(t *testing.T) {
	plan, _ := planFor(t, `{"results": [{"id": 1}, {"id": 2}]}`)
	req := &mockRequester{objects: map[string]map[string]any{
		"orders/orders/10": orderObj(10),
		"orders/orders/11": orderObj(11),
		"orders/orders/20": orderObj(20),
	}}

	exec := &Sequential{}
	if err := exec.Execute(context.Background(), plan, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"orders/orders/10", "orders/orders/11", "orders/orders/20"}
	if len(req.calls) != len(want) {
		t.Fatalf("expected %d calls, got %v", len(want), req.calls)
	}
	for i, k := range want {
		if req.calls[i] != k {
			t.Errorf("call %d: got %s, want %s", i, req.calls[i], k)
		}
	}
}

func TestConcurrent_WarmsDistinctServices(t *testing.T) {
	plan, _ := planFor(t, `{"results": [{"id": 1}, {"id": 2}]}`)
	req := &mockRequester{objects: map[string]map[string]any{
		"orders/orders/10": orderObj(10),
		"orders/orders/11": orderObj(11),
		"orders/orders/20": orderObj(20),
	}}

	exec := &Concurrent{}
	if err := exec.Execute(context.Background(), plan, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(req.warmed) != 1 || req.warmed[0] != "orders" {
		t.Errorf("expected one warm-up for orders, got %v", req.warmed)
	}
}

func TestSequential_CancelledContext(t *testing.T) {
	plan, record := planFor(t, `{"id": 1}`)
	req := &mockRequester{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := &Sequential{}
	if err := exec.Execute(ctx, plan, req); err == nil {
		t.Fatal("expected context error")
	}
	// Commit still ran: the relationship key is set.
	if _, ok := record["orders"].([]any); !ok {
		t.Error("commit should run even on cancellation")
	}
}
