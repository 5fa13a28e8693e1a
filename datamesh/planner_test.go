package datamesh

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ferro-labs/mesh-gateway/payload"
	"github.com/ferro-labs/mesh-gateway/registry"
)

// mockRegistry serves a single products->orders relationship with canned
// join records keyed by origin pk.
type mockRegistry struct {
	links []registry.Link
	joins map[string][]registry.JoinRecord
	err   error
}

func (m *mockRegistry) LogicModule(_ context.Context, name string) (*registry.LogicModule, error) {
	return &registry.LogicModule{Name: name}, nil
}

func (m *mockRegistry) Model(_ context.Context, service, endpoint string) (*registry.Model, error) {
	return &registry.Model{Service: service, Endpoint: endpoint, LookupField: "id"}, nil
}

func (m *mockRegistry) Relationships(_ context.Context, _, _ string) ([]registry.Link, error) {
	return m.links, m.err
}

func (m *mockRegistry) JoinRecords(_ context.Context, originPK string, _ registry.Relationship, _ bool) ([]registry.JoinRecord, error) {
	return m.joins[originPK], nil
}

func i64(v int64) *int64 { return &v }

func productsOrdersRegistry() *mockRegistry {
	return &mockRegistry{
		links: []registry.Link{{
			Relationship: registry.Relationship{
				Key:     "orders",
				Origin:  registry.ModelRef{Service: "products", Endpoint: "/products/"},
				Related: registry.ModelRef{Service: "orders", Endpoint: "/orders/"},
			},
			Forward: true,
		}},
		joins: map[string][]registry.JoinRecord{
			"1": {
				{Relationship: "orders", RecordID: i64(1), RelatedRecordID: i64(10)},
				{Relationship: "orders", RecordID: i64(1), RelatedRecordID: i64(11)},
			},
			"2": {
				{Relationship: "orders", RecordID: i64(2), RelatedRecordID: i64(20)},
			},
		},
	}
}

func productsModel() *registry.Model {
	return &registry.Model{Service: "products", Endpoint: "/products/", LookupField: "id"}
}

func decode(t *testing.T, body string) payload.Value {
	t.Helper()
	v := payload.Decode([]byte(body))
	if !v.Structured() {
		t.Fatalf("test payload must be structured: %s", body)
	}
	return v
}

func TestPlan_DetailView(t *testing.T) {
	p := &Planner{Registry: productsOrdersRegistry()}
	v := decode(t, `{"id": 1, "name": "thing"}`)

	plan, err := p.Plan(context.Background(), v, productsModel())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(plan.Items))
	}
	if plan.Items[0].PK != "10" || plan.Items[1].PK != "11" {
		t.Errorf("wrong pks: %+v", plan.Items)
	}
	if plan.Items[0].Service != "orders" || plan.Items[0].Model != "orders" {
		t.Errorf("wrong target: %+v", plan.Items[0])
	}
	if len(plan.Services) != 1 || plan.Services[0] != "orders" {
		t.Errorf("wrong services: %v", plan.Services)
	}

	// The relationship key is pre-initialised even before execution.
	obj, _ := v.Object()
	if _, ok := obj["orders"]; !ok {
		t.Error("relationship key not pre-initialised")
	}
}

func TestPlan_ResultsUnwrap(t *testing.T) {
	p := &Planner{Registry: productsOrdersRegistry()}
	v := decode(t, `{"count": 2, "results": [{"id": 1}, {"id": 2}]}`)

	plan, err := p.Plan(context.Background(), v, productsModel())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(plan.Items))
	}
}

func TestPlan_BareArray(t *testing.T) {
	p := &Planner{Registry: productsOrdersRegistry()}
	v := decode(t, `[{"id": 1}, {"id": 2}]`)

	plan, err := p.Plan(context.Background(), v, productsModel())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(plan.Items))
	}
}

func TestPlan_DetailMissingLookupFieldIsConfigError(t *testing.T) {
	p := &Planner{Registry: productsOrdersRegistry()}
	v := decode(t, `{"name": "no id here"}`)

	_, err := p.Plan(context.Background(), v, productsModel())
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestPlan_ListSkipsRecordsMissingLookupField(t *testing.T) {
	p := &Planner{Registry: productsOrdersRegistry()}
	v := decode(t, `{"results": [{"id": 1}, {"name": "broken"}, {"id": 2}]}`)

	plan, err := p.Plan(context.Background(), v, productsModel())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Records 1 and 2 still plan; the broken one contributes nothing.
	if len(plan.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(plan.Items))
	}
}

func TestPlan_NumericLookupValue(t *testing.T) {
	p := &Planner{Registry: productsOrdersRegistry()}
	// json.Number origin pk must stringify without a float detour.
	v := decode(t, `{"id": 2}`)

	plan, err := p.Plan(context.Background(), v, productsModel())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Items) != 1 || plan.Items[0].PK != "20" {
		t.Fatalf("wrong plan: %+v", plan.Items)
	}
}

func TestPlan_NoRelationships(t *testing.T) {
	p := &Planner{Registry: &mockRegistry{}}
	v := decode(t, `{"id": 1}`)

	plan, err := p.Plan(context.Background(), v, productsModel())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !plan.Empty() {
		t.Errorf("expected empty plan, got %d items", len(plan.Items))
	}
}

func TestPlan_RegistryErrorPropagates(t *testing.T) {
	p := &Planner{Registry: &mockRegistry{err: errors.New("db down")}}
	v := decode(t, `{"id": 1}`)

	if _, err := p.Plan(context.Background(), v, productsModel()); err == nil {
		t.Fatal("expected error")
	}
}

func TestCommit_EmptyRelationshipKeyAlwaysPresent(t *testing.T) {
	reg := productsOrdersRegistry()
	reg.joins = nil // relationship declared, no join records
	p := &Planner{Registry: reg}
	v := decode(t, `{"id": 1}`)

	plan, err := p.Plan(context.Background(), v, productsModel())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	plan.Commit()

	obj, _ := v.Object()
	data, _ := json.Marshal(obj["orders"])
	if string(data) != `[]` {
		t.Errorf("expected empty list under relationship key, got %s", data)
	}
}
