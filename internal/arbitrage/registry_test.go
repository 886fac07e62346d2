package arbitrage

import (
	"reflect"
	"testing"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	if got, want := r.List(), []string{"cross_product", "sorted_merge"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("List = %v, want %v", got, want)
	}
	m, err := r.Get("")
	if err != nil {
		t.Fatal(err)
	}
	if m.Name() != DefaultMatcher {
		t.Fatalf("default = %q", m.Name())
	}
	m, err = r.Get("sorted_merge")
	if err != nil || m.Name() != "sorted_merge" {
		t.Fatalf("Get(sorted_merge) = %v, %v", m, err)
	}
	if _, err := r.Get("nope"); err == nil {
		t.Fatal("expected error for unknown matcher")
	}
}
