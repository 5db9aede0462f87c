package auth

import (
	"reflect"
	"testing"
)

func TestScope_Narrow(t *testing.T) {
	restricted := Scope{AgentIDs: []string{"a1", "a2"}}
	all := Scope{Unrestricted: true}

	cases := []struct {
		name      string
		scope     Scope
		requested []string
		want      []string
	}{
		{"unrestricted no request", all, nil, nil},
		{"unrestricted request", all, []string{"a9"}, []string{"a9"}},
		{"restricted no request", restricted, nil, []string{"a1", "a2"}},
		{"restricted intersect", restricted, []string{"a2", "a3", "a2"}, []string{"a2"}},
		{"restricted disjoint", restricted, []string{"a3"}, []string{}},
		{"empty scope", Scope{AgentIDs: []string{}}, nil, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.scope.Narrow(tc.requested)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestScope_Allows(t *testing.T) {
	if !(Scope{Unrestricted: true}).Allows("anything") {
		t.Fatalf("unrestricted scope must allow")
	}
	s := Scope{AgentIDs: []string{"a1"}}
	if !s.Allows("a1") || s.Allows("a2") {
		t.Fatalf("unexpected Allows result")
	}
}
