package principal

import "testing"

func TestUserContains(t *testing.T) {
	u := User{ID: 7}
	if !u.Contains(7) {
		t.Fatal("user should contain itself")
	}
	if u.Contains(8) {
		t.Fatal("user should not contain another id")
	}
}

func TestGroupContains(t *testing.T) {
	g := NewGroup("av-team", 1, 2, 3)
	if !g.Contains(2) {
		t.Fatal("group should contain member")
	}
	if g.Contains(9) {
		t.Fatal("group should not contain non-member")
	}
}

func TestAnyContains(t *testing.T) {
	list := []Principal{
		User{ID: 4},
		NewGroup("organizers", 10, 11),
		NewRole("session-chair", 20),
	}

	for _, id := range []int64{4, 11, 20} {
		if !AnyContains(list, id) {
			t.Fatalf("expected list to contain user %d", id)
		}
	}
	if AnyContains(list, 99) {
		t.Fatal("expected list not to contain user 99")
	}
	if AnyContains(nil, 4) {
		t.Fatal("empty list contains nobody")
	}
}

func TestKindAndRef(t *testing.T) {
	tests := []struct {
		p    Principal
		kind string
		ref  string
	}{
		{User{ID: 12}, "user", "12"},
		{NewGroup("staff"), "group", "staff"},
		{NewRole("chair"), "role", "chair"},
	}
	for _, tc := range tests {
		if tc.p.Kind() != tc.kind || tc.p.Ref() != tc.ref {
			t.Fatalf("got (%s,%s), want (%s,%s)", tc.p.Kind(), tc.p.Ref(), tc.kind, tc.ref)
		}
	}
}
