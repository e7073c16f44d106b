package rbac

import "testing"

func TestSatisfies(t *testing.T) {
	cases := []struct {
		name     string
		role     Role
		required []Role
		allow    bool
	}{
		{name: "member any", role: RoleMember, allow: true},
		{name: "member elevated", role: RoleMember, required: Elevated, allow: false},
		{name: "admin elevated", role: RoleAdmin, required: Elevated, allow: true},
		{name: "admin owner only", role: RoleAdmin, required: OwnerOnly, allow: false},
		{name: "owner owner only", role: RoleOwner, required: OwnerOnly, allow: true},
		{name: "unknown role", role: Role("viewer"), allow: false},
		{name: "empty role", role: Role(""), required: Elevated, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Satisfies(tc.role, tc.required...); got != tc.allow {
				t.Fatalf("Satisfies(%q, %v) = %v, want %v", tc.role, tc.required, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if role, ok := Normalize("admin"); !ok || role != RoleAdmin {
		t.Fatalf("Normalize(admin) = %q, %v", role, ok)
	}
	if _, ok := Normalize("editor"); ok {
		t.Fatal("expected editor to be rejected")
	}
}

func TestAssignable(t *testing.T) {
	if Assignable(RoleOwner) {
		t.Fatal("owner must not be assignable")
	}
	if !Assignable(RoleMember) || !Assignable(RoleAdmin) {
		t.Fatal("member and admin must be assignable")
	}
}
