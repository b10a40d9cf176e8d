package access

import "testing"

func perm(name string) Permission { return Permission{Name: name} }

func TestEffectivePermissionsUnionMinusRemoval(t *testing.T) {
	g1 := NewPermissionGroup("g1", perm("alpha"), perm("beta"))
	g2 := NewPermissionGroup("g2", perm("beta"), perm("gamma"))

	u := NewUser("jdoe", "John Doe", "jdoe@example.com")
	u.AddPermissionGroup(g1)
	u.AddPermissionGroup(g2)
	u.AddRemovedPermission(perm("beta"))

	got := u.Permissions()
	if len(got) != 2 {
		t.Fatalf("expected 2 permissions, got %v", got)
	}
	if got[0].Name != "alpha" || got[1].Name != "gamma" {
		t.Fatalf("unexpected permission set: %v", got)
	}
}

func TestEffectivePermissionsSortedCaseInsensitive(t *testing.T) {
	g := NewPermissionGroup("g", perm("Zulu"), perm("alpha"), perm("Mike"))
	u := NewUser("jdoe", "John Doe", "")
	u.AddPermissionGroup(g)

	got := u.Permissions()
	if got[0].Name != "alpha" || got[1].Name != "Mike" || got[2].Name != "Zulu" {
		t.Fatalf("expected case-insensitive name order, got %v", got)
	}
}

func TestAddPermissionGroupIdempotent(t *testing.T) {
	g := NewPermissionGroup("ops", perm("deploy"))
	u := NewUser("jdoe", "John Doe", "")
	u.AddPermissionGroup(g)
	u.AddPermissionGroup(g)
	u.AddPermissionGroup(NewPermissionGroup("ops", perm("deploy")))

	if n := len(u.PermissionGroups()); n != 1 {
		t.Fatalf("expected 1 group after duplicate adds, got %d", n)
	}
}

func TestInertRemoval(t *testing.T) {
	g := NewPermissionGroup("ops", perm("deploy"))
	u := NewUser("jdoe", "John Doe", "")
	u.AddPermissionGroup(g)
	u.AddRemovedPermission(perm("never-granted"))

	got := u.Permissions()
	if len(got) != 1 || got[0].Name != "deploy" {
		t.Fatalf("inert removal changed the result: %v", got)
	}
}

func TestRemovingOnlyGroupPermissionsYieldsEmptySet(t *testing.T) {
	g := NewPermissionGroup("ops", perm("deploy"), perm("restart"))
	u := NewUser("jdoe", "John Doe", "")
	u.AddPermissionGroup(g)
	u.AddRemovedPermission(perm("deploy"))
	u.AddRemovedPermission(perm("restart"))

	if got := u.Permissions(); len(got) != 0 {
		t.Fatalf("expected empty permission set, got %v", got)
	}
}

func TestUserEqualityByLoginOnly(t *testing.T) {
	a := NewUser("jdoe", "John Doe", "jdoe@example.com")
	b := NewUser("jdoe", "Different Name", "other@example.com")
	c := NewUser("asmith", "John Doe", "jdoe@example.com")

	if !a.Equal(b) {
		t.Fatalf("users with the same login must be equal")
	}
	if a.Equal(c) {
		t.Fatalf("users with different logins must not be equal")
	}
}

func TestHasPermissionAnyAndAll(t *testing.T) {
	g := NewPermissionGroup("ops", perm("deploy"), perm("restart"))
	u := NewUser("jdoe", "John Doe", "")
	u.AddPermissionGroup(g)

	if !u.HasPermission("deploy") {
		t.Fatalf("expected deploy to be granted")
	}
	if !u.HasPermission("missing", "restart") {
		t.Fatalf("any-of semantics: one granted name should suffice")
	}
	if u.HasPermission("missing") {
		t.Fatalf("unexpected grant for unknown permission")
	}
	if !u.HasAllPermissions("deploy", "restart") {
		t.Fatalf("expected all named permissions to be granted")
	}
	if u.HasAllPermissions("deploy", "missing") {
		t.Fatalf("all-of semantics: one missing name must fail")
	}
}

func TestPermissionGroupOrderAndDedup(t *testing.T) {
	g := NewPermissionGroup("g")
	g.AddPermission(perm("charlie"))
	g.AddPermission(perm("Alpha"))
	g.AddPermission(perm("bravo"))
	g.AddPermission(perm("ALPHA"))

	got := g.Permissions()
	if len(got) != 3 {
		t.Fatalf("expected dedup by case-insensitive name, got %v", got)
	}
	if got[0].Name != "Alpha" || got[1].Name != "bravo" || got[2].Name != "charlie" {
		t.Fatalf("expected name-ascending iteration, got %v", got)
	}
}
