package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "viewer read", role: RoleViewer, action: ActionRead, allow: true},
		{name: "viewer translate", role: RoleViewer, action: ActionTranslate, allow: false},
		{name: "viewer evaluate", role: RoleViewer, action: ActionEvaluate, allow: false},
		{name: "translator evaluate", role: RoleTranslator, action: ActionEvaluate, allow: true},
		{name: "translator merge", role: RoleTranslator, action: ActionMerge, allow: false},
		{name: "reviewer merge", role: RoleReviewer, action: ActionMerge, allow: true},
		{name: "reviewer admin", role: RoleReviewer, action: ActionAdmin, allow: false},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
		{name: "unknown role", role: Role("owner"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("reviewer"); got != RoleReviewer {
		t.Fatalf("Normalize(reviewer) = %q", got)
	}
	if got := Normalize("editor"); got != RoleViewer {
		t.Fatalf("Normalize(editor) = %q, want viewer", got)
	}
}
