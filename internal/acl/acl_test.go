package acl

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		level  Level
		action Action
		allow  bool
	}{
		{name: "view read", level: LevelView, action: ActionRead, allow: true},
		{name: "view comment", level: LevelView, action: ActionComment, allow: false},
		{name: "public read", level: LevelPublicView, action: ActionRead, allow: true},
		{name: "public write", level: LevelPublicView, action: ActionWrite, allow: false},
		{name: "comment comment", level: LevelComment, action: ActionComment, allow: true},
		{name: "comment write", level: LevelComment, action: ActionWrite, allow: false},
		{name: "edit share", level: LevelEdit, action: ActionShare, allow: true},
		{name: "edit delete", level: LevelEdit, action: ActionDelete, allow: false},
		{name: "owner delete", level: LevelOwner, action: ActionDelete, allow: true},
		{name: "none read", level: LevelNone, action: ActionRead, allow: false},
		{name: "unknown read", level: Level("Superuser"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.level, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.level, tc.action, got, tc.allow)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	ordered := []Level{LevelOwner, LevelEdit, LevelComment, LevelView}
	for i := 0; i < len(ordered)-1; i++ {
		if Compare(ordered[i], ordered[i+1]) <= 0 {
			t.Fatalf("expected %s > %s", ordered[i], ordered[i+1])
		}
	}
	if Compare(LevelView, LevelPublicView) != 0 {
		t.Fatalf("view and public view should rank equally")
	}
	if Compare(Level("Mystery"), LevelView) >= 0 {
		t.Fatalf("unknown level should rank below view")
	}
}

func TestEffectiveNamedGrantWins(t *testing.T) {
	cases := []struct {
		named     Level
		hasPublic bool
		want      Level
	}{
		{named: LevelNone, hasPublic: false, want: LevelNone},
		{named: LevelNone, hasPublic: true, want: LevelPublicView},
		{named: LevelEdit, hasPublic: true, want: LevelEdit},
		{named: LevelView, hasPublic: true, want: LevelView},
		{named: LevelOwner, hasPublic: false, want: LevelOwner},
		{named: Level("Mystery"), hasPublic: true, want: LevelPublicView},
	}
	for _, tc := range cases {
		if got := Effective(tc.named, tc.hasPublic); got != tc.want {
			t.Fatalf("Effective(%q, %v) = %q, want %q", tc.named, tc.hasPublic, got, tc.want)
		}
	}
}

func TestParseKeepsUnknown(t *testing.T) {
	if got := Parse("edit"); got != LevelEdit {
		t.Fatalf("Parse(edit) = %q", got)
	}
	got := Parse("Curator")
	if got != Level("Curator") || got.Known() {
		t.Fatalf("unknown level should be preserved and unknown, got %q", got)
	}
	if got.AtLeast(LevelView) {
		t.Fatalf("unknown level must not satisfy any requirement")
	}
}

func TestGrantable(t *testing.T) {
	cases := []struct {
		granter, target Level
		allow           bool
	}{
		{LevelOwner, LevelEdit, true},
		{LevelEdit, LevelEdit, true},
		{LevelEdit, LevelView, true},
		{LevelEdit, LevelOwner, false},
		{LevelOwner, LevelOwner, false},
		{LevelEdit, LevelPublicView, false},
		{LevelComment, LevelView, false},
		{LevelView, LevelView, false},
	}
	for _, tc := range cases {
		if got := Grantable(tc.granter, tc.target); got != tc.allow {
			t.Fatalf("Grantable(%q, %q) = %v, want %v", tc.granter, tc.target, got, tc.allow)
		}
	}
}
