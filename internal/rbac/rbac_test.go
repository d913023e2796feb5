package rbac

import (
	"testing"

	"quill/api/internal/store"
)

func TestAuthorHasFullAccess(t *testing.T) {
	doc := store.Document{AuthorID: "usr_a", Visibility: "private"}
	if !CanView(doc, nil, "usr_a") {
		t.Fatal("author should view")
	}
	if !CanEdit(doc, nil, "usr_a") {
		t.Fatal("author should edit")
	}
}

func TestViewShareCannotEdit(t *testing.T) {
	doc := store.Document{AuthorID: "usr_a", Visibility: "private"}
	shares := []store.Share{{UserID: "usr_b", Permission: "view"}}
	if !CanView(doc, shares, "usr_b") {
		t.Fatal("view share should view")
	}
	if CanEdit(doc, shares, "usr_b") {
		t.Fatal("view share should not edit")
	}
}

func TestEditShareCanEdit(t *testing.T) {
	doc := store.Document{AuthorID: "usr_a", Visibility: "private"}
	shares := []store.Share{{UserID: "usr_b", Permission: "edit"}}
	if !CanEdit(doc, shares, "usr_b") {
		t.Fatal("edit share should edit")
	}
}

func TestPublicIsViewableNotEditable(t *testing.T) {
	doc := store.Document{AuthorID: "usr_a", Visibility: "public"}
	if !CanView(doc, nil, "usr_c") {
		t.Fatal("public document should be viewable by anyone")
	}
	if CanEdit(doc, nil, "usr_c") {
		t.Fatal("public document should not be editable by strangers")
	}
}

func TestStrangerHasNoAccess(t *testing.T) {
	doc := store.Document{AuthorID: "usr_a", Visibility: "private"}
	if CanView(doc, nil, "usr_c") {
		t.Fatal("stranger should not view private document")
	}
}

func TestValidPermission(t *testing.T) {
	for _, valid := range []string{"view", "edit"} {
		if !ValidPermission(valid) {
			t.Fatalf("expected %q to be valid", valid)
		}
	}
	for _, invalid := range []string{"", "owner", "VIEW", "admin"} {
		if ValidPermission(invalid) {
			t.Fatalf("expected %q to be invalid", invalid)
		}
	}
}
