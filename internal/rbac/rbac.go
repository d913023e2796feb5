// Package rbac decides per-document access from the author and share list.
package rbac

import "quill/api/internal/store"

type Permission string

const (
	PermissionView Permission = "view"
	PermissionEdit Permission = "edit"
)

func ValidPermission(p string) bool {
	switch Permission(p) {
	case PermissionView, PermissionEdit:
		return true
	default:
		return false
	}
}

// CanView reports whether the user may read the document: author, any share
// entry, or public visibility.
func CanView(doc store.Document, shares []store.Share, userID string) bool {
	if doc.AuthorID == userID {
		return true
	}
	if doc.Visibility == "public" {
		return true
	}
	for _, share := range shares {
		if share.UserID == userID {
			return true
		}
	}
	return false
}

// CanEdit reports whether the user may mutate the document: author or a
// share entry with edit permission.
func CanEdit(doc store.Document, shares []store.Share, userID string) bool {
	if doc.AuthorID == userID {
		return true
	}
	for _, share := range shares {
		if share.UserID == userID && Permission(share.Permission) == PermissionEdit {
			return true
		}
	}
	return false
}
