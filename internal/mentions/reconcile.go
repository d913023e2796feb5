package mentions

// Grant is a pending view-permission share for a newly mentioned user.
type Grant struct {
	UserID     string
	Permission string
}

// Notification is a pending mention notification for a recipient.
type Notification struct {
	RecipientID string
	DocumentID  string
	MentionedBy string
}

// Outcome is everything a reconciliation wants to happen. The caller applies
// grants to the document's share list and fans out notifications; nothing is
// mutated here.
type Outcome struct {
	Grants        []Grant
	Notifications []Notification
}

// Reconcile computes the side effects of a content change. Only users
// mentioned in newContent but not in oldContent are acted on: each gets a
// view grant unless already shared, and one notification regardless.
// Self-mentions (actorID) are skipped entirely.
//
// alreadyShared holds the user ids currently present in the document's share
// list. Re-running with an id already shared produces no grant, so an
// existing edit permission is never downgraded.
func Reconcile(documentID, newContent, oldContent, actorID string, alreadyShared map[string]bool) Outcome {
	oldSet := make(map[string]bool)
	for _, id := range Extract(oldContent) {
		oldSet[id] = true
	}

	var out Outcome
	for _, id := range Extract(newContent) {
		if oldSet[id] || id == actorID {
			continue
		}
		if !alreadyShared[id] {
			out.Grants = append(out.Grants, Grant{UserID: id, Permission: "view"})
		}
		out.Notifications = append(out.Notifications, Notification{
			RecipientID: id,
			DocumentID:  documentID,
			MentionedBy: actorID,
		})
	}
	return out
}
