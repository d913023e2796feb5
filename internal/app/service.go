package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"quill/api/internal/archive"
	"quill/api/internal/auth"
	"quill/api/internal/authpw"
	"quill/api/internal/config"
	"quill/api/internal/email"
	"quill/api/internal/export"
	"quill/api/internal/mentions"
	"quill/api/internal/rbac"
	"quill/api/internal/search"
	"quill/api/internal/store"
	"quill/api/internal/util"
	"quill/api/internal/versions"
)

// Session is an authenticated caller. Token and RefreshToken are only set
// on the session that issued them.
type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	CreateUser(ctx context.Context, user store.User) (store.User, error)
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	UserExists(ctx context.Context, userID string) (bool, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]store.User, error)

	InsertDocument(ctx context.Context, item store.Document) error
	GetDocument(ctx context.Context, documentID string) (store.Document, error)
	ListDocumentsForUser(ctx context.Context, userID string) ([]store.Document, error)
	UpdateDocumentContent(ctx context.Context, documentID, title, content, visibility string, expectedVersion int) (bool, error)
	AdvanceDocumentVersion(ctx context.Context, documentID string, expectedVersion, nextVersion int) (bool, error)

	ListShares(ctx context.Context, documentID string) ([]store.Share, error)
	AddShareIfAbsent(ctx context.Context, documentID, userID, permission string) error
	UpsertShare(ctx context.Context, documentID, userID, permission string) error
	RemoveShare(ctx context.Context, documentID, userID string) (bool, error)

	InsertVersion(ctx context.Context, item store.Version) error
	GetVersion(ctx context.Context, documentID string, version int) (store.Version, error)
	ListVersions(ctx context.Context, documentID string, limit int) ([]store.Version, error)

	InsertNotification(ctx context.Context, item store.Notification) error
	ListNotifications(ctx context.Context, userID string, limit int) ([]store.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID string) (bool, error)

	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)

	Ping(ctx context.Context) error
}

// SessionStore holds refresh sessions keyed by token hash. Redis and
// Postgres implementations exist; the choice is a deployment concern.
type SessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// PostgresSessions adapts the relational store to the session interface,
// used when Redis is not configured.
type PostgresSessions struct {
	Store *store.PostgresStore
}

func (p PostgresSessions) SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	return p.Store.SaveRefreshSession(ctx, tokenHash, user.ID, expiresAt)
}

func (p PostgresSessions) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	return p.Store.LookupRefreshSession(ctx, tokenHash)
}

func (p PostgresSessions) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	return p.Store.RevokeRefreshSession(ctx, tokenHash)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions SessionStore
	auth     *authpw.Service
	search   *search.Service
	archive  *archive.Service
	email    *email.Service
	export   *export.Service
	logger   *zap.Logger
}

func New(cfg config.Config, db dataStore, sessions SessionStore, authSvc *authpw.Service, searchSvc *search.Service, archiveSvc *archive.Service, emailSvc *email.Service, exportSvc *export.Service, logger *zap.Logger) *Service {
	return &Service{
		cfg:      cfg,
		store:    db,
		sessions: sessions,
		auth:     authSvc,
		search:   searchSvc,
		archive:  archiveSvc,
		email:    emailSvc,
		export:   exportSvc,
		logger:   logger,
	}
}

// --- Auth and sessions ---

func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (Session, error) {
	user, err := s.auth.SignUp(ctx, authpw.SignUpRequest{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
	})
	if err != nil {
		if errors.Is(err, authpw.ErrEmailTaken) {
			return Session{}, domainError(http.StatusConflict, "CONFLICT", "Email already registered", nil)
		}
		return Session{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.auth.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		if errors.Is(err, authpw.ErrInvalidCredentials) {
			return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid email or password", nil)
		}
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	// Redis-backed sessions carry a denormalized user; refresh from the
	// source of truth when possible.
	if fresh, err := s.store.GetUserByID(ctx, user.ID); err == nil {
		user = fresh
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), user.ID, user.DisplayName, jti, expiresAt)
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Subject)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// --- Documents ---

type CreateDocumentInput struct {
	Title      string
	Content    string
	Visibility string
}

type UpdateDocumentInput struct {
	Title      *string
	Content    *string
	Visibility *string
}

func validVisibility(v string) bool {
	switch v {
	case "public", "private", "shared":
		return true
	default:
		return false
	}
}

func (s *Service) CreateDocument(ctx context.Context, sess Session, input CreateDocumentInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	visibility := input.Visibility
	if visibility == "" {
		visibility = "private"
	}
	if !validVisibility(visibility) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "visibility must be public, private, or shared", nil)
	}

	doc := store.Document{
		ID:         util.NewID("doc"),
		Title:      title,
		Content:    input.Content,
		Visibility: visibility,
		AuthorID:   sess.UserID,
	}
	if err := s.store.InsertDocument(ctx, doc); err != nil {
		return nil, err
	}
	if _, err := s.createVersion(ctx, doc.ID, sess.UserID, ""); err != nil {
		return nil, err
	}

	outcome := mentions.Reconcile(doc.ID, input.Content, "", sess.UserID, map[string]bool{})
	s.applyMentionOutcome(ctx, doc, sess, outcome)

	s.indexDocument(ctx, doc.ID)
	return s.documentPayload(ctx, doc.ID, sess.UserID)
}

func (s *Service) GetDocument(ctx context.Context, sess Session, documentID string) (map[string]any, error) {
	doc, shares, err := s.loadDocumentWithShares(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !rbac.CanView(doc, shares, sess.UserID) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "You do not have access to this document", nil)
	}
	// Only the author sees who a document is shared with.
	if doc.AuthorID != sess.UserID {
		shares = nil
	}
	return documentToPayload(doc, shares), nil
}

func (s *Service) ListDocuments(ctx context.Context, sess Session) (map[string]any, error) {
	documents, err := s.store.ListDocumentsForUser(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(documents))
	for _, doc := range documents {
		items = append(items, map[string]any{
			"id":             doc.ID,
			"title":          doc.Title,
			"visibility":     doc.Visibility,
			"authorId":       doc.AuthorID,
			"currentVersion": doc.CurrentVersion,
			"createdAt":      doc.CreatedAt,
			"updatedAt":      doc.UpdatedAt,
		})
	}
	return map[string]any{"documents": items}, nil
}

func (s *Service) UpdateDocument(ctx context.Context, sess Session, documentID string, input UpdateDocumentInput) (map[string]any, error) {
	doc, shares, err := s.loadDocumentWithShares(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !rbac.CanEdit(doc, shares, sess.UserID) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "You do not have edit access to this document", nil)
	}

	title := doc.Title
	if input.Title != nil {
		title = strings.TrimSpace(*input.Title)
	}
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title cannot be empty", nil)
	}
	content := doc.Content
	if input.Content != nil {
		content = *input.Content
	}
	visibility := doc.Visibility
	if input.Visibility != nil {
		visibility = *input.Visibility
	}
	if !validVisibility(visibility) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "visibility must be public, private, or shared", nil)
	}

	// A save that changes nothing is not an edit: no write, no version.
	if title == doc.Title && content == doc.Content && visibility == doc.Visibility {
		return s.documentPayload(ctx, documentID, sess.UserID)
	}

	oldContent := doc.Content

	ok, err := s.store.UpdateDocumentContent(ctx, documentID, title, content, visibility, doc.CurrentVersion)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domainError(http.StatusConflict, "CONFLICT", "Document was modified concurrently", nil)
	}

	if _, err := s.createVersion(ctx, documentID, sess.UserID, ""); err != nil {
		return nil, err
	}

	if content != oldContent {
		alreadyShared := make(map[string]bool, len(shares))
		for _, share := range shares {
			alreadyShared[share.UserID] = true
		}
		outcome := mentions.Reconcile(documentID, content, oldContent, sess.UserID, alreadyShared)
		doc.Title = title
		s.applyMentionOutcome(ctx, doc, sess, outcome)
	}

	s.indexDocument(ctx, documentID)
	return s.documentPayload(ctx, documentID, sess.UserID)
}

// --- Sharing ---

func (s *Service) ShareDocument(ctx context.Context, sess Session, documentID, userID, permission string) (map[string]any, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.AuthorID != sess.UserID {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Only the author can manage sharing", nil)
	}
	if !rbac.ValidPermission(permission) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "permission must be view or edit", nil)
	}
	if userID == doc.AuthorID {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "cannot share a document with its author", nil)
	}
	exists, err := s.store.UserExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "User not found", nil)
	}

	if err := s.store.UpsertShare(ctx, documentID, userID, permission); err != nil {
		return nil, err
	}

	s.indexDocument(ctx, documentID)
	return s.sharesPayload(ctx, documentID)
}

func (s *Service) UnshareDocument(ctx context.Context, sess Session, documentID, userID string) (map[string]any, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.AuthorID != sess.UserID {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Only the author can manage sharing", nil)
	}

	removed, err := s.store.RemoveShare(ctx, documentID, userID)
	if err != nil {
		return nil, err
	}
	if !removed {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Share not found", nil)
	}

	s.indexDocument(ctx, documentID)
	return s.sharesPayload(ctx, documentID)
}

func (s *Service) sharesPayload(ctx context.Context, documentID string) (map[string]any, error) {
	shares, err := s.store.ListShares(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"sharedWith": sharesToPayload(shares)}, nil
}

// --- Versions ---

// createVersion snapshots the document's current row as the next version and
// advances the version pointer. A failed compare-and-set on either step
// reports a concurrent modification.
func (s *Service) createVersion(ctx context.Context, documentID, changedBy, summaryOverride string) (store.Version, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return store.Version{}, err
	}

	next := doc.CurrentVersion + 1
	var prev *store.Version
	if doc.CurrentVersion > 0 {
		prevVersion, err := s.store.GetVersion(ctx, documentID, doc.CurrentVersion)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return store.Version{}, err
			}
		} else {
			prev = &prevVersion
		}
	}

	snapshot := versions.Snapshot{Title: doc.Title, Content: doc.Content, Visibility: doc.Visibility}
	words, chars := versions.Counts(doc.Content)
	summary := summaryOverride
	if summary == "" {
		summary = versions.Summarize(prev, snapshot)
	}

	item := store.Version{
		ID:             util.NewID("ver"),
		DocumentID:     documentID,
		Version:        next,
		Title:          doc.Title,
		Content:        doc.Content,
		Visibility:     doc.Visibility,
		ChangedBy:      changedBy,
		ChangeType:     versions.Classify(prev, snapshot),
		ChangeSummary:  summary,
		WordCount:      words,
		CharacterCount: chars,
	}
	if err := s.store.InsertVersion(ctx, item); err != nil {
		if store.IsUniqueViolation(err) {
			return store.Version{}, domainError(http.StatusConflict, "CONFLICT", "Document was modified concurrently", nil)
		}
		return store.Version{}, err
	}

	advanced, err := s.store.AdvanceDocumentVersion(ctx, documentID, doc.CurrentVersion, next)
	if err != nil {
		return store.Version{}, err
	}
	if !advanced {
		return store.Version{}, domainError(http.StatusConflict, "CONFLICT", "Document was modified concurrently", nil)
	}

	s.archiveVersion(item)
	return item, nil
}

// archiveVersion mirrors the version into the git archive, best effort.
func (s *Service) archiveVersion(item store.Version) {
	if s.archive == nil {
		return
	}
	go func() {
		_, err := s.archive.RecordVersion(item.DocumentID, archive.Snapshot{
			Version:       item.Version,
			Title:         item.Title,
			Content:       item.Content,
			Visibility:    item.Visibility,
			ChangedBy:     item.ChangedBy,
			ChangeSummary: item.ChangeSummary,
		})
		if err != nil {
			s.logger.Warn("archive version failed",
				zap.String("documentId", item.DocumentID),
				zap.Int("version", item.Version),
				zap.Error(err))
		}
	}()
}

func (s *Service) ListVersions(ctx context.Context, sess Session, documentID string, limit int) (map[string]any, error) {
	if _, _, err := s.authorizeView(ctx, sess, documentID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	items, err := s.store.ListVersions(ctx, documentID, limit)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, versionToPayload(item, false))
	}
	return map[string]any{"versions": payload}, nil
}

func (s *Service) GetVersion(ctx context.Context, sess Session, documentID string, number int) (map[string]any, error) {
	if _, _, err := s.authorizeView(ctx, sess, documentID); err != nil {
		return nil, err
	}
	item, err := s.store.GetVersion(ctx, documentID, number)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Version not found", nil)
		}
		return nil, err
	}
	return versionToPayload(item, true), nil
}

func (s *Service) CompareVersions(ctx context.Context, sess Session, documentID string, v1, v2 int) (any, error) {
	if _, _, err := s.authorizeView(ctx, sess, documentID); err != nil {
		return nil, err
	}
	if v1 <= 0 || v2 <= 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "v1 and v2 must be positive version numbers", nil)
	}

	var (
		wg       sync.WaitGroup
		from, to store.Version
		errFrom  error
		errTo    error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		from, errFrom = s.store.GetVersion(ctx, documentID, v1)
	}()
	go func() {
		defer wg.Done()
		to, errTo = s.store.GetVersion(ctx, documentID, v2)
	}()
	wg.Wait()

	for _, err := range []error{errFrom, errTo} {
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Version not found", nil)
			}
			return nil, err
		}
	}

	return versions.BuildDiff(from, to), nil
}

func (s *Service) RestoreVersion(ctx context.Context, sess Session, documentID string, number int) (map[string]any, error) {
	doc, shares, err := s.loadDocumentWithShares(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !rbac.CanEdit(doc, shares, sess.UserID) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "You do not have edit access to this document", nil)
	}

	target, err := s.store.GetVersion(ctx, documentID, number)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Version not found", nil)
		}
		return nil, err
	}

	ok, err := s.store.UpdateDocumentContent(ctx, documentID, target.Title, target.Content, target.Visibility, doc.CurrentVersion)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domainError(http.StatusConflict, "CONFLICT", "Document was modified concurrently", nil)
	}

	restored, err := s.createVersion(ctx, documentID, sess.UserID, fmt.Sprintf("Restored to version %d", number))
	if err != nil {
		return nil, err
	}

	s.indexDocument(ctx, documentID)

	docPayload, err := s.documentPayload(ctx, documentID, sess.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"restoredVersion": versionToPayload(restored, true),
		"document":        docPayload,
	}, nil
}

// --- Mentions ---

// applyMentionOutcome persists the grants and notifications a content change
// produced. Every step is best effort: a failed grant or notification is
// logged and skipped without failing the save.
func (s *Service) applyMentionOutcome(ctx context.Context, doc store.Document, actor Session, outcome mentions.Outcome) {
	known := map[string]bool{}
	exists := func(userID string) bool {
		if v, ok := known[userID]; ok {
			return v
		}
		ok, err := s.store.UserExists(ctx, userID)
		if err != nil {
			s.logger.Warn("mention user lookup failed", zap.String("userId", userID), zap.Error(err))
			ok = false
		}
		known[userID] = ok
		return ok
	}

	for _, grant := range outcome.Grants {
		if !exists(grant.UserID) {
			continue
		}
		if err := s.store.AddShareIfAbsent(ctx, doc.ID, grant.UserID, grant.Permission); err != nil {
			s.logger.Warn("mention share grant failed",
				zap.String("documentId", doc.ID),
				zap.String("userId", grant.UserID),
				zap.Error(err))
		}
	}

	for _, note := range outcome.Notifications {
		if !exists(note.RecipientID) {
			continue
		}
		item := store.Notification{
			ID:          util.NewID("ntf"),
			UserID:      note.RecipientID,
			DocumentID:  doc.ID,
			MentionedBy: actor.UserID,
		}
		if err := s.store.InsertNotification(ctx, item); err != nil {
			s.logger.Warn("mention notification failed",
				zap.String("documentId", doc.ID),
				zap.String("userId", note.RecipientID),
				zap.Error(err))
			continue
		}
		s.sendMentionEmail(ctx, doc, actor, note.RecipientID)
	}
}

func (s *Service) sendMentionEmail(ctx context.Context, doc store.Document, actor Session, recipientID string) {
	if s.email == nil || !s.email.IsConfigured() {
		return
	}
	recipient, err := s.store.GetUserByID(ctx, recipientID)
	if err != nil || recipient.Email == "" {
		return
	}
	documentURL := strings.TrimRight(s.cfg.AppBaseURL, "/") + "/documents/" + doc.ID
	go func() {
		if err := s.email.SendMentionEmail(recipient.Email, recipient.DisplayName, actor.UserName, doc.Title, documentURL); err != nil {
			s.logger.Warn("mention email failed",
				zap.String("documentId", doc.ID),
				zap.String("userId", recipientID),
				zap.Error(err))
		}
	}()
}

// --- Notifications ---

func (s *Service) Notifications(ctx context.Context, sess Session, limit int) (map[string]any, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	items, err := s.store.ListNotifications(ctx, sess.UserID, limit)
	if err != nil {
		return nil, err
	}
	unread := 0
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if !item.Read {
			unread++
		}
		payload = append(payload, map[string]any{
			"id":              item.ID,
			"documentId":      item.DocumentID,
			"documentTitle":   item.DocumentTitle,
			"mentionedBy":     item.MentionedBy,
			"mentionedByName": item.MentionedByName,
			"read":            item.Read,
			"createdAt":       item.CreatedAt,
		})
	}
	return map[string]any{"notifications": payload, "unreadCount": unread}, nil
}

func (s *Service) MarkNotificationRead(ctx context.Context, sess Session, notificationID string) error {
	ok, err := s.store.MarkNotificationRead(ctx, sess.UserID, notificationID)
	if err != nil {
		return err
	}
	if !ok {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Notification not found", nil)
	}
	return nil
}

// --- Users ---

func (s *Service) SearchUsers(ctx context.Context, query string, limit int) (map[string]any, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	users, err := s.store.SearchUsers(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(users))
	for _, user := range users {
		items = append(items, map[string]any{
			"id":          user.ID,
			"displayName": user.DisplayName,
			"email":       user.Email,
		})
	}
	return map[string]any{"users": items}, nil
}

// --- Search ---

func (s *Service) Search(ctx context.Context, sess Session, text string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(search.Query{Text: text, UserID: sess.UserID, Limit: limit, Offset: offset}), nil
}

// indexDocument pushes the document's current state into the search index.
func (s *Service) indexDocument(ctx context.Context, documentID string) {
	if s.search == nil {
		return
	}
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return
	}
	shares, err := s.store.ListShares(ctx, documentID)
	if err != nil {
		shares = nil
	}
	sharedWith := make([]string, 0, len(shares))
	for _, share := range shares {
		sharedWith = append(sharedWith, share.UserID)
	}
	s.search.IndexDocument(search.DocumentRecord{
		ID:         doc.ID,
		Title:      doc.Title,
		Content:    doc.Content,
		AuthorID:   doc.AuthorID,
		Visibility: doc.Visibility,
		SharedWith: sharedWith,
	})
}

// --- Export ---

func (s *Service) ExportDocument(ctx context.Context, sess Session, documentID string, version int, format string) (*export.Result, error) {
	if _, _, err := s.authorizeView(ctx, sess, documentID); err != nil {
		return nil, err
	}
	if s.export == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not configured", nil)
	}

	f := export.Format(strings.ToLower(strings.TrimSpace(format)))
	if f != export.FormatPDF && f != export.FormatDOCX {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be pdf or docx", nil)
	}

	result, err := s.export.Export(ctx, export.Request{DocumentID: documentID, Version: version, Format: f})
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) || errors.Is(err, export.ErrDOCXDependencyMissing) {
			return nil, domainError(http.StatusServiceUnavailable, "EXPORT_DEPENDENCY_MISSING", "Export dependency is not installed", nil)
		}
		return nil, err
	}
	return result, nil
}

// --- Health ---

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// --- Helpers ---

func (s *Service) loadDocumentWithShares(ctx context.Context, documentID string) (store.Document, []store.Share, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return store.Document{}, nil, err
	}
	shares, err := s.store.ListShares(ctx, documentID)
	if err != nil {
		return store.Document{}, nil, err
	}
	return doc, shares, nil
}

func (s *Service) authorizeView(ctx context.Context, sess Session, documentID string) (store.Document, []store.Share, error) {
	doc, shares, err := s.loadDocumentWithShares(ctx, documentID)
	if err != nil {
		return store.Document{}, nil, err
	}
	if !rbac.CanView(doc, shares, sess.UserID) {
		return store.Document{}, nil, domainError(http.StatusForbidden, "FORBIDDEN", "You do not have access to this document", nil)
	}
	return doc, shares, nil
}

func (s *Service) documentPayload(ctx context.Context, documentID, viewerID string) (map[string]any, error) {
	doc, shares, err := s.loadDocumentWithShares(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.AuthorID != viewerID {
		shares = nil
	}
	return documentToPayload(doc, shares), nil
}

func documentToPayload(doc store.Document, shares []store.Share) map[string]any {
	payload := map[string]any{
		"id":             doc.ID,
		"title":          doc.Title,
		"content":        doc.Content,
		"visibility":     doc.Visibility,
		"authorId":       doc.AuthorID,
		"currentVersion": doc.CurrentVersion,
		"createdAt":      doc.CreatedAt,
		"updatedAt":      doc.UpdatedAt,
		"sharedWith":     sharesToPayload(shares),
	}
	if doc.LastVersionCreatedAt != nil {
		payload["lastVersionCreatedAt"] = *doc.LastVersionCreatedAt
	}
	return payload
}

func sharesToPayload(shares []store.Share) []map[string]any {
	items := make([]map[string]any, 0, len(shares))
	for _, share := range shares {
		items = append(items, map[string]any{
			"userId":     share.UserID,
			"permission": share.Permission,
			"name":       share.UserName,
			"email":      share.UserEmail,
			"createdAt":  share.CreatedAt,
		})
	}
	return items
}

func versionToPayload(item store.Version, includeContent bool) map[string]any {
	payload := map[string]any{
		"id":             item.ID,
		"documentId":     item.DocumentID,
		"version":        item.Version,
		"title":          item.Title,
		"visibility":     item.Visibility,
		"changedBy":      item.ChangedBy,
		"changeType":     item.ChangeType,
		"changeSummary":  item.ChangeSummary,
		"wordCount":      item.WordCount,
		"characterCount": item.CharacterCount,
		"createdAt":      item.CreatedAt,
	}
	if includeContent {
		payload["content"] = item.Content
	}
	return payload
}
