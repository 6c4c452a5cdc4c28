package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sakif/studysync/internal/apperror"
	"github.com/sakif/studysync/internal/collection"
	"github.com/sakif/studysync/internal/metrics"
	"github.com/sakif/studysync/internal/model"
	"github.com/sakif/studysync/internal/repository"
)

// Validation constants.
const (
	MaxGroupNameLength = 100
)

// Identity is what the Coordinator needs to know about the signed-in user.
// *identity.Resolver satisfies it.
type Identity interface {
	// SubjectID is the key the backend uses for ownership and membership.
	SubjectID(ctx context.Context) (model.SubjectID, error)
	// User is the display profile, nil when nobody is signed in.
	User() *model.User
}

// Coordinator keeps one session's collection of study groups in sync with
// the backend.
//
// WRITE POLICY:
// A successful remote write is followed by a full refetch rather than a local
// patch, because only the fetch can rebuild the joined profile data. Local
// edits are reserved for degraded mode (see degrade.go), where there is no
// remote data to stay consistent with.
type Coordinator struct {
	store   repository.Store
	ident   Identity
	groups  *collection.Store[model.StudyGroup]
	metrics *metrics.Recorder
	logger  *slog.Logger
	now     func() time.Time

	fetchMu     sync.Mutex
	generation  uint64
	cancelFetch context.CancelFunc
}

// NewCoordinator creates a Coordinator with an empty collection. rec may be nil.
func NewCoordinator(store repository.Store, ident Identity, rec *metrics.Recorder, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		store:   store,
		ident:   ident,
		groups:  collection.New(model.StudyGroup.Clone),
		metrics: rec,
		logger:  logger,
		now:     time.Now,
	}
}

// Groups exposes the collection for reading and subscribing. Subscribers run
// while a fetch holds the publish lock, so they must not start a fetch or a
// mutation synchronously.
func (c *Coordinator) Groups() *collection.Store[model.StudyGroup] {
	return c.groups
}

// Refetch reloads the collection. It is Fetch under the name callers know.
func (c *Coordinator) Refetch(ctx context.Context) collection.State[model.StudyGroup] {
	return c.Fetch(ctx)
}

// HandleAuthChange reacts to sign-in and sign-out: a new subject triggers a
// fetch, no subject empties the collection and abandons any fetch in flight.
// It matches identity.ChangeFunc.
func (c *Coordinator) HandleAuthChange(ctx context.Context, subject model.SubjectID, _ *model.User) {
	if subject.IsZero() {
		c.logger.Info("signed out, clearing study groups")
		c.invalidate()
		return
	}
	c.logger.Info("signed in, fetching study groups", slog.String("subject", subject.String()))
	c.Fetch(ctx)
}

// Create adds a new group owned by the signed-in user.
//
// Healthy backend: insert the group, then the creator's admin membership
// (a failure there is logged, the group still exists), then refetch.
// Unavailable backend: synthesize the group locally and put it first.
// Anything else: fail with the backend's message.
func (c *Coordinator) Create(ctx context.Context, spec model.GroupSpec) (group *model.StudyGroup, err error) {
	const op = "create"
	defer c.settle(op, "failed to create study group", &err)

	user := c.ident.User()
	if user == nil {
		return nil, apperror.Unauthenticated("")
	}
	spec, err = validateSpec(spec)
	if err != nil {
		return nil, err
	}
	subject, err := c.ident.SubjectID(ctx)
	if err != nil {
		return nil, err
	}

	row, err := c.store.Insert(ctx, repository.RelationGroups, repository.Row{
		"name":        spec.Name,
		"subject":     spec.Subject,
		"description": spec.Description,
		"max_members": spec.MaxMembers,
		"is_private":  spec.IsPrivate,
		"tags":        spec.Tags,
		"creator_id":  subject.String(),
	})
	switch classify(err) {
	case outcomeUnavailable:
		c.logger.Warn("study groups unavailable, creating locally", slog.String("error", err.Error()))
		g := synthesizeGroup(spec, user, c.now())
		c.groups.Update(degradeCreate(g))
		c.metrics.Mutation(op, metrics.MutationFallback)
		return &g, nil
	case outcomeFailed:
		return nil, apperror.Backend(backendMessage(err, "failed to create study group"), err)
	}

	inserted, err := decodeRow[groupRow](row)
	if err != nil {
		return nil, unexpected(err)
	}
	if inserted.ID == "" {
		return nil, apperror.Backend("failed to create study group: no data returned", nil)
	}
	c.logger.Info("study group created", slog.String("group_id", inserted.ID))

	if _, err := c.store.Insert(ctx, repository.RelationMemberships, repository.Row{
		"group_id": inserted.ID,
		"user_id":  subject.String(),
		"role":     model.RoleAdmin,
	}); err != nil {
		c.logger.Warn("failed to add creator as member",
			slog.String("group_id", inserted.ID),
			slog.String("error", err.Error()),
		)
	}

	c.Fetch(ctx)
	c.metrics.Mutation(op, metrics.MutationRemote)

	if g, ok := c.find(inserted.ID); ok {
		return &g, nil
	}
	g := normalizeGroup(joinedGroupRow{groupRow: inserted}, user, c.now())
	return &g, nil
}

// Join adds the signed-in user to a group. When the backend is not
// provisioned the roster is edited locally instead, idempotently. Joining a
// group the user already belongs to remotely is not an error.
func (c *Coordinator) Join(ctx context.Context, groupID string) (err error) {
	const op = "join"
	defer c.settle(op, "failed to join study group", &err)

	user, subject, err := c.actor(ctx, groupID)
	if err != nil {
		return err
	}

	_, err = c.store.Insert(ctx, repository.RelationMemberships, repository.Row{
		"group_id": groupID,
		"user_id":  subject.String(),
		"role":     model.RoleMember,
	})
	switch {
	case err == nil:
	case repository.HasCode(err, repository.CodeUniqueViolation):
		c.logger.Debug("already a member", slog.String("group_id", groupID))
	case classify(err) == outcomeUnavailable:
		c.logger.Warn("join failed remotely, joining locally",
			slog.String("group_id", groupID),
			slog.String("error", err.Error()),
		)
		c.groups.Update(degradeJoin(groupID, user.AsMember(selfName, c.now())))
		c.metrics.Mutation(op, metrics.MutationFallback)
		return nil
	default:
		return surface(err, "failed to join study group")
	}

	c.Fetch(ctx)
	c.metrics.Mutation(op, metrics.MutationRemote)
	return nil
}

// Leave removes the signed-in user from a group. A remote failure falls back
// to removing them from the local roster.
func (c *Coordinator) Leave(ctx context.Context, groupID string) (err error) {
	const op = "leave"
	defer c.settle(op, "failed to leave study group", &err)

	user, subject, err := c.actor(ctx, groupID)
	if err != nil {
		return err
	}

	if _, err := c.store.Delete(ctx, repository.RelationMemberships, []repository.Filter{
		repository.Eq("group_id", groupID),
		repository.Eq("user_id", subject.String()),
	}); err != nil {
		c.logger.Warn("leave failed remotely, leaving locally",
			slog.String("group_id", groupID),
			slog.String("outcome", classify(err).String()),
			slog.String("error", err.Error()),
		)
		c.groups.Update(degradeLeave(groupID, user.ID))
		c.metrics.Mutation(op, metrics.MutationFallback)
		return nil
	}

	c.Fetch(ctx)
	c.metrics.Mutation(op, metrics.MutationRemote)
	return nil
}

// Update changes fields of a group the signed-in user owns. Ownership is the
// creator_id filter on the update itself: a non-owner matches no row and gets
// ErrForbidden. Failures are never absorbed locally.
func (c *Coordinator) Update(ctx context.Context, groupID string, patch model.GroupPatch) (err error) {
	const op = "update"
	defer c.settle(op, "failed to update study group", &err)

	_, subject, err := c.actor(ctx, groupID)
	if err != nil {
		return err
	}
	row, err := patchRow(patch)
	if err != nil {
		return err
	}

	n, err := c.store.Update(ctx, repository.RelationGroups, row, []repository.Filter{
		repository.Eq("id", groupID),
		repository.Eq("creator_id", subject.String()),
	})
	if err != nil {
		return surface(err, "failed to update study group")
	}
	if n == 0 {
		return apperror.Forbidden("study group not found or not owned by you")
	}
	c.logger.Info("study group updated", slog.String("group_id", groupID))

	c.Fetch(ctx)
	c.metrics.Mutation(op, metrics.MutationRemote)
	return nil
}

// Delete removes a group the signed-in user owns, memberships first.
// Ownership is checked before anything is removed, so a non-owner cannot
// empty somebody else's roster.
func (c *Coordinator) Delete(ctx context.Context, groupID string) (err error) {
	const op = "delete"
	defer c.settle(op, "failed to delete study group", &err)

	_, subject, err := c.actor(ctx, groupID)
	if err != nil {
		return err
	}
	owned := []repository.Filter{
		repository.Eq("id", groupID),
		repository.Eq("creator_id", subject.String()),
	}

	rows, err := c.store.Select(ctx, repository.RelationGroups, repository.Query{
		Columns: []string{"id"},
		Filters: owned,
	})
	if err != nil {
		return surface(err, "failed to delete study group")
	}
	if len(rows) == 0 {
		return apperror.Forbidden("study group not found or not owned by you")
	}

	if _, err := c.store.Delete(ctx, repository.RelationMemberships, []repository.Filter{
		repository.Eq("group_id", groupID),
	}); err != nil {
		return surface(err, "failed to delete study group members")
	}
	n, err := c.store.Delete(ctx, repository.RelationGroups, owned)
	if err != nil {
		return surface(err, "failed to delete study group")
	}
	if n == 0 {
		return apperror.Forbidden("study group not found or not owned by you")
	}
	c.logger.Info("study group deleted", slog.String("group_id", groupID))

	c.Fetch(ctx)
	c.metrics.Mutation(op, metrics.MutationRemote)
	return nil
}

// actor checks the preconditions shared by the per-group mutations and
// resolves who is acting.
func (c *Coordinator) actor(ctx context.Context, groupID string) (*model.User, model.SubjectID, error) {
	user := c.ident.User()
	if user == nil {
		return nil, "", apperror.Unauthenticated("")
	}
	if strings.TrimSpace(groupID) == "" {
		return nil, "", apperror.ValidationFailed("id", "study group id is required")
	}
	subject, err := c.ident.SubjectID(ctx)
	if err != nil {
		return nil, "", err
	}
	return user, subject, nil
}

// settle is deferred by every mutation. It turns a panic or a stray error
// into a normalized *apperror.AppError and records failures.
func (c *Coordinator) settle(op, message string, errp *error) {
	if r := recover(); r != nil {
		cause := recovered(r)
		c.logger.Error("mutation panicked", slog.String("op", op), slog.String("error", cause.Error()))
		*errp = apperror.Backend(message, cause)
	}
	if *errp == nil {
		return
	}
	appErr := apperror.Normalize(*errp, message)
	*errp = appErr
	c.logger.Warn("mutation failed",
		slog.String("op", op),
		slog.String("error", appErr.Error()),
	)
	c.metrics.Mutation(op, metrics.MutationError)
}

// find returns a copy of the group with the given id from the collection.
func (c *Coordinator) find(groupID string) (model.StudyGroup, bool) {
	for _, g := range c.groups.Items() {
		if g.ID == groupID {
			return g, true
		}
	}
	return model.StudyGroup{}, false
}

// surface converts a store error for a write that never degrades.
func surface(err error, fallback string) error {
	if classify(err) == outcomeUnavailable {
		return apperror.Unprovisioned(err)
	}
	return apperror.Backend(backendMessage(err, fallback), err)
}

func backendMessage(err error, fallback string) string {
	if msg := repository.Message(err); msg != "" {
		return msg
	}
	return fallback
}

// validateSpec trims and checks a create request.
func validateSpec(spec model.GroupSpec) (model.GroupSpec, error) {
	spec.Name = strings.TrimSpace(spec.Name)
	spec.Subject = strings.TrimSpace(spec.Subject)
	spec.Description = strings.TrimSpace(spec.Description)

	if err := validateName(spec.Name); err != nil {
		return spec, err
	}
	if spec.MaxMembers < 0 {
		return spec, apperror.ValidationFailed("maxMembers", "maxMembers must not be negative")
	}
	spec.Tags = cleanTags(spec.Tags)
	return spec, nil
}

func validateName(name string) error {
	if name == "" {
		return apperror.ValidationFailed("name", "study group name is required")
	}
	if len(name) > MaxGroupNameLength {
		return apperror.ValidationFailed("name",
			fmt.Sprintf("study group name must be %d characters or less", MaxGroupNameLength))
	}
	return nil
}

// cleanTags trims tags and drops empty ones. The result is never nil.
func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// patchRow maps a GroupPatch onto study_groups columns. Only set fields are
// written.
func patchRow(p model.GroupPatch) (repository.Row, error) {
	if p.IsEmpty() {
		return nil, apperror.ValidationFailed("", "update changes nothing")
	}
	row := repository.Row{}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if err := validateName(name); err != nil {
			return nil, err
		}
		row["name"] = name
	}
	if p.Subject != nil {
		row["subject"] = strings.TrimSpace(*p.Subject)
	}
	if p.Description != nil {
		row["description"] = strings.TrimSpace(*p.Description)
	}
	if p.MaxMembers != nil {
		if *p.MaxMembers < 0 {
			return nil, apperror.ValidationFailed("maxMembers", "maxMembers must not be negative")
		}
		row["max_members"] = *p.MaxMembers
	}
	if p.IsPrivate != nil {
		row["is_private"] = *p.IsPrivate
	}
	if p.Tags != nil {
		row["tags"] = cleanTags(*p.Tags)
	}
	return row, nil
}
