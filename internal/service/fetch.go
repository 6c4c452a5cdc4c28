package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/studysync/internal/collection"
	"github.com/sakif/studysync/internal/metrics"
	"github.com/sakif/studysync/internal/model"
	"github.com/sakif/studysync/internal/repository"
)

// Columns read from profiles, for creators and embedded members alike.
var profileColumns = []string{"id", "user_id", "name", "email", "college", "branch", "year", "is_verified", "avatar_url"}

// Fetch reloads every study group and publishes the result. It never fails:
// the worst case is an empty collection with an error message, or the
// fallback dataset. The returned snapshot is what this call published, or the
// current state if a newer fetch superseded it.
//
// FETCH SEQUENCE:
//  1. nobody signed in          → empty collection, no remote call
//  2. select study_groups       → newest first; none → empty collection
//  3. distinct creator ids
//  4. bulk select profiles      ┐ run concurrently,
//  5. bulk select memberships   ┘ both only need step 2
//  6. attach and normalize
//
// OVERLAPPING FETCHES:
// Each call takes a new generation and cancels the one before it. Only the
// newest generation may publish, so a slow early fetch can never overwrite
// the refetch a mutation just waited for.
func (c *Coordinator) Fetch(ctx context.Context) collection.State[model.StudyGroup] {
	ctx, gen, done := c.beginFetch(ctx)
	defer done()

	start := time.Now()
	outcome := c.fetch(ctx, gen)
	c.metrics.Fetch(outcome, time.Since(start))

	return c.groups.Snapshot()
}

// fetch runs one generation and reports the metrics outcome.
func (c *Coordinator) fetch(ctx context.Context, gen uint64) (result string) {
	defer func() {
		if r := recover(); r != nil {
			err := recovered(r)
			c.logger.Warn("fetch panicked, using fallback data", slog.String("error", err.Error()))
			result = c.finish(gen, FallbackGroups(c.now()), "", metrics.FetchFallback)
		}
	}()

	if c.ident.User() == nil {
		return c.finish(gen, nil, "", metrics.FetchSkipped)
	}

	groups, err := c.load(ctx)
	if c.superseded(gen) {
		return metrics.FetchSkipped
	}
	if ctx.Err() != nil {
		// The caller went away. What is published stays as it was.
		c.logger.Debug("fetch abandoned", slog.String("error", ctx.Err().Error()))
		c.abandon(gen)
		return metrics.FetchSkipped
	}
	switch classify(err) {
	case outcomeUnavailable:
		c.logger.Warn("study groups unavailable, using fallback data", slog.String("error", err.Error()))
		return c.finish(gen, FallbackGroups(c.now()), "", metrics.FetchFallback)
	case outcomeFailed:
		c.logger.Error("failed to fetch study groups", slog.String("error", err.Error()))
		return c.finish(gen, nil, repository.Message(err), metrics.FetchError)
	}

	if len(groups) == 0 {
		c.logger.Debug("no study groups found")
		return c.finish(gen, nil, "", metrics.FetchEmpty)
	}
	c.logger.Debug("study groups fetched", slog.Int("count", len(groups)))
	return c.finish(gen, groups, "", metrics.FetchRemote)
}

// load performs steps 2 through 6.
func (c *Coordinator) load(ctx context.Context) ([]model.StudyGroup, error) {
	rows, err := c.store.Select(ctx, repository.RelationGroups, repository.Query{
		Order: []repository.Order{{Column: "created_at", Desc: true}},
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	groupRows, err := decodeRows[groupRow](rows)
	if err != nil {
		return nil, unexpected(err)
	}

	creatorIDs := make([]string, 0, len(groupRows))
	groupIDs := make([]string, 0, len(groupRows))
	seen := make(map[string]bool, len(groupRows))
	for _, g := range groupRows {
		groupIDs = append(groupIDs, g.ID)
		if g.CreatorID != "" && !seen[g.CreatorID] {
			seen[g.CreatorID] = true
			creatorIDs = append(creatorIDs, g.CreatorID)
		}
	}

	var (
		creators map[string]profileRow
		members  map[string][]profileRow
	)
	eg, egCtx := errgroup.WithContext(ctx)
	if len(creatorIDs) > 0 {
		eg.Go(guard(func() (err error) {
			creators, err = c.loadCreators(egCtx, creatorIDs)
			return err
		}))
	}
	eg.Go(guard(func() (err error) {
		members, err = c.loadMembers(egCtx, groupIDs)
		return err
	}))
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	user := c.ident.User()
	now := c.now()
	out := make([]model.StudyGroup, 0, len(groupRows))
	for _, g := range groupRows {
		joined := joinedGroupRow{groupRow: g, Members: members[g.ID]}
		if p, ok := creators[g.CreatorID]; ok {
			joined.Creator = &p
		}
		out = append(out, normalizeGroup(joined, user, now))
	}
	return out, nil
}

// loadCreators returns creator profiles keyed by authentication subject.
func (c *Coordinator) loadCreators(ctx context.Context, subjects []string) (map[string]profileRow, error) {
	rows, err := c.store.Select(ctx, repository.RelationProfiles, repository.Query{
		Columns: profileColumns,
		Filters: []repository.Filter{repository.In("user_id", subjects)},
	})
	if err != nil {
		return nil, err
	}
	profiles, err := decodeRows[profileRow](rows)
	if err != nil {
		return nil, unexpected(err)
	}
	out := make(map[string]profileRow, len(profiles))
	for _, p := range profiles {
		out[p.UserID] = p
	}
	return out, nil
}

// loadMembers returns member profiles keyed by group id, in membership
// order. Memberships whose profile did not join are dropped.
func (c *Coordinator) loadMembers(ctx context.Context, groupIDs []string) (map[string][]profileRow, error) {
	rows, err := c.store.Select(ctx, repository.RelationMemberships, repository.Query{
		Columns: []string{"group_id", "user_id"},
		Filters: []repository.Filter{repository.In("group_id", groupIDs)},
		Order:   []repository.Order{{Column: "joined_at"}},
		Embed: &repository.Embed{
			Relation:   repository.RelationProfiles,
			LocalKey:   "user_id",
			ForeignKey: "user_id",
			As:         "profiles",
			Columns:    profileColumns,
		},
	})
	if err != nil {
		return nil, err
	}
	memberships, err := decodeRows[membershipRow](rows)
	if err != nil {
		return nil, unexpected(err)
	}
	out := make(map[string][]profileRow, len(groupIDs))
	for _, m := range memberships {
		if m.Profile == nil {
			continue
		}
		out[m.GroupID] = append(out[m.GroupID], *m.Profile)
	}
	return out, nil
}

// guard turns a panic inside an errgroup goroutine into an error, so it
// reaches the fetch's own classification instead of killing the process.
func guard(fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = recovered(r)
			}
		}()
		return fn()
	}
}

// beginFetch starts a new generation and cancels the previous one. done must
// be called when the fetch returns.
func (c *Coordinator) beginFetch(ctx context.Context) (context.Context, uint64, func()) {
	ctx, cancel := context.WithCancel(ctx)

	c.fetchMu.Lock()
	if c.cancelFetch != nil {
		c.cancelFetch()
	}
	c.generation++
	gen := c.generation
	c.cancelFetch = cancel
	c.groups.SetStatus(true, "")
	c.fetchMu.Unlock()

	return ctx, gen, func() {
		c.fetchMu.Lock()
		if c.generation == gen {
			c.cancelFetch = nil
		}
		c.fetchMu.Unlock()
		cancel()
	}
}

// finish publishes one generation's result unless a newer generation has
// started since. It returns the outcome to record.
func (c *Coordinator) finish(gen uint64, groups []model.StudyGroup, errMsg, outcome string) string {
	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()

	if gen != c.generation {
		return metrics.FetchSkipped
	}
	c.groups.Set(collection.State[model.StudyGroup]{Items: groups, Err: errMsg})
	return outcome
}

// abandon ends a fetch without publishing, leaving the items in place.
func (c *Coordinator) abandon(gen uint64) {
	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()

	if gen == c.generation {
		c.groups.SetStatus(false, "")
	}
}

func (c *Coordinator) superseded(gen uint64) bool {
	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()
	return gen != c.generation
}

// invalidate abandons any fetch in flight and empties the collection.
func (c *Coordinator) invalidate() {
	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()

	if c.cancelFetch != nil {
		c.cancelFetch()
		c.cancelFetch = nil
	}
	c.generation++
	c.groups.Reset()
}
