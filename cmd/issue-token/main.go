// Command issue-token mints a session token for local development.
//
// It reads JWT_SECRET and JWT_ISSUER the same way the server does, so the
// token it prints can be posted to /api/session:
//
//	TOKEN=$(go run ./cmd/issue-token -name Maya -register)
//	curl -X POST localhost:8080/api/session -d "{\"token\":\"$TOKEN\"}"
//
// With -register the matching profile row is written to the configured store,
// so the user shows up as a resolved creator and member.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/studysync/internal/auth"
	"github.com/sakif/studysync/internal/config"
	"github.com/sakif/studysync/internal/model"
	"github.com/sakif/studysync/internal/repository"
	"github.com/sakif/studysync/internal/repository/sqlstore"
)

func main() {
	var (
		subject  = flag.String("subject", "", "authentication subject id (default: a new uuid)")
		profile  = flag.String("profile", "", "profile id (default: a new uuid)")
		name     = flag.String("name", "", "display name")
		email    = flag.String("email", "", "email address")
		college  = flag.String("college", "", "college")
		branch   = flag.String("branch", "", "branch of study")
		year     = flag.Int("year", 1, "year of study")
		ttl      = flag.Duration("ttl", 0, "token lifetime (default: SESSION_TTL)")
		register = flag.Bool("register", false, "insert the profile row into the configured store")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(logger, options{
		subject:  *subject,
		profile:  *profile,
		user:     model.User{Name: *name, Email: *email, College: *college, Branch: *branch, Year: *year},
		ttl:      *ttl,
		register: *register,
	}); err != nil {
		logger.Error("issue-token failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

type options struct {
	subject  string
	profile  string
	user     model.User
	ttl      time.Duration
	register bool
}

func run(logger *slog.Logger, opts options) error {
	cfg := config.Load()
	if len(cfg.Auth.JWTSecret) < config.MinSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", config.MinSecretLength)
	}
	if opts.subject == "" {
		opts.subject = uuid.NewString()
	}
	if opts.profile == "" {
		opts.profile = uuid.NewString()
	}
	if opts.ttl == 0 {
		opts.ttl = cfg.Auth.SessionTTL
	}
	subject := model.SubjectID(opts.subject)
	user := opts.user
	user.ID = model.ProfileID(opts.profile)

	if opts.register {
		if err := registerProfile(cfg.Store(), subject, user); err != nil {
			return err
		}
		logger.Info("profile registered",
			slog.String("subject", subject.String()),
			slog.String("profile", user.ID.String()),
		)
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	if err != nil {
		return err
	}
	token, err := tokens.Issue(subject, &user, opts.ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func registerProfile(storeCfg sqlstore.Config, subject model.SubjectID, user model.User) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := sqlstore.Open(ctx, storeCfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer db.Close()

	_, err = db.Insert(ctx, repository.RelationProfiles, repository.Row{
		"id":          user.ID.String(),
		"user_id":     subject.String(),
		"name":        user.Name,
		"email":       user.Email,
		"college":     user.College,
		"branch":      user.Branch,
		"year":        user.Year,
		"is_verified": user.IsVerified,
	})
	if err != nil {
		return fmt.Errorf("inserting profile: %w", err)
	}
	return nil
}
