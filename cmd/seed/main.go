// Command seed fills the configured database with demo users, projects and
// snippets through the regular services, so every row obeys the same rules
// as data created over the API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/sakif/devspace/internal/config"
	"github.com/sakif/devspace/internal/model"
	"github.com/sakif/devspace/internal/server"
	"github.com/sakif/devspace/internal/service"
)

const demoPassword = "password123"

var languages = []string{"python", "javascript", "go", "typescript", "rust", "sql"}

var usernameStrip = regexp.MustCompile(`[^A-Za-z0-9_-]`)

func main() {
	numUsers := flag.Int("users", 10, "number of users to create")
	perUser := flag.Int("snippets", 5, "snippets per user")
	seed := flag.Int64("seed", 0, "random seed (0 = time based)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv, err := server.New(cfg, logger, nil)
	if err != nil {
		logger.Error("failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer srv.Close()

	faker := gofakeit.New(*seed)
	if err := run(context.Background(), srv.Services, faker, *numUsers, *perUser, logger); err != nil {
		logger.Error("seeding failed", slog.String("error", err.Error()))
		srv.Close()
		os.Exit(1)
	}
	logger.Info("seeding complete", slog.String("password", demoPassword))
}

func run(ctx context.Context, svc server.Services, faker *gofakeit.Faker, numUsers, perUser int, logger *slog.Logger) error {
	users := make([]*model.User, 0, numUsers)
	for i := 0; i < numUsers; i++ {
		res, err := svc.Auth.Register(ctx, service.RegisterInput{
			Username: demoUsername(faker, i),
			Email:    fmt.Sprintf("%d.%s", i, strings.ToLower(faker.Email())),
			Password: demoPassword,
		})
		if err != nil {
			return fmt.Errorf("registering user %d: %w", i, err)
		}
		users = append(users, res.User)
	}

	var public []*model.Snippet
	for _, u := range users {
		project, err := svc.Projects.Create(ctx, u.ID, service.CreateProjectInput{
			Title:           strings.TrimSuffix(faker.Sentence(3), "."),
			Description:     faker.Sentence(12),
			IsPublic:        true,
			IsCollaborative: faker.Bool(),
			Tags:            []string{faker.HackerNoun(), faker.HackerVerb()},
		})
		if err != nil {
			return fmt.Errorf("creating project for %s: %w", u.Username, err)
		}

		for j := 0; j < perUser; j++ {
			lang := faker.RandomString(languages)
			snippet, err := svc.Snippets.Create(ctx, u.ID, service.CreateSnippetInput{
				ProjectID:          project.ID,
				Title:              strings.TrimSuffix(faker.HackerPhrase(), "!"),
				Content:            faker.Paragraph(1, 4, 8, "\n"),
				Language:           lang,
				FilePath:           fmt.Sprintf("src/%s.%s", faker.Noun(), extension(lang)),
				IsPublic:           j%4 != 0,
				AllowCollaboration: faker.Bool(),
				Tags:               []string{lang, faker.HackerAdjective()},
			})
			if err != nil {
				return fmt.Errorf("creating snippet for %s: %w", u.Username, err)
			}
			if snippet.IsPublic {
				public = append(public, snippet)
			}
		}
	}

	// Engagement: every user stars a few public snippets of others and forks one.
	for _, u := range users {
		for k := 0; k < 3 && len(public) > 0; k++ {
			target := public[faker.Number(0, len(public)-1)]
			if target.OwnerID == u.ID {
				continue
			}
			if _, err := svc.Snippets.ToggleStar(ctx, u.ID, target.ID); err != nil {
				return fmt.Errorf("starring %s: %w", target.ID, err)
			}
			if k == 0 {
				if _, err := svc.Snippets.Fork(ctx, u.ID, target.ID); err != nil {
					return fmt.Errorf("forking %s: %w", target.ID, err)
				}
			}
		}
	}

	logger.Info("seeded",
		slog.Int("users", len(users)),
		slog.Int("snippets", len(users)*perUser),
		slog.Int("public", len(public)),
	)
	return nil
}

// demoUsername keeps gofakeit names inside the username rules; the index
// suffix makes them unique.
func demoUsername(faker *gofakeit.Faker, i int) string {
	base := usernameStrip.ReplaceAllString(faker.Username(), "")
	if len(base) > 20 {
		base = base[:20]
	}
	if len(base) < 3 {
		base = "user"
	}
	return fmt.Sprintf("%s_%d", strings.ToLower(base), i)
}

func extension(lang string) string {
	switch lang {
	case "python":
		return "py"
	case "javascript":
		return "js"
	case "typescript":
		return "ts"
	case "rust":
		return "rs"
	default:
		return lang
	}
}
