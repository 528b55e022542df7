// Package main seeds a local development database with demo users and
// videos so the API can be exercised without running the signup ceremony.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"

	authdomain "github.com/veravid/veravid/internal/services/auth/domain"
	authsqlite "github.com/veravid/veravid/internal/services/auth/storage/sqlite"
	videodomain "github.com/veravid/veravid/internal/services/videos/domain"
	videosqlite "github.com/veravid/veravid/internal/services/videos/storage/sqlite"
)

type seedUser struct {
	input    authdomain.CreateUserInput
	approved bool
}

var seedUsers = []seedUser{
	{input: authdomain.CreateUserInput{Role: authdomain.RoleAdmin, DisplayName: "Ada Ops", Title: "Platform Admin", Country: "CA"}},
	{input: authdomain.CreateUserInput{Role: authdomain.RoleReviewer, DisplayName: "Rui Mendes", Title: "Senior Reviewer", Country: "BR"}},
	{input: authdomain.CreateUserInput{Role: authdomain.RoleReviewer, DisplayName: "Noor Haddad", Title: "Reviewer", Country: "JO"}},
	{input: authdomain.CreateUserInput{Role: authdomain.RoleCreator, DisplayName: "Casey Vale", Title: "Documentary Maker", Country: "US"}, approved: true},
}

var seedVideos = []videodomain.CreateVideoInput{
	{Title: "Harbor at Dawn", Description: "Long take of the fishing fleet leaving port.", UploadURL: "https://cdn.example.com/uploads/harbor-at-dawn.mp4"},
	{Title: "Street Market Walkthrough", UploadURL: "https://cdn.example.com/uploads/street-market.mp4"},
}

func main() {
	dataDir := flag.String("data-dir", "data", "directory holding the sqlite databases")
	flag.Parse()
	log.SetPrefix("[SEED] ")

	if err := run(context.Background(), *dataDir); err != nil {
		log.Fatalf("seed: %v", err)
	}
}

func run(ctx context.Context, dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}
	users, err := authsqlite.Open(filepath.Join(dataDir, "auth.db"))
	if err != nil {
		return err
	}
	defer func() { _ = users.Close() }()

	videos, err := videosqlite.Open(filepath.Join(dataDir, "videos.db"))
	if err != nil {
		return err
	}
	defer func() { _ = videos.Close() }()

	var creatorID string
	for _, seed := range seedUsers {
		u, err := authdomain.CreateUser(seed.input, nil, nil)
		if err != nil {
			return err
		}
		u.AuthApproved = seed.approved
		if err := users.PutUser(ctx, u); err != nil {
			return err
		}
		if u.Role == authdomain.RoleCreator {
			creatorID = u.ID
		}
		log.Printf("user %s (%s) id=%s", u.DisplayName, u.Role, u.ID)
	}

	for _, input := range seedVideos {
		v, err := videodomain.CreateVideo(creatorID, input, nil, nil)
		if err != nil {
			return err
		}
		if err := videos.PutVideo(ctx, v); err != nil {
			return err
		}
		log.Printf("video %q id=%s", v.Title, v.ID)
	}
	return nil
}
