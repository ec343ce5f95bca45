package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alecgard/kyosor/internal/config"
	"github.com/alecgard/kyosor/internal/identity"
	"github.com/alecgard/kyosor/internal/ledger"
	"github.com/alecgard/kyosor/internal/mission"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed demo chiefs and missions",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

const demoSecret = "kyosor-demo"

type demoMission struct {
	chief     string
	email     string
	daysAhead int
	draft     mission.Draft
}

var demoMissions = []demoMission{
	{chief: "Alex Johnson", email: "alex.j@example.com", daysAhead: 4, draft: mission.Draft{
		Name: "ajs", Description: "Alpha Juliet Sierra", MaxCrew: 5, AllowJoin: boolPtr(false),
		Phone: "081-234-5678", Location: "Central Plaza, Bangkok", Rewards: []string{"meal ticket", "drinking water"},
	}},
	{chief: "Sarah Williams", email: "sarah.w@example.com", daysAhead: 5, draft: mission.Draft{
		Name: "tre", Description: "Training exercise", MaxCrew: 4,
		Phone: "082-345-6789", Location: "Siam Square, Bangkok", Rewards: []string{"drinking water"},
	}},
	{chief: "Michael Chen", email: "michael.c@example.com", daysAhead: 6, draft: mission.Draft{
		Name: "lkm", Description: "Logistics management", MaxCrew: 6,
		Phone: "083-456-7890", Location: "Sukhumvit Soi 11, Bangkok", Rewards: []string{"meal ticket", "drinking water"},
	}},
	{chief: "Emma Davis", email: "emma.d@example.com", daysAhead: 7, draft: mission.Draft{
		Name: "bnw", Description: "Brawler new world", MaxCrew: 5,
		Phone: "084-567-8901", Location: "Chatuchak Park, Bangkok", Rewards: []string{"drinking water"},
	}},
	{chief: "James Wilson", email: "james.w@example.com", daysAhead: 8, draft: mission.Draft{
		Name: "bbb", Description: "Blitz battle bonanza", MaxCrew: 8, AllowJoin: boolPtr(false),
		Phone: "085-678-9012", Location: "Lumpini Park, Bangkok", Rewards: []string{"meal ticket", "drinking water"},
	}},
	{chief: "Lisa Anderson", email: "lisa.a@example.com", daysAhead: 9, draft: mission.Draft{
		Name: "aaa", Description: "Awesome adventure awaits", MaxCrew: 10,
		Phone: "086-789-0123", Location: "Icon Siam, Bangkok", Rewards: []string{"meal ticket"},
	}},
	{chief: "David Martinez", email: "david.m@example.com", daysAhead: 10, draft: mission.Draft{
		Name: "crystal-quest", Description: "Find the legendary crystal", MaxCrew: 6,
		Phone: "087-890-1234", Location: "Grand Palace, Bangkok", Rewards: []string{"meal ticket", "commemorative pin"},
	}},
	{chief: "Nicole Taylor", email: "nicole.t@example.com", daysAhead: 11, draft: mission.Draft{
		Name: "shadow-hunt", Description: "Eliminate the shadow creatures", MaxCrew: 5,
		Phone: "088-901-2345", Location: "Wat Arun, Bangkok", Rewards: []string{"meal ticket", "drinking water"},
	}},
	{chief: "Robert Brown", email: "robert.b@example.com", daysAhead: 12, draft: mission.Draft{
		Name: "dragon-slayer", Description: "Face the ancient dragon", MaxCrew: 3,
		Phone: "089-012-3456", Location: "Khao San Road, Bangkok", Rewards: []string{"certificate", "drinking water"},
	}},
	{chief: "Jessica Miller", email: "jessica.m@example.com", daysAhead: 13, draft: mission.Draft{
		Name: "realm-defense", Description: "Defend the kingdom from invaders", MaxCrew: 5,
		Phone: "090-123-4567", Location: "Asiatique, Bangkok", Rewards: []string{"drinking water"},
	}},
}

func boolPtr(b bool) *bool { return &b }

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Store.Backend == config.BackendMemory {
		return fmt.Errorf("seeding the %q backend has no lasting effect", config.BackendMemory)
	}

	ctx := context.Background()
	b, err := openBackend(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer b.close()

	dir := identity.NewDirectory(b.store, cfg.Security.BcryptCost)
	registry := mission.NewRegistry(b.store, ledger.New(b.store))

	// Check if seed has already run.
	existing, err := registry.List(ctx, "", mission.Filter{ViewMode: mission.ViewAll})
	if err != nil {
		return fmt.Errorf("checking existing missions: %w", err)
	}
	if len(existing) > 0 {
		slog.Info("demo data already exists, skipping seed")
		return nil
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	for _, dm := range demoMissions {
		_, err := dir.Register(ctx, identity.RegisterInput{
			Handle:        dm.chief,
			CredentialKey: dm.email,
			Secret:        demoSecret,
			Profile:       identity.Profile{Email: dm.email},
		})
		if err != nil && !errors.Is(err, identity.ErrDuplicateCredential) && !errors.Is(err, identity.ErrNameTaken) {
			return fmt.Errorf("registering %q: %w", dm.chief, err)
		}

		d := dm.draft
		date := today.AddDate(0, 0, dm.daysAhead)
		d.MissionDate = &date
		d.Email = dm.email
		m, err := registry.Create(ctx, dm.chief, d)
		if err != nil {
			return fmt.Errorf("creating mission %q: %w", d.Name, err)
		}
		slog.Info("created mission", "id", m.ID, "name", m.Name, "chief", m.ChiefHandle)
	}

	// Registration leaves the last chief signed in.
	if err := dir.Logout(ctx); err != nil {
		return err
	}

	fmt.Printf("\n=== Demo Data Seeded ===\n")
	fmt.Printf("Missions:  %d created\n", len(demoMissions))
	fmt.Printf("Chiefs:    sign in with their email and secret %q\n", demoSecret)
	fmt.Printf("\nTry it:\n")
	fmt.Printf("  curl -X POST http://localhost:%d/api/v1/auth/login -d '{\"credential_key\":\"alex.j@example.com\",\"secret\":\"%s\"}'\n", cfg.Server.Port, demoSecret)
	return nil
}
