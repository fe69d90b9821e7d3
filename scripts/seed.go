//go:build ignore

// Seed creates a development agent with a personal organization and one
// sample deal built from the first timeline template.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/hugh/estateflow/internal/auth"
	"github.com/hugh/estateflow/internal/database"
	"github.com/hugh/estateflow/internal/database/models"
	"github.com/hugh/estateflow/internal/deals"
	"github.com/hugh/estateflow/internal/email"
	"github.com/hugh/estateflow/internal/migration"
	"github.com/hugh/estateflow/pkg/config"
	"github.com/hugh/estateflow/pkg/util"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env, cfg.Server.LogLevel)
	ctx := context.Background()

	db, err := database.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to get database handle: %v", err)
	}
	if err := database.RunMigrations(sqlDB); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}
	if _, err := migration.NewRunner(db, logger, migration.Default()...).Run(ctx); err != nil {
		log.Fatalf("failed to run data migrations: %v", err)
	}

	templates, err := email.LoadTemplates()
	if err != nil {
		log.Fatalf("failed to load email templates: %v", err)
	}
	notifier := email.NewNotifier(templates, email.Direct{Sender: email.NewLogSender(logger)}, logger)

	address := os.Getenv("SEED_AGENT_EMAIL")
	if address == "" {
		address = "agent@example.com"
	}
	name := "Demo Agent"

	agent := models.Agent{
		Email:              auth.NormalizeEmail(address),
		FullName:           &name,
		BrandColor:         models.DefaultBrandColor,
		SubscriptionStatus: models.SubscriptionTrial,
	}
	if err := db.Where(models.Agent{Email: agent.Email}).FirstOrCreate(&agent).Error; err != nil {
		log.Fatalf("failed to create agent: %v", err)
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Audience, cfg.JWT.Expiry())
	authService := auth.NewService(db, jwtService, notifier, auth.ServiceOptions{
		FrontendURL: cfg.App.FrontendURL,
		Logger:      logger,
	})
	resp, err := authService.IssueToken(ctx, &agent)
	if err != nil {
		log.Fatalf("failed to issue token: %v", err)
	}

	dealService := deals.NewService(db, notifier, nil, deals.ServiceOptions{
		FrontendURL: cfg.App.FrontendURL,
		Logger:      logger,
	})
	rc := auth.RequestContext{
		AgentID:        agent.ID,
		OrganizationID: resp.Membership.OrganizationID,
		Role:           resp.Membership.Role,
	}

	input := deals.CreateInput{ClientName: "Jane Buyer", ClientEmail: "client@example.com"}
	if list, err := dealService.ListTemplates(ctx); err == nil && len(list) > 0 {
		input.TemplateID = &list[0].ID
	}
	deal, err := dealService.Create(ctx, rc, input)
	if err != nil {
		log.Printf("sample deal not created: %v", err)
	}

	fmt.Println("Seed complete")
	fmt.Printf("  Agent:        %s\n", agent.Email)
	fmt.Printf("  Organization: %s\n", resp.Membership.OrganizationID)
	fmt.Printf("  Token:        %s\n", resp.Token)
	if deal != nil {
		fmt.Printf("  Portal:       %s\n", dealService.PortalLink(deal))
	}
}
