//go:build ignore

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/viprahq/viprago/internal/auth"
	"github.com/viprahq/viprago/internal/database"
	"github.com/viprahq/viprago/internal/database/models"
	"github.com/viprahq/viprago/pkg/config"
	"github.com/viprahq/viprago/pkg/util"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	// Create admin user and organization
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	authService := auth.NewService(db, jwtService)

	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	name := os.Getenv("ADMIN_NAME")

	if email == "" {
		email = "admin@example.com"
	}
	if password == "" {
		password = "Admin123!"
	}
	if name == "" {
		name = "Admin"
	}

	resp, err := authService.Register(context.Background(), auth.RegisterInput{
		Email:    email,
		Password: password,
		Name:     name,
		OrgName:  "Default Organization",
	})

	if err != nil {
		if err == auth.ErrUserExists {
			fmt.Printf("Admin user already exists: %s\n", email)
			return
		}
		log.Fatalf("failed to create admin user: %v", err)
	}

	orgID := resp.User.OrganizationID

	// A starter team with a manager and two members
	managerHash, err := auth.HashPassword("Manager123!")
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}
	manager := models.User{
		Email:          "manager@example.com",
		PasswordHash:   managerHash,
		Name:           "Morgan Manager",
		OrganizationID: orgID,
		Role:           models.RoleManager,
		IsActive:       true,
		JobTitle:       "Engineering Manager",
		Department:     "Engineering",
	}
	if err := db.Create(&manager).Error; err != nil {
		log.Fatalf("failed to create manager: %v", err)
	}

	team := models.Team{
		OrganizationID: orgID,
		Name:           "Engineering",
		ManagerID:      &manager.ID,
	}
	if err := db.Create(&team).Error; err != nil {
		log.Fatalf("failed to create team: %v", err)
	}
	if err := db.Model(&manager).Update("team_id", team.ID).Error; err != nil {
		log.Fatalf("failed to place manager on team: %v", err)
	}

	for i := 1; i <= 2; i++ {
		hash, err := auth.HashPassword("Member123!")
		if err != nil {
			log.Fatalf("failed to hash password: %v", err)
		}
		member := models.User{
			Email:          fmt.Sprintf("member%d@example.com", i),
			PasswordHash:   hash,
			Name:           fmt.Sprintf("Member %d", i),
			OrganizationID: orgID,
			Role:           models.RoleMember,
			TeamID:         &team.ID,
			IsActive:       true,
			Department:     "Engineering",
		}
		if err := db.Create(&member).Error; err != nil {
			log.Fatalf("failed to create member: %v", err)
		}
	}

	fmt.Printf("Seed complete!\n")
	fmt.Printf("Admin: %s / %s\n", email, password)
	fmt.Printf("Manager: manager@example.com / Manager123!\n")
	fmt.Printf("Members: member1@example.com, member2@example.com / Member123!\n")
	fmt.Printf("Token: %s\n", resp.Token)
}
