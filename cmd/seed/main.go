// Command seed provisions an admin account out-of-band. Registration only
// produces patients and doctors; this is the sole path that creates an admin.
//
// Usage:
//
//	seed -email admin@example.com -name "Site Admin" -password <pw>
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	database "github.com/medicalq/backend/app/db"
	appLogger "github.com/medicalq/backend/app/logger"
	"github.com/medicalq/backend/config"
	"github.com/medicalq/backend/internal/api/auth"
	"github.com/medicalq/backend/internal/identity"
)

func main() {
	email := flag.String("email", "", "admin email address")
	name := flag.String("name", "Administrator", "admin display name")
	password := flag.String("password", "", "admin password (min 8 characters)")
	flag.Parse()

	if *email == "" || *password == "" {
		flag.Usage()
		os.Exit(2)
	}
	if len(*password) < 8 {
		log.Fatal("password must be at least 8 characters")
	}

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found or error loading:", err)
	}

	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("Error initializing config: %v", err)
	}
	logger := appLogger.Setup(cfg.Mode)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dbConfig, err := database.NewDatabaseConfig(&cfg, logger)
	if err != nil {
		log.Fatalf("Error generating database config: %v", err)
	}
	if err := database.RunMigrations(dbConfig.ConnectionURL, logger); err != nil {
		log.Fatalf("Error running migrations: %v", err)
	}
	pool, err := database.Init(dbConfig.ConnectionURL, logger)
	if err != nil {
		log.Fatalf("Error initializing database pool: %v", err)
	}
	defer pool.Close()

	if err := ensureSeedableDriver(cfg.Identity.Driver); err != nil {
		log.Fatalf("Refusing to seed: %v", err)
	}
	provider, err := identity.NewFirebaseProvider(ctx, cfg.Identity.ProjectID, cfg.Identity.CredentialsFile, logger)
	if err != nil {
		log.Fatalf("Error initializing identity provider: %v", err)
	}

	uid, err := provider.CreateUser(ctx, identity.NewUserParams{
		Email:       strings.ToLower(strings.TrimSpace(*email)),
		Password:    *password,
		DisplayName: *name,
	})
	if err != nil {
		log.Fatalf("Error creating provider account: %v", err)
	}

	repo := auth.NewPostgresUserRepo(pool, logger)
	admin, err := repo.CreateUser(ctx, &auth.User{
		FirebaseUID: uid,
		Name:        *name,
		Email:       strings.ToLower(strings.TrimSpace(*email)),
		Role:        auth.RoleAdmin,
		IsVerified:  true,
		IsActive:    true,
	})
	if err != nil {
		// Provider account exists without a local record at this point; the
		// operator has to clean up by hand.
		log.Fatalf("Error creating local admin record (provider uid %s left behind): %v", uid, err)
	}

	if err := provider.SetCustomClaims(ctx, uid, identity.Claims{
		Role:       string(auth.RoleAdmin),
		IsVerified: true,
	}); err != nil {
		log.Fatalf("Error setting admin claims (uid %s): %v", uid, err)
	}

	fmt.Printf("Admin account created: id=%s uid=%s email=%s\n", admin.ID, uid, admin.Email)
}

// ensureSeedableDriver rejects drivers whose accounts do not outlive this
// process. Seeding against the local driver would leave an admin row whose
// identity reference no server process could ever verify.
func ensureSeedableDriver(driver string) error {
	if driver == "firebase" {
		return nil
	}
	return fmt.Errorf("identity driver %q keeps accounts in process memory; seeding requires the firebase driver", driver)
}
