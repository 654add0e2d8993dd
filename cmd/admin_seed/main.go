// Command admin_seed creates the admin account, with its wallet and points
// balance, from ADMIN_EMAIL, ADMIN_PASSWORD and ADMIN_PHONE.
package main

import (
	"context"
	"errors"
	"os"
	"strings"

	"airswitch/internal/config"
	"airswitch/internal/logger"
	"airswitch/internal/models"
	"airswitch/internal/repositories"
	"airswitch/internal/services/auth"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	adminEmail := strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL")))
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	adminPhone := strings.TrimSpace(os.Getenv("ADMIN_PHONE"))

	if adminEmail == "" || adminPassword == "" || adminPhone == "" {
		log.Fatal("ADMIN_EMAIL, ADMIN_PASSWORD, and ADMIN_PHONE must be set in environment")
	}

	ctx := context.Background()
	db, err := repositories.Open(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer func() {
		if err := repositories.Close(db); err != nil {
			log.Warn("failed to close database connection", zap.Error(err))
		}
	}()
	if err := repositories.Migrate(db); err != nil {
		log.Fatal("failed to migrate", zap.Error(err))
	}

	store := repositories.NewGormStore(db)
	if existing, err := store.Users().GetByEmail(ctx, adminEmail); err == nil {
		log.Info("admin user already exists", zap.Uint("user_id", existing.ID), zap.String("role", existing.Role))
		return
	} else if !errors.Is(err, repositories.ErrUserNotFound) {
		log.Fatal("failed to look up admin", zap.Error(err))
	}

	hashedPassword, err := auth.HashPassword(adminPassword, bcrypt.DefaultCost)
	if err != nil {
		log.Fatal("failed to hash password", zap.Error(err))
	}

	adminUser := &models.User{
		Email:        adminEmail,
		Password:     hashedPassword,
		Name:         "admin",
		Phone:        &adminPhone,
		Role:         models.RoleAdmin,
		Status:       "active",
		TokenVersion: 1,
	}

	err = store.Atomic(ctx, func(tx repositories.Store) error {
		if err := tx.Users().Create(ctx, adminUser); err != nil {
			return err
		}
		if err := tx.Wallets().Create(ctx, &models.Wallet{UserID: adminUser.ID}); err != nil {
			return err
		}
		_, err := tx.Points().GetOrCreate(ctx, adminUser.ID)
		return err
	})
	if err != nil {
		log.Fatal("failed to create admin user", zap.Error(err))
	}

	log.Info("admin account created", zap.Uint("user_id", adminUser.ID), zap.String("email", adminEmail))
}
