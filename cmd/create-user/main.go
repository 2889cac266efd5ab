package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/stemsi/cbt-backend/internal/config"
	"github.com/stemsi/cbt-backend/internal/database"
	"github.com/stemsi/cbt-backend/internal/logger"
	"github.com/stemsi/cbt-backend/internal/model"
	"github.com/stemsi/cbt-backend/internal/repository"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

func main() {
	role := flag.String("role", string(model.RoleStaff), "Account role: student, staff or admin")
	classID := flag.Int64("class", 0, "Student class id (students only)")
	flag.Parse()

	if !model.Role(*role).Valid() {
		fmt.Printf("Error: unknown role %q\n", *role)
		os.Exit(2)
	}
	if model.Role(*role) == model.RoleStudent && *classID <= 0 {
		fmt.Println("Error: students need -class")
		os.Exit(2)
	}

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)
	prompt := func(label string) string {
		fmt.Print(label)
		v, _ := reader.ReadString('\n')
		return strings.TrimSpace(v)
	}

	fmt.Printf("=== Create New %s Account ===\n", *role)

	username := prompt("Enter Username: ")
	if len(username) < 2 {
		fmt.Println("Error: Username must be at least 2 characters")
		return
	}
	firstName := prompt("Enter First Name: ")
	lastName := prompt("Enter Last Name: ")
	email := prompt("Enter Email (optional): ")

	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("Error reading password")
		return
	}
	if len(bytePassword) < 6 {
		fmt.Println("Error: Password must be at least 6 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword(bytePassword, cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	user := &model.User{
		Username:     username,
		FirstName:    firstName,
		LastName:     lastName,
		Email:        email,
		Role:         model.Role(*role),
		PasswordHash: string(hash),
	}
	if user.Role == model.RoleStudent {
		user.StudentClassID = classID
	}

	if err := userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			fmt.Printf("Error: username %q is taken\n", username)
			os.Exit(1)
		}
		log.Fatal().Err(err).Msg("Failed to create user")
	}

	fmt.Printf("\nSuccess! %s '%s' created with ID: %d\n", user.Role, user.FullName(), user.ID)
}
