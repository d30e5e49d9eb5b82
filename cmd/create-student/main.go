package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/sankhya-academy/exam-backend/internal/config"
	"github.com/sankhya-academy/exam-backend/internal/database"
	"github.com/sankhya-academy/exam-backend/internal/logger"
	"github.com/sankhya-academy/exam-backend/internal/model"
	"github.com/sankhya-academy/exam-backend/internal/repository"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	studentRepo := repository.NewStudentRepository(pool)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Create New Student ===")

	// Name
	fmt.Print("Enter Name: ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)
	if name == "" {
		fmt.Println("Error: Name is required")
		return
	}

	// Email
	fmt.Print("Enter Email: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)
	if email == "" {
		fmt.Println("Error: Email is required")
		return
	}

	// Abacus level
	fmt.Print("Enter Level [1]: ")
	levelInput, _ := reader.ReadString('\n')
	levelInput = strings.TrimSpace(levelInput)
	level := 1
	if levelInput != "" {
		level, err = strconv.Atoi(levelInput)
		if err != nil || level < 1 {
			fmt.Println("Error: Level must be a positive number")
			return
		}
	}

	// Password
	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		fmt.Println("\nError reading password")
		return
	}
	password := string(bytePassword)
	fmt.Println() // Newline after password input
	if len(password) < 6 {
		fmt.Println("Error: Password must be at least 6 characters")
		return
	}

	// ─── Logic ─────────────────────────────────────────────────────────

	// Hash Password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	newStudent := &model.Student{
		Name:         name,
		Email:        email,
		PasswordHash: string(hashedPassword),
		Level:        level,
	}

	if err := studentRepo.Create(ctx, newStudent); err != nil {
		log.Fatal().Err(err).Msg("Failed to create student")
	}

	fmt.Printf("\nSuccess! Student '%s' (%s, level %d) created with ID: %d\n",
		newStudent.Name, newStudent.Email, newStudent.Level, newStudent.ID)
}
