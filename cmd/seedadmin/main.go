// Command seedadmin creates an admin account directly in the database.
// Admin accounts cannot be created through the public signup endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"

	"github.com/provsalt/eldercare/internal/config"
	"github.com/provsalt/eldercare/internal/models"
	"github.com/provsalt/eldercare/internal/store"
)

func main() {
	name := flag.String("name", "", "Admin display name")
	email := flag.String("email", "", "Admin email")
	password := flag.String("password", "", "Admin password")
	flag.Parse()

	if *name == "" || *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "Usage: seedadmin -name <name> -email <email> -password <password>")
		os.Exit(1)
	}

	cfg := config.Load()
	ctx := context.Background()

	var db store.DataStore
	if cfg.DatabaseURL != "" {
		if err := store.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
			fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
			os.Exit(1)
		}
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "postgres connection failed: %v\n", err)
			os.Exit(1)
		}
		defer pg.Close()
		db = pg
	} else {
		sqlite, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sqlite open failed: %v\n", err)
			os.Exit(1)
		}
		defer sqlite.Close()
		db = sqlite
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}

	user, err := db.CreateUser(ctx, *name, *email, string(hash), "", models.RoleAdmin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create admin: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Admin created: %s (%s)\n", user.ID, user.Email)
}
