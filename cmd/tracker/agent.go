package main

import (
	"context"
	"fmt"
	"io"

	"github.com/heliradar/tracker/internal/config"
	"github.com/heliradar/tracker/internal/model"
	"github.com/heliradar/tracker/internal/security"
	"github.com/heliradar/tracker/internal/store"
)

func runAgent(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 || args[0] != "add" {
		fmt.Fprintln(stderr, "Usage: tracker agent add --id <agentId> --name <name> --password <password>")
		return errUsage
	}

	fs, configPath := newFlagSet("agent add", stderr)
	id := fs.String("id", "", "Agent id used to sign in (required)")
	name := fs.String("name", "", "Display name (required)")
	password := fs.String("password", "", "Password; stored as a bcrypt hash (required)")
	if err := parseFlags(fs, args[1:]); err != nil {
		return err
	}
	if *id == "" || *name == "" || *password == "" {
		fmt.Fprintln(stderr, "Error: --id, --name and --password are required")
		fs.Usage()
		return errUsage
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	st, err := store.Open(ctx, cfg.MongoURI, store.Options{Database: cfg.Database})
	if err != nil {
		return err
	}
	defer st.Close()
	return addAgent(ctx, st, *id, *name, *password, stdout)
}

func addAgent(ctx context.Context, st store.Store, id, name, password string, w io.Writer) error {
	hash, err := security.HashPassword(password)
	if err != nil {
		return err
	}
	if err := st.SaveAgent(ctx, model.Agent{AgentID: id, Name: name, Password: hash}); err != nil {
		return err
	}
	fmt.Fprintf(w, "saved agent %s (%s)\n", id, name)
	return nil
}
