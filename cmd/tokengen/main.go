// Command tokengen issues an HS256 access token for local testing. The
// signing secret comes from the server configuration, so tokens it prints are
// accepted by a server started with the same config.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-assess/internal/config"
	"github.com/phrazzld/scry-assess/internal/service/auth"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	user := flag.String("user", "", "user ID to embed in the token (random when empty)")
	lifetime := flag.Int("lifetime", 0, "token lifetime in minutes (config value when zero)")
	flag.Parse()

	cfg, err := config.LoadFrom(*configPath)
	if err != nil {
		log.Fatalf("tokengen: failed to load configuration: %v", err)
	}
	if err := issue(context.Background(), os.Stdout, cfg.Auth, *user, *lifetime); err != nil {
		log.Fatalf("tokengen: %v", err)
	}
}

// issue writes the user ID and a signed token to out.
func issue(ctx context.Context, out io.Writer, cfg config.AuthConfig, user string, lifetime int) error {
	userID := uuid.New()
	if user != "" {
		var err error
		if userID, err = uuid.Parse(user); err != nil {
			return fmt.Errorf("invalid user ID %q: %w", user, err)
		}
	}
	if lifetime > 0 {
		cfg.TokenLifetimeMinutes = lifetime
	}

	jwtService, err := auth.NewJWTService(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	token, err := jwtService.GenerateToken(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	_, err = fmt.Fprintf(out, "user_id: %s\ntoken: %s\n", userID, token)
	return err
}
