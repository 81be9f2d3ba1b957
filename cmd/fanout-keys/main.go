// Command fanout-keys prints a JWT secret and matching tokens for local
// deployments.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/fanout/internal/auth"
	"github.com/gosuda/fanout/internal/logging"
)

// roleTokenTTL is the lifetime of the anon and service_role tokens.
const roleTokenTTL = 10 * 365 * 24 * time.Hour

func main() {
	logging.Setup("info", logging.FormatText, os.Stderr)
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("fanout-keys failed")
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("fanout-keys", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	secret := fs.String("secret", "", "signing secret (random when empty)")
	user := fs.String("user", "", "also mint a token for this user id")
	role := fs.String("role", auth.RoleAuthenticated, "role of the user token")
	ttl := fs.Duration("ttl", time.Hour, "lifetime of the user token")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *secret == "" {
		s, err := randomSecret()
		if err != nil {
			return err
		}
		*secret = s
	} else if len(*secret) < 32 {
		return errors.New("secret must be at least 32 characters")
	}

	secretKeyBase, err := randomSecret()
	if err != nil {
		return err
	}

	anon, err := auth.IssueAccessToken(*secret, "", auth.RoleAnon, roleTokenTTL)
	if err != nil {
		return err
	}
	service, err := auth.IssueAccessToken(*secret, "", auth.RoleService, roleTokenTTL)
	if err != nil {
		return err
	}

	lines := []string{
		"FANOUT_JWT_SECRET=" + *secret,
		"FANOUT_ANON_KEY=" + anon,
		"FANOUT_SERVICE_ROLE_KEY=" + service,
		"SECRET_KEY_BASE=" + secretKeyBase,
	}

	if *user != "" {
		if *ttl <= 0 {
			return fmt.Errorf("ttl must be positive, got %s", *ttl)
		}
		userToken, issueErr := auth.IssueAccessToken(*secret, *user, *role, *ttl)
		if issueErr != nil {
			return issueErr
		}
		lines = append(lines, "FANOUT_USER_KEY="+userToken)
	}

	for _, line := range lines {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return fmt.Errorf("write: %w", err)
		}
	}
	return nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("random secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
