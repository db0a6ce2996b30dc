package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/desertthunder/syncta/internal/models"
	"github.com/desertthunder/syncta/internal/platforms"
	"github.com/desertthunder/syncta/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// AuthSpotify runs the OAuth2 flow for Spotify. Without --code it prints
// the authorization URL; with --code it exchanges the code and stores
// the token.
func (r *Runner) AuthSpotify(ctx context.Context, cmd *cli.Command) error {
	closer, err := r.open(cmd.String("config"))
	if err != nil {
		return err
	}
	defer closer()

	adapter, err := r.service.Adapter(models.PlatformSpotify)
	if err != nil {
		return fmt.Errorf("spotify is not configured; add credentials to config.toml: %w", err)
	}
	spotify, ok := adapter.(*platforms.SpotifyAdapter)
	if !ok {
		return fmt.Errorf("%w: unexpected adapter type", shared.ErrInvalidInput)
	}

	code := cmd.String("code")
	if code == "" {
		r.writePlain("Open this URL in your browser and authorize access:\n\n")
		r.writePlain("%s\n", spotify.AuthURL(shared.GenerateID()))
		r.writePlainln("Then run: syncta auth spotify --code <code from redirect URL>")
		return nil
	}

	if err := spotify.ExchangeCode(ctx, code); err != nil {
		return err
	}
	if err := spotify.Authenticate(ctx); err != nil {
		return err
	}
	if err := saveToken(spotify.Token()); err != nil {
		return err
	}

	r.writePlain("✓ Spotify authentication complete\n")
	return nil
}

// AuthStatus reports the authentication state of every registered adapter.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	closer, err := r.open(cmd.String("config"))
	if err != nil {
		return err
	}
	defer closer()

	for _, platform := range []models.Platform{models.PlatformSpotify} {
		adapter, err := r.service.Adapter(platform)
		if err != nil {
			r.writePlain("%-12s not configured\n", platform)
			continue
		}

		state := "token cached"
		if !adapter.Authenticated() {
			state = "not authenticated"
		} else if err := adapter.Authenticate(ctx); err != nil {
			state = fmt.Sprintf("token invalid: %v", err)
		} else {
			state = "authenticated"
		}
		r.writePlain("%-12s %s\n", platform, state)
	}
	return nil
}

// tokenPath returns the location of the stored OAuth token.
func tokenPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".syncta", "spotify_token.json"), nil
}

func saveToken(token *oauth2.Token) error {
	path, err := tokenPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}
	return nil
}

func loadToken() (*oauth2.Token, error) {
	path, err := tokenPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	return &token, nil
}
