// Spotify implementation of [Adapter]
//
// API response types based on https://developer.spotify.com/documentation/web-api/reference/
package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/syncta/internal/shared"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// Spotify accepts at most 100 items per playlist mutation.
	spotifyBatchSize = 100
	spotifyPageSize  = 50
)

type externalIDs struct {
	ISRC string `json:"isrc"`
}

type spotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type spotifyAlbum struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ReleaseDate string `json:"release_date"`
}

type spotifyTrack struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []spotifyArtist `json:"artists"`
	Album       spotifyAlbum    `json:"album"`
	DurationMS  int             `json:"duration_ms"`
	ExternalIDs externalIDs     `json:"external_ids"`
	URI         string          `json:"uri"`
}

type spotifyOwner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type spotifyPlaylist struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Owner       spotifyOwner `json:"owner"`
	Public      bool         `json:"public"`
	Tracks      struct {
		Total int `json:"total"`
	} `json:"tracks"`
}

type spotifyPage[T any] struct {
	Items  []T     `json:"items"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
	Next   *string `json:"next"`
}

type spotifyPlaylistItem struct {
	Track spotifyTrack `json:"track"`
}

// SpotifyAdapter implements [Adapter] for the Spotify Web API.
// Uses [oauth2] for authentication.
type SpotifyAdapter struct {
	config     *oauth2.Config
	token      *oauth2.Token
	httpClient *http.Client
	userID     string
}

// NewSpotifyAdapter creates a Spotify adapter with the given OAuth2 credentials.
func NewSpotifyAdapter(cfg shared.SpotifyConfig) (*SpotifyAdapter, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_id and client_secret", shared.ErrMissingCredentials)
	}

	redirectURI := cfg.RedirectURI
	if redirectURI == "" {
		redirectURI = "http://localhost:8080/callback"
	}

	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"user-read-private",
			"playlist-read-private",
			"playlist-read-collaborative",
			"playlist-modify-private",
			"playlist-modify-public",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	return &SpotifyAdapter{
		config:     config,
		httpClient: http.DefaultClient,
	}, nil
}

func (s *SpotifyAdapter) Name() string { return "spotify" }

// Capabilities declares what Spotify supports: playlist creation and
// modification of owned playlists, no hard deletes of shared content.
func (s *SpotifyAdapter) Capabilities() Capabilities {
	return Capabilities{
		CanCreate:           true,
		CanDelete:           true,
		CanModifyShared:     false,
		RateBudgetPerMinute: 120,
		MaxBatchSize:        spotifyBatchSize,
	}
}

// Authenticated reports whether a token is cached.
func (s *SpotifyAdapter) Authenticated() bool { return s.token != nil }

// AuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyAdapter) AuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Token returns the cached OAuth2 token, nil before authentication.
func (s *SpotifyAdapter) Token() *oauth2.Token { return s.token }

// SetToken installs a previously obtained token (e.g. from the credential store).
func (s *SpotifyAdapter) SetToken(ctx context.Context, token *oauth2.Token) {
	s.token = token
	s.httpClient = s.config.Client(ctx, token)
}

// ExchangeCode exchanges an OAuth authorization code for a token.
func (s *SpotifyAdapter) ExchangeCode(ctx context.Context, code string) error {
	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("%w: code exchange: %v", shared.ErrAuthFailed, err)
	}
	s.SetToken(ctx, token)
	return nil
}

// Authenticate verifies the cached token by fetching the user profile.
// The interactive part of the OAuth flow happens in the CLI; by the time
// the core calls Authenticate a token must already be installed.
func (s *SpotifyAdapter) Authenticate(ctx context.Context) error {
	if s.token == nil {
		return fmt.Errorf("%w: no spotify token", shared.ErrAuthFailed)
	}

	var user struct {
		ID string `json:"id"`
	}
	if err := s.doRequest(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return err
	}
	s.userID = user.ID
	return nil
}

// ListPlaylists retrieves all playlists for the current user, following
// pagination until exhausted.
func (s *SpotifyAdapter) ListPlaylists(ctx context.Context) ([]Playlist, error) {
	var playlists []Playlist

	offset := 0
	for {
		endpoint := fmt.Sprintf("/me/playlists?limit=%d&offset=%d", spotifyPageSize, offset)

		var page spotifyPage[spotifyPlaylist]
		if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}

		for _, pl := range page.Items {
			playlists = append(playlists, Playlist{
				ID:          pl.ID,
				Name:        pl.Name,
				Description: pl.Description,
				TrackCount:  pl.Tracks.Total,
				IsOwned:     pl.Owner.ID == s.userID,
				Public:      pl.Public,
			})
		}

		if page.Next == nil || len(page.Items) == 0 {
			break
		}
		offset += len(page.Items)
	}

	return playlists, nil
}

// PlaylistTracks fetches all tracks of a playlist in platform order.
func (s *SpotifyAdapter) PlaylistTracks(ctx context.Context, externalID string) ([]Track, error) {
	var tracks []Track

	offset := 0
	for {
		endpoint := fmt.Sprintf("/playlists/%s/tracks?limit=%d&offset=%d", externalID, spotifyPageSize, offset)

		var page spotifyPage[spotifyPlaylistItem]
		if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			if item.Track.ID == "" {
				continue // local or unavailable tracks have no id
			}
			tracks = append(tracks, convertSpotifyTrack(item.Track))
		}

		if page.Next == nil || len(page.Items) == 0 {
			break
		}
		offset += len(page.Items)
	}

	return tracks, nil
}

// CreatePlaylist creates a new playlist for the current user.
func (s *SpotifyAdapter) CreatePlaylist(ctx context.Context, name, description string, private bool) (string, error) {
	if s.userID == "" {
		if err := s.Authenticate(ctx); err != nil {
			return "", err
		}
	}

	body := map[string]any{
		"name":        name,
		"description": description,
		"public":      !private,
	}

	var created spotifyPlaylist
	endpoint := fmt.Sprintf("/users/%s/playlists", url.PathEscape(s.userID))
	if err := s.doRequest(ctx, http.MethodPost, endpoint, body, &created); err != nil {
		return "", err
	}

	return created.ID, nil
}

// AddTracks adds tracks to a playlist in batches of at most 100.
func (s *SpotifyAdapter) AddTracks(ctx context.Context, externalID string, trackIDs []string) (BatchResult, error) {
	var result BatchResult

	for _, batch := range chunk(trackIDs, spotifyBatchSize) {
		body := map[string]any{"uris": trackURIs(batch)}
		endpoint := fmt.Sprintf("/playlists/%s/tracks", externalID)

		if err := s.doRequest(ctx, http.MethodPost, endpoint, body, nil); err != nil {
			return result, err
		}
		result.Succeeded = append(result.Succeeded, batch...)
	}

	return result, nil
}

// RemoveTracks removes tracks from a playlist in batches of at most 100.
func (s *SpotifyAdapter) RemoveTracks(ctx context.Context, externalID string, trackIDs []string) (BatchResult, error) {
	var result BatchResult

	for _, batch := range chunk(trackIDs, spotifyBatchSize) {
		uris := make([]map[string]string, len(batch))
		for i, uri := range trackURIs(batch) {
			uris[i] = map[string]string{"uri": uri}
		}
		body := map[string]any{"tracks": uris}
		endpoint := fmt.Sprintf("/playlists/%s/tracks", externalID)

		if err := s.doRequest(ctx, http.MethodDelete, endpoint, body, nil); err != nil {
			return result, err
		}
		result.Succeeded = append(result.Succeeded, batch...)
	}

	return result, nil
}

// Search searches the Spotify catalog for tracks.
func (s *SpotifyAdapter) Search(ctx context.Context, query string, limit int) ([]Track, error) {
	if limit <= 0 || limit > spotifyPageSize {
		limit = 10
	}

	endpoint := fmt.Sprintf("/search?type=track&q=%s&limit=%d", url.QueryEscape(query), limit)

	var response struct {
		Tracks spotifyPage[spotifyTrack] `json:"tracks"`
	}
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, len(response.Tracks.Items))
	for _, t := range response.Tracks.Items {
		tracks = append(tracks, convertSpotifyTrack(t))
	}
	return tracks, nil
}

// doRequest performs an authenticated request and classifies HTTP
// failures into the shared error taxonomy.
func (s *SpotifyAdapter) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	if s.token == nil {
		return fmt.Errorf("%w: not authenticated", shared.ErrAuthFailed)
	}

	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, spotifyBaseURL+endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", shared.ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: spotify returned 401", shared.ErrAuthFailed)
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: spotify returned 403", shared.ErrNotPermitted)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: spotify returned 404", shared.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: spotify returned 429", shared.ErrRateLimited)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: spotify returned %d", shared.ErrTransient, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("spotify API error: status %d", resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

func convertSpotifyTrack(t spotifyTrack) Track {
	artist := ""
	if len(t.Artists) > 0 {
		artist = t.Artists[0].Name
	}
	return Track{
		ID:         t.ID,
		URI:        t.URI,
		Title:      t.Name,
		Artist:     artist,
		Album:      t.Album.Name,
		DurationMS: t.DurationMS,
		ISRC:       t.ExternalIDs.ISRC,
	}
}

func trackURIs(ids []string) []string {
	uris := make([]string, len(ids))
	for i, id := range ids {
		if strings.HasPrefix(id, "spotify:") {
			uris[i] = id
		} else {
			uris[i] = "spotify:track:" + id
		}
	}
	return uris
}

func chunk(items []string, size int) [][]string {
	if size <= 0 {
		return [][]string{items}
	}
	var batches [][]string
	for len(items) > size {
		batches = append(batches, items[:size])
		items = items[size:]
	}
	if len(items) > 0 {
		batches = append(batches, items)
	}
	return batches
}
