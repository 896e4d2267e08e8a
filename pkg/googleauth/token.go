package googleauth

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	eventdomain "mailcal/internal/event/domain"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
)

// Scopes needed to read mail and insert calendar events
var Scopes = []string{gmail.GmailModifyScope, calendar.CalendarScope}

// TokenUpdateFunc is a callback function that handles token updates
type TokenUpdateFunc func(*oauth2.Token) error

type notifyTokenSource struct {
	mu       sync.Mutex
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback TokenUpdateFunc
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(t); err != nil {
			log.Warn().Err(err).Msg("googleauth: failed to persist refreshed token")
		}
	}
	return t, nil
}

// LoadConfig reads the OAuth client secret file downloaded from the Google console
func LoadConfig(credentialsFile string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, &eventdomain.AuthError{Service: "google", Err: fmt.Errorf("unable to read client secret file: %w", err)}
	}
	cfg, err := google.ConfigFromJSON(b, Scopes...)
	if err != nil {
		return nil, &eventdomain.AuthError{Service: "google", Err: fmt.Errorf("unable to parse client secret file: %w", err)}
	}
	return cfg, nil
}

// NewHTTPClient returns an authorized client for the stored token.
// Refreshed tokens are written back to tokenFile.
func NewHTTPClient(ctx context.Context, cfg *oauth2.Config, tokenFile string) (*http.Client, error) {
	tok, err := TokenFromFile(tokenFile)
	if err != nil {
		return nil, &eventdomain.AuthError{
			Service: "google",
			Err:     fmt.Errorf("no usable token at %s (run `mailcal auth`): %w", tokenFile, err),
		}
	}

	src := &notifyTokenSource{
		src:     cfg.TokenSource(ctx, tok),
		current: tok,
		callback: func(t *oauth2.Token) error {
			return SaveToken(tokenFile, t)
		},
	}
	return oauth2.NewClient(ctx, src), nil
}

// Authorize runs the interactive consent flow: print the URL, read the code, exchange it
func Authorize(ctx context.Context, cfg *oauth2.Config, in io.Reader, out io.Writer) (*oauth2.Token, error) {
	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintf(out, "Go to the following link in your browser then type the "+
		"authorization code: \n%v\n", authURL)

	code, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("unable to read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("empty authorization code")
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, &eventdomain.AuthError{Service: "google", Err: fmt.Errorf("unable to retrieve token from web: %w", err)}
	}
	return tok, nil
}

// TokenFromFile reads a JSON-encoded token
func TokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, err
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("token file %s holds no credentials", path)
	}
	return tok, nil
}

// SaveToken writes tok to path with owner-only permissions
func SaveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to save oauth token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(tok)
}
