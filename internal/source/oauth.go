package source

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"

	appLog "calpost/internal/log"
)

const oauthCallbackAddr = ":8066"

// Authorize runs the interactive oauth consent flow for the Google
// backend: it prints an authorization URL, waits for the redirect on a
// local callback server, exchanges the code and stores the resulting
// token at tokenPath with 0600 permissions.
func Authorize(ctx context.Context, credPath, tokenPath string) error {
	credBytes, err := os.ReadFile(credPath)
	if err != nil {
		return fmt.Errorf("reading credentials: %w", err)
	}
	conf, err := google.ConfigFromJSON(credBytes, calendar.CalendarReadonlyScope)
	if err != nil {
		return fmt.Errorf("parsing credentials: %w", err)
	}

	state, err := randomState()
	if err != nil {
		return err
	}

	codeCh := make(chan string, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			http.Error(w, "invalid state", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "Authorization received. You can close this page now.")
		codeCh <- r.URL.Query().Get("code")
	})
	srv := &http.Server{Addr: oauthCallbackAddr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("oauth callback server failed", err)
		}
	}()

	redirect := "http://localhost" + oauthCallbackAddr + "/"
	authURL := conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("redirect_uri", redirect),
	)
	fmt.Printf("Open the following link in your browser to authorize:\n%s\n", authURL)

	var code string
	select {
	case code = <-codeCh:
	case <-ctx.Done():
		_ = srv.Close()
		return ctx.Err()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("oauth callback server shutdown failed", err)
	}

	tok, err := conf.Exchange(ctx, code, oauth2.SetAuthURLParam("redirect_uri", redirect))
	if err != nil {
		return fmt.Errorf("exchanging authorization code: %w", err)
	}

	tokenBytes, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("marshalling token: %w", err)
	}
	if err := os.WriteFile(tokenPath, tokenBytes, 0o600); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}

	appLog.Info("oauth token stored", "path", tokenPath)
	return nil
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating oauth state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
