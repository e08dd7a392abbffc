package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jrsteele09/go-session-server/accounts"
	fakeaccountstore "github.com/jrsteele09/go-session-server/accounts/storefakes"
	"github.com/jrsteele09/go-session-server/auth"
	"github.com/jrsteele09/go-session-server/gateway"
	"github.com/jrsteele09/go-session-server/internal/config"
	"github.com/jrsteele09/go-session-server/internal/cryptutil"
	"github.com/jrsteele09/go-session-server/provider"
	"github.com/jrsteele09/go-session-server/server"
	"github.com/jrsteele09/go-session-server/services"
	fakeserviceregistry "github.com/jrsteele09/go-session-server/services/registryfakes"
	"github.com/jrsteele09/go-session-server/session"
	"github.com/jrsteele09/go-session-server/token"
)

const demoAccountID = "demo-account"

func main() {
	for {
		if err := run(); err != nil {
			log.Fatalf("Error running server: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Printf("Server stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	srv, gw, err := buildServer(context.Background(), c)
	if err != nil {
		return err
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: srv}
	go listenAndServe(httpServer)
	waitForStopSignal()
	gw.Close()
	returnError = shutdown(httpServer)
	return returnError
}

// buildServer assembles the full stack: derived signing keys, the token
// lifecycle, the cookie-backed session layer, the control-plane gateway, and
// the HTTP surface on top.
func buildServer(ctx context.Context, c config.Config) (*server.Server, *gateway.Gateway, error) {
	rootSecret, err := loadRootSecret(c)
	if err != nil {
		return nil, nil, err
	}

	credentialKey, err := cryptutil.DeriveKey(rootSecret, cryptutil.UsageCredentials, cryptutil.DefaultKeySize)
	if err != nil {
		return nil, nil, fmt.Errorf("derive credential key: %w", err)
	}
	sessionKey, err := cryptutil.DeriveKey(rootSecret, cryptutil.UsageSessionCookie, cryptutil.DefaultKeySize)
	if err != nil {
		return nil, nil, fmt.Errorf("derive session key: %w", err)
	}

	idp, err := buildProvider(ctx, c)
	if err != nil {
		return nil, nil, err
	}

	codec := token.NewCodec(token.NewHMACSigner(credentialKey), token.WithIssuer(c.GetTokenIssuer()))
	tokens := token.New(codec, idp, token.WithTokenExpiry(c.GetAccessTokenExpiry(), c.GetRefreshTokenExpiry()))

	encoder := session.NewRecordEncoder(token.NewHMACSigner(sessionKey))
	store, err := session.NewCookieStore(encoder, session.CookieOptions{
		Domain:          c.GetCookieDomain(),
		Secure:          c.GetHardenedMode(),
		AccountBasePath: c.GetAccountBasePath(),
		Expire:          c.GetSessionCookieExpiry(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create cookie store: %w", err)
	}

	// Account records and the service directory live in external systems.
	// The in-memory stores stand in until those clients are wired up.
	repo := fakeaccountstore.NewFakeAccountStore()
	registry := fakeserviceregistry.NewFakeServiceRegistry()
	if c.GetEnv() == "DEV" {
		if err := seedDevData(repo, registry); err != nil {
			return nil, nil, fmt.Errorf("seed dev data: %w", err)
		}
	}

	sessions, err := session.NewManager(store, repo)
	if err != nil {
		return nil, nil, fmt.Errorf("create session manager: %w", err)
	}

	gatewayOptions := []gateway.Option{
		gateway.WithMetrics(gateway.NewMetrics(prometheus.DefaultRegisterer)),
		gateway.WithHeartbeat(c.GetHeartbeatInterval()),
		gateway.WithQueueSize(c.GetSendQueueSize()),
		gateway.WithReadLimit(c.GetReadLimit()),
	}
	if c.GetHardenedMode() {
		gatewayOptions = append(gatewayOptions, gateway.WithHardenedMode())
	}
	if patterns := c.GetAllowedOriginPatterns(); len(patterns) > 0 {
		gatewayOptions = append(gatewayOptions, gateway.WithOriginPatterns(patterns...))
	}

	gw, err := gateway.New(gateway.Deps{
		Tokens:   tokens,
		Sessions: sessions,
		Accounts: repo,
		Registry: registry,
	}, gatewayOptions...)
	if err != nil {
		return nil, nil, fmt.Errorf("create gateway: %w", err)
	}

	authService, err := auth.NewService(auth.Repos{Accounts: repo}, tokens, sessions, auth.WithEventSink(gw))
	if err != nil {
		return nil, nil, fmt.Errorf("create auth service: %w", err)
	}

	srv, err := server.New(c, auth.Repos{Accounts: repo}, authService, gw)
	if err != nil {
		return nil, nil, fmt.Errorf("create server: %w", err)
	}
	return srv, gw, nil
}

// loadRootSecret reads the deployment root secret. Outside DEV a missing
// secret refuses to start; in DEV an ephemeral secret is generated, which
// invalidates every session and token on restart.
func loadRootSecret(c config.Config) ([]byte, error) {
	if secret := c.GetRootSecret(); secret != "" {
		return []byte(secret), nil
	}
	if c.GetEnv() != "DEV" {
		return nil, errors.New("ROOT_SECRET must be set outside DEV")
	}

	generated := make([]byte, 32)
	if _, err := rand.Read(generated); err != nil {
		return nil, fmt.Errorf("generate dev root secret: %w", err)
	}
	log.Printf("⚠️  ROOT_SECRET not set - using an ephemeral secret, sessions will not survive restarts")
	return generated, nil
}

func buildProvider(ctx context.Context, c config.Config) (token.Provider, error) {
	if !c.ProviderConfigured() {
		return nil, nil
	}
	idp, err := provider.New(ctx, provider.Options{
		Name:          "primary",
		IssuerURL:     c.GetProviderIssuerURL(),
		ClientID:      c.GetProviderClientID(),
		ClientSecret:  c.GetProviderClientSecret(),
		TokenURL:      c.GetProviderTokenURL(),
		RevocationURL: c.GetProviderRevokeURL(),
	})
	if err != nil {
		return nil, fmt.Errorf("configure identity provider: %w", err)
	}
	return idp, nil
}

// seedDevData puts a demo account and a couple of control-plane services into
// the in-memory stores so a fresh checkout is usable immediately.
func seedDevData(repo *fakeaccountstore.FakeAccountStore, registry *fakeserviceregistry.FakeServiceRegistry) error {
	password, err := generatePassword()
	if err != nil {
		return err
	}
	passwordHash, err := accounts.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash demo password: %w", err)
	}

	demo, err := accounts.NewLocalAccount(demoAccountID, "demo@localhost", "demo", passwordHash)
	if err != nil {
		return fmt.Errorf("create demo account: %w", err)
	}
	if err := repo.Upsert(demo); err != nil {
		return fmt.Errorf("seed demo account: %w", err)
	}

	for _, svc := range []*services.Service{
		{ID: "svc-dashboard", Name: "Dashboard", Description: "Browser dashboard backend"},
		{ID: "svc-billing", Name: "Billing", Description: "Billing and invoicing"},
	} {
		if err := registry.Register(svc); err != nil {
			return fmt.Errorf("seed service %s: %w", svc.ID, err)
		}
	}

	log.Printf("📋 Development data seeded:")
	log.Printf("   Demo account:     demo@localhost")
	log.Printf("   Password:         %s", password)
	log.Printf("   ⚠️  SAVE THIS PASSWORD - it will not be displayed again!")
	log.Printf("   Gateway services: svc-dashboard, svc-billing")
	return nil
}

func generatePassword() (string, error) {
	passwordBytes := make([]byte, 16)
	if _, err := rand.Read(passwordBytes); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return base64.URLEncoding.EncodeToString(passwordBytes), nil
}

func listenAndServe(server *http.Server) error {
	log.Printf("Server listening on %s\n", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
