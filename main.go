// Command sokoban-ledger starts the Sokoban ledger client.
//
// It supports two modes:
//  1. "server" (default) – runs the HTTP server exposing REST API, WebSocket, and an /mcp HTTP endpoint
//  2. "stdio-mcp" – runs an MCP stdio server and spins up an internal HTTP API if none is available
//
// Settings come from the environment (and an optional .env file); flags
// override the network and level settings. The ledger backend is either the
// in-process simulator or a JSON-RPC node plus signing relay.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wricardo/sokoban-ledger/api"
	"github.com/wricardo/sokoban-ledger/chain"
	"github.com/wricardo/sokoban-ledger/chain/rpc"
	"github.com/wricardo/sokoban-ledger/chain/simchain"
	"github.com/wricardo/sokoban-ledger/game/config"
	"github.com/wricardo/sokoban-ledger/game/entity"
	"github.com/wricardo/sokoban-ledger/game/journal"
	"github.com/wricardo/sokoban-ledger/game/service"
	"github.com/wricardo/sokoban-ledger/game/session"
	"github.com/wricardo/sokoban-ledger/game/submit"
	"github.com/wricardo/sokoban-ledger/transport/mcp"
	"github.com/wricardo/sokoban-ledger/transport/websocket"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Sokoban Ledger"
)

// Flags override the environment when set.
var (
	port         = flag.Int("port", 0, "HTTP server port (default $PORT or 8080)")
	host         = flag.String("host", "", "HTTP server host (default $HTTP_HOST or localhost)")
	levelsDir    = flag.String("levels-dir", "", "Directory containing level files (default $LEVELS_DIR)")
	chainBackend = flag.String("chain", "", "Ledger backend: sim or rpc (default $CHAIN_BACKEND or sim)")
	debug        = flag.Bool("debug", false, "Enable debug logging")
	version      = flag.Bool("version", false, "Show version information")
	ngrokEnabled = flag.Bool("ngrok", false, "Enable ngrok tunnel")
	ngrokAuth    = flag.String("ngrok-auth", "", "Ngrok auth token (or use NGROK_AUTHTOKEN env var)")
	ngrokDomain  = flag.String("ngrok-domain", "", "Custom ngrok domain (optional)")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] [MODE]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "%s v%s\n\n", AppName, Version)
		fmt.Fprintf(os.Stderr, "Available modes:\n")
		fmt.Fprintf(os.Stderr, "  server, http     Run HTTP server with API, WebSocket, and MCP endpoint (default)\n")
		fmt.Fprintf(os.Stderr, "  stdio-mcp        Run MCP stdio server with internal HTTP server\n")
		fmt.Fprintf(os.Stderr, "  mcp-stdio        Alias for stdio-mcp\n")
		fmt.Fprintf(os.Stderr, "  mcp              Alias for stdio-mcp\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                    # Run HTTP server on default port 8080\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -port 9090         # Run HTTP server on port 9090\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -chain rpc         # Talk to a real node (needs RPC_URL, RELAY_URL and object IDs)\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s stdio-mcp          # Run MCP stdio server\n", os.Args[0])
	}
}

// main parses flags, initializes services, and starts the selected mode.
func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("error loading .env file")
	}

	flag.Parse()

	if *version {
		fmt.Printf("%s v%s\n", AppName, Version)
		os.Exit(0)
	}

	settings, err := config.LoadSettings()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid settings")
	}
	applyFlags(&settings)
	if err := settings.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid settings")
	}

	setupLogging(settings.LogLevel, *debug)

	// Determine mode from command
	args := flag.Args()
	mode := "server"
	if len(args) > 0 {
		mode = args[0]
	}

	log.Info().Str("version", Version).Str("mode", mode).Str("chain", settings.ChainBackend).Msgf("starting %s", AppName)

	app, err := initializeServices(settings)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize services")
	}
	defer app.Close()

	switch mode {
	case "stdio-mcp", "mcp-stdio", "mcp":
		runStdioMCPWithInternalServer(app, settings)

	case "server", "http":
		runHTTPServer(app, settings)

	default:
		log.Fatal().Msgf("unknown mode: %s. Use 'server' (default) or 'stdio-mcp'", mode)
	}
}

// applyFlags copies explicitly set flags over the environment settings
func applyFlags(s *config.Settings) {
	if *port != 0 {
		s.Port = *port
	}
	if *host != "" {
		s.Host = *host
	}
	if *levelsDir != "" {
		s.LevelsDir = *levelsDir
	}
	if *chainBackend != "" {
		s.ChainBackend = *chainBackend
	}
	if *ngrokEnabled {
		s.NgrokEnabled = true
	}
	if *ngrokAuth != "" {
		s.NgrokAuthToken = *ngrokAuth
	}
	if *ngrokDomain != "" {
		s.NgrokDomain = *ngrokDomain
	}
}

func setupLogging(level string, debug bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	if debug {
		lvl = zerolog.DebugLevel
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Caller().Logger()
	}
	zerolog.SetGlobalLevel(lvl)
}

// backend is everything the services need from a ledger
type backend interface {
	chain.PositionLookup
	chain.Validator
	chain.SessionReader
}

// services holds the wired application and what must be released on exit
type services struct {
	game     service.GameService
	sessions *session.Manager
	store    session.SessionPersistence
	closers  []io.Closer
}

// Close saves in-memory sessions and releases the journal and store
func (a *services) Close() {
	if err := a.sessions.SaveAllSessions(); err != nil {
		log.Warn().Err(err).Msg("failed to save sessions on shutdown")
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			log.Warn().Err(err).Msg("close failed")
		}
	}
}

// initializeServices wires level catalog, ledger backend, session store and
// the game service. It also starts background routines that prune stale
// sessions.
func initializeServices(settings config.Settings) (*services, error) {
	levels, err := config.NewManager(settings.LevelsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create level manager: %w", err)
	}
	log.Info().Int("levels", levels.Count()).Str("dir", settings.LevelsDir).Msg("level catalog loaded")

	ledger, gridID := newBackend(settings, levels)

	app := &services{}

	var recorder submit.Recorder
	if settings.JournalDir != "" {
		w := journal.NewWriter(settings.JournalDir)
		recorder = w
		app.closers = append(app.closers, w)
	}

	store, err := openStore(settings, levels)
	if err != nil {
		return nil, err
	}
	app.store = store
	if c, ok := store.(io.Closer); ok {
		app.closers = append(app.closers, c)
	}

	app.sessions = session.NewManagerWithPersistence(store)
	if err := app.sessions.LoadPersistedSessions(); err != nil {
		log.Warn().Err(err).Msg("failed to load persisted sessions")
	}

	app.game = service.NewGameService(
		app.sessions,
		levels,
		entity.NewResolver(ledger, gridID),
		submit.NewSubmitter(ledger, recorder),
		service.WithSessionReader(ledger),
	)

	go sessionCleanupRoutine(app.sessions, settings.SessionTTL)
	go storeSyncRoutine(app.sessions, store)

	return app, nil
}

// newBackend selects the simulated ledger or a real node plus relay
func newBackend(settings config.Settings, levels *config.Manager) (backend, chain.ObjectID) {
	if settings.ChainBackend == config.ChainRPC {
		objects := rpc.Objects{
			Package:       settings.PackageID,
			EntityPackage: settings.EntityPackageID,
			Game:          settings.GameID,
			World:         settings.WorldID,
			Grid:          settings.GridID,
		}
		log.Info().Str("rpc", settings.RPCURL).Str("relay", settings.RelayURL).Str("game", settings.GameID).Msg("using remote ledger")
		return rpc.NewBackend(settings.RPCURL, settings.RelayURL, objects, settings.PollInterval, settings.RPCTimeout), chain.ObjectID(settings.GridID)
	}

	sim := simchain.New(levels)
	log.Info().Str("grid", string(sim.GridID())).Msg("using simulated ledger")
	return sim, sim.GridID()
}

// openStore opens the configured session store
func openStore(settings config.Settings, levels session.LevelLoader) (session.SessionPersistence, error) {
	if settings.SessionStore == config.StoreSQLite {
		db, err := session.OpenSQLite(settings.SQLitePath, levels)
		if err != nil {
			return nil, fmt.Errorf("failed to open session database: %w", err)
		}
		if counts, err := db.CountByStatus(); err == nil {
			log.Info().
				Int("active", counts[service.StatusActive]).
				Int("submitting", counts[service.StatusSubmitting]).
				Int("solved", counts[service.StatusSolved]).
				Str("path", settings.SQLitePath).
				Msg("session database opened")
		}
		return db, nil
	}

	fp, err := session.NewFilePersistence(settings.SessionsDir, levels)
	if err != nil {
		return nil, fmt.Errorf("failed to create session persistence: %w", err)
	}
	return fp, nil
}

// sessionCleanupRoutine periodically removes sessions that have not been accessed
// within the provided retention window.
func sessionCleanupRoutine(manager *session.Manager, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		if removed := manager.CleanupExpiredSessions(ttl); removed > 0 {
			log.Info().Int("removed", removed).Msg("cleaned up expired sessions")
		}
	}
}

// storeSyncRoutine drops sessions from memory once they were deleted from
// the store by hand.
func storeSyncRoutine(manager *session.Manager, store session.SessionPersistence) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		pruned := 0
		for _, sess := range manager.List() {
			if sess.Status == service.StatusSubmitting || store.Exists(sess.ID) {
				continue
			}
			if err := manager.DeleteFromMemory(sess.ID); err == nil {
				pruned++
				log.Debug().Str("session_id", sess.ID).Msg("pruned session deleted from store")
			}
		}
		if pruned > 0 {
			log.Info().Int("pruned", pruned).Msg("store sync pruned orphaned sessions")
		}
	}
}

// newMux mounts the REST API and the /mcp endpoint on one handler
func newMux(apiServer http.Handler, mcpClient *mcp.Client) *http.ServeMux {
	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)

	mainRouter.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	})
	return mainRouter
}

// runHTTPServer starts the HTTP server with REST API, WebSocket hub, and an /mcp proxy endpoint.
// If ngrok is enabled, it also provisions a public tunnel.
func runHTTPServer(app *services, settings config.Settings) {
	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Stop()

	apiServer := api.NewServer(app.game, hub)

	addr := fmt.Sprintf("%s:%d", settings.Host, settings.Port)
	mcpClient := mcp.NewClient(fmt.Sprintf("http://%s", addr))
	mainRouter := newMux(apiServer, mcpClient)

	// Submissions wait for finality, so writes get more room than reads
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mainRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		log.Info().
			Str("addr", addr).
			Str("api", fmt.Sprintf("http://%s/api", addr)).
			Str("ws", fmt.Sprintf("ws://%s/ws?session=<session_id>", addr)).
			Str("mcp", fmt.Sprintf("http://%s/mcp", addr)).
			Msg("HTTP server listening")

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	if settings.NgrokEnabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrok(ctx, settings, mainRouter)
		}()
	}

	sig := <-stop
	log.Info().Str("signal", sig.String()).Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown error")
	}

	wg.Wait()
	log.Info().Msg("server stopped")
}

// runNgrok serves handler through an ngrok tunnel until ctx is done
func runNgrok(ctx context.Context, settings config.Settings, handler http.Handler) {
	authToken := settings.NgrokAuthToken
	if authToken == "" {
		authToken = os.Getenv("NGROK_AUTH_TOKEN")
	}
	if authToken == "" {
		log.Warn().Msg("ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN env var)")
		return
	}

	var tunnel ngrokConfig.Tunnel
	if settings.NgrokDomain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(settings.NgrokDomain))
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(authToken))
	if err != nil {
		log.Error().Err(err).Msg("failed to start ngrok tunnel")
		return
	}
	defer func() {
		if err := tun.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close ngrok tunnel")
		}
	}()

	ngrokURL := tun.URL()
	log.Info().
		Str("url", ngrokURL).
		Str("api", ngrokURL+"/api").
		Str("mcp", ngrokURL+"/mcp").
		Msg("ngrok tunnel established")

	go func() {
		<-ctx.Done()
		tun.Close()
	}()

	if err := http.Serve(tun, handler); err != nil && err != http.ErrServerClosed && ctx.Err() == nil {
		log.Error().Err(err).Msg("ngrok server error")
	}
	log.Info().Msg("ngrok tunnel closed")
}

// runStdioMCPWithInternalServer runs an MCP stdio server.
// It tries to reuse an external API on the configured port; if unavailable, it
// starts a minimal internal HTTP API bound to a random loopback port and targets that.
func runStdioMCPWithInternalServer(app *services, settings config.Settings) {
	externalURL := fmt.Sprintf("http://%s:%d", settings.Host, settings.Port)
	baseURL := externalURL

	log.Info().Str("url", externalURL).Msg("checking for external API server")

	testClient := &http.Client{Timeout: 2 * time.Second}
	resp, err := testClient.Get(externalURL + "/api/health")
	if err == nil && resp.StatusCode < 500 {
		resp.Body.Close()
		log.Info().Str("url", externalURL).Msg("external API server found, using it for MCP")
	} else {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			log.Fatal().Err(err).Msg("failed to get available port")
		}
		internalAddr := listener.Addr().String()

		hub := websocket.NewHub()
		go hub.Run()
		defer hub.Stop()

		httpServer := &http.Server{Handler: api.NewServer(app.game, hub)}
		go func() {
			if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("internal HTTP server error")
			}
		}()
		defer httpServer.Close()

		baseURL = fmt.Sprintf("http://%s", internalAddr)
		log.Info().Str("addr", internalAddr).Msg("started internal HTTP server for MCP stdio")
	}

	mcpClient := mcp.NewClient(baseURL)
	log.Info().Str("api", baseURL).Msg("MCP stdio server ready")

	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		log.Error().Err(err).Msg("MCP stdio server error")
	}
}
