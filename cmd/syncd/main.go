// Command syncd reads a JSON run configuration, joins the cluster bus,
// and performs one migration pass from the source share to the
// destination share, sharding ownership of each path across the live
// nodes via rendezvous hashing (SPEC_FULL §1 binary name).
//
// Grounded on the teacher's cmd/dplaned/main.go: flag parsing, a
// long-lived db/http/cluster wiring block, and a signal-driven
// graceful shutdown.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/4nonx/syncd/internal/api"
	"github.com/4nonx/syncd/internal/audit"
	"github.com/4nonx/syncd/internal/cluster"
	"github.com/4nonx/syncd/internal/config"
	"github.com/4nonx/syncd/internal/fsabs"
	"github.com/4nonx/syncd/internal/fsabs/osfs"
	"github.com/4nonx/syncd/internal/logger"
	"github.com/4nonx/syncd/internal/rendezvous"
	"github.com/4nonx/syncd/internal/syncengine"
)

const (
	version        = "1.0.0"
	nodeLifetime   = 5 // ticks of grace before a peer is declared dead (spec §3)
	entriesBuffer  = 4096
	progressBuffer = 4096
	changesBuffer  = 256
)

func main() {
	configPath := flag.String("config", "/etc/syncd/config.json", "path to the JSON run config")
	localEndpoint := flag.String("local", "", "this node's endpoint as it appears in config.nodes (required)")
	dryRun := flag.Bool("dry-run", false, "walk and diff without writing to the destination")
	bootstrapOnly := flag.Bool("bootstrap-only", false, "join the cluster and exit once membership converges, without syncing")
	flag.Parse()

	if *localEndpoint == "" {
		log.Fatal("syncd: -local is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("syncd: %v", err)
	}

	log := logger.Init(logger.Options{
		Path:  cfg.LogPath,
		Debug: cfg.DebugLevel > 0,
	})
	log.Info("syncd starting", "version", version, "local", *localEndpoint, "system", cfg.System)

	if err := run(cfg, *localEndpoint, *dryRun, *bootstrapOnly, log); err != nil {
		log.Error("syncd: fatal", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, localEndpoint string, dryRun, bootstrapOnly bool, log *slog.Logger) error {
	changes := make(chan rendezvous.ChangeList, changesBuffer)
	// The local node is live from the start, so it enters the ring
	// before any peer does.
	changes <- rendezvous.ChangeList{Kind: rendezvous.Add, Node: rendezvous.ParseSocketNode(localEndpoint)}

	bus, err := cluster.NewBus(localEndpoint, log.With("component", "bus"))
	if err != nil {
		return fmt.Errorf("bus listen on %s: %w", localEndpoint, err)
	}
	defer bus.Close()

	mgr := cluster.NewManager(localEndpoint, nodeLifetime, bus, changes, log.With("component", "cluster"))
	mgr.Join(cfg.Nodes)

	coord := rendezvous.NewCoordinator(changes, log.With("component", "rendezvous"))
	go coord.Run()

	clusterDone := make(chan error, 1)
	go func() { clusterDone <- mgr.Run() }()

	if bootstrapOnly {
		return waitForJoin(mgr, clusterDone)
	}

	db, auditSink, err := wireAuditSink(cfg, localEndpoint, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	stats := syncengine.NewStats()
	hub := api.NewHub(log.With("component", "hub"))
	httpSrv := wireHTTPServer(cfg, mgr, coord.Set(), stats, hub, log)
	if httpSrv != nil {
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("syncd: status server failed", "err", err)
			}
		}()
		defer shutdownHTTP(httpSrv, log)
	}

	var resolver syncengine.NameResolver
	if cfg.LDAPURL != "" {
		resolver, err = syncengine.NewLDAPResolver(cfg.LDAPURL)
		if err != nil {
			log.Warn("syncd: ldap resolver unavailable, named ACEs may fail to map", "err", err)
			resolver = nil
		}
	}

	if err := waitForJoin(mgr, clusterDone); err != nil {
		return err
	}

	// spec §4.8: an external rerun signal restarts the pipeline without
	// re-joining the cluster. SIGHUP requests exactly that; SIGINT/
	// SIGTERM request a final pass followed by full shutdown.
	rerunCh := make(chan os.Signal, 1)
	signal.Notify(rerunCh, syscall.SIGHUP)
	defer signal.Stop(rerunCh)
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdownCh)

	for {
		final := false
		select {
		case <-shutdownCh:
			final = true
		default:
		}

		if err := runPass(cfg, localEndpoint, dryRun, mgr, coord, stats, hub, auditSink, resolver, final, log); err != nil {
			return err
		}
		if final {
			return <-clusterDone
		}

		select {
		case <-rerunCh:
			log.Info("syncd: rerun signal received, restarting pipeline without rejoining cluster")
			continue
		case <-shutdownCh:
			if err := runPass(cfg, localEndpoint, dryRun, mgr, coord, stats, hub, auditSink, resolver, true, log); err != nil {
				return err
			}
			return <-clusterDone
		}
	}
}

// runPass drives exactly one walk + rsync + progress cycle to
// completion. When final is true, the progress worker's EndSync signal
// is allowed to stop the cluster manager and rendezvous coordinator
// (spec §4.8); otherwise those components stay alive for a rerun.
func runPass(
	cfg *config.Config,
	localEndpoint string,
	dryRun bool,
	mgr *cluster.Manager,
	coord *rendezvous.Coordinator,
	stats *syncengine.Stats,
	hub *api.Hub,
	auditSink *audit.Sink,
	resolver syncengine.NameResolver,
	final bool,
	log *slog.Logger,
) error {
	entries := make(chan fsabs.Entry, entriesBuffer)
	progress := make(chan syncengine.ProgressMessage, progressBuffer)

	var sink syncengine.AuditSink
	if auditSink != nil {
		sink = auditSink
	}

	progressWorker := &syncengine.ProgressWorker{
		In:       progress,
		Stats:    stats,
		Renderer: hub,
		Sink:     sink,
		Log:      log.With("component", "progress"),
		OnEnd: func() {
			if final {
				mgr.Stop()
				coord.End()
			}
		},
	}
	progressDone := make(chan struct{})
	go func() {
		progressWorker.Run()
		close(progressDone)
	}()

	family, srcRoot, destRoot := shareLayout(cfg)
	newSrc := func() fsabs.FileSystem { return osfs.New(srcRoot, fsabs.POSIX) }
	newDest := func() fsabs.FileSystem { return osfs.New(destRoot, family) }
	if dryRun {
		newDest = func() fsabs.FileSystem { return fsabs.NewReadOnly(osfs.New(destRoot, family)) }
	}

	walker := &syncengine.Walker{
		NewSrcFS:    newSrc,
		NewDestFS:   newDest,
		Entries:     entries,
		Progress:    progress,
		MaxParallel: int(cfg.NumThreads),
	}

	pool := &syncengine.Pool{
		LocalEndpoint: localEndpoint,
		Ring:          coord.Set(),
		NewSrcFS:      newSrc,
		NewDestFS:     newDest,
		Entries:       entries,
		Progress:      progress,
		N:             int(cfg.NumThreads),
		SIDCache:      syncengine.NewSIDCache(),
		Resolver:      resolver,
	}

	poolDone := make(chan struct{})
	go func() {
		pool.Run()
		close(poolDone)
	}()

	walkErr := walker.Run()
	close(entries)
	<-poolDone
	progress <- syncengine.ProgressMessage{Kind: syncengine.EndSync}
	<-progressDone

	if walkErr != nil {
		return fmt.Errorf("walk: %w", walkErr)
	}
	return nil
}

// waitForJoin blocks until the cluster manager reports has_nodelist or
// exits (either cleanly via Stop, or fatally with a join timeout).
func waitForJoin(mgr *cluster.Manager, clusterDone <-chan error) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case err := <-clusterDone:
			return err
		case <-ticker.C:
			if mgr.HasNodelist() {
				return nil
			}
		}
	}
}

// shareLayout resolves the on-disk roots this local stand-in syncs
// between, and the destination's protocol family (SPEC_FULL §6).
func shareLayout(cfg *config.Config) (fsabs.Family, string, string) {
	family := fsabs.POSIX
	if cfg.System == config.SystemSamba {
		family = fsabs.CIFS
	}
	return family, cfg.SrcPath, cfg.DestPath
}

// wireAuditSink opens (and schema-ensures) the sqlite audit database
// named by config.database_url, if any. A nil sink is valid: the
// progress worker simply skips per-file persistence.
func wireAuditSink(cfg *config.Config, localEndpoint string, log *slog.Logger) (*sql.DB, *audit.Sink, error) {
	if cfg.DatabaseURL == nil || *cfg.DatabaseURL == "" {
		return nil, nil, nil
	}
	db, err := sql.Open("sqlite3", *cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("audit db open: %w", err)
	}
	if err := audit.EnsureSchema(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("audit schema: %w", err)
	}
	hmacKey := loadOrCreateHMACKey(cfg)
	sink := audit.NewSink(db, localEndpoint, hmacKey, log.With("component", "audit"), nil)
	return db, sink, nil
}

// loadOrCreateHMACKey returns nil (chaining disabled) unless a key file
// path has been provisioned alongside the database; a real deployment
// would provision this out of band, matching the teacher's
// LoadOrCreateAuditKey fail-soft behavior.
func loadOrCreateHMACKey(cfg *config.Config) []byte {
	if cfg.DatabaseURL == nil {
		return nil
	}
	keyPath := *cfg.DatabaseURL + ".hmac"
	if raw, err := os.ReadFile(keyPath); err == nil && len(raw) > 0 {
		return raw
	}
	return nil
}

func wireHTTPServer(cfg *config.Config, mgr *cluster.Manager, ring *rendezvous.Set, stats *syncengine.Stats, hub *api.Hub, log *slog.Logger) *http.Server {
	if cfg.ListenAddr == "" {
		return nil
	}
	srv := api.NewServer(mgr, ring, stats, hub, log.With("component", "api"))
	return &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

func shutdownHTTP(srv *http.Server, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("syncd: status server shutdown error", "err", err)
	}
}
