package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"gridtraffic.ai/internal/logger"
	"gridtraffic.ai/internal/metrics"
	"gridtraffic.ai/internal/persistence/archive"
	"gridtraffic.ai/internal/persistence/indexdb"
	persistlog "gridtraffic.ai/internal/persistence/log"
	"gridtraffic.ai/internal/persistence/snapshot"
	"gridtraffic.ai/internal/protocol"
	"gridtraffic.ai/internal/sim/gridmap"
	"gridtraffic.ai/internal/sim/tuning"
	"gridtraffic.ai/internal/sim/world"
	"gridtraffic.ai/internal/sim/world/feature/traffic"
	"gridtraffic.ai/internal/transport/admin"
	"gridtraffic.ai/internal/transport/observer"
	"gridtraffic.ai/internal/transport/ws"
)

func main() {
	var (
		addr           = flag.String("addr", ":8080", "agent websocket listen address")
		adminAddr      = flag.String("admin_addr", "127.0.0.1:8081", "admin API listen address (empty disables it)")
		worldID        = flag.String("world", "GRID", "world id")
		mapPath        = flag.String("map", "./configs/map.yaml", "map file (used only when starting a fresh world)")
		tuningPath     = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml (watched for changes)")
		dataDir        = flag.String("data", "./data", "runtime data directory")
		snapPath       = flag.String("snapshot", "", "path to a snapshot to resume from")
		loadLatest     = flag.Bool("load_latest_snapshot", false, "resume from the newest snapshot in the world data dir")
		disableDB      = flag.Bool("disable_db", false, "disable the sqlite index (tick log files are still written)")
		despawnOnLeave = flag.Bool("despawn_on_leave", true, "remove agents from the grid when their client disconnects")
		logLevel       = flag.String("log_level", "info", "debug, info, warn or error")
		logPretty      = flag.Bool("log_pretty", false, "human readable console logs")
		logFile        = flag.String("log_file", "", "optional log file")
	)
	flag.Parse()

	lg, err := logger.New(logger.Config{Level: *logLevel, File: *logFile, Console: true, Pretty: *logPretty})
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer lg.Close()
	log := lg.Component("server")

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("create world dir")
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}

	// Tuning is required for a fresh world; a resume carries its own.
	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if snapshotToLoad == "" || !os.IsNotExist(err) {
			log.Fatal().Err(err).Str("path", *tuningPath).Msg("load tuning")
		}
		log.Warn().Str("path", *tuningPath).Msg("tuning not found; using defaults")
		tune = tuning.Defaults()
	}
	if tune.ProtocolVersion != "" && tune.ProtocolVersion != protocol.Version {
		log.Fatal().Str("tuning", tune.ProtocolVersion).Str("server", protocol.Version).Msg("protocol version mismatch")
	}

	w, err := buildWorld(*worldID, *mapPath, snapshotToLoad, *despawnOnLeave, tune)
	if err != nil {
		log.Fatal().Err(err).Msg("world")
	}
	w.SetLogger(lg.Component("world"))
	if snapshotToLoad != "" {
		log.Info().Str("snapshot", filepath.Base(snapshotToLoad)).Uint64("tick", w.CurrentTick()).Msg("resumed from snapshot")
	}

	met := metrics.NewMetrics()
	w.SetMetricsSink(met)

	// Optional read model; never affects the simulation.
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"))
		if err != nil {
			log.Fatal().Err(err).Msg("open index db")
		}
		defer idx.Close()
	}

	tickLog := persistlog.NewTickLogger(worldDir)
	auditLog := persistlog.NewAuditLogger(worldDir)
	defer tickLog.Close()
	defer auditLog.Close()
	w.SetTickLogger(multiTickLogger{tickLog, indexTickLogger(idx)})
	audit := multiAuditWriter{auditLog, indexAuditWriter(idx)}

	ctx, cancel := signalContext()
	defer cancel()

	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	retain := archive.Policy{Keep: tune.SnapshotKeep, ArchiveEveryTicks: tune.SnapshotArchiveEveryTicks}
	go runSnapshotWriter(ctx, worldDir, snapCh, idx, retain, lg.Component("snapshot"))

	watcher, err := tuning.Watch(*tuningPath, lg.Component("tuning"), func(t tuning.Tuning) {
		applyTuning(ctx, w, t, "file", audit, met, log)
	})
	if err != nil {
		log.Warn().Err(err).Msg("tuning watcher disabled")
	} else {
		defer watcher.Close()
	}

	rep, err := startReporter(tune.ReportSchedule, w, idx, met, lg.Component("report"))
	if err != nil {
		log.Fatal().Err(err).Str("schedule", tune.ReportSchedule).Msg("report schedule")
	}
	defer rep.Stop()

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("world stopped")
			cancel()
		}
	}()

	validator, err := protocol.NewValidator()
	if err != nil {
		log.Fatal().Err(err).Msg("protocol schemas")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", met.Handler())
	mux.HandleFunc("/v1/ws", ws.NewServer(w, validator, met, lg.Component("ws")).Handler())

	servers := []*http.Server{{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
	if strings.TrimSpace(*adminAddr) != "" {
		adm := admin.NewServer(w, indexReader(idx), met.Handler(), lg.Component("admin"))
		adm.OnTrafficUpdate(func(cfg traffic.Config, err error) {
			recordAudit(w, "admin", cfg, err, audit, log)
		})
		router := adm.Router()
		obs := observer.NewServer(w, lg.Component("observer"))
		router.GET("/admin/v1/observer/bootstrap", gin.WrapF(obs.BootstrapHandler()))
		router.GET("/admin/v1/observer/ws", gin.WrapF(obs.WSHandler()))
		servers = append(servers, &http.Server{
			Addr:              *adminAddr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	for _, srv := range servers {
		go func(srv *http.Server) {
			log.Info().Str("addr", srv.Addr).Msg("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("addr", srv.Addr).Msg("listen")
				cancel()
			}
		}(srv)
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	for _, srv := range servers {
		_ = srv.Shutdown(shutdownCtx)
	}
	<-worldDone
}

func buildWorld(worldID, mapPath, snapPath string, despawnOnLeave bool, tune tuning.Tuning) (*world.World, error) {
	cfg := world.WorldConfig{
		ID:                 worldID,
		TickRateHz:         tune.TickRateHz,
		SnapshotEveryTicks: tune.SnapshotEveryTicks,
		NoPathFailAfter:    tune.NoPathFailAfter,
		DefaultReusePath:   tune.DefaultReusePath,
		PathSearchMaxNodes: tune.PathSearchMaxNodes,
		DespawnOnLeave:     despawnOnLeave,
		Traffic:            tune.Traffic.Config(),
	}
	if snapPath == "" {
		m, err := gridmap.Load(mapPath)
		if err != nil {
			return nil, err
		}
		cfg.Map = m
		return world.New(cfg)
	}

	snap, err := snapshot.ReadSnapshot(snapPath)
	if err != nil {
		return nil, err
	}
	if snap.Header.WorldID != "" && snap.Header.WorldID != worldID {
		return nil, errors.New("snapshot world id mismatch: flag=" + worldID + " snap=" + snap.Header.WorldID)
	}
	m, err := gridmap.FromRows(snap.Map.Name, snap.Map.Rows)
	if err != nil {
		return nil, err
	}
	cfg.Map = m
	cfg.TickRateHz = snap.TickRate
	cfg.ObsRadius = snap.ObsRadius
	w, err := world.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := w.ImportSnapshot(snap); err != nil {
		return nil, err
	}
	return w, nil
}

// applyTuning pushes the live-tunable part of a reloaded file into the
// running world and records the outcome.
func applyTuning(ctx context.Context, w *world.World, t tuning.Tuning, source string, audit auditWriter, met *metrics.Metrics, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := w.UpdateConfig(ctx, world.ConfigUpdate{
		Traffic:            t.Traffic.Config(),
		NoPathFailAfter:    t.NoPathFailAfter,
		DefaultReusePath:   t.DefaultReusePath,
		PathSearchMaxNodes: t.PathSearchMaxNodes,
	})
	result := "applied"
	if err != nil {
		result = "rejected"
		log.Warn().Err(err).Msg("tuning update rejected")
	}
	met.TuningReloads.WithLabelValues(result).Inc()
	recordAudit(w, source, t.Traffic.Config(), err, audit, log)
}

func recordAudit(w *world.World, source string, cfg traffic.Config, applyErr error, audit auditWriter, log zerolog.Logger) {
	entry := persistlog.ConfigAuditEntry{
		Time:       time.Now().UTC().Format(time.RFC3339),
		Tick:       w.CurrentTick(),
		Source:     source,
		StuckLimit: cfg.StuckLimit,
		SwapDelay:  cfg.SwapDelay,
		Accepted:   applyErr == nil,
	}
	if applyErr != nil {
		entry.Error = applyErr.Error()
	}
	if err := audit.WriteAudit(entry); err != nil {
		log.Warn().Err(err).Msg("audit write")
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
