package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"gridtraffic.ai/internal/logger"
	"gridtraffic.ai/internal/protocol"
	"gridtraffic.ai/internal/sim/gridmap"
)

// stats are shared by every bot of a run.
type stats struct {
	done    atomic.Int64
	failed  atomic.Int64
	swapped atomic.Int64
	errors  atomic.Int64
}

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		n        = flag.Int("n", 8, "number of concurrent agents")
		mapPath  = flag.String("map", "", "map file used to pick walkable targets (default: any in-bounds cell)")
		seed     = flag.Int64("seed", 0, "target rng seed (0 = time based)")
		duration = flag.Duration("duration", 0, "stop after this long (0 = until interrupted)")
		level    = flag.String("log_level", "info", "log level")
	)
	flag.Parse()

	lg, err := logger.New(logger.Config{Level: *level, Console: true, Pretty: true})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	runID := uuid.NewString()
	log := lg.Component("bot").With().Str("run_id", runID).Logger()

	var cells []gridmap.Cell
	if *mapPath != "" {
		m, err := gridmap.Load(*mapPath)
		if err != nil {
			log.Fatal().Err(err).Msg("load map")
		}
		cells = walkable(m)
	}
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if *duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	var st stats
	var wg sync.WaitGroup
	for i := 0; i < *n; i++ {
		b := &bot{
			name:  fmt.Sprintf("bot-%s-%d", runID[:8], i),
			cells: cells,
			rng:   rand.New(rand.NewSource(*seed + int64(i))),
			stats: &st,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := b.run(ctx, *url, log.With().Str("bot", b.name).Logger()); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Str("bot", b.name).Msg("bot stopped")
			}
		}()
	}
	wg.Wait()

	log.Info().
		Int64("tasks_done", st.done.Load()).
		Int64("tasks_failed", st.failed.Load()).
		Int64("swapped", st.swapped.Load()).
		Int64("errors", st.errors.Load()).
		Msg("run finished")
}

func walkable(m gridmap.Map) []gridmap.Cell {
	var out []gridmap.Cell
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if !m.Solid(x, y) {
				out = append(out, gridmap.Cell{X: x, Y: y})
			}
		}
	}
	return out
}

type bot struct {
	name  string
	cells []gridmap.Cell
	rng   *rand.Rand
	stats *stats

	width, height int
	busy          bool
	nextTask      int
}

func (b *bot) run(ctx context.Context, url string, log zerolog.Logger) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       b.name,
		Capabilities:    protocol.HelloCapabilities{MaxQueue: 8},
	}
	if err := conn.WriteJSON(hello); err != nil {
		return fmt.Errorf("send HELLO: %w", err)
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			b.width, b.height = w.WorldParams.Width, w.WorldParams.Height
			log.Info().Str("agent_id", w.AgentID).Int("tick_rate", w.WorldParams.TickRateHz).Msg("welcome")

		case protocol.TypeError:
			var em protocol.ErrorMsg
			if err := json.Unmarshal(msg, &em); err == nil {
				b.stats.errors.Add(1)
				log.Warn().Str("code", em.Code).Str("message", em.Message).Msg("server error")
			}

		case protocol.TypeObs:
			var obs protocol.ObsMsg
			if err := json.Unmarshal(msg, &obs); err != nil {
				continue
			}
			if act, ok := b.handleObs(&obs, log); ok {
				if err := conn.WriteJSON(act); err != nil {
					return fmt.Errorf("send ACT: %w", err)
				}
			}
		}
	}
}

// handleObs tallies task events and, when idle, returns an ACT with a new
// MOVE_TO toward a random cell.
func (b *bot) handleObs(obs *protocol.ObsMsg, log zerolog.Logger) (protocol.ActMsg, bool) {
	for _, e := range obs.Events {
		switch e["type"] {
		case "TASK_DONE":
			b.stats.done.Add(1)
			b.busy = false
		case "TASK_FAIL":
			b.stats.failed.Add(1)
			b.busy = false
			log.Debug().Interface("event", e).Msg("task failed")
		case "SWAPPED":
			b.stats.swapped.Add(1)
		case "ACTION_RESULT":
			if ok, _ := e["ok"].(bool); !ok {
				b.busy = false
			}
		}
	}
	if obs.Task != nil {
		b.busy = true
	}
	if b.busy {
		return protocol.ActMsg{}, false
	}

	target, ok := b.pickTarget(obs.Self.Pos)
	if !ok {
		return protocol.ActMsg{}, false
	}
	b.busy = true
	b.nextTask++
	return protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Tick:            obs.Tick,
		AgentID:         obs.AgentID,
		Tasks: []protocol.TaskReq{{
			ID:     fmt.Sprintf("K_%s_%d", b.name, b.nextTask),
			Type:   "MOVE_TO",
			Target: target,
		}},
	}, true
}

func (b *bot) pickTarget(self [2]int) ([2]int, bool) {
	if len(b.cells) > 0 {
		c := b.cells[b.rng.Intn(len(b.cells))]
		return [2]int{c.X, c.Y}, [2]int{c.X, c.Y} != self
	}
	if b.width <= 0 || b.height <= 0 {
		return [2]int{}, false
	}
	t := [2]int{b.rng.Intn(b.width), b.rng.Intn(b.height)}
	return t, t != self
}
