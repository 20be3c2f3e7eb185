package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"
	"nyiyui.ca/hato/heisoku/config"
	"nyiyui.ca/hato/heisoku/kujo"
	"nyiyui.ca/hato/heisoku/sim"
	"nyiyui.ca/hato/heisoku/store"
	"nyiyui.ca/hato/heisoku/track"
)

var configPath string
var maxTicks int
var interval time.Duration

func main() {
	defer zap.S().Sync()
	level := zap.LevelFlag("log-level", zap.InfoLevel, "set log level")
	flag.StringVar(&configPath, "config", "", "path to config (JSON); defaults are used if empty")
	flag.IntVar(&maxTicks, "ticks", 1000, "give up after this many ticks")
	flag.DurationVar(&interval, "interval", 0, "wall time per tick (0 runs as fast as possible)")
	flag.Parse()
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(*level)
	dev, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(dev)

	err = main2()
	if err != nil {
		zap.S().Fatalw("run failed", "err", err)
	}
}

func main2() error {
	c := config.Default()
	if configPath != "" {
		var err error
		c, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}

	n, err := track.InitPassingLoop(c.Track)
	if err != nil {
		return fmt.Errorf("layout: %w", err)
	}
	defer n.Close()

	trains := demoTrains(n)
	if len(c.Trains) > 0 {
		trains, err = configTrains(n, c)
		if err != nil {
			return err
		}
	}

	var st *store.Store
	if c.DBPath != "" {
		st, err = store.Open(c.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()
	}
	afterStep := func(n *track.Network) {
		if st == nil || c.SnapshotEvery <= 0 || n.Tick()%c.SnapshotEvery != 0 {
			return
		}
		m, err := st.Save(n, fmt.Sprintf("tick %d", n.Tick()))
		if err != nil {
			zap.S().Errorw("save snapshot failed", "err", err)
			return
		}
		zap.S().Infow("saved snapshot", "id", m.ID, "tick", m.Tick)
	}

	s, err := sim.New(sim.Conf{
		Network:   n,
		Trains:    trains,
		AfterStep: afterStep,
	})
	if err != nil {
		return fmt.Errorf("place trains: %w", err)
	}
	defer s.Close()

	if c.Listen != "" {
		zap.S().Infow("starting kujo…", "listen", c.Listen)
		kujoServer := kujo.NewServer(n.EventMux, s.SnapshotMux)
		defer kujoServer.Close()
		go func() {
			err := http.ListenAndServe(c.Listen, kujoServer)
			zap.S().Errorw("kujo stopped", "err", err)
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err = s.Run(ctx, interval, maxTicks)
	if err != nil {
		return err
	}
	zap.S().Infow("all trains arrived", "tick", n.Tick())
	if st != nil {
		m, err := st.Save(n, "final")
		if err != nil {
			return err
		}
		zap.S().Infow("saved final snapshot", "id", m.ID)
	}
	return nil
}

func demoTrains(n *track.Network) []sim.TrainConf {
	return []sim.TrainConf{
		{Number: 1, Name: "east", Length: 80, Route: n.PassingLoopRoute(0, false), Speed: 10},
		{Number: 2, Name: "west", Length: 120, Route: n.PassingLoopRoute(1, false), Speed: 8, Start: 5},
	}
}

func configTrains(n *track.Network, c config.Config) ([]sim.TrainConf, error) {
	trains := make([]sim.TrainConf, 0, len(c.Trains))
	for _, t := range c.Trains {
		f, ok := c.Cars.Lookup(t.Form)
		if !ok {
			return nil, fmt.Errorf("train %d: unknown form %s", t.Number, t.Form)
		}
		name := t.Name
		if name == "" {
			name = f.Comment
		}
		trains = append(trains, sim.TrainConf{
			Number: t.Number,
			Name:   name,
			Length: f.TrainLength(),
			Route:  n.PassingLoopRoute(t.Direction, t.Loop),
			Speed:  t.Speed,
			Start:  t.Start,
		})
	}
	return trains, nil
}
