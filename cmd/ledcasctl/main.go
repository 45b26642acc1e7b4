// Command ledcasctl runs the TLC5947 cascade daemon: it owns the
// Controller, drives its tick loop, and exposes HTTP, WebSocket, MQTT
// and serial control surfaces around it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/ledcascade/ledcascade/internal/colorops"
	"github.com/ledcascade/ledcascade/internal/config"
	"github.com/ledcascade/ledcascade/internal/device"
	"github.com/ledcascade/ledcascade/internal/frame"
	"github.com/ledcascade/ledcascade/internal/hal"
	"github.com/ledcascade/ledcascade/internal/health"
	"github.com/ledcascade/ledcascade/internal/logger"
	"github.com/ledcascade/ledcascade/internal/metrics"
	"github.com/ledcascade/ledcascade/internal/presets"
	"github.com/ledcascade/ledcascade/internal/transport"
)

var Version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to ledcascade.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.Logger.Level
	logCfg.LogDir = "./logs"
	logCfg.MaxSizeMB = cfg.Logger.MaxSizeMB
	logCfg.MaxBackups = cfg.Logger.MaxBackups
	logCfg.MaxAgeDays = cfg.Logger.MaxAgeDays
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	zlog := logger.Get()
	zlog.Info("ledcasctl starting", zap.String("version", Version))

	diagHub := transport.NewDiagHub()
	go diagHub.Run()
	logger.SetBroadcaster(diagHub.BroadcastLog)

	h, err := selectHAL(cfg)
	if err != nil {
		zlog.Fatal("selecting hal", zap.Error(err))
	}
	defer h.Close()

	ctrl, err := device.NewFromHAL(h, cfg.Cascade.SPIBus, cfg.Cascade.SPIDevice, cfg.Cascade.XlatPin, cfg.Cascade.BlankPin)
	if err != nil {
		zlog.Fatal("constructing controller", zap.Error(err))
	}

	var idMap [frame.NumLamps]int
	copy(idMap[:], cfg.Cascade.IDMap[:])
	if err := ctrl.SetIDMap(idMap); err != nil {
		zlog.Warn("configured id_map rejected, using identity", zap.Error(err))
	}
	ctrl.SetWhiteBalance(colorops.WhiteBalance{
		R: cfg.Color.WhiteBalance[0],
		G: cfg.Color.WhiteBalance[1],
		B: cfg.Color.WhiteBalance[2],
	})
	if err := ctrl.SetGamut(colorops.Gamut(cfg.Color.Gamut)); err != nil {
		zlog.Warn("configured gamut rejected, using identity", zap.Error(err))
	}

	m := metrics.New()
	healthChecker := health.NewChecker()

	var lastTick time.Time = time.Now()
	healthChecker.Register("tick_loop", health.TickLivenessCheck(func() time.Time { return lastTick }, 2*time.Second), time.Second)
	healthChecker.Register("strobe", health.StrobeErrorRateCheck(func() (errs, total int64) {
		return m.StrobeErrors, m.FramesEmitted
	}), 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	healthChecker.Run(ctx)

	store, err := presets.Open(cfg.Presets.DBPath)
	if err != nil {
		zlog.Fatal("opening preset store", zap.Error(err))
	}
	defer store.Close()

	var mirror *presets.S3Mirror
	if cfg.Presets.S3Bucket != "" {
		mirror, err = presets.NewS3Mirror(cfg.Presets.S3Region, cfg.Presets.S3Bucket, cfg.Presets.S3Prefix)
		if err != nil {
			zlog.Warn("s3 preset mirror unavailable", zap.Error(err))
		} else if err := mirror.Pull(store); err != nil {
			zlog.Warn("pulling presets from s3", zap.Error(err))
		}
	}

	scheduler := presets.NewScheduler(store, func(lamps []int, pattern string) (uint16, error) {
		return ctrl.Set(lamps, pattern)
	})
	scheduler.Start()
	defer scheduler.Stop()

	handler := commandHandler(ctrl, store, mirror, m)

	if cfg.MQTT.Enabled {
		mt := transport.NewMQTTTransport(transport.MQTTConfig{
			Broker:       cfg.MQTT.Broker,
			ClientID:     cfg.MQTT.ClientID,
			Username:     cfg.MQTT.Username,
			Password:     cfg.MQTT.Password,
			CommandTopic: cfg.MQTT.CommandTopic,
			StatusTopic:  cfg.MQTT.StatusTopic,
		}, handler, zlog)
		if err := mt.Start(); err != nil {
			zlog.Warn("mqtt transport failed to start", zap.Error(err))
		} else {
			defer mt.Stop()
		}
	}

	if cfg.Serial.Enabled {
		st := transport.NewSerialTransport(cfg.Serial.Port, cfg.Serial.BaudRate, handler, zlog)
		if err := st.Start(); err != nil {
			zlog.Warn("serial transport failed to start", zap.Error(err))
		} else {
			defer st.Stop()
		}
	}

	stopTick := make(chan struct{})
	go runTickLoop(ctrl, m, diagHub, cfg.Cascade.TickHz, &lastTick, stopTick)
	defer close(stopTick)

	app := buildAPI(ctrl, store, mirror, scheduler, m, healthChecker, diagHub, handler, Version)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		zlog.Info("control api listening", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil {
			zlog.Error("api server stopped", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	zlog.Info("shutting down")
	if mirror != nil {
		if err := mirror.Push(store); err != nil {
			zlog.Warn("pushing presets to s3 on shutdown", zap.Error(err))
		}
	}
	_ = app.ShutdownWithTimeout(5 * time.Second)
}

func selectHAL(cfg *config.Config) (hal.HAL, error) {
	if cfg.Cascade.DryRun {
		return hal.NewMockHAL(), nil
	}
	return hal.NewRaspberryPiHAL()
}

// runTickLoop drives ctrl.Tick at tickHz until stop is closed, keeping
// lastTick current for the liveness check and pushing a diagnostic
// frame snapshot after every tick.
func runTickLoop(ctrl *device.Controller, m *metrics.Metrics, hub *transport.DiagHub, tickHz int, lastTick *time.Time, stop <-chan struct{}) {
	if tickHz <= 0 {
		tickHz = 100
	}
	ticker := time.NewTicker(time.Second / time.Duration(tickHz))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctrl.Tick()
			*lastTick = time.Now()
			m.IncTick()
			m.IncFrameEmitted()
			if hub.ClientCount() > 0 {
				hub.Broadcast(transport.DiagFrame, map[string]interface{}{"tick": (*lastTick).UnixNano()})
			}
		}
	}
}

// commandHandler adapts the controller into the shape the MQTT and
// serial transports drive commands through. The HTTP routes call the
// controller directly.
func commandHandler(ctrl *device.Controller, store *presets.Store, mirror *presets.S3Mirror, m *metrics.Metrics) transport.CommandHandler {
	return func(cmd transport.Command) (interface{}, error) {
		var result interface{}
		var err error

		switch cmd.Op {
		case "set":
			var pid uint16
			pid, err = ctrl.Set(cmd.Lamps, cmd.Pattern)
			result = map[string]interface{}{"pid": pid}
		case "replace":
			err = ctrl.Replace(cmd.PID, cmd.Pattern)
		case "delete":
			removed := ctrl.Delete(cmd.PID)
			result = map[string]interface{}{"removed": removed}
		case "blank":
			err = ctrl.Blank(cmd.On)
		default:
			err = fmt.Errorf("transport: unknown op %q", cmd.Op)
		}

		m.IncCommand(err)
		return result, err
	}
}

func buildAPI(ctrl *device.Controller, store *presets.Store, mirror *presets.S3Mirror, scheduler *presets.Scheduler, m *metrics.Metrics, hc *health.Checker, hub *transport.DiagHub, handler transport.CommandHandler, version string) *fiber.App {
	app := fiber.New(fiber.Config{AppName: "ledcascade v" + version})
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(hc.Results())
	})
	app.Get("/metrics", func(c *fiber.Ctx) error {
		m.Refresh()
		c.Set("Content-Type", "text/plain; version=0.0.4")
		return c.SendString(m.Prometheus())
	})

	api := app.Group("/api/v1")

	api.Post("/lamps/set", func(c *fiber.Ctx) error {
		var req struct {
			Lamps   []int  `json:"lamps"`
			Pattern string `json:"pattern"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		pid, err := ctrl.Set(req.Lamps, req.Pattern)
		m.IncCommand(err)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"pid": pid})
	})

	api.Post("/lamps/:pid/replace", func(c *fiber.Ctx) error {
		pid, body, err := pidAndPattern(c)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		err = ctrl.Replace(pid, body)
		m.IncCommand(err)
		if err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"ok": true})
	})

	api.Delete("/lamps/:pid", func(c *fiber.Ctx) error {
		pid, err := parsePID(c.Params("pid"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		removed := ctrl.Delete(pid)
		return c.JSON(fiber.Map{"removed": removed})
	})

	api.Get("/lamps/:lamp", func(c *fiber.Ctx) error {
		lamp, err := parsePID(c.Params("lamp"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		color, err := ctrl.Get(int(lamp))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"color": color})
	})

	api.Post("/blank", func(c *fiber.Ctx) error {
		var req struct {
			On bool `json:"on"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if err := ctrl.Blank(req.On); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"ok": true})
	})

	api.Post("/config/white-balance", func(c *fiber.Ctx) error {
		var req struct {
			R float64 `json:"r"`
			G float64 `json:"g"`
			B float64 `json:"b"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		ctrl.SetWhiteBalance(colorops.WhiteBalance{R: req.R, G: req.G, B: req.B})
		return c.JSON(fiber.Map{"ok": true})
	})

	api.Post("/config/id-map", func(c *fiber.Ctx) error {
		var req struct {
			Map [frame.NumLamps]int `json:"map"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if err := ctrl.SetIDMap(req.Map); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"ok": true})
	})

	api.Get("/presets", func(c *fiber.Ctx) error {
		list, err := store.List()
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(list)
	})

	api.Post("/presets/:name", func(c *fiber.Ctx) error {
		var req struct {
			Pattern string `json:"pattern"`
			Lamps   []int  `json:"lamps"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if err := store.Save(c.Params("name"), req.Pattern, req.Lamps); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"ok": true})
	})

	api.Post("/presets/:name/activate", func(c *fiber.Ctx) error {
		p, err := store.Get(c.Params("name"))
		if err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		pid, err := ctrl.Set(p.Lamps, p.Pattern)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"pid": pid})
	})

	api.Post("/presets/:name/schedule", func(c *fiber.Ctx) error {
		var req struct {
			Cron string `json:"cron"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if err := scheduler.Schedule(c.Params("name"), c.Params("name"), req.Cron); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"ok": true})
	})

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		hub.HandleConn(c)
	}))

	return app
}

func pidAndPattern(c *fiber.Ctx) (uint16, string, error) {
	pid, err := parsePID(c.Params("pid"))
	if err != nil {
		return 0, "", err
	}
	var req struct {
		Pattern string `json:"pattern"`
	}
	if err := c.BodyParser(&req); err != nil {
		return 0, "", err
	}
	return pid, req.Pattern, nil
}

func parsePID(s string) (uint16, error) {
	var v uint16
	_, err := fmt.Sscanf(s, "%d", &v)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return v, nil
}
