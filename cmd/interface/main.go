package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/openworld-xr/interface/internal/api"
	"github.com/openworld-xr/interface/internal/config"
	"github.com/openworld-xr/interface/internal/connexion"
	"github.com/openworld-xr/interface/internal/input"
	"github.com/openworld-xr/interface/internal/lod"
	"github.com/openworld-xr/interface/internal/serialmux"
	"github.com/openworld-xr/interface/internal/settings"
	"github.com/openworld-xr/interface/internal/timeutil"
	"github.com/openworld-xr/interface/internal/version"
)

var (
	listen       = flag.String("listen", ":8080", "Listen address")
	dbPath       = flag.String("db", "interface.db", "Settings database path")
	tuningPath   = flag.String("tuning", "", "Tuning JSON file (defaults built in when empty)")
	watchTuning  = flag.Bool("watch-tuning", false, "Reload the tuning file when it changes")
	useHID       = flag.Bool("hid", false, "Read the 3D mouse through hidapi")
	serialBridge = flag.String("serial-bridge", "", "Serial port of a USB HID bridge")
	serialBaud   = flag.Int("serial-baud", serialmux.DefaultBaudRate, "HID bridge baud rate")
	pcapFile     = flag.String("pcap", "", "Replay 3D mouse reports from a usbmon capture")
	pcapSpeed    = flag.Float64("pcap-speed", 1.0, "Capture replay speed (0 = as fast as possible)")
	pcapDevice   = flag.String("pcap-device", "256f:c62e", "vendor:product stamped on replayed reports")
	hmd          = flag.Bool("hmd", false, "Regulate for a head-mounted display")
	tick         = flag.Duration("tick", 0, "LOD regulator interval (0 = tuning adjust_interval)")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.DefaultTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	tuning, err := loadTuning(*tuningPath)
	if err != nil {
		log.Fatalf("failed to load tuning: %v", err)
	}

	store, err := settings.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open settings database: %v", err)
	}
	defer store.Close()

	manager := lod.NewManager()
	manager.ApplyTuning(tuning.LOD())
	manager.SetAutomaticLODAdjust(tuning.GetAutomaticLODAdjust())
	if err := manager.LoadSettings(store); err != nil {
		log.Printf("failed to load LOD settings, using defaults: %v", err)
	}
	manager.SetHMDMode(*hmd)
	trace := lod.NewTrace(tuning.GetTraceCapacity())

	vid, pid, err := serialmux.ParseDeviceID(*pcapDevice)
	if err != nil {
		log.Fatalf("bad -pcap-device: %v", err)
	}
	src, err := openSource(sourceConfig{
		HID:             *useHID,
		HotplugInterval: tuning.GetHotplugInterval(),
		SerialBridge:    *serialBridge,
		SerialOpts:      serialmux.PortOptions{BaudRate: *serialBaud},
		PCAP:            *pcapFile,
		PCAPSpeed:       *pcapSpeed,
		PCAPVID:         vid,
		PCAPPID:         pid,
	})
	switch {
	case errors.Is(err, errHIDUnavailable):
		log.Printf("continuing without a 3D mouse: %v", err)
	case err != nil:
		log.Fatalf("failed to open 3D mouse source: %v", err)
	}

	mapper := input.NewMapper()
	var client *connexion.Client
	if src != nil {
		defer src.close()
		client = connexion.NewClient(mapper, src.prober, timeutil.RealClock{}, tuning.Connexion())
		defer client.Close()
		if p, err := store.LoadConnexionParams(client.Params()); err != nil {
			log.Printf("failed to load 3D mouse params, using tuning: %v", err)
		} else {
			client.SetParams(p)
		}
		client.CheckAttached()
	}

	server := api.NewServer(api.Options{
		LOD:    manager,
		Trace:  trace,
		Mapper: mapper,
		Client: client,
		Store:  store,
	})
	server.SetTuning(tuning)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	interval := *tick
	if interval <= 0 {
		interval = tuning.GetAdjustInterval()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		manager.Run(ctx, timeutil.RealClock{}, interval, trace)
		log.Print("LOD regulator stopped")
	}()

	if *watchTuning && *tuningPath != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := config.Watch(ctx, *tuningPath, func(cfg *config.TuningConfig) {
				manager.ApplyTuning(cfg.LOD())
				if client != nil {
					client.ApplyTuning(cfg.Connexion())
				}
				server.SetTuning(cfg)
				log.Printf("reloaded tuning from %s", *tuningPath)
			})
			if err != nil {
				log.Printf("tuning watcher stopped: %v", err)
			}
		}()
	}

	if src != nil {
		if src.run != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := src.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Printf("failed to monitor HID bridge: %v", err)
				}
				log.Print("monitor routine terminated")
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := client.Run(ctx, src.source); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("3D mouse source stopped: %v", err)
			}
			log.Print("3D mouse routine terminated")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := server.ServeMux()
		if err := store.AttachAdminRoutes(mux); err != nil {
			log.Printf("failed to attach settings debug routes: %v", err)
		}
		if src != nil && src.adminRoutes != nil {
			src.adminRoutes(mux)
		}

		httpServer := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()
		log.Printf("listening on %s", *listen)

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := httpServer.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()

	if err := manager.SaveSettings(store); err != nil {
		log.Printf("failed to save LOD settings: %v", err)
	}
	if client != nil {
		if err := store.SaveConnexionParams(client.Params()); err != nil {
			log.Printf("failed to save 3D mouse params: %v", err)
		}
	}
	log.Printf("Graceful shutdown complete")
}
