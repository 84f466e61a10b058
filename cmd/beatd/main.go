// Command beatd reads beat detector events from a serial port or a fixture
// file, tracks the tempo and forecasts upcoming beats.
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

	"tailscale.com/tsweb"

	"github.com/banshee-data/beat.report/internal/config"
	"github.com/banshee-data/beat.report/internal/db"
	"github.com/banshee-data/beat.report/internal/detector"
	"github.com/banshee-data/beat.report/internal/httputil"
	"github.com/banshee-data/beat.report/internal/pipeline"
	"github.com/banshee-data/beat.report/internal/scheduler"
	"github.com/banshee-data/beat.report/internal/sink"
	"github.com/banshee-data/beat.report/internal/version"
)

var (
	listen     = flag.String("listen", ":8081", "Debug HTTP listen address (empty disables)")
	configPath = flag.String("config", "", "Path to a tuning config JSON file (defaults are built in)")
	dbPath     = flag.String("db", "beat.db", "SQLite database for sessions (empty disables)")
	fixture    = flag.String("fixture", "", "Replay detector output from this file instead of a serial port")
	serialPort = flag.String("serial", "", "Serial device the detector streams on")
	baud       = flag.Int("baud", 115200, "Serial baud rate")
	devMode    = flag.Bool("dev", false, "Pace fixture replay in real time")
	linger     = flag.Bool("linger", false, "Keep the debug server up after the source ends")
	logFormat  = flag.String("log-format", "", "Override log_format: detailed, simple or csv")
	printVer   = flag.Bool("version", false, "Print version and exit")
)

func loadConfig(path, format string) (*config.TuningConfig, error) {
	cfg := config.EmptyTuningConfig()
	if path != "" {
		var err error
		if cfg, err = config.LoadTuningConfig(path); err != nil {
			return nil, err
		}
	}
	if format != "" {
		cfg.LogFormat = &format
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// openSource returns the detector source and a short description of it
// for the session record.
func openSource(fixturePath, port string, baudRate int, pace bool) (detector.Source, string, error) {
	switch {
	case fixturePath != "" && port != "":
		return nil, "", errors.New("-fixture and -serial are mutually exclusive")
	case fixturePath != "":
		src, err := detector.OpenFixture(fixturePath, pace, nil)
		if err != nil {
			return nil, "", err
		}
		return src, "fixture:" + fixturePath, nil
	case port != "":
		src, err := detector.OpenSerial(port, detector.PortOptions{BaudRate: baudRate})
		if err != nil {
			return nil, "", err
		}
		return src, fmt.Sprintf("serial:%s@%d", port, src.Opts.BaudRate), nil
	default:
		return nil, "", errors.New("one of -fixture or -serial is required")
	}
}

func logPredicted(b pipeline.PredictedBeat) {
	log.Printf("predicted beat +%d at %.3fs (from event at %.3fs)", b.Index+1, b.StreamTime, b.Source)
}

func main() {
	flag.Parse()

	if *printVer {
		fmt.Println(version.String())
		return
	}
	log.Printf("beatd %s", version.String())

	cfg, err := loadConfig(*configPath, *logFormat)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	src, sourceName, err := openSource(*fixture, *serialPort, *baud, *devMode)
	if err != nil {
		log.Fatalf("failed to open detector source: %v", err)
	}

	outputs := sink.NewFanOut(cfg.GetSinkQueueCapacity())
	if err := outputs.Add("log", sink.NewLogSink(cfg.GetLogFormat(), nil)); err != nil {
		log.Fatalf("failed to add log sink: %v", err)
	}

	var database *db.DB
	if *dbPath != "" {
		database, err = db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		defer database.Close()

		session, err := database.StartSession(sourceName, time.Now(), cfg)
		if err != nil {
			log.Fatalf("failed to start session: %v", err)
		}
		log.Printf("session %s started (%s)", session.ID, sourceName)
		if err := outputs.Add("db", database.Recorder(session.ID)); err != nil {
			log.Fatalf("failed to add db sink: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(nil)
	opts := pipeline.OptionsFromConfig(cfg)
	opts.Scheduler = sched
	opts.OnPredicted = logPredicted
	p := pipeline.New(src, outputs, opts)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("scheduler stopped: %v", err)
		}
		log.Print("scheduler routine terminated")
	}()

	if *listen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()

			mux := http.NewServeMux()
			p.AttachAdminRoutes(mux)
			if database != nil {
				database.AttachAdminRoutes(mux)
			}
			tsweb.Debugger(mux).HandleFunc("sink-stats", "per-sink delivery counters (JSON)", func(w http.ResponseWriter, r *http.Request) {
				httputil.WriteJSONOK(w, outputs.Stats())
			})

			server := &http.Server{
				Addr:    *listen,
				Handler: mux,
			}
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Printf("HTTP server failed: %v", err)
					stop()
				}
			}()

			<-ctx.Done()
			log.Println("shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("HTTP server shutdown error: %v", err)
			}
		}()
	}

	runErr := p.Run(ctx)
	if runErr != nil {
		log.Printf("pipeline stopped: %v", runErr)
	} else {
		log.Print("pipeline finished")
	}
	// Flush the sinks before ending the session.
	if err := outputs.Close(); err != nil {
		log.Printf("closing sinks: %v", err)
	}

	if *linger && ctx.Err() == nil {
		log.Print("source ended; debug server stays up until interrupted")
		<-ctx.Done()
	}
	stop()
	wg.Wait()

	s := p.Stats()
	log.Printf("processed %d events (%d duplicates, %d invalid), final period %.3fs",
		s.Processed, s.Duplicates, s.Invalid, s.Period)
}
