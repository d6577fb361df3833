// Command gateway is the multi-client Android screen/audio streaming and
// control gateway's entry point: it wires DeviceBus, SessionManager,
// CommandHub and ClientGateway together behind one HTTP server, the same
// four-capability shape the teacher's single-device main.go wired by
// hand for one hardcoded connection.
package main

import (
	"context"
	"flag"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/simba-remote/gateway/adb"
	"github.com/simba-remote/gateway/internal/command"
	"github.com/simba-remote/gateway/internal/gateway"
	"github.com/simba-remote/gateway/internal/localinput"
	"github.com/simba-remote/gateway/internal/logging"
	"github.com/simba-remote/gateway/internal/session"
	"github.com/simba-remote/gateway/internal/state"
)

// registerADBFlags mirrors the teacher's registerADBFlags: one FlagSet
// section for everything DeviceBus needs to reach the right adb server
// and device, kept isolated from the gateway's own HTTP/session flags.
func registerADBFlags(fs *flag.FlagSet) func() adb.Options {
	host := fs.String("adb-host", "127.0.0.1", "adb server host")
	port := fs.Int("adb-port", 5037, "adb server port")
	binPath := fs.String("adb-bin", "", "override the adb binary path (defaults to ADB_PATH env, bundled platform-tools, then PATH)")

	return func() adb.Options {
		return adb.Options{
			BinPath:    *binPath,
			ServerHost: *host,
			ServerPort: *port,
		}
	}
}

func main() {
	fs := flag.CommandLine
	adbOpts := registerADBFlags(fs)

	addr := fs.String("addr", ":8080", "HTTP listen address")
	basePort := fs.Int("base-port", 27200, "first local port SessionManager allocates for scrcpy reverse tunnels")
	jarPath := fs.String("server-jar", "assets/simba-server.jar", "path to the on-device streaming server jar")
	localInput := fs.String("local-input", "", "enable the local OTG input bridge: \"control\" feeds the ControlRouter directly, \"hostrelay\" taps the host OS via robotgo; empty disables it")
	logLevel := fs.String("log-level", "info", "debug|info|error|silent")
	flag.Parse()

	log := logging.New("main", parseLogLevel(*logLevel))

	bus, err := adb.NewBus(adbOpts())
	if err != nil {
		log.Fatal("adb bus: %v", err)
	}

	st := state.New()
	sessions := session.NewManager(bus, st, *basePort, *jarPath)
	hub := command.NewHub(bus, sessions, st)
	gw := gateway.New(hub, sessions, st)

	if mode, ok := parseLocalInputMode(*localInput); ok {
		gw.EnableLocalInput(mode)
		log.Info("local input bridge enabled: mode=%s", *localInput)
	} else if *localInput != "" {
		log.Fatal("unknown -local-input mode %q, want \"control\" or \"hostrelay\"", *localInput)
	}

	r := gin.Default()
	r.GET("/ws", gin.WrapF(gw.Handler()))
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	// pprof (net/http/pprof's blank import) and expvar (metrics package's
	// vars) both register themselves on http.DefaultServeMux; gin just
	// forwards /debug/* to it rather than re-registering the same routes.
	r.Any("/debug/*any", gin.WrapH(http.DefaultServeMux))

	srv := &http.Server{Addr: *addr, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown: %v", err)
	}
}

func parseLocalInputMode(s string) (localinput.Mode, bool) {
	switch s {
	case "control":
		return localinput.ModeControlFrame, true
	case "hostrelay":
		return localinput.ModeHostRelay, true
	default:
		return 0, false
	}
}

func parseLogLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "error":
		return logging.LevelError
	case "silent":
		return logging.LevelSilent
	default:
		return logging.LevelInfo
	}
}
