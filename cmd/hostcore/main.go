// Command hostcore is the process entrypoint: it loads configuration, opens
// the MCU serial link, wires every collaborator via robot.New, and runs the
// scheduling model until a worker errors or the process receives SIGINT/
// SIGTERM (spec.md §5, §7 "I/O init failure - UART or TCP initialization
// failure aborts startup").
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rn1robotics/hostcore/pkg/config"
	"github.com/rn1robotics/hostcore/pkg/logging"
	"github.com/rn1robotics/hostcore/pkg/motion"
	"github.com/rn1robotics/hostcore/pkg/robot"
	"github.com/rn1robotics/hostcore/pkg/sensors"
)

var (
	configPath = flag.String("config", "", "Path to YAML config file (defaults used if omitted)")
	port       = flag.String("port", "", "Serial port device, overrides config serial.port")
	baud       = flag.Int("baud", 0, "Serial baud rate, overrides config serial.baud")
	addr       = flag.String("addr", "", "TCP listen address, overrides config tcp.addr")
	verbose    = flag.Bool("v", false, "Enable debug-level logging")
)

func main() {
	flag.Parse()
	logging.SetVerbose(*verbose)
	log := logging.Component("main")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if *port != "" {
		cfg.Serial.Port = *port
	}
	if *baud != 0 {
		cfg.Serial.Baud = *baud
	}
	if *addr != "" {
		cfg.TCP.Addr = *addr
	}

	link, err := motion.OpenSerialLink(cfg.Serial.Port, cfg.Serial.Baud)
	if err != nil {
		log.Fatal().Err(err).Str("port", cfg.Serial.Port).Msg("failed to open serial link")
	}
	defer link.Close()

	r, err := robot.New(cfg, robot.Deps{
		Motion: link,
		Lidar:  sensors.Config{},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build robot")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := r.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("host core exited with error")
	}
	fmt.Fprintln(os.Stderr, "host core stopped")
}
