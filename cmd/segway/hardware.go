package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/segway/internal/config"
	"github.com/san-kum/segway/internal/fault"
	"github.com/san-kum/segway/internal/hardware"
	"github.com/san-kum/segway/internal/logging"
	"github.com/san-kum/segway/internal/telemetry"
	"github.com/san-kum/segway/internal/vehicle"
)

// runHardware drives the vehicle until interrupted or a fault halts it. The
// board is closed on every path, which zeroes both motors.
func runHardware(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closer := logging.New(cfg.Log, os.Stderr, "segway: ")
	defer closer.Close()

	var tel vehicle.Telemetry = telemetry.Discard{}
	if cfg.Telemetry.Enabled {
		m, err := dialTelemetry(cfg, logger)
		if err != nil {
			logger.Printf("telemetry disabled: %v", err)
		} else {
			defer m.Close()
			tel = m
		}
	}

	board, err := hardware.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := board.Close(); err != nil {
			logger.Printf("close board: %v", err)
		}
	}()

	hook := fault.NewCutoff(logger, nil, board.Left, board.Right)
	veh, err := vehicle.New(cfg.Vehicle(), board.Collaborators(tel, hook))
	if err != nil {
		return err
	}
	if err := veh.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := hardware.NewTicker(cfg.TickInterval(), logger)
	logger.Printf("control loop at %.0f Hz", cfg.Control.TickHz)
	err = ticker.Run(ctx, veh)
	logger.Printf("stopped after %d ticks, %d overruns", ticker.Ticks(), ticker.Overruns())

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// calibrateSteering records the pot voltage at each end stop and writes the
// range back to the config file.
func calibrateSteering(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	limit, err := time.ParseDuration(timeout)
	if err != nil {
		return fmt.Errorf("--timeout: %w", err)
	}
	logger, closer := logging.New(cfg.Log, os.Stderr, "segway: ")
	defer closer.Close()

	board, err := hardware.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer board.Close()

	lo, hi, err := board.Buttons()
	if err != nil {
		return err
	}
	steering := vehicle.NewSteering(board.Steering, float32(cfg.Steering.MinVoltage), float32(cfg.Steering.MaxVoltage))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	fmt.Println("turn to the left stop and press the min button, then the right stop and the max button")
	if err := steering.Calibrate(ctx, lo, hi); err != nil {
		return err
	}
	minV, maxV := steering.Range()
	fmt.Printf("steering range: %.3f V to %.3f V\n", minV, maxV)

	cfg.Steering.MinVoltage, cfg.Steering.MaxVoltage = float64(minV), float64(maxV)
	path := configFile
	if path == "" {
		path = "segway.yaml"
	}
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	fmt.Printf("saved to %s\n", path)
	return nil
}
