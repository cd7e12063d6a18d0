package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"blandpanel-server/api"
	"blandpanel-server/config"
	"blandpanel-server/driver"
	"blandpanel-server/logger"
)

func main() {
	if err := run(); err != nil {
		logger.Error("%v", err)
		logger.Close()
		os.Exit(1)
	}
	logger.Close()
}

func run() error {
	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 2. Initialize Logger
	logger.SetDebug(cfg.Debug)
	if err := logger.Init(cfg.LogDir); err != nil {
		fmt.Fprintf(os.Stderr, "logging to console only: %v\n", err)
	}

	// 3. Initialize Device
	device := driver.NewDevice(driver.Config{
		Name:        cfg.Name,
		PortName:    cfg.Port,
		BaudRate:    cfg.BaudRate,
		ReadTimeout: cfg.ReadTimeout,
		Simulation:  cfg.Simulate,
	})

	// 4. Connect, or let the scanner find the panel
	var scanner *driver.Scanner
	if cfg.Scan && !cfg.Simulate {
		scanner = driver.NewScanner(device)
		if cfg.Mock {
			scanner.Extra = append(scanner.Extra, config.MockAddr)
		}
		scanner.Start()
		defer scanner.Stop()
	} else if err := device.Connect(); err != nil {
		logger.Error("Initial connect failed, waiting for CONNECT: %v", err)
	}
	defer func() {
		if device.IsConnected() {
			device.Disconnect()
		}
	}()

	// 5. Initialize API Handler
	handler := api.NewHandler(device)
	mux := http.NewServeMux()
	handler.Register(mux)

	// 6. Start HTTP Server
	srv := &http.Server{Addr: cfg.WSAddr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening on %s", cfg.WSAddr)
		errCh <- srv.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case s := <-sig:
		logger.Info("Received %v, shutting down", s)
		return srv.Close()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("ListenAndServe: %w", err)
	}
}
