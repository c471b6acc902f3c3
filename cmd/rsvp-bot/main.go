package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"party-rsvp/internal/config"
	"party-rsvp/internal/conversation"
	"party-rsvp/internal/handler"
	"party-rsvp/internal/lock"
	"party-rsvp/internal/logging"
	"party-rsvp/internal/metrics"
	"party-rsvp/internal/models"
	"party-rsvp/internal/registry"
	"party-rsvp/internal/storage"
	"party-rsvp/internal/whatsapp"
)

func main() {
	fmt.Println("🎉 Party RSVP Bot")
	fmt.Println("=================")

	cfg, err := config.LoadConfig(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Printf("Error initializing logging: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("Bot stopped")
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, promReg, logger); err != nil {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	locker, closeLocker, err := newLocker(cfg)
	if err != nil {
		return err
	}
	defer closeLocker()

	opts := []registry.Option{registry.WithMetrics(m), registry.WithLogger(logger)}
	if locker != nil {
		opts = append(opts, registry.WithLocker(locker))
	}
	guests := registry.New(storage.NewStorage(cfg.GuestFile, logger), opts...)

	admin := models.UserID(whatsapp.NormalizePhoneNumber(cfg.AdminUserID, cfg.CountryCode))
	machine := conversation.NewMachine(guests, conversation.Config{AdminID: admin},
		conversation.WithMetrics(m),
		conversation.WithLogger(logger),
	)

	service, err := whatsapp.NewService(ctx, &whatsapp.Config{
		DataDir:     cfg.WhatsAppDataDir,
		CountryCode: cfg.CountryCode,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize WhatsApp service: %w", err)
	}

	rsvpHandler := handler.NewRSVPHandler(service, machine, logger)
	service.SetMessageHandler(rsvpHandler.HandleMessage)

	fmt.Println("Connecting to WhatsApp...")
	if err := service.Connect(ctx); err != nil {
		return err
	}
	defer service.Disconnect()

	fmt.Println("\n✅ Connected to WhatsApp!")
	fmt.Println("The bot is now listening for RSVP responses.")
	logger.Info().
		Str("guest_file", cfg.GuestFile).
		Str("lock", cfg.LockBackend).
		Str("admin", string(admin)).
		Msg("Bot started")

	exit := make(chan struct{})
	go startCLI(ctx, rsvpHandler, guests, machine, admin, exit)

	select {
	case <-ctx.Done():
	case <-exit:
	case err := <-rsvpHandler.Fatal():
		return fmt.Errorf("guest list is not writable: %w", err)
	}

	fmt.Println("\n\nShutting down...")
	if err := guests.Flush(context.Background()); err != nil {
		return err
	}
	fmt.Println("Goodbye! 👋")
	return nil
}

func newLocker(cfg *config.Config) (lock.Locker, func(), error) {
	switch cfg.LockBackend {
	case config.LockFile:
		return lock.NewFileLocker(filepath.Dir(cfg.GuestFile)), func() {}, nil
	case config.LockRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		return lock.NewRedisLocker(client, "rsvp:"), func() { client.Close() }, nil
	}
	return nil, func() {}, nil
}

func startCLI(ctx context.Context, rsvpHandler *handler.RSVPHandler, guests *registry.Registry, machine *conversation.Machine, admin models.UserID, exit chan<- struct{}) {
	defer close(exit)
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Println("\nCommands:")
		fmt.Println("  1. Send invitation")
		fmt.Println("  2. View guest list")
		fmt.Println("  3. View stats")
		fmt.Println("  4. Exit")
		fmt.Print("\nEnter command (1-4): ")

		if !scanner.Scan() {
			return
		}

		switch strings.TrimSpace(scanner.Text()) {
		case "1":
			sendInvitation(ctx, scanner, rsvpHandler)
		case "2":
			viewGuests(ctx, guests)
		case "3":
			viewStats(ctx, machine, admin)
		case "4":
			fmt.Println("Exiting...")
			return
		default:
			fmt.Println("Invalid command. Please try again.")
		}
	}
}

func sendInvitation(ctx context.Context, scanner *bufio.Scanner, rsvpHandler *handler.RSVPHandler) {
	fmt.Print("Enter phone number (e.g., 050-123-4567 or 972501234567): ")
	if !scanner.Scan() {
		return
	}
	phoneNumber := strings.TrimSpace(scanner.Text())

	fmt.Printf("\nSending invitation to %s...\n", phoneNumber)
	if err := rsvpHandler.SendInvitation(ctx, phoneNumber); err != nil {
		fmt.Printf("❌ Error sending invitation: %v\n", err)
		return
	}
	fmt.Println("✅ Invitation sent successfully!")
}

func viewGuests(ctx context.Context, guests *registry.Registry) {
	list, err := guests.ListAttending(ctx)
	if err != nil {
		fmt.Printf("❌ Error reading guest list: %v\n", err)
		return
	}
	fmt.Println()
	fmt.Println(conversation.FormatRoster(list))
}

func viewStats(ctx context.Context, machine *conversation.Machine, admin models.UserID) {
	reply, err := machine.Stats(ctx, admin)
	if err != nil {
		fmt.Printf("❌ Error reading stats: %v\n", err)
		return
	}
	fmt.Println()
	fmt.Println(reply.Text)
}
