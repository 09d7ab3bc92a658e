package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/hass-addons/claude-terminal/internal/config"
	"github.com/hass-addons/claude-terminal/internal/database"
	"github.com/hass-addons/claude-terminal/internal/handlers"
	"github.com/hass-addons/claude-terminal/internal/logging"
	"github.com/hass-addons/claude-terminal/internal/middleware"
	"github.com/hass-addons/claude-terminal/internal/procconfig"
	"github.com/hass-addons/claude-terminal/internal/sessionstore"
	"github.com/hass-addons/claude-terminal/internal/termsession"
)

func main() {
	// Handle CLI commands before starting the server
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--list-sessions":
			runCLICommand("list-sessions")
			return
		case "--forget-session":
			runCLICommand("forget-session")
			return
		}
	}

	config.Load()
	logging.Init()
	defer logging.Close()

	db, err := database.Open(config.Cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close(db)

	store := sessionstore.New(db)
	if n, err := store.ImportLegacy(config.Cfg.LegacySessionsFile); err != nil {
		log.Printf("WARNING: legacy session import failed: %v", err)
	} else if n > 0 {
		log.Printf("Imported %d session(s) from %s", n, config.Cfg.LegacySessionsFile)
	}

	manager := termsession.NewManager(termsession.ManagerConfig{
		BufferSize: config.Cfg.BufferChunks,
		Launcher:   procconfig.NewLauncherFromSettings(config.Cfg),
	})
	sessions := termsession.NewService(manager, store)
	log.Printf("Session manager initialized (command=%s, buffer=%d chunks, dir=%s)",
		config.Cfg.Command, config.Cfg.BufferChunks, config.Cfg.WorkDir)

	syncJob := newActivitySyncJob(sessions)
	scheduler, err := startActivitySync(syncJob, config.Cfg.ActivitySyncSchedule)
	if err != nil {
		log.Fatalf("Activity sync schedule %q: %v", config.Cfg.ActivitySyncSchedule, err)
	}

	h := &handlers.Handler{
		Sessions:   sessions,
		DB:         db,
		ConfigDir:  config.Cfg.HAConfigDir,
		Supervisor: handlers.NewSupervisorClient(config.Cfg.SupervisorURL, config.Cfg.SupervisorToken),
	}

	var spa http.Handler
	if dir := config.Cfg.FrontendDir; dir != "" {
		spa = middleware.NewSPAHandler(os.DirFS(dir))
		log.Printf("Serving frontend from %s", dir)
	}
	r := handlers.NewRouter(h, spa)

	// Graceful shutdown
	srv := &http.Server{
		Addr:    config.Cfg.ListenAddr,
		Handler: r,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on %s", config.Cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	<-scheduler.Stop().Done()
	syncJob.Run()
	manager.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

func runCLICommand(command string) {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	id := fs.String("id", "", "Session ID")
	fs.Parse(os.Args[2:])

	if command == "forget-session" && *id == "" {
		fmt.Fprintf(os.Stderr, "Usage: claude-terminal --forget-session --id <session-id>\n")
		os.Exit(1)
	}

	config.Load()
	db, err := database.Open(config.Cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close(db)
	store := sessionstore.New(db)

	switch command {
	case "list-sessions":
		records, err := store.List()
		if err != nil {
			log.Fatalf("Failed to list sessions: %v", err)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tCREATED\tLAST ACTIVITY")
		for _, rec := range records {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", rec.ID, rec.Name,
				rec.CreatedAt.Local().Format(time.DateTime), rec.LastActivity.Local().Format(time.DateTime))
		}
		tw.Flush()

	case "forget-session":
		if _, err := store.Get(*id); err != nil {
			log.Fatalf("Session '%s' not found", *id)
		}
		if err := store.Remove(*id); err != nil {
			log.Fatalf("Failed to remove session: %v", err)
		}
		fmt.Printf("Session '%s' removed. A running server keeps it until restart or delete.\n", *id)
	}
}
