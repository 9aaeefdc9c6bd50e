package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/yungbote/learnhub/internal/app"
	"github.com/yungbote/learnhub/internal/catalog"
	"github.com/yungbote/learnhub/internal/session"
)

// featuredLimit matches the home page carousel.
const featuredLimit = 8

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()
	log := a.Log

	if err := a.Start(ctx); err != nil {
		log.Error("Failed to start app", "error", err)
		return
	}

	restoreCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := a.Services.Session.RestoreSession(restoreCtx); err != nil {
		log.Warn("Session restore failed", "error", err)
	}
	cancel()

	featured, err := a.Services.Catalog.ListCourses(ctx, catalog.Filters{Limit: featuredLimit})
	if err != nil {
		log.Warn("Failed to load featured courses", "error", err)
	}
	for _, c := range featured {
		log.Info("Featured course", "title", c.Title, "level", c.Level, "price", c.Price, "rating", c.Rating)
	}

	if id := a.Services.Session.Identity(); id != nil {
		if err := a.Services.Enrollment.Refresh(ctx); err != nil {
			log.Warn("Failed to load enrollments", "error", err)
		}
		stats := a.Services.Enrollment.Stats()
		log.Info("Signed in",
			"user_id", id.ID,
			"enrolled", stats.Total,
			"completed", stats.Completed,
			"average_progress", stats.AverageProgress,
			"hours_learned", stats.HoursLearned,
		)
	} else {
		log.Info("No stored session; signed out")
	}

	unsubscribe := a.Services.Session.Subscribe(func(st session.State) {
		if st.Identity == nil {
			log.Info("Auth state: signed out")
			return
		}
		log.Info("Auth state: signed in", "user_id", st.Identity.ID, "has_profile", st.Profile != nil)
	})
	defer unsubscribe()

	log.Info("learnhub running; waiting for auth events")
	if err := a.Run(ctx); err != nil {
		log.Error("Run failed", "error", err)
	}
	log.Info("Shutting down")
}
