package jobs

import (
	"log"
	"time"

	"home-service-server/services"
)

// TokenCleanupJob periodically purges expired and revoked refresh tokens
type TokenCleanupJob struct {
	interval time.Duration
	stopChan chan struct{}
}

// NewTokenCleanupJob creates the cleanup job
func NewTokenCleanupJob() *TokenCleanupJob {
	return &TokenCleanupJob{
		interval: 24 * time.Hour,
		stopChan: make(chan struct{}),
	}
}

// Start begins the cleanup job
func (j *TokenCleanupJob) Start() {
	go j.run()
	log.Println("🚀 Token cleanup job started")
}

// Stop stops the cleanup job
func (j *TokenCleanupJob) Stop() {
	close(j.stopChan)
	log.Println("🛑 Token cleanup job stopped")
}

func (j *TokenCleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	jwtService := services.NewJWTService()
	for {
		select {
		case <-ticker.C:
			if err := jwtService.CleanupExpiredTokens(); err != nil {
				log.Printf("❌ Token cleanup failed: %v", err)
			}
		case <-j.stopChan:
			return
		}
	}
}
