package application

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// runPeriodic calls tick every interval until ctx is cancelled or the returned stop
// function is called. stop blocks until the running tick has returned.
func runPeriodic(ctx context.Context, name string, interval time.Duration, tick func(ctx context.Context)) func() {
	stopChan := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		log.WithFields(log.Fields{
			"worker":   name,
			"interval": interval,
		}).Info("Worker started")

		for {
			select {
			case <-ctx.Done():
				log.WithField("worker", name).Info("Worker shutting down (context cancelled)...")
				return
			case <-stopChan:
				log.WithField("worker", name).Info("Worker shutting down (stop requested)...")
				return
			case <-time.After(interval):
				tick(ctx)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(stopChan) })
		<-done
	}
}
