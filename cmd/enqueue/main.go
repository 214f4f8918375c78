// Command enqueue runs one enrichment from the command line: rewrite the
// script, generate slides, record the job and publish it. The request is a
// JSON object read from -payload, or from INPUT_PAYLOAD when the flag is empty.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"videogenie/internal/bootstrap"
	"videogenie/internal/config"
	"videogenie/internal/enrichment"
	"videogenie/internal/pkg/errors"
	"videogenie/internal/pkg/logger"
	"videogenie/internal/pkg/shutdown"
	"videogenie/internal/queue"
	"videogenie/internal/skill"
)

func main() {
	start := time.Now()

	payload := flag.String("payload", "", "enrichment request as JSON (defaults to $INPUT_PAYLOAD)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault().LogFatal("failed to load configuration", err)
	}
	log := logger.New(cfg.LoggerConfig())
	if err := cfg.Validate(config.RoleEnqueue); err != nil {
		log.LogFatal("invalid configuration", err)
	}

	req, err := readRequest(*payload)
	if err != nil {
		log.LogFatal("invalid input payload", err)
	}

	shutdownMgr := shutdown.NewManager(log, 10*time.Second)
	defer shutdownMgr.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 3*cfg.Skill.OrchTimeout+30*time.Second)
	defer cancel()

	infra, err := bootstrap.Open(ctx, cfg, log, shutdownMgr)
	if err != nil {
		shutdownMgr.Shutdown()
		log.LogFatal("failed to open backing services", err)
	}

	skills, err := skill.New(cfg.Skill, log)
	if err != nil {
		shutdownMgr.Shutdown()
		log.LogFatal("failed to initialize skill invoker", err)
	}

	publisher := queue.NewRetryingPublisher(infra.Queue, cfg.Queue.PublishAttempts, log)
	coordinator := enrichment.New(skill.Instrument(skills, log), infra.Store, publisher, log)

	jobID, err := coordinator.EnrichAndEnqueue(ctx, req)
	if err != nil {
		shutdownMgr.Shutdown()
		log.LogFatal("enrichment failed", err, "job_id", jobID)
	}

	fmt.Println("queued", jobID)
	fmt.Printf("elapsed %.2f s\n", time.Since(start).Seconds())
}

func readRequest(flagValue string) (enrichment.Request, error) {
	raw := strings.TrimSpace(flagValue)
	if raw == "" {
		raw = strings.TrimSpace(os.Getenv("INPUT_PAYLOAD"))
	}
	if raw == "" {
		return enrichment.Request{}, errors.Validation("no payload: pass -payload or set INPUT_PAYLOAD")
	}

	var req enrichment.Request
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return enrichment.Request{}, errors.WrapWithCode(err, errors.CodeValidation, "enqueue.payload", "payload is not valid JSON")
	}
	return req, nil
}
