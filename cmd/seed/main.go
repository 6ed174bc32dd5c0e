// Command seed writes a sample candidate profile and interview so a fresh
// local database produces personalised answers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"interview-copilot/internal/config"
	pg "interview-copilot/internal/infra/db/postgres"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	userID := flag.String("user", "demo-user", "requester id to seed")
	role := flag.String("role", "Senior Backend Engineer", "target role")
	stack := flag.String("stack", "Go,PostgreSQL,Redis,Kubernetes", "comma separated tech stack")
	jd := flag.String("jd", "Build and operate low-latency APIs for a payments platform.", "job description")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	var skills []string
	for _, s := range strings.Split(*stack, ",") {
		if s = strings.TrimSpace(s); s != "" {
			skills = append(skills, s)
		}
	}

	const upsertProfile = `
INSERT INTO profiles (user_id, name, target_role, years_experience, tech_stack, projects)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (user_id) DO UPDATE
SET name = EXCLUDED.name, target_role = EXCLUDED.target_role,
    years_experience = EXCLUDED.years_experience, tech_stack = EXCLUDED.tech_stack,
    projects = EXCLUDED.projects, updated_at = NOW();`
	if _, err := pool.Exec(ctx, upsertProfile, *userID, "Demo Candidate", *role, 6, skills,
		"Led the migration of a monolith billing service to event-driven workers."); err != nil {
		log.Fatalf("seed profile: %v", err)
	}

	const insertInterview = `
INSERT INTO interviews (id, user_id, job_description) VALUES ($1, $2, $3);`
	interviewID := uuid.New()
	if _, err := pool.Exec(ctx, insertInterview, interviewID.String(), *userID, *jd); err != nil {
		log.Fatalf("seed interview: %v", err)
	}

	fmt.Printf("seeded profile %q (%s) and interview %s\n", *userID, *role, interviewID)
}
