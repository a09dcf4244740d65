//go:build ignore

package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"time"

	"github.com/lib/pq"
)

// Seeds a demo project with one active 50/50 experiment on /pricing, for
// exercising the decision endpoint locally:
//
//	go run scripts/seed_demo_experiment.go
//	curl -X POST localhost:8080/decision -H 'Project-ID: <printed id>' \
//	     -H 'Content-Type: application/json' \
//	     -d '{"url":"http://localhost/pricing"}'
func main() {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		log.Fatalf("Failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	var projectID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO ab_projects (title) VALUES ($1) RETURNING id`,
		"Demo Project").Scan(&projectID)
	if err != nil {
		log.Fatalf("Failed to insert project: %v", err)
	}

	var experimentID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO ab_experiments
			(project_id, title, type, status, url, description, trigger_type, condition_mode, js, css)
		VALUES ($1, $2, 'A/B', 'active', $3, $4, 'page_load', 'ALL', '', '')
		RETURNING id`,
		projectID, "Pricing headline test", "http://localhost/pricing",
		"Demo experiment seeded by scripts/seed_demo_experiment.go").Scan(&experimentID)
	if err != nil {
		log.Fatalf("Failed to insert experiment: %v", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ab_conditions (experiment_id, operator, urls)
		VALUES ($1, 'CONTAINS', $2)`,
		experimentID, pq.Array([]string{"/pricing"}))
	if err != nil {
		log.Fatalf("Failed to insert condition: %v", err)
	}

	variations := []struct {
		title   string
		traffic int
		js      string
	}{
		{"Original", 50, ""},
		{"Bold headline", 50, `document.querySelector('h1').style.fontWeight = '900';`},
	}
	for _, v := range variations {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ab_variations (experiment_id, title, traffic, js, css)
			VALUES ($1, $2, $3, $4, '')`,
			experimentID, v.title, v.traffic, v.js)
		if err != nil {
			log.Fatalf("Failed to insert variation %q: %v", v.title, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ab_metrics (experiment_id, title, custom, selector, description)
		VALUES ($1, 'Signup click', false, '#signup-btn', 'Clicks on the signup CTA')`,
		experimentID)
	if err != nil {
		log.Fatalf("Failed to insert metric: %v", err)
	}

	if err := tx.Commit(); err != nil {
		log.Fatalf("Failed to commit: %v", err)
	}

	log.Printf("Seeded demo project %d with experiment %d", projectID, experimentID)
}
