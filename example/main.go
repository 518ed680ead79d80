package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meikuraledutech/procflow"
	"github.com/meikuraledutech/procflow/memory"
	"github.com/meikuraledutech/procflow/postgres"
	"github.com/meikuraledutech/procflow/version"
	"github.com/meikuraledutech/procflow/workspace"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	// Postgres when DATABASE_URL is set, memory otherwise.
	var gw procflow.Gateway = memory.New()
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			log.Fatalf("connect: %v", err)
		}
		defer pool.Close()

		store := postgres.New(pool)
		if err := store.CreateSchema(ctx); err != nil {
			log.Fatalf("schema: %v", err)
		}
		fmt.Println("schema created")
		gw = store
	}

	versions := version.NewController(gw, logger)
	versions.Retain = true
	reg := workspace.NewRegistry(gw, versions, nil, logger, workspace.Options{})
	sess := reg.Create(ctx)

	// ── Apply a plan (connections before nodes is fine) ───────────────
	plan, err := procflow.ParsePlan([]byte(`[
		{"type":"CONNECT_NODES","source":"start","target":"review"},
		{"type":"CONNECT_NODES","source":"review","target":"route"},
		{"type":"CONNECT_NODES","source":"route","target":"notify","label":"approved"},
		{"type":"CONNECT_NODES","source":"route","target":"done","label":"rejected"},
		{"type":"CONNECT_NODES","source":"notify","target":"done"},
		{"type":"ADD_NODE","tempId":"start","nodeType":"start","label":"Request submitted"},
		{"type":"ADD_NODE","tempId":"review","nodeType":"userTask","label":"Manager review","config":{"assignee":"manager","formKey":"leave-form"}},
		{"type":"ADD_NODE","tempId":"route","nodeType":"gateway","label":"Approved?"},
		{"type":"ADD_NODE","tempId":"notify","nodeType":"aiAgent","label":"Draft reply","config":{"systemPrompt":"Write a short approval note."}},
		{"type":"ADD_NODE","tempId":"done","nodeType":"end","label":"Done"}
	]`))
	if err != nil {
		log.Fatalf("parse plan: %v", err)
	}
	res, err := sess.ApplyPlan(ctx, plan)
	if err != nil {
		log.Fatalf("apply plan: %v", err)
	}
	fmt.Printf("plan applied: %d nodes, %d edges\n", len(res.AddedNodes), len(res.AddedEdges))

	// ── Compile ───────────────────────────────────────────────────────
	compiled, err := sess.Compile("Leave Request")
	if err != nil {
		log.Fatalf("compile: %v", err)
	}
	fmt.Printf("\nprocess %s:\n%s\n", compiled.ProcessID, compiled.XML)

	// ── Save a few versions ───────────────────────────────────────────
	for i := 0; i < 4; i++ {
		doc, err := sess.Save(ctx, "Leave Request")
		if err != nil {
			log.Fatalf("save: %v", err)
		}
		fmt.Printf("saved %s (%s)\n", doc.Name, doc.ID)
	}

	// ── List what retention left ──────────────────────────────────────
	docs, err := gw.ListWorkflows(ctx)
	if err != nil {
		log.Fatalf("list: %v", err)
	}
	fmt.Printf("\nworkflows (%d):\n", len(docs))
	for _, d := range docs {
		fmt.Println(" ", d.Name)
	}
	printJSON(sess.Graph().Metadata())

	// ── Cleanup ───────────────────────────────────────────────────────
	for _, d := range docs {
		if err := gw.DeleteWorkflow(ctx, d.ID); err != nil {
			log.Fatalf("delete: %v", err)
		}
	}
	fmt.Println("\nworkflows deleted")
}

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}
