// remediatorctl is the operator CLI: it round-trips Runbooks as YAML
// (infrastructure-as-code for remediation procedures) directly against the
// database, and drives manual execution/approval/breaker actions through a
// running remediatord's HTTP API.
//
// Usage:
//
//	remediatorctl export-runbook --db "postgres://..." --name disk-cleanup --out runbook.yaml
//	remediatorctl import-runbook --db "postgres://..." --file runbook.yaml
//	remediatorctl approve --api http://localhost:8443 --token $TOKEN --execution <id> --actor alice
//	remediatorctl breaker-open --api http://localhost:8443 --token $TOKEN --scope runbook --scope-id <id>
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/maftabmirza/remediation-engine-sub001/internal/store"
	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
)

// runbookDoc is the on-disk IaC shape: a Runbook plus its steps and
// triggers nested under it, rather than the three flat tables they live in.
type runbookDoc struct {
	model.Runbook `yaml:",inline"`
	Steps         []model.RunbookStep    `yaml:"steps,omitempty"`
	Triggers      []model.RunbookTrigger `yaml:"triggers,omitempty"`
}

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "export-runbook":
		err = exportRunbook(args)
	case "import-runbook":
		err = importRunbook(args)
	case "approve":
		err = postExecutionAction(args, "approve", true)
	case "cancel":
		err = postExecutionAction(args, "cancel", false)
	case "breaker-open":
		err = breakerAction(args, "open")
	case "breaker-reset":
		err = breakerAction(args, "reset")
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: remediatorctl <export-runbook|import-runbook|approve|cancel|breaker-open|breaker-reset> [flags]")
}

func exportRunbook(args []string) error {
	fs := flag.NewFlagSet("export-runbook", flag.ExitOnError)
	dbURL := fs.String("db", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	name := fs.String("name", "", "runbook name")
	out := fs.String("out", "", "output file (defaults to stdout)")
	fs.Parse(args)

	if *dbURL == "" || *name == "" {
		return fmt.Errorf("--db and --name are required")
	}

	ctx := context.Background()
	db, err := store.New(ctx, *dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	runbooks, err := db.ListEnabledRunbooks(ctx)
	if err != nil {
		return fmt.Errorf("list runbooks: %w", err)
	}
	var rb *model.Runbook
	for i := range runbooks {
		if runbooks[i].Name == *name {
			rb = &runbooks[i]
			break
		}
	}
	if rb == nil {
		return fmt.Errorf("no enabled runbook named %q", *name)
	}

	steps, err := db.ListSteps(ctx, rb.ID)
	if err != nil {
		return fmt.Errorf("list steps: %w", err)
	}
	triggers, err := db.ListTriggers(ctx, rb.ID)
	if err != nil {
		return fmt.Errorf("list triggers: %w", err)
	}

	doc := runbookDoc{Runbook: *rb, Steps: steps, Triggers: triggers}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}

	if *out == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(*out, data, 0o644)
}

func importRunbook(args []string) error {
	fs := flag.NewFlagSet("import-runbook", flag.ExitOnError)
	dbURL := fs.String("db", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	file := fs.String("file", "", "runbook YAML file")
	fs.Parse(args)

	if *dbURL == "" || *file == "" {
		return fmt.Errorf("--db and --file are required")
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("read %s: %w", *file, err)
	}
	var doc runbookDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	if doc.Name == "" {
		return fmt.Errorf("runbook name is required in %s", *file)
	}

	ctx := context.Background()
	db, err := store.New(ctx, *dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	saved, err := db.UpsertRunbook(ctx, doc.Runbook)
	if err != nil {
		return fmt.Errorf("upsert runbook: %w", err)
	}

	for _, step := range doc.Steps {
		step.RunbookID = saved.ID
		if err := db.UpsertStep(ctx, step); err != nil {
			return fmt.Errorf("upsert step %s: %w", step.Name, err)
		}
	}
	for _, t := range doc.Triggers {
		t.RunbookID = saved.ID
		if err := db.UpsertTrigger(ctx, t); err != nil {
			return fmt.Errorf("upsert trigger: %w", err)
		}
	}

	log.Printf("imported runbook %s (id=%s) with %d step(s), %d trigger(s)", saved.Name, saved.ID, len(doc.Steps), len(doc.Triggers))
	return nil
}

func postExecutionAction(args []string, action string, bodyHasActor bool) error {
	fs := flag.NewFlagSet(action, flag.ExitOnError)
	apiBase := fs.String("api", "http://localhost:8443", "remediatord base URL")
	token := fs.String("token", os.Getenv("API_BEARER_TOKEN"), "bearer token")
	executionID := fs.String("execution", "", "execution id")
	actor := fs.String("actor", "", "operator name")
	fs.Parse(args)

	if *executionID == "" {
		return fmt.Errorf("--execution is required")
	}

	var body strings.Reader
	if bodyHasActor {
		if *actor == "" {
			return fmt.Errorf("--actor is required")
		}
		payload, _ := json.Marshal(map[string]string{"actor": *actor})
		body = *strings.NewReader(string(payload))
	} else {
		body = *strings.NewReader("{}")
	}

	url := fmt.Sprintf("%s/api/executions/%s/%s", strings.TrimRight(*apiBase, "/"), *executionID, action)
	return doAuthedPost(url, *token, &body)
}

func breakerAction(args []string, action string) error {
	fs := flag.NewFlagSet(action, flag.ExitOnError)
	apiBase := fs.String("api", "http://localhost:8443", "remediatord base URL")
	token := fs.String("token", os.Getenv("API_BEARER_TOKEN"), "bearer token")
	scope := fs.String("scope", "", "breaker scope (runbook)")
	scopeID := fs.String("scope-id", "", "breaker scope id")
	fs.Parse(args)

	if *scope == "" || *scopeID == "" {
		return fmt.Errorf("--scope and --scope-id are required")
	}

	url := fmt.Sprintf("%s/api/breakers/%s/%s/%s", strings.TrimRight(*apiBase, "/"), *scope, *scopeID, action)
	return doAuthedPost(url, *token, strings.NewReader("{}"))
}

func doAuthedPost(url, token string, body *strings.Reader) error {
	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var errBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return fmt.Errorf("remediatord returned %d: %v", resp.StatusCode, errBody)
	}
	log.Printf("ok (%d)", resp.StatusCode)
	return nil
}
