// cmd/publish is a development utility: it fans one job out into its
// per-simulation task messages on the Pub/Sub topic, the same way the
// orchestrator does when a job is submitted. Useful for exercising a worker
// without running the whole web application.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
)

type simulationTaskMessage struct {
	Type      string `json:"type"`
	JobID     string `json:"jobId"`
	SimID     string `json:"simId"`
	SimIndex  int    `json:"simIndex"`
	TotalSims int    `json:"totalSims"`
}

func main() {
	var (
		project = flag.String("project", os.Getenv("PUBSUB_PROJECT"), "GCP project ID")
		topic   = flag.String("topic", "simulation-tasks", "Pub/Sub topic")
		jobID   = flag.String("job", "", "job ID to fan out (required)")
		sims    = flag.Int("sims", 4, "number of simulations in the job")
	)
	flag.Parse()

	if *project == "" || *jobID == "" {
		log.Fatal("both -project (or PUBSUB_PROJECT) and -job are required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	client, err := pubsub.NewClient(ctx, *project)
	if err != nil {
		log.Fatalf("create pubsub client: %v", err)
	}
	defer client.Close()

	t := client.Topic(*topic)
	defer t.Stop()

	var results []*pubsub.PublishResult
	for i := 0; i < *sims; i++ {
		msg := simulationTaskMessage{
			Type:      "simulation",
			JobID:     *jobID,
			SimID:     uuid.NewString(),
			SimIndex:  i,
			TotalSims: *sims,
		}
		data, err := json.Marshal(msg)
		if err != nil {
			log.Fatalf("marshal task %d: %v", i, err)
		}
		results = append(results, t.Publish(ctx, &pubsub.Message{Data: data}))
	}

	for i, res := range results {
		id, err := res.Get(ctx)
		if err != nil {
			log.Fatalf("publish task %d: %v", i, err)
		}
		log.Printf("published simulation %d/%d message_id=%s", i+1, *sims, id)
	}
	log.Printf("job %s fanned out into %d simulation tasks", *jobID, *sims)
}
