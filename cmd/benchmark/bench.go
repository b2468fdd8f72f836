// Load harness for a running claude-gate instance. Point it at a deployment
// (ideally one configured against a stub upstream) and it reports latency
// percentiles and error rates.
//
//	go run ./cmd/benchmark -target http://127.0.0.1:4096 -key sk-gate-... -rate 50 -duration 30s
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	vegeta "github.com/tsenart/vegeta/v12/lib"
)

func main() {
	target := flag.String("target", "http://127.0.0.1:4096", "Base URL of the proxy")
	key := flag.String("key", "", "Proxy API key (sk-gate-...)")
	model := flag.String("model", "claude-sonnet-4-5", "Model id to request")
	rate := flag.Int("rate", 50, "Requests per second")
	duration := flag.Duration("duration", 10*time.Second, "Duration of the test")
	stream := flag.Bool("stream", false, "Use streaming requests")
	flag.Parse()

	if *key == "" {
		log.Fatal("-key is required")
	}

	body, err := json.Marshal(map[string]interface{}{
		"model":      *model,
		"max_tokens": 16,
		"stream":     *stream,
		"messages": []map[string]string{
			{"role": "user", "content": "Benchmark ping"},
		},
	})
	if err != nil {
		log.Fatal(err)
	}

	targeter := vegeta.NewStaticTargeter(vegeta.Target{
		Method: http.MethodPost,
		URL:    *target + "/v1/chat/completions",
		Body:   body,
		Header: http.Header{
			"Content-Type": []string{"application/json"},
			"x-api-key":    []string{*key},
		},
	})

	attacker := vegeta.NewAttacker(vegeta.Timeout(2 * time.Minute))
	pacer := vegeta.Rate{Freq: *rate, Per: time.Second}

	var metrics vegeta.Metrics
	fmt.Printf("Attacking %s at %d req/s for %s (stream=%v)\n", *target, *rate, *duration, *stream)
	for res := range attacker.Attack(targeter, pacer, *duration, "chat-completions") {
		metrics.Add(res)
	}
	metrics.Close()

	reporter := vegeta.NewTextReporter(&metrics)
	if err := reporter.Report(os.Stdout); err != nil {
		log.Fatal(err)
	}

	if len(metrics.Errors) > 0 {
		fmt.Println("\nErrors:")
		for _, e := range metrics.Errors {
			fmt.Println(" -", e)
		}
	}
}
