// webhook-sender posts signed sample payloads to a running hookd
// instance. Development tool; not part of the service build.
//
// Usage:
//
//	WEBHOOK_SECRET=test-secret go run . ping
//	WEBHOOK_SECRET=test-secret go run . push issues pull_request
//	TARGET=http://localhost:8080/webhooks WEBHOOK_SECRET=s go run . -n 120 ping
package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

var samples = map[string]string{
	"ping": `{"zen":"Keep it logically awesome.","hook_id":12345}`,
	"push": `{"ref":"refs/heads/main","after":"6113728f27ae07397951b26876e31b3f4f0f1e6f",` +
		`"repository":{"id":42,"full_name":"octo/widgets"},"sender":{"id":9,"login":"octocat"}}`,
	"issues": `{"action":"opened","issue":{"number":7,"title":"Crawler misses fragment links"},` +
		`"repository":{"id":42,"full_name":"octo/widgets"},"sender":{"id":9,"login":"octocat"}}`,
	"issue_comment": `{"action":"created","issue":{"number":7},"comment":{"id":1,"body":"same here"},` +
		`"repository":{"id":42,"full_name":"octo/widgets"},"sender":{"id":9,"login":"octocat"}}`,
	"pull_request": `{"action":"opened","pull_request":{"number":11,"head":{"ref":"fix/links"}},` +
		`"repository":{"id":42,"full_name":"octo/widgets"},"sender":{"id":9,"login":"octocat"}}`,
}

func main() {
	repeat := flag.Int("n", 1, "send each payload n times")
	flag.Parse()

	secret := os.Getenv("WEBHOOK_SECRET")
	if secret == "" {
		log.Fatal("WEBHOOK_SECRET is required")
	}

	target := os.Getenv("TARGET")
	if target == "" {
		target = "http://localhost:8080/webhooks"
	}

	events := flag.Args()
	if len(events) == 0 {
		events = []string{"ping"}
	}

	client := &http.Client{Timeout: 30 * time.Second}
	for _, event := range events {
		body, ok := samples[event]
		if !ok {
			log.Fatalf("no sample payload for event %q", event)
		}
		for i := 0; i < *repeat; i++ {
			if err := send(client, target, secret, event, []byte(body)); err != nil {
				log.Fatalf("%s: %v", event, err)
			}
		}
	}
}

func send(client *http.Client, target, secret, event string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-GitHub-Delivery", newDeliveryID())
	req.Header.Set("X-Hub-Signature-256", sign(secret, body))

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	log.Printf("%s -> %d %s", event, resp.StatusCode, bytes.TrimSpace(out))
	return nil
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func newDeliveryID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("dev-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}
