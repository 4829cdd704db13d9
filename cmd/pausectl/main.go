package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"proof-host/internal/dto"
	"proof-host/internal/events"

	"github.com/nats-io/nats.go"
)

// pausectl flips the host's admission gate, over the admin API or over NATS.
//
//	pausectl -on                         # POST http://127.0.0.1:8080/admin/pause
//	pausectl -off -nats nats://host:4222 # request on proofhost.admin.pause
//	pausectl                             # print current state (HTTP only)
func main() {
	var (
		on      = flag.Bool("on", false, "Pause the host (reject new submissions)")
		off     = flag.Bool("off", false, "Resume the host")
		hostURL = flag.String("url", "http://127.0.0.1:8080", "Host base URL")
		natsURL = flag.String("nats", "", "Send the command over NATS instead of HTTP")
		prefix  = flag.String("prefix", "proofhost", "NATS subject prefix")
		timeout = flag.Duration("timeout", 5*time.Second, "Request timeout")
	)
	flag.Parse()

	if *on && *off {
		log.Fatal("-on and -off are mutually exclusive")
	}

	if !*on && !*off {
		if *natsURL != "" {
			log.Fatal("querying state is only supported over HTTP")
		}
		body, err := httpDo(http.MethodGet, *hostURL+"/admin/pause", nil, *timeout)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		fmt.Println(string(body))
		return
	}

	paused := *on
	if *natsURL != "" {
		if err := natsPause(*natsURL, *prefix, paused, *timeout); err != nil {
			log.Fatalf("❌ %v", err)
		}
		fmt.Printf("✅ paused=%v (via NATS)\n", paused)
		return
	}

	payload, _ := json.Marshal(dto.V2PauseRequest{Paused: paused})
	body, err := httpDo(http.MethodPost, *hostURL+"/admin/pause", payload, *timeout)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	fmt.Println(string(body))
}

func httpDo(method, url string, payload []byte, timeout time.Duration) ([]byte, error) {
	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, body)
	}
	return body, nil
}

func natsPause(url, prefix string, paused bool, timeout time.Duration) error {
	nc, err := nats.Connect(url, nats.Name("pausectl"), nats.Timeout(timeout))
	if err != nil {
		return fmt.Errorf("connect NATS: %w", err)
	}
	defer nc.Close()

	payload, _ := json.Marshal(events.PauseCommand{Paused: paused})
	msg, err := nc.Request(events.PauseSubject(prefix), payload, timeout)
	if err != nil {
		return fmt.Errorf("pause request: %w", err)
	}
	var reply events.PauseReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return fmt.Errorf("invalid reply: %w", err)
	}
	if reply.Error != "" {
		fmt.Fprintln(os.Stderr, reply.Error)
		return fmt.Errorf("host rejected command")
	}
	return nil
}
