package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nexispulse/internal/models"

	"github.com/google/uuid"
)

// Synthetic device: emits a plausible 1 Hz biometric stream per simulated
// user, with slow sinusoidal drift plus noise, and occasional stress spikes
// so detectors have something to find.

type userState struct {
	userID    string
	sessionID string
	deviceID  string
	phase     float64
	context   string
	// A stress spike decays over time once triggered.
	spikeLeft int
}

var contexts = []string{"deep-work", "email", "meeting", "browsing", "coding"}

func main() {
	var (
		serverURL = flag.String("server", "http://localhost:3002", "ingest server base URL")
		apiKey    = flag.String("api-key", os.Getenv("DEVICE_API_KEY"), "device API key for X-API-Key")
		users     = flag.Int("users", 3, "number of simulated users")
		hz        = flag.Float64("hz", 1.0, "samples per second per user")
	)
	flag.Parse()

	rand.Seed(time.Now().UnixNano())

	states := make([]*userState, 0, *users)
	for i := 0; i < *users; i++ {
		states = append(states, &userState{
			userID:    fmt.Sprintf("sim-user-%d", i+1),
			sessionID: uuid.New().String(),
			deviceID:  fmt.Sprintf("sim-device-%d", i+1),
			phase:     rand.Float64() * 2 * math.Pi,
			context:   contexts[rand.Intn(len(contexts))],
		})
	}

	client := &http.Client{Timeout: 5 * time.Second}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / *hz))
	defer ticker.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Printf("🤖 Simulating %d user(s) at %.1f Hz against %s", *users, *hz, *serverURL)

	sent, failed := 0, 0
	for {
		select {
		case <-sigChan:
			log.Printf("🛑 Simulator stopping (sent %d, failed %d)", sent, failed)
			return
		case <-ticker.C:
			for _, st := range states {
				sample := st.next()
				if err := post(client, *serverURL, *apiKey, sample); err != nil {
					failed++
					log.Printf("⚠️ Send failed for %s: %v", st.userID, err)
					continue
				}
				sent++
			}
			if sent > 0 && sent%300 == 0 {
				log.Printf("📦 Sent %d samples (%d failed)", sent, failed)
			}
		}
	}
}

// next advances the user's state one tick and renders it as a sample.
func (st *userState) next() *models.BiometricSample {
	st.phase += 0.01

	// Occasionally switch context and, rarely, start a stress spike.
	if rand.Float64() < 0.005 {
		st.context = contexts[rand.Intn(len(contexts))]
	}
	if st.spikeLeft == 0 && rand.Float64() < 0.002 {
		st.spikeLeft = 60 + rand.Intn(120)
	}

	drift := math.Sin(st.phase)
	stress := 35 + 15*drift + rand.Float64()*10
	attention := 65 + 20*math.Sin(st.phase*1.3) + rand.Float64()*10
	load := 60 + 15*math.Sin(st.phase*0.7) + rand.Float64()*10

	if st.spikeLeft > 0 {
		st.spikeLeft--
		stress += 45
		attention -= 30
	}

	sound := 45 + rand.Float64()*20
	light := 400 + rand.Float64()*200

	return &models.BiometricSample{
		Timestamp:       time.Now(),
		UserID:          st.userID,
		SessionID:       st.sessionID,
		DeviceID:        st.deviceID,
		HeartRate:       62 + 8*drift + stress*0.2 + rand.Float64()*4,
		HRV:             55 - stress*0.3 + rand.Float64()*10,
		SkinTemperature: 33 + rand.Float64(),
		CognitiveLoad:   clampPct(load),
		AttentionLevel:  clampPct(attention),
		StressLevel:     clampPct(stress),
		EnvironmentalSound: &sound,
		LightLevel:         &light,
		ContextID:          st.context,
		Metadata: map[string]string{
			"source":   "simulator",
			"activity": st.context,
		},
	}
}

func post(client *http.Client, base, apiKey string, sample *models.BiometricSample) error {
	body, err := json.Marshal(sample)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, base+"/api/samples", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Device-ID", sample.DeviceID)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
