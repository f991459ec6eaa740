// Benchmark tool for load-testing Heron with a synthetic city.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -assets 500
//
// This tool:
//   1. Generates a synthetic asset inventory across several regions
//   2. Seeds maintenance records, incidents and complaints via the HTTP API
//   3. Triggers a synchronous analytics run and times it
//   4. Prints the resulting scores, SLA compliance and regional risk ranking
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// AssetRequest mirrors the Heron asset registration payload.
type AssetRequest struct {
	Type                 string    `json:"type"`
	Region               string    `json:"region,omitempty"`
	InstalledAt          time.Time `json:"installedAt"`
	ExpectedLifespanDays int       `json:"expectedLifespanDays"`
}

// MaintenanceRequest mirrors the maintenance log payload.
type MaintenanceRequest struct {
	Action    string    `json:"action"`
	Performer string    `json:"performer,omitempty"`
	Cost      float64   `json:"cost"`
	Date      time.Time `json:"date"`
	Notes     string    `json:"notes,omitempty"`
}

// IncidentRequest mirrors the incident report payload.
type IncidentRequest struct {
	AssetID    string    `json:"assetId"`
	Severity   string    `json:"severity"`
	Reporter   string    `json:"reporter,omitempty"`
	ReportedAt time.Time `json:"reportedAt,omitempty"`
}

// ComplaintRequest mirrors the complaint payload.
type ComplaintRequest struct {
	AssetID string `json:"assetId"`
	Rating  int    `json:"rating"`
}

// Report mirrors the analytics report response, trimmed to the fields the
// benchmark inspects.
type Report struct {
	ID      string `json:"id"`
	Scores  []any  `json:"scores"`
	Ranking []struct {
		Region    string  `json:"region"`
		Rank      int     `json:"rank"`
		MeanScore float64 `json:"meanScore"`
		Critical  bool    `json:"critical"`
	} `json:"ranking"`
	Forecasts []any `json:"forecasts"`
	SLA       []struct {
		Classification string `json:"classification"`
	} `json:"sla"`
	Errors   []any `json:"errors"`
	Warnings []any `json:"warnings"`
	Metadata struct {
		AssetsScored     int   `json:"assetsScored"`
		IncidentsChecked int   `json:"incidentsChecked"`
		TotalMs          int64 `json:"totalMs"`
	} `json:"metadata"`
}

// Metrics tracks seeding results.
type Metrics struct {
	AssetsCreated      int64
	MaintenanceCreated int64
	IncidentsCreated   int64
	IncidentsResolved  int64
	ComplaintsCreated  int64
	TotalErrors        int64
	SeedTimeMs         int64
}

var regions = []string{"Downtown", "Riverside", "Hillside", "Old Town", "Harbor"}

var assetTypes = []struct {
	name     string
	lifespan int
	weight   int
}{
	{"road", 365, 40},
	{"streetlight", 180, 30},
	{"park", 90, 10},
	{"bridge", 730, 10},
	{"other", 365, 10},
}

var severities = []struct {
	level  string
	weight int
}{
	{"Routine", 25},
	{"Low", 30},
	{"Medium", 25},
	{"High", 15},
	{"Critical", 5},
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Heron base URL")
	cityID := flag.String("city", "benchmark-city", "City ID for requests")
	assetCount := flag.Int("assets", 500, "Number of assets to generate")
	incidentRate := flag.Float64("incidents", 0.6, "Mean incidents per asset")
	complaintRate := flag.Float64("complaints", 0.8, "Mean complaints per asset")
	maintRate := flag.Float64("maintenance", 1.5, "Mean maintenance records per asset")
	workers := flag.Int("workers", 10, "Number of concurrent seeding workers")
	seed := flag.Int64("seed", 42, "Random seed for the synthetic city")
	verbose := flag.Bool("verbose", false, "Print each request result")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║          HERON BENCHMARK - Synthetic City Analytics           ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nHeron URL:   %s\n", *baseURL)
	fmt.Printf("City ID:     %s\n", *cityID)
	fmt.Printf("Assets:      %d\n", *assetCount)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Seed:        %d\n", *seed)
	fmt.Println()

	// Check Heron is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Heron not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Heron is running:")
		fmt.Println("  go run cmd/heron/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Heron is healthy")

	rng := rand.New(rand.NewSource(*seed))

	// Seed the synthetic city
	fmt.Printf("\nSeeding %d assets with records...\n", *assetCount)
	seedStart := time.Now()
	metrics := seedCity(*baseURL, *cityID, *assetCount, *incidentRate, *complaintRate, *maintRate, *workers, rng, *verbose)
	metrics.SeedTimeMs = time.Since(seedStart).Milliseconds()
	fmt.Printf("✓ Seeded in %v\n", time.Since(seedStart).Round(time.Millisecond))

	// Trigger the analytics run
	fmt.Println("\nTriggering synchronous analytics run...")
	runStart := time.Now()
	report, err := runAnalytics(*baseURL, *cityID)
	runDuration := time.Since(runStart)
	if err != nil {
		fmt.Printf("ERROR: analytics run failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Run complete in %v\n", runDuration.Round(time.Millisecond))

	printResults(metrics, report, runDuration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// assetPlan is one synthetic asset plus its generated record load.
type assetPlan struct {
	req          AssetRequest
	maintenance  []MaintenanceRequest
	incidents    []IncidentRequest
	resolveRatio float64
	complaints   []ComplaintRequest
}

func buildPlans(count int, incidentRate, complaintRate, maintRate float64, rng *rand.Rand) []assetPlan {
	now := time.Now().UTC()
	plans := make([]assetPlan, 0, count)

	for i := 0; i < count; i++ {
		// Weighted asset type
		n := rng.Intn(100)
		typ := assetTypes[len(assetTypes)-1]
		cum := 0
		for _, t := range assetTypes {
			cum += t.weight
			if n < cum {
				typ = t
				break
			}
		}

		region := regions[rng.Intn(len(regions))]
		if rng.Float64() < 0.05 {
			region = "" // a slice of the inventory has no region assigned
		}

		// Age between fresh and twice the design life
		ageDays := rng.Intn(typ.lifespan * 2)
		lifespanDays := typ.lifespan + rng.Intn(typ.lifespan/2+1)

		plan := assetPlan{
			req: AssetRequest{
				Type:                 typ.name,
				Region:               region,
				InstalledAt:          now.AddDate(0, 0, -ageDays),
				ExpectedLifespanDays: lifespanDays,
			},
			resolveRatio: 0.7,
		}

		for j := 0; j < poissonish(rng, maintRate); j++ {
			plan.maintenance = append(plan.maintenance, MaintenanceRequest{
				Action:    []string{"Inspection", "Repair", "Replacement"}[rng.Intn(3)],
				Performer: fmt.Sprintf("crew-%d", rng.Intn(12)+1),
				Cost:      float64(rng.Intn(5000)) + 100,
				Date:      now.AddDate(0, 0, -rng.Intn(364)-1),
			})
		}

		for j := 0; j < poissonish(rng, incidentRate); j++ {
			// Weighted severity
			sn := rng.Intn(100)
			level := severities[0].level
			scum := 0
			for _, s := range severities {
				scum += s.weight
				if sn < scum {
					level = s.level
					break
				}
			}
			plan.incidents = append(plan.incidents, IncidentRequest{
				Severity:   level,
				Reporter:   fmt.Sprintf("inspector-%d", rng.Intn(8)+1),
				ReportedAt: now.Add(-time.Duration(rng.Intn(24*90)+1) * time.Hour),
			})
		}

		for j := 0; j < poissonish(rng, complaintRate); j++ {
			plan.complaints = append(plan.complaints, ComplaintRequest{
				Rating: rng.Intn(5) + 1,
			})
		}

		plans = append(plans, plan)
	}

	return plans
}

// poissonish is a cheap integer draw with the given mean.
func poissonish(rng *rand.Rand, mean float64) int {
	n := int(mean)
	if rng.Float64() < mean-float64(n) {
		n++
	}
	if n > 0 && rng.Float64() < 0.3 {
		n += rng.Intn(2)
	}
	return n
}

func seedCity(baseURL, cityID string, count int, incidentRate, complaintRate, maintRate float64, numWorkers int, rng *rand.Rand, verbose bool) *Metrics {
	metrics := &Metrics{}
	plans := buildPlans(count, incidentRate, complaintRate, maintRate, rng)

	work := make(chan assetPlan, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerSeed int64) {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}
			wrng := rand.New(rand.NewSource(workerSeed))

			for plan := range work {
				assetID, err := createAsset(client, baseURL, cityID, plan.req)
				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: asset -> %v\n", err)
					}
					continue
				}
				atomic.AddInt64(&metrics.AssetsCreated, 1)

				for _, m := range plan.maintenance {
					if err := postJSON(client, baseURL+"/assets/"+assetID+"/maintenance", cityID, m, nil); err != nil {
						atomic.AddInt64(&metrics.TotalErrors, 1)
						continue
					}
					atomic.AddInt64(&metrics.MaintenanceCreated, 1)
				}

				for _, inc := range plan.incidents {
					inc.AssetID = assetID
					var created struct {
						ID string `json:"id"`
					}
					if err := postJSON(client, baseURL+"/incidents", cityID, inc, &created); err != nil {
						atomic.AddInt64(&metrics.TotalErrors, 1)
						continue
					}
					atomic.AddInt64(&metrics.IncidentsCreated, 1)

					// Resolve a share of incidents so SLA results mix
					// compliant, violated and pending
					if wrng.Float64() < plan.resolveRatio {
						if err := postJSON(client, baseURL+"/incidents/"+created.ID+"/resolve", cityID, nil, nil); err == nil {
							atomic.AddInt64(&metrics.IncidentsResolved, 1)
						}
					}
				}

				for _, c := range plan.complaints {
					c.AssetID = assetID
					if err := postJSON(client, baseURL+"/complaints", cityID, c, nil); err != nil {
						atomic.AddInt64(&metrics.TotalErrors, 1)
						continue
					}
					atomic.AddInt64(&metrics.ComplaintsCreated, 1)
				}

				if verbose {
					fmt.Printf("✓ %-12s | Region: %-10s | %d maint, %d incidents, %d complaints\n",
						plan.req.Type, plan.req.Region,
						len(plan.maintenance), len(plan.incidents), len(plan.complaints))
				}
			}
		}(rng.Int63())
	}

	for _, plan := range plans {
		work <- plan
	}
	close(work)
	wg.Wait()

	return metrics
}

func createAsset(client *http.Client, baseURL, cityID string, req AssetRequest) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	if err := postJSON(client, baseURL+"/assets", cityID, req, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

func postJSON(client *http.Client, url, cityID string, payload, out interface{}) error {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return err
		}
	}

	httpReq, err := http.NewRequest(http.MethodPost, url, &body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-City-ID", cityID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func runAnalytics(baseURL, cityID string) (*Report, error) {
	body := bytes.NewBufferString(`{"sync": true}`)
	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/analytics/run", body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-City-ID", cityID)

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var report Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, err
	}
	return &report, nil
}

func printResults(m *Metrics, report *Report, runDuration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 SEEDED RECORDS\n")
	fmt.Printf("   Assets:              %d\n", m.AssetsCreated)
	fmt.Printf("   Maintenance Records: %d\n", m.MaintenanceCreated)
	fmt.Printf("   Incidents:           %d (%d resolved)\n", m.IncidentsCreated, m.IncidentsResolved)
	fmt.Printf("   Complaints:          %d\n", m.ComplaintsCreated)
	fmt.Printf("   Errors:              %d\n", m.TotalErrors)
	fmt.Printf("   Seed Time:           %d ms\n", m.SeedTimeMs)

	fmt.Printf("\n📈 ANALYTICS RUN\n")
	fmt.Printf("   Report ID:           %s\n", report.ID)
	fmt.Printf("   Assets Scored:       %d\n", report.Metadata.AssetsScored)
	fmt.Printf("   Incidents Checked:   %d\n", report.Metadata.IncidentsChecked)
	fmt.Printf("   Forecast Entries:    %d\n", len(report.Forecasts))
	fmt.Printf("   Record Errors:       %d\n", len(report.Errors))
	fmt.Printf("   Warnings:            %d\n", len(report.Warnings))

	// SLA compliance breakdown
	var compliant, violated, pending int
	for _, s := range report.SLA {
		switch s.Classification {
		case "compliant":
			compliant++
		case "violated":
			violated++
		case "pending":
			pending++
		}
	}
	fmt.Printf("\n⏰ SLA COMPLIANCE\n")
	fmt.Printf("   Compliant:  %d\n", compliant)
	fmt.Printf("   Violated:   %d\n", violated)
	fmt.Printf("   Pending:    %d\n", pending)
	if compliant+violated > 0 {
		rate := 100 * float64(compliant) / float64(compliant+violated)
		fmt.Printf("   Compliance Rate: %.2f%% (of resolved incidents)\n", rate)
	}

	fmt.Printf("\n🗺  REGIONAL RISK RANKING\n")
	for _, e := range report.Ranking {
		marker := "  "
		if e.Critical {
			marker = "⚠ "
		}
		fmt.Printf("   %s#%d %-12s mean score %.2f\n", marker, e.Rank, e.Region, e.MeanScore)
	}

	fmt.Printf("\n⏱  PERFORMANCE\n")
	fmt.Printf("   Run Duration (wire):   %v\n", runDuration.Round(time.Millisecond))
	fmt.Printf("   Engine Time:           %d ms\n", report.Metadata.TotalMs)
	if report.Metadata.AssetsScored > 0 {
		perAsset := float64(report.Metadata.TotalMs) / float64(report.Metadata.AssetsScored)
		fmt.Printf("   Per Asset:             %.3f ms\n", perAsset)
	}

	fmt.Println()
}
