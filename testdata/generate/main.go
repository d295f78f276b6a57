// Command generate writes synthetic source datasets into testdata/:
// billing_records.csv, contracts.json, usage_logs.json and
// service_provisioning.csv, with a seeded share of injected leakage
// (wrong rates, missing charges, duplicate invoices, usage drift) so a
// reconciliation run over the fixtures always finds something.
package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const errorRate = 0.08

var serviceRates = map[string]float64{
	"cloud_storage":     0.05,
	"compute_instances": 0.10,
	"database_service":  0.15,
	"api_calls":         0.001,
	"bandwidth":         0.02,
	"support_plan":      50.0,
}

var serviceUnits = map[string]string{
	"cloud_storage":     "GB",
	"compute_instances": "hours",
	"database_service":  "hours",
	"api_calls":         "calls",
	"bandwidth":         "GB",
	"support_plan":      "months",
}

type contract struct {
	ContractID  string  `json:"contract_id"`
	CustomerID  string  `json:"customer_id"`
	ServiceType string  `json:"service_type"`
	AgreedRate  float64 `json:"agreed_rate"`
	StartDate   string  `json:"start_date"`
	EndDate     string  `json:"end_date"`
}

type usageLog struct {
	CustomerID    string  `json:"customer_id"`
	ServiceType   string  `json:"service_type"`
	RecordedUsage float64 `json:"recorded_usage"`
	Unit          string  `json:"unit"`
	PeriodStart   string  `json:"period_start"`
	PeriodEnd     string  `json:"period_end"`
}

func main() {
	rng := rand.New(rand.NewSource(42))
	baseDir := findTestdataDir()

	services := make([]string, 0, len(serviceRates))
	for s := range serviceRates {
		services = append(services, s)
	}
	// Map iteration order is random; the fixture set must not be.
	sort.Strings(services)

	period := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := period.AddDate(0, 1, 0)

	var contracts []contract
	var usage []usageLog
	var billingRows [][]string
	invoiceSeq := 0

	for c := 1; c <= 40; c++ {
		customerID := fmt.Sprintf("C%d", 1000+c)
		count := 1 + rng.Intn(3)
		for s := 0; s < count; s++ {
			serviceType := services[rng.Intn(len(services))]
			rate := serviceRates[serviceType] * (1 + (rng.Float64()-0.5)*0.02)
			rate = math.Round(rate*10000) / 10000

			contracts = append(contracts, contract{
				ContractID:  fmt.Sprintf("CT-%s-%s", customerID, serviceType),
				CustomerID:  customerID,
				ServiceType: serviceType,
				AgreedRate:  rate,
				StartDate:   period.Format("2006-01-02"),
				EndDate:     periodEnd.Format("2006-01-02"),
			})

			qty := usageFor(rng, serviceType)
			usage = append(usage, usageLog{
				CustomerID:    customerID,
				ServiceType:   serviceType,
				RecordedUsage: qty,
				Unit:          serviceUnits[serviceType],
				PeriodStart:   period.Format("2006-01-02"),
				PeriodEnd:     periodEnd.Format("2006-01-02"),
			})

			billedRate := rate
			billedQty := qty
			skipInvoice := false
			duplicate := false

			if rng.Float64() < errorRate {
				switch rng.Intn(4) {
				case 0: // wrong rate, usually undercharging
					direction := -1.0
					if rng.Float64() > 0.8 {
						direction = 1.0
					}
					billedRate = rate * (1 + direction*(0.05+rng.Float64()*0.15))
					billedRate = math.Round(billedRate*10000) / 10000
				case 1: // charge never raised
					skipInvoice = true
				case 2: // invoice posted twice
					duplicate = true
				case 3: // billed quantity drifts from metered usage
					billedQty = qty * (1 - (0.1 + rng.Float64()*0.2))
					billedQty = math.Round(billedQty*100) / 100
				}
			}

			if skipInvoice {
				continue
			}

			invoiceSeq++
			amount := math.Round(billedRate*billedQty*100) / 100
			row := []string{
				fmt.Sprintf("INV-%05d", invoiceSeq),
				customerID,
				serviceType,
				fmt.Sprintf("%.4f", billedRate),
				fmt.Sprintf("%.2f", billedQty),
				fmt.Sprintf("%.2f", amount),
				period.AddDate(0, 0, rng.Intn(27)).Format("2006-01-02"),
				fmt.Sprintf("CHG-%s", serviceType),
			}
			billingRows = append(billingRows, row)
			if duplicate {
				invoiceSeq++
				dup := make([]string, len(row))
				copy(dup, row)
				dup[0] = fmt.Sprintf("INV-%05d", invoiceSeq)
				billingRows = append(billingRows, dup)
			}
		}
	}

	writeBillingCSV(filepath.Join(baseDir, "billing_records.csv"), billingRows)
	writeJSON(filepath.Join(baseDir, "contracts.json"), contracts)
	writeJSON(filepath.Join(baseDir, "usage_logs.json"), usage)
	writeProvisioningCSV(filepath.Join(baseDir, "service_provisioning.csv"), contracts, rng)

	fmt.Printf("Generated %d contracts, %d usage logs, %d billing rows\n",
		len(contracts), len(usage), len(billingRows))
}

func usageFor(rng *rand.Rand, serviceType string) float64 {
	switch serviceType {
	case "cloud_storage":
		return float64(100 + rng.Intn(900))
	case "compute_instances":
		return float64(50 + rng.Intn(650))
	case "database_service":
		return float64(100 + rng.Intn(600))
	case "api_calls":
		return float64(10000 + rng.Intn(90000))
	case "bandwidth":
		return float64(500 + rng.Intn(4500))
	default: // support_plan
		return 1
	}
}

func writeBillingCSV(path string, rows [][]string) {
	f, err := os.Create(path)
	if err != nil {
		fatal(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"invoice_id", "customer_id", "service_type", "billed_rate", "usage_quantity", "total_charge", "date", "charge_code"}
	if err := w.Write(header); err != nil {
		fatal(err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			fatal(err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		fatal(err)
	}
}

func writeProvisioningCSV(path string, contracts []contract, rng *rand.Rand) {
	f, err := os.Create(path)
	if err != nil {
		fatal(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"customer_id", "service_type", "status", "activation_date", "period_start", "period_end"}
	if err := w.Write(header); err != nil {
		fatal(err)
	}
	for _, c := range contracts {
		status := "active"
		if rng.Float64() < 0.05 {
			status = "suspended"
		}
		row := []string{
			c.CustomerID,
			c.ServiceType,
			status,
			c.StartDate,
			c.StartDate,
			c.EndDate,
		}
		if err := w.Write(row); err != nil {
			fatal(err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		fatal(err)
	}
}

func writeJSON(path string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "generate:", err)
	os.Exit(1)
}

func findTestdataDir() string {
	candidates := []string{"testdata", filepath.Join("..", "..", "testdata"), "."}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	return "."
}
