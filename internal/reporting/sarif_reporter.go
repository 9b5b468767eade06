package reporting

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/aegiscore/api/schemas"
	"github.com/xkilldash9x/aegiscore/internal/reporting/sarif"
	"github.com/xkilldash9x/aegiscore/internal/risk"
)

// Constants for tool identification in the SARIF report.
const (
	ToolName     = "AegisCore"
	ToolInfoURI  = "https://github.com/xkilldash9x/aegiscore"
	SARIFVersion = "2.1.0"
	SARIFSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"

	// fingerprintKey names the stable identity of a result across exports.
	fingerprintKey = "aegisAlertId/v1"
)

// ruleIDSanitizer collapses anything outside [A-Za-z0-9_.] into one hyphen.
var ruleIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_.]+`)

// categoryHelp describes each known category for rule help text.
var categoryHelp = map[string]string{
	schemas.CategoryDDoS:       "Volumetric traffic against a service port. Rate limit or null-route the source and check upstream scrubbing.",
	schemas.CategoryBruteForce: "Repeated small requests against an authentication service. Lock the targeted accounts and block the source.",
	schemas.CategoryPortScan:   "Probing of many ports with tiny packets. Review exposed services on the target.",
}

// SARIFReporter accumulates alerts as SARIF results, one rule per traffic
// category, and writes the log on Close. It is safe for concurrent use.
type SARIFReporter struct {
	writer io.WriteCloser
	logger *zap.Logger
	log    *sarif.Log

	mu    sync.Mutex
	rules map[string]int // category -> index into driver rules
}

// NewSARIFReporter creates a reporter that writes SARIF output.
func NewSARIFReporter(writer io.WriteCloser, toolVersion string, logger *zap.Logger) *SARIFReporter {
	return &SARIFReporter{
		writer: writer,
		logger: logger.Named("sarif_reporter"),
		log: &sarif.Log{
			Version: SARIFVersion,
			Schema:  SARIFSchema,
			Runs: []*sarif.Run{{
				Tool: &sarif.Tool{Driver: &sarif.ToolComponent{
					Name:           ToolName,
					Version:        pString(toolVersion),
					InformationURI: pString(ToolInfoURI),
					Rules:          []*sarif.ReportingDescriptor{},
				}},
				Results: []*sarif.Result{},
			}},
		},
		rules: make(map[string]int),
	}
}

// Write converts alerts to SARIF results.
func (r *SARIFReporter) Write(alerts []schemas.AlertRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run := r.log.Runs[0]
	for _, a := range alerts {
		index := r.ensureRule(a.PredictedLabel)
		endpoint := fmt.Sprintf("%s:%d", a.DestinationIP, a.DestinationPort)
		run.Results = append(run.Results, &sarif.Result{
			RuleID:    run.Tool.Driver.Rules[index].ID,
			RuleIndex: index,
			Level:     levelFor(a.RiskScore),
			Message: &sarif.Message{Text: pString(fmt.Sprintf("%s from %s against %s (risk %.2f)",
				a.PredictedLabel, a.SourceIP, endpoint, a.RiskScore))},
			Locations: []*sarif.Location{{
				LogicalLocations: []*sarif.LogicalLocation{{
					Name:               endpoint,
					FullyQualifiedName: fmt.Sprintf("%s/%s", strings.ToLower(a.Protocol), endpoint),
					Kind:               "endpoint",
				}},
			}},
			PartialFingerprints: map[string]string{fingerprintKey: a.ID},
			Properties: sarif.PropertyBag{
				"timestamp":       a.Timestamp,
				"source_ip":       a.SourceIP,
				"confidence":      a.Confidence,
				"risk_score":      a.RiskScore,
				"risk_level":      string(risk.LevelOf(a.RiskScore)),
				"status":          string(a.Status),
				"escalation_flag": a.EscalationFlag,
			},
		})
	}
	return nil
}

// Close writes the SARIF log and closes the writer.
func (r *SARIFReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run := r.log.Runs[0]
	r.logger.Info("Finalizing SARIF report",
		zap.Int("total_results", len(run.Results)),
		zap.Int("total_rules", len(run.Tool.Driver.Rules)),
	)

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	encodeErr := encoder.Encode(r.log)
	// Always attempt to close the writer, regardless of encoding success.
	closeErr := r.writer.Close()

	if encodeErr != nil {
		return fmt.Errorf("failed to encode SARIF output: %w", encodeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}

// ensureRule returns the index of the rule for category, registering it on
// first use. Callers hold the mutex.
func (r *SARIFReporter) ensureRule(category string) int {
	if i, ok := r.rules[category]; ok {
		return i
	}
	driver := r.log.Runs[0].Tool.Driver
	help, ok := categoryHelp[category]
	if !ok {
		help = "Traffic classified outside the known categories. Review manually."
	}
	name := category
	if name == "" {
		name = "Unclassified"
	}
	driver.Rules = append(driver.Rules, &sarif.ReportingDescriptor{
		ID:               "AEGIS-" + ruleName(category),
		Name:             pString(name),
		ShortDescription: &sarif.MultiformatMessageString{Text: pString(name + " traffic detected")},
		Help: &sarif.MultiformatMessageString{
			Text:     pString(help),
			Markdown: pString(fmt.Sprintf("**%s**\n\n%s", name, help)),
		},
		Properties: sarif.PropertyBag{
			"tags":     []string{"security", "network"},
			"category": category,
			"weight":   risk.Weight(category),
		},
	})
	i := len(driver.Rules) - 1
	r.rules[category] = i
	r.logger.Debug("Registered SARIF rule", zap.String("rule_id", driver.Rules[i].ID))
	return i
}

// ruleName upper-cases and sanitizes a category for use in a rule id.
func ruleName(category string) string {
	name := strings.Trim(ruleIDSanitizer.ReplaceAllString(strings.ToUpper(category), "-"), "-")
	if name == "" {
		return "UNCLASSIFIED"
	}
	return name
}

// levelFor maps a risk score onto a SARIF level.
func levelFor(score float64) sarif.Level {
	switch risk.LevelOf(score) {
	case risk.LevelCritical, risk.LevelHigh:
		return sarif.LevelError
	case risk.LevelMedium:
		return sarif.LevelWarning
	default:
		return sarif.LevelNote
	}
}

// pString returns a pointer to the given string value.
func pString(s string) *string {
	return &s
}
