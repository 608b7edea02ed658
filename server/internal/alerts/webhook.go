package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const deliverTimeout = 10 * time.Second

// encoder renders an alert as the JSON body a webhook target expects.
type encoder func(a *Alert) any

var encoders = map[string]encoder{
	"slack": slackBody,
	"teams": teamsBody,
	"http":  httpBody,
}

type slackMessage struct {
	Text string `json:"text"`
}

func slackBody(a *Alert) any {
	return slackMessage{Text: fmt.Sprintf("%s *%s* at %s: %s (value %s, %s)",
		severityTag(a.Severity), a.RuleName, a.Station, a.Message, formatValue(a.Value), a.State)}
}

type teamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type teamsSection struct {
	Facts []teamsFact `json:"facts"`
}

type teamsCard struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor"`
	Summary    string         `json:"summary"`
	Title      string         `json:"title"`
	Text       string         `json:"text"`
	Sections   []teamsSection `json:"sections"`
}

func teamsBody(a *Alert) any {
	facts := []teamsFact{
		{"Station", a.Station},
		{"State", a.State},
		{"Value", formatValue(a.Value)},
		{"Fired", a.FiredAt.UTC().Format(time.RFC3339)},
	}
	if a.ResolvedAt != nil {
		facts = append(facts, teamsFact{"Resolved", a.ResolvedAt.UTC().Format(time.RFC3339)})
	}
	return teamsCard{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: severityColor(a.Severity),
		Summary:    a.RuleName,
		Title:      fmt.Sprintf("Hydrostack alert: %s on %s", a.RuleName, a.Station),
		Text:       a.Message,
		Sections:   []teamsSection{{Facts: facts}},
	}
}

type httpEnvelope struct {
	Event string `json:"event"`
	Alert *Alert `json:"alert"`
}

func httpBody(a *Alert) any {
	return httpEnvelope{Event: "alert." + a.State, Alert: a}
}

// deliver posts a to every webhook with a resolvable URL. Failures are
// logged per target.
func (e *Engine) deliver(a *Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}
		enc, ok := encoders[wh.Type]
		if !ok {
			slog.Warn("alerts: unknown webhook type", "type", wh.Type)
			continue
		}
		body, err := json.Marshal(enc(a))
		if err == nil {
			err = e.post(ctx, url, body)
		}
		if err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type, "rule", a.RuleName, "station", a.Station, "err", err)
			continue
		}
		slog.Debug("alerts: webhook delivered",
			"type", wh.Type, "rule", a.RuleName, "station", a.Station, "state", a.State)
	}
}

func (e *Engine) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func severityTag(s string) string {
	switch s {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	}
	return "[INFO]"
}

func severityColor(s string) string {
	switch s {
	case "critical":
		return "FF4F6A"
	case "warning":
		return "FFAB40"
	}
	return "00D4FF"
}
