// Package alerts implements the rule evaluation engine and webhook delivery
// for station alerting. Rules are evaluated against every station status the
// receiver sees; webhooks are delivered to Teams, Slack or generic HTTP
// targets when an alert fires or resolves.
package alerts
