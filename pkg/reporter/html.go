package reporter

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/amosWeiskopf/seowatch/internal/models"
)

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Daily SEO Report - {{.Report.GeneratedAt.Format "2006-01-02"}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            line-height: 1.6;
            color: #333;
            max-width: 1200px;
            margin: 0 auto;
            padding: 20px;
            background: #f5f5f5;
        }
        .header {
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            color: white;
            padding: 2rem;
            border-radius: 10px;
            margin-bottom: 2rem;
        }
        .card {
            background: white;
            border-radius: 10px;
            padding: 1.5rem;
            margin-bottom: 1.5rem;
            box-shadow: 0 2px 10px rgba(0,0,0,0.1);
        }
        .stat-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(160px, 1fr));
            gap: 1rem;
        }
        .stat {
            text-align: center;
            padding: 1rem;
            background: #f8f9fa;
            border-radius: 8px;
        }
        .stat-value {
            font-size: 2rem;
            font-weight: bold;
            color: #667eea;
        }
        .stat-value.critical { color: #dc3545; }
        .stat-value.warning { color: #fd7e14; }
        .stat-label {
            color: #666;
            font-size: 0.9rem;
        }
        .issue {
            border-left: 4px solid #dc3545;
            padding: 0.5rem 1rem;
            margin: 0.5rem 0;
            background: #fff5f5;
        }
        .bar-row {
            display: flex;
            align-items: center;
            margin: 0.4rem 0;
        }
        .bar-label { width: 200px; }
        .bar {
            height: 18px;
            background: #667eea;
            border-radius: 4px;
            margin-right: 0.5rem;
        }
        .priority-badge {
            display: inline-block;
            padding: 0.25rem 0.75rem;
            border-radius: 4px;
            font-size: 0.85rem;
            font-weight: bold;
            margin-right: 0.5rem;
        }
        .priority-critical { background: #dc3545; color: white; }
        .priority-high { background: #fd7e14; color: white; }
        .priority-medium { background: #ffc107; color: #333; }
        .priority-low { background: #28a745; color: white; }
        table { width: 100%; border-collapse: collapse; }
        td, th { text-align: left; padding: 0.4rem; border-bottom: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Daily SEO Report</h1>
        <p>Generated on {{.Report.GeneratedAt.Format "January 2, 2006 15:04 MST"}}</p>
    </div>

    <div class="card">
        <h2>Summary</h2>
        <div class="stat-grid">
            <div class="stat"><div class="stat-value">{{.Report.OverallScore}}</div><div class="stat-label">Overall Score</div></div>
            <div class="stat"><div class="stat-value">{{.Report.TotalPages}}</div><div class="stat-label">Pages Analyzed</div></div>
            <div class="stat"><div class="stat-value critical">{{.Report.CriticalIssues}}</div><div class="stat-label">Critical Issues</div></div>
            <div class="stat"><div class="stat-value warning">{{.Report.WarningIssues}}</div><div class="stat-label">Warnings</div></div>
            <div class="stat"><div class="stat-value">{{.Report.InfoIssues}}</div><div class="stat-label">Info</div></div>
            <div class="stat"><div class="stat-value">{{.Report.AutoFixableIssues}}</div><div class="stat-label">Auto-fixable</div></div>
        </div>
    </div>

    {{if .CriticalIssues}}
    <div class="card" id="critical-issues">
        <h2>Critical Issues</h2>
        {{range .CriticalIssues}}
        <div class="issue">
            <strong>{{.IssueType}}</strong> on {{.PageURL}}
            <p>{{.Description}}</p>
        </div>
        {{end}}
        {{if .MoreCritical}}<p class="more">...and {{.MoreCritical}} more critical issues</p>{{end}}
    </div>
    {{end}}

    {{if .IssueTypes}}
    <div class="card" id="issue-types">
        <h2>Most Common Issues</h2>
        {{range .IssueTypes}}
        <div class="bar-row">
            <span class="bar-label">{{.IssueType}}</span>
            <div class="bar" style="width: {{.Width}}%"></div>
            <span>{{.Count}}</span>
        </div>
        {{end}}
    </div>
    {{end}}

    {{if .AttentionPages}}
    <div class="card" id="attention-pages">
        <h2>Pages Needing Attention</h2>
        <table>
            <tr><th>Page</th><th>Score</th><th>Issues</th></tr>
            {{range .AttentionPages}}
            <tr><td>{{.PageURL}}</td><td>{{.Score}}</td><td>{{len .Issues}}</td></tr>
            {{end}}
        </table>
    </div>
    {{end}}

    {{if .IncludeDetails}}
    <div class="card" id="details">
        <h2>Page Details</h2>
        <table>
            <tr><th>Page</th><th>Score</th><th>Recommendations</th></tr>
            {{range .Report.HealthChecks}}
            <tr><td>{{.PageURL}}</td><td>{{.Score}}</td><td>{{range .Recommendations}}{{.}}<br>{{end}}</td></tr>
            {{end}}
        </table>
    </div>
    {{end}}

    {{if .Recommendations}}
    <div class="card" id="recommendations">
        <h2>Recommendations</h2>
        {{range .Recommendations}}
        <div class="recommendation">
            <span class="priority-badge priority-{{.Priority}}">{{.Priority}} Priority</span>
            <h4>{{.Title}}</h4>
            <p>{{.Description}}</p>
            <p><small>Impact: {{.Impact}} | Effort: {{.Effort}} | {{len .AffectedPages}} pages</small></p>
        </div>
        {{end}}
    </div>
    {{end}}

    {{with .Performance}}
    <div class="card" id="performance">
        <h2>Performance</h2>
        <div class="stat-grid">
            <div class="stat"><div class="stat-value">{{.GoodPages}}</div><div class="stat-label">Good</div></div>
            <div class="stat"><div class="stat-value warning">{{.NeedsImprovementPages}}</div><div class="stat-label">Needs Improvement</div></div>
            <div class="stat"><div class="stat-value critical">{{.PoorPages}}</div><div class="stat-label">Poor</div></div>
            <div class="stat"><div class="stat-value">{{printf "%.0f" .AvgLCP}}</div><div class="stat-label">Avg LCP (ms)</div></div>
            <div class="stat"><div class="stat-value">{{.ActiveAlerts}}</div><div class="stat-label">Active Alerts</div></div>
        </div>
    </div>
    {{end}}
</body>
</html>
`

var reportTemplate = template.Must(template.New("report").Parse(htmlTemplate))

// generateHTML creates an HTML formatted report
func (g *Generator) generateHTML(report *models.SEOReport) (string, error) {
	view := newReportView(report)
	view.IncludeDetails = g.config.IncludeDetails
	view.Recommendations = g.actionPlan()
	view.Performance = g.performanceSummary()

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}
