package config

import (
	"fmt"
	"os"
)

const exampleConfig = `# Data exporter configuration
exporter:
  port: 8000
  metrics_ttl_seconds: 300        # drop samples not refreshed for this long
  cleanup_interval_seconds: 60    # how often expired samples are swept
  log_level: info                 # debug, info, warn, error
  log_format: console             # console or json

data_sources:
  # REST API source
  - name: "api_metrics"
    type: "rest_api"
    enabled: true
    interval: "30s"
    endpoint: "https://api.example.com/metrics"
    auth:
      type: "bearer_token"
      token_env: "API_TOKEN"
    metrics:
      - source_field: "active_users"
        prometheus_name: "app_active_users"
        description: "Number of active users"
        type: "gauge"
        labels: ["region", "service"]
      - source_field: "response_time"
        prometheus_name: "app_response_time_seconds"
        description: "Average response time"
        type: "gauge"
        labels: ["endpoint"]

  # BigQuery source
  - name: "bigquery_analytics"
    type: "bigquery"
    enabled: false
    interval: "5m"
    project: "my-gcp-project"
    query: |
      SELECT
        region,
        product_category,
        COUNT(*) AS order_count,
        SUM(revenue) AS total_revenue
      FROM ` + "`my-project.analytics.orders`" + `
      WHERE DATE(created_at) = CURRENT_DATE()
      GROUP BY region, product_category
    metrics:
      - source_field: "order_count"
        prometheus_name: "daily_orders_total"
        description: "Daily order count"
        labels: ["region", "product_category"]
      - source_field: "total_revenue"
        prometheus_name: "daily_revenue_total"
        description: "Daily revenue"
        labels: ["region", "product_category"]

  # Database source
  - name: "mysql_metrics"
    type: "database"
    enabled: false
    interval: "2m"
    connection:
      driver: "mysql"
      host_env: "DB_HOST"
      port: 3306
      database: "analytics"
      username_env: "DB_USER"
      password_env: "DB_PASSWORD"
    query: |
      SELECT
        status,
        COUNT(*) AS count,
        AVG(processing_time) AS avg_processing_time
      FROM jobs
      WHERE created_at >= NOW() - INTERVAL 1 HOUR
      GROUP BY status
    metrics:
      - source_field: "count"
        prometheus_name: "jobs_count"
        description: "Job count by status"
        labels: ["status"]
      - source_field: "avg_processing_time"
        prometheus_name: "jobs_avg_processing_time_seconds"
        description: "Average job processing time"
        labels: ["status"]

  # GCS file source
  - name: "gcs_reports"
    type: "gcs_file"
    enabled: false
    interval: "10m"
    bucket: "my-reports-bucket"
    path_pattern: "metrics/{date}/hourly_report.json"
    format: "json"
    metrics:
      - source_field: "error_rate"
        prometheus_name: "service_error_rate"
        description: "Service error rate"
        labels: ["service_name"]

  # Host statistics
  - name: "host"
    type: "system"
    enabled: false
    interval: "15s"
    paths: ["/"]
    metrics:
      - source_field: "cpu_percent"
        prometheus_name: "host_cpu_percent"
        description: "CPU utilisation"
        labels: ["host"]
      - source_field: "mem_used_percent"
        prometheus_name: "host_memory_used_percent"
        description: "Memory utilisation"
        labels: ["host"]
`

// Example returns the example configuration document.
func Example() []byte {
	return []byte(exampleConfig)
}

// WriteExample writes the example configuration to path. An existing file is
// never overwritten.
func WriteExample(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create example config: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(exampleConfig); err != nil {
		return fmt.Errorf("write example config: %w", err)
	}
	return nil
}
