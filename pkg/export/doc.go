// Package export provides measurement backup and restore.
//
// # Formats
//
// JSON keeps every field of every measurement plus export metadata and can
// be re-imported. CSV is a flat table with one row per measurement and empty
// cells for optional fields the producer did not report. CSV is export-only.
//
// # HTTP API
//
// Export endpoint: GET /v1/export
// Query parameters:
//   - format: "json" or "csv" (default: json)
//   - start: RFC3339 timestamp (default: 24h before end)
//   - end: RFC3339 timestamp (default: now)
//   - restaurant: establishment id filter (optional)
//
// Example:
//
//	curl "http://localhost:8080/v1/export?format=csv&restaurant=extreme_pizza" -o pizza.csv
//
// Import endpoint: POST /v1/import
//
//	curl -X POST "http://localhost:8080/v1/import" \
//	  -H "Content-Type: application/json" \
//	  -d @backup.json
//
// Imported rows go through the same validation as live ingest. Invalid rows
// are skipped and reported in ImportResult.Errors instead of failing the
// whole import.
//
// # Limits
//
//   - Maximum export time range: 30 days
//   - Import batch size: 5,000 measurements per write
package export
