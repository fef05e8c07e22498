/*
Package metrics provides Prometheus metrics collection and exposition
for the virt-who agent.

Collectors are registered at package init and served over HTTP via
Handler(), mounted at /metrics by cmd/virtwho when a metrics bind
address is configured. Categories:

  - Collection: virtwho_collect_duration_seconds per source.
  - Checkin: virtwho_checkin_duration_seconds,
    virtwho_reports_sent_total, virtwho_throttle_wait_seconds_total per
    destination.
  - Liveness: virtwho_workers_active per role.
*/
package metrics
