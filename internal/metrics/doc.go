/*
Package metrics provides Prometheus metrics for the executor and the transfer layer.

# Overview

A Collector owns a private prometheus.Registry, so several clients in one process
never collide on metric names. Mount Handler wherever the application serves
metrics:

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Namespace: "storagelite",
	})
	if err != nil {
		log.Fatal(err)
	}
	http.Handle("/metrics", collector.Handler())

# Exported series

	<ns>_operations_total{operation,outcome}       logical operations
	<ns>_operation_duration_seconds{operation}     end-to-end duration, retries included
	<ns>_attempts_total{operation,status}          exchanges by status class (2xx, 5xx, transport_error)
	<ns>_retries_total{operation}                  scheduled resubmissions
	<ns>_retry_backoff_seconds{operation}          wait before each retry
	<ns>_errors_total{operation,category}          failures by error category
	<ns>_transfer_bytes_total{direction}           bytes moved by successful chunks
	<ns>_chunks_total{direction,outcome}           transfer chunks
	<ns>_transport_handles_in_use                  handles executing an exchange
	<ns>_executor_queue_depth                      attempts waiting for a worker

A nil *Collector, or one built from a disabled Config, accepts every call and
records nothing.
*/
package metrics
