package clustermetrics

import (
	"fmt"
	"io"
	"sync/atomic"
)

// Exporter writes a Collector's state in Prometheus text-exposition
// format, matching pkg/metrics/prometheus.go's WriteMetrics(io.Writer)
// shape: one exporter per namespace, one write call per scrape.
type Exporter struct {
	collector *Collector
	namespace string
}

// NewExporter builds an Exporter over collector under the given
// namespace prefix (e.g. "mtm").
func NewExporter(collector *Collector, namespace string) *Exporter {
	return &Exporter{collector: collector, namespace: namespace}
}

// WriteMetrics writes every counter and gauge to w, per
// https://prometheus.io/docs/instrumenting/exposition_formats/.
func (e *Exporter) WriteMetrics(w io.Writer) error {
	c := e.collector

	if err := e.writeGauge(w, "uptime_seconds", "Node uptime in seconds", c.uptime().Seconds()); err != nil {
		return err
	}

	if err := e.writeCounter(w, "transactions_committed_total", "Total distributed and local-only transactions committed", atomic.LoadUint64(&c.transactionsCommitted)); err != nil {
		return err
	}
	if err := e.writeCounter(w, "transactions_aborted_total", "Total transactions aborted", atomic.LoadUint64(&c.transactionsAborted)); err != nil {
		return err
	}
	if err := e.writeCounter(w, "local_only_commits_total", "Commits filtered to local-only (spec §4.4)", atomic.LoadUint64(&c.localOnlyCommits)); err != nil {
		return err
	}

	if err := e.writeCounter(w, "votes_ready_total", "PREPARE votes received as READY", atomic.LoadUint64(&c.votesReady)); err != nil {
		return err
	}
	if err := e.writeCounter(w, "votes_aborted_total", "PREPARE votes received as ABORTED", atomic.LoadUint64(&c.votesAborted)); err != nil {
		return err
	}
	if err := e.writeCounter(w, "votes_dropped_total", "PREPARE votes lost before reaching a coordinator", atomic.LoadUint64(&c.votesDropped)); err != nil {
		return err
	}

	if err := e.writeCounter(w, "prepare_timeouts_total", "Distributed commits that exceeded their PREPARE timeout", atomic.LoadUint64(&c.prepareTimeouts)); err != nil {
		return err
	}
	if err := e.writeCounter(w, "quorum_lost_total", "Distributed commits aborted by a cluster configuration change mid-commit", atomic.LoadUint64(&c.quorumLost)); err != nil {
		return err
	}
	if err := e.writeCounter(w, "injected_aborts_total", "Commits aborted by an administrative fault injection", atomic.LoadUint64(&c.injectedAborts)); err != nil {
		return err
	}

	if err := e.writeCounter(w, "recovery_handoffs_total", "Recovery catch-up handshakes completed", atomic.LoadUint64(&c.recoveryHandoffs)); err != nil {
		return err
	}
	if err := e.writeCounter(w, "deadlocks_broken_total", "Cross-node deadlock cycles resolved by aborting a victim", atomic.LoadUint64(&c.deadlocksBroken)); err != nil {
		return err
	}

	if err := e.writeGauge(w, "live_node_count", "Nodes currently connected in the largest clique", float64(atomic.LoadInt64(&c.liveNodeCount))); err != nil {
		return err
	}
	if err := e.writeGauge(w, "disabled_mask_size", "Nodes currently excluded from the connectivity mask", float64(atomic.LoadInt64(&c.disabledMaskSize))); err != nil {
		return err
	}
	if err := e.writeGauge(w, "in_doubt_wait_count", "Remote transactions this node is blocked waiting to resolve (spec §4.3)", float64(atomic.LoadInt64(&c.inDoubtWaitCount))); err != nil {
		return err
	}

	return nil
}

func (e *Exporter) writeCounter(w io.Writer, name, help string, value uint64) error {
	metricName := e.namespace + "_" + name
	_, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n",
		metricName, help, metricName, metricName, value)
	return err
}

func (e *Exporter) writeGauge(w io.Writer, name, help string, value float64) error {
	metricName := e.namespace + "_" + name
	_, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %g\n",
		metricName, help, metricName, metricName, value)
	return err
}
