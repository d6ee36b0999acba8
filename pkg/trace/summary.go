// pkg/trace/summary.go
package trace

import (
	"fmt"

	"vmkern/pkg/vm"
)

// PageCount is the number of faults taken on one page
type PageCount struct {
	Space  vm.ID
	VPN    int
	Faults int64
}

// Summary aggregates a trace
type Summary struct {
	Faults    int64
	Evictions int64
	SwapOuts  int64
	BySource  map[string]int64
	Hottest   []PageCount
}

// Summary flushes and aggregates the trace. Hottest lists up to top
// pages by fault count.
func (r *Recorder) Summary(top int) (Summary, error) {
	s := Summary{BySource: make(map[string]int64)}
	if err := r.Flush(); err != nil {
		return s, err
	}

	row := r.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(evicted), 0), COALESCE(SUM(swapped_out), 0) FROM faults`)
	if err := row.Scan(&s.Faults, &s.Evictions, &s.SwapOuts); err != nil {
		return s, fmt.Errorf("trace: totals: %w", err)
	}

	rows, err := r.db.Query(`SELECT source, COUNT(*) FROM faults GROUP BY source`)
	if err != nil {
		return s, fmt.Errorf("trace: by source: %w", err)
	}
	for rows.Next() {
		var source string
		var n int64
		if err := rows.Scan(&source, &n); err != nil {
			rows.Close()
			return s, fmt.Errorf("trace: by source: %w", err)
		}
		s.BySource[source] = n
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return s, fmt.Errorf("trace: by source: %w", err)
	}

	if top <= 0 {
		return s, nil
	}
	rows, err = r.db.Query(`SELECT space, vpn, COUNT(*) AS n FROM faults
		GROUP BY space, vpn ORDER BY n DESC, space, vpn LIMIT ?`, top)
	if err != nil {
		return s, fmt.Errorf("trace: hottest: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var pc PageCount
		var space int64
		if err := rows.Scan(&space, &pc.VPN, &pc.Faults); err != nil {
			return s, fmt.Errorf("trace: hottest: %w", err)
		}
		pc.Space = vm.ID(space)
		s.Hottest = append(s.Hottest, pc)
	}
	return s, rows.Err()
}
