package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/marmos91/sharelease/internal/cli/output"
	"github.com/marmos91/sharelease/pkg/accounting"
	"github.com/marmos91/sharelease/pkg/leasedb"
)

var historyFormat string

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the accounting crawler's retained cycle history",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyFormat, "format", "table", "output format: table, json, yaml")
}

func runHistory(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(historyFormat)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ldb, err := leasedb.New(&cfg.LeaseDB)
	if err != nil {
		return fmt.Errorf("open lease database: %w", err)
	}
	defer ldb.Close()

	raw, err := ldb.GetHistory(cmd.Context())
	if err != nil {
		return fmt.Errorf("get history: %w", err)
	}

	cycles := make([]int64, 0, len(raw))
	for cycle := range raw {
		cycles = append(cycles, cycle)
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i] < cycles[j] })

	entries := make([]cycleEntry, 0, len(cycles))
	for _, cycle := range cycles {
		var entry accounting.HistoryEntry
		if err := json.Unmarshal([]byte(raw[cycle]), &entry); err != nil {
			return fmt.Errorf("decode history entry for cycle %d: %w", cycle, err)
		}
		entries = append(entries, cycleEntry{Cycle: cycle, HistoryEntry: entry})
	}

	printer := output.NewPrinter(os.Stdout, format)
	if format != output.FormatTable {
		return printer.Print(entries)
	}
	return printer.Print(cycleTable(entries))
}

// cycleEntry pairs a cycle number with its decoded history payload, the
// shape both the table and the JSON/YAML --format output render.
type cycleEntry struct {
	Cycle int64 `json:"cycle"`
	accounting.HistoryEntry
}

func cycleTable(entries []cycleEntry) *output.TableData {
	table := output.NewTableData("Cycle", "Start", "Finish", "Examined Shares", "Actual Shares", "Bytes Recovered")
	for _, e := range entries {
		table.AddRow(
			fmt.Sprintf("%d", e.Cycle),
			fmt.Sprintf("%d", e.CycleStartFinishTimes[0]),
			fmt.Sprintf("%d", e.CycleStartFinishTimes[1]),
			fmt.Sprintf("%d", e.SpaceRecovered.ExaminedShares),
			fmt.Sprintf("%d", e.SpaceRecovered.ActualShares),
			fmt.Sprintf("%d", e.SpaceRecovered.ActualDiskbytes),
		)
	}
	return table
}
