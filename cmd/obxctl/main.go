// Copyright (C) 2024 The obx Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// obxctl is an offline maintenance tool for one obx data file: it loads
// catalog/table metadata, applies WAL records, runs a checkpoint or
// vacuum pass, and dumps rows, all without bringing up a server. Grounded
// on cmd/sdb's flag-and-verb shape (a package-level flag set, a switch on
// args[0], and an exitf helper in place of error returns up through
// main), scaled down to the single-binary-no-subcommand-packages form
// cmd/dump uses.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/obxdb/obx/catalog"
	"github.com/obxdb/obx/checkpoint"
	"github.com/obxdb/obx/obxconfig"
	"github.com/obxdb/obx/obxlog"
	"github.com/obxdb/obx/operator"
	"github.com/obxdb/obx/storage/block"
	"github.com/obxdb/obx/storage/table"
	"github.com/obxdb/obx/txn"
	"github.com/obxdb/obx/value"
	"github.com/obxdb/obx/wal"
)

var (
	dashConfig string
	dashCat    string
	dashData   string
	dashBlocks int
	dashV      bool
)

func init() {
	flag.StringVar(&dashConfig, "config", "", "path to a spec.md §6 YAML config file (default: an in-memory/on-disk hybrid default)")
	flag.StringVar(&dashCat, "catalog", "catalog.db", "path to the catalog file")
	flag.StringVar(&dashData, "data", "", "path to the main block data file (default: the config's disk.path, or main.db)")
	flag.IntVar(&dashBlocks, "blocksize", 4096, "block size for the main data file (only used creating a new file)")
	flag.BoolVar(&dashV, "v", false, "verbose (debug-level logging)")
}

// dataPath resolves the main block data file: the -data flag wins, then
// the config's disk.path, then a plain default so the tool works
// out of the box against Default().
func dataPath(cfg *obxconfig.Config) string {
	if dashData != "" {
		return dashData
	}
	if cfg.Disk.Path != "" {
		return cfg.Disk.Path
	}
	return "main.db"
}

func exitf(f string, args ...any) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
	os.Exit(1)
}

func loadConfig() (*obxconfig.Config, *obxlog.Logger) {
	var cfg *obxconfig.Config
	var err error
	if dashConfig != "" {
		cfg, err = obxconfig.Load(dashConfig)
		if err != nil {
			exitf("%s", err)
		}
	} else {
		cfg = obxconfig.Default()
	}
	if dashV {
		cfg.Log.Level = "debug"
	}
	logger, err := cfg.Logger()
	if err != nil {
		exitf("%s", err)
	}
	return cfg, logger
}

// resolveTable finds dbName/tableName in the catalog and translates its
// column descriptions into a value schema. Catalog columns carry their
// logical type as a plain name (catalog.Column.Type) rather than
// value.LogicalType, so the catalog package stays free of a storage
// dependency (see catalog/entry.go); obxctl is exactly the kind of
// boundary where that name gets resolved back into the typed enum.
func resolveTable(cat *catalog.Storage, dbName, tableName string) (catalog.Table, []value.LogicalType) {
	tbl := cat.FindTable(dbName, tableName)
	if tbl == nil {
		exitf("no such table %s/%s", dbName, tableName)
	}
	schema := make([]value.LogicalType, len(tbl.Columns))
	for i, c := range tbl.Columns {
		t, ok := parseLogicalType(c.Type)
		if !ok {
			exitf("column %s: unrecognized type %q", c.Name, c.Type)
		}
		schema[i] = t
	}
	return *tbl, schema
}

func parseLogicalType(name string) (value.LogicalType, bool) {
	name = strings.ToUpper(name)
	for t := value.Null; t <= value.Enum; t++ {
		if t.String() == name {
			return t, true
		}
	}
	return 0, false
}

// openDataFile opens (creating if necessary) the block-based data file a
// config or -data flag names.
func openDataFile(path string, blockSize int) block.Manager {
	mgr, err := block.Open(path, blockSize)
	if err != nil {
		exitf("opening %s: %s", path, err)
	}
	return mgr
}

// loadOrCreate returns the table previously checkpointed into mgr, or a
// fresh empty table over schema if none has been published yet.
func loadOrCreate(mgr block.Manager, schema []value.LogicalType, groupCapacity uint64, logger *obxlog.Logger) (*table.DataTable, error) {
	hdr, err := mgr.ReadHeader()
	if err != nil {
		return nil, err
	}
	if hdr.MetaBlockPointer.IsZero() {
		logger.Debugf("no checkpointed metadata found, starting from an empty table")
		return table.NewDataTable(schema, groupCapacity), nil
	}
	return checkpoint.LoadTable(mgr, hdr.MetaBlockPointer)
}

// replayWAL applies every committed PHYSICAL record from dir onto tbl,
// per spec.md §4.8's recovery path, and returns how many were applied.
// Each distinct WAL transaction ID is replayed under its own
// txn.Manager transaction so the rows it touches land with a real
// monotonic commit ID instead of a borrowed constant — recovery commits
// a row the same way a live write path would, just driven from the log
// instead of from a caller.
func replayWAL(tbl *table.DataTable, dir string, agents int, mgr *txn.Manager, logger *obxlog.Logger) (int, error) {
	reader, err := wal.OpenReader(dir, agents)
	if err != nil {
		return 0, err
	}
	records, err := reader.ReadCommittedRecords(0)
	if err != nil {
		return 0, err
	}
	commitIDs := make(map[uint64]uint64)
	commitIDFor := func(walTxnID uint64) uint64 {
		if id, ok := commitIDs[walTxnID]; ok {
			return id
		}
		session := txn.NewSessionID()
		mgr.BeginTransaction(session)
		id := mgr.Commit(session)
		commitIDs[walTxnID] = id
		return id
	}
	for _, rec := range records {
		switch rec.Type {
		case wal.PhysicalInsert:
			var state table.AppendState
			tbl.AppendLock(&state)
			err = tbl.Append(rec.Chunk, &state)
			if err == nil {
				tbl.FinalizeAppend(&state, commitIDFor(rec.TransactionID))
			}
			tbl.AppendUnlock()
		case wal.PhysicalDelete:
			rowIDs := make([]uint64, len(rec.RowIDs))
			for i, id := range rec.RowIDs {
				rowIDs[i] = uint64(id)
			}
			err = tbl.DeleteRows(rowIDs, commitIDFor(rec.TransactionID))
		case wal.PhysicalUpdate:
			rowIDs := make([]uint64, len(rec.RowIDs))
			for i, id := range rec.RowIDs {
				rowIDs[i] = uint64(id)
			}
			for col := range rec.Chunk.Columns {
				values := make([]value.Value, len(rowIDs))
				for i := range rowIDs {
					values[i] = rec.Chunk.Columns[col].Get(i)
				}
				if err = tbl.Update(col, rowIDs, values); err != nil {
					break
				}
			}
		}
		if err != nil {
			return 0, fmt.Errorf("replaying WAL record %d: %w", rec.ID, err)
		}
		logger.Debugf("replayed %s record %d (txn %d)", rec.Type, rec.ID, rec.TransactionID)
	}
	return len(records), nil
}

func cmdScan(cat *catalog.Storage, cfg *obxconfig.Config, logger *obxlog.Logger, dbName, tableName string) {
	_, schema := resolveTable(cat, dbName, tableName)
	mgr := openDataFile(dataPath(cfg), dashBlocks)
	defer mgr.Close()

	tbl, err := loadOrCreate(mgr, schema, table.DefaultRowGroupCapacity, logger)
	if err != nil {
		exitf("loading table: %s", err)
	}
	columnIDs := make([]int, len(schema))
	for i := range columnIDs {
		columnIDs[i] = i
	}

	// A one-off session just long enough to fix a read snapshot: the
	// scan only ever sees rows committed before this start time, per
	// the same MVCC rule a concurrent writer's commit is bound by.
	txnMgr := txn.NewManager()
	session := txn.NewSessionID()
	readStartTime := txnMgr.BeginTransaction(session).StartTime()
	defer txnMgr.Abort(session)

	scan := operator.NewScan(tbl, columnIDs, readStartTime)
	chunks, err := operator.Drain(scan)
	if err != nil {
		exitf("scanning: %s", err)
	}
	for _, chunk := range chunks {
		for i := 0; i < chunk.Cardinality(); i++ {
			row := chunk.Row(i)
			fields := make([]string, len(row))
			for j, v := range row {
				fields[j] = formatValue(v)
			}
			fmt.Println(strings.Join(fields, "\t"))
		}
	}
}

func cmdWalReplay(cat *catalog.Storage, cfg *obxconfig.Config, logger *obxlog.Logger, dbName, tableName string) {
	_, schema := resolveTable(cat, dbName, tableName)
	mgr := openDataFile(dataPath(cfg), dashBlocks)
	defer mgr.Close()

	tbl, err := loadOrCreate(mgr, schema, table.DefaultRowGroupCapacity, logger)
	if err != nil {
		exitf("loading table: %s", err)
	}
	n, err := replayWAL(tbl, cfg.WAL.Path, cfg.WAL.Agents, txn.NewManager(), logger)
	if err != nil {
		exitf("%s", err)
	}
	if err := checkpoint.CheckpointAndPublish(tbl, mgr); err != nil {
		exitf("checkpointing replayed table: %s", err)
	}
	fmt.Printf("replayed %d WAL record(s), %d row(s) now live\n", n, tbl.RowCount())
}

func cmdCheckpoint(cat *catalog.Storage, cfg *obxconfig.Config, logger *obxlog.Logger, dbName, tableName string) {
	_, schema := resolveTable(cat, dbName, tableName)
	mgr := openDataFile(dataPath(cfg), dashBlocks)
	defer mgr.Close()

	tbl, err := loadOrCreate(mgr, schema, table.DefaultRowGroupCapacity, logger)
	if err != nil {
		exitf("loading table: %s", err)
	}
	if err := checkpoint.CheckpointAndPublish(tbl, mgr); err != nil {
		exitf("checkpointing: %s", err)
	}
	fmt.Printf("checkpointed %d row(s) across %d row group(s)\n", tbl.RowCount(), len(tbl.RowGroups()))
}

func cmdVacuum(cat *catalog.Storage, cfg *obxconfig.Config, logger *obxlog.Logger, dbName, tableName string, lowWatermark uint64) {
	_, schema := resolveTable(cat, dbName, tableName)
	mgr := openDataFile(dataPath(cfg), dashBlocks)
	defer mgr.Close()

	tbl, err := loadOrCreate(mgr, schema, table.DefaultRowGroupCapacity, logger)
	if err != nil {
		exitf("loading table: %s", err)
	}
	n := tbl.Vacuum(lowWatermark)
	if err := checkpoint.CheckpointAndPublish(tbl, mgr); err != nil {
		exitf("checkpointing after vacuum: %s", err)
	}
	fmt.Printf("vacuumed %d tombstone entries below watermark %d\n", n, lowWatermark)
}

// formatValue renders a Value the way a terminal user wants to see it,
// not the way the wire codecs encode it.
func formatValue(v value.Value) string {
	if v.IsNull() {
		return "NULL"
	}
	switch v.Type {
	case value.Bool:
		return strconv.FormatBool(v.Int64() != 0)
	case value.Int8, value.Int16, value.Int32, value.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	case value.Uint8, value.Uint16, value.Uint32, value.Uint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case value.Int128, value.Uint128:
		i := v.Int128Value()
		return fmt.Sprintf("%d:%d", i.Hi, i.Lo)
	case value.Float, value.Double:
		return strconv.FormatFloat(v.Float64(), 'g', -1, 64)
	case value.String:
		return v.String2()
	case value.Blob:
		return fmt.Sprintf("%x", v.Bytes)
	case value.Timestamp:
		return v.Time().String()
	case value.Decimal:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case value.Enum:
		return v.String2()
	default:
		return fmt.Sprintf("<%s>", v.Type)
	}
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "usage:\n")
		fmt.Fprintf(os.Stderr, "    %s [-config file] scan <db> <table>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "        dump every visible row of a table\n")
		fmt.Fprintf(os.Stderr, "    %s [-config file] wal-replay <db> <table>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "        apply committed WAL records and republish a checkpoint\n")
		fmt.Fprintf(os.Stderr, "    %s [-config file] checkpoint <db> <table>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "        republish the checkpointed metadata root\n")
		fmt.Fprintf(os.Stderr, "    %s [-config file] vacuum <db> <table> <low-watermark>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "        drop tombstone bookkeeping below the watermark, then checkpoint\n")
		fmt.Fprintf(os.Stderr, "flag usage:\n")
		flag.Usage()
		os.Exit(1)
	}

	cfg, logger := loadConfig()
	cat := catalog.Open(dashCat)
	if err := cat.Load(); err != nil {
		exitf("loading catalog: %s", err)
	}

	switch args[0] {
	case "scan":
		if len(args) != 3 {
			exitf("usage: scan <db> <table>")
		}
		cmdScan(cat, cfg, logger, args[1], args[2])
	case "wal-replay":
		if len(args) != 3 {
			exitf("usage: wal-replay <db> <table>")
		}
		cmdWalReplay(cat, cfg, logger, args[1], args[2])
	case "checkpoint":
		if len(args) != 3 {
			exitf("usage: checkpoint <db> <table>")
		}
		cmdCheckpoint(cat, cfg, logger, args[1], args[2])
	case "vacuum":
		if len(args) != 4 {
			exitf("usage: vacuum <db> <table> <low-watermark>")
		}
		lw, err := strconv.ParseUint(args[3], 10, 64)
		if err != nil {
			exitf("invalid low-watermark %q: %s", args[3], err)
		}
		cmdVacuum(cat, cfg, logger, args[1], args[2], lw)
	default:
		exitf("commands: scan, wal-replay, checkpoint, vacuum")
	}
}
