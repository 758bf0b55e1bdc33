package datarecording

import (
	"database/sql"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/fatih/structs"
	"github.com/pkg/errors"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// DefaultBatchSize is the number of buffered rows that triggers a flush.
const DefaultBatchSize = 10000

// DataRecorder stores rows of flat structs, one table per struct type.
type DataRecorder interface {
	// CreateTable makes a table whose columns are the fields of sampleEntry.
	// Creating a table again with the same row type does nothing.
	CreateTable(tableName string, sampleEntry any)

	// InsertData buffers a row for a table that already exists.
	InsertData(tableName string, entry any)

	// ListTables returns the table names, sorted.
	ListTables() []string

	// Flush writes every buffered row.
	Flush()

	// Close flushes and releases the database.
	Close() error
}

// New creates a DataRecorder that writes to path plus a ".sqlite3" suffix.
// Buffered rows are flushed when the program exits through atexit.
func New(path string) DataRecorder {
	w := NewSQLiteWriter(path)
	w.Init()

	atexit.Register(func() { w.Flush() })

	return w
}

type column struct {
	name    string
	sqlType string
}

type table struct {
	rowType reflect.Type
	columns []column
	insert  *sql.Stmt
	pending [][]any
}

// SQLiteWriter buffers rows in memory and writes them to a SQLite database
// in one transaction per flush.
type SQLiteWriter struct {
	*sql.DB

	dbName    string
	tables    map[string]*table
	batchSize int
	pending   int
}

// NewSQLiteWriter creates a writer. Call Init before use.
func NewSQLiteWriter(path string) *SQLiteWriter {
	return &SQLiteWriter{
		dbName:    path,
		batchSize: DefaultBatchSize,
		tables:    make(map[string]*table),
	}
}

// WithBatchSize sets how many buffered rows trigger a flush.
func (w *SQLiteWriter) WithBatchSize(n int) *SQLiteWriter {
	if n <= 0 {
		panic("batch size must be positive")
	}

	w.batchSize = n

	return w
}

// Init opens the database file. It refuses to reuse an existing file.
func (w *SQLiteWriter) Init() {
	if w.dbName == "" {
		w.dbName = "neurosim_recording_" + xid.New().String()
	}

	filename := w.dbName + ".sqlite3"

	if _, err := os.Stat(filename); err == nil {
		panic(fmt.Errorf("file %s already exists", filename))
	}

	fmt.Fprintf(os.Stderr, "Database created for recording: %s\n", filename)

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		panic(err)
	}

	w.DB = db
}

// sqlColumnType maps a struct field kind to the SQLite column type storing
// it.
func sqlColumnType(kind reflect.Kind) (string, bool) {
	switch kind {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "INTEGER", true
	case reflect.Float32, reflect.Float64:
		return "REAL", true
	case reflect.String:
		return "TEXT", true
	}

	return "", false
}

func columnsOf(entry any) ([]column, error) {
	rowType := reflect.TypeOf(entry)
	if rowType == nil || rowType.Kind() != reflect.Struct {
		return nil, errors.Errorf("row of type %T is not a struct", entry)
	}

	names := structs.Names(entry)
	columns := make([]column, 0, len(names))

	for _, name := range names {
		field, _ := rowType.FieldByName(name)

		sqlType, ok := sqlColumnType(field.Type.Kind())
		if !ok {
			return nil, errors.Errorf("field %s of type %s cannot be recorded",
				name, field.Type)
		}

		columns = append(columns, column{name: name, sqlType: sqlType})
	}

	return columns, nil
}

// CreateTable creates a table whose columns are the exported fields of
// sampleEntry.
func (w *SQLiteWriter) CreateTable(tableName string, sampleEntry any) {
	if existing, found := w.tables[tableName]; found {
		if existing.rowType != reflect.TypeOf(sampleEntry) {
			panic(fmt.Sprintf("table %s already holds %s rows",
				tableName, existing.rowType))
		}

		return
	}

	columns, err := columnsOf(sampleEntry)
	if err != nil {
		panic(err)
	}

	defs := make([]string, len(columns))
	marks := make([]string, len(columns))

	for i, c := range columns {
		defs[i] = c.name + " " + c.sqlType
		marks[i] = "?"
	}

	w.mustExecute(fmt.Sprintf("CREATE TABLE %s (\n\t%s\n);",
		tableName, strings.Join(defs, ",\n\t")))

	insert, err := w.Prepare(fmt.Sprintf("INSERT INTO %s VALUES (%s)",
		tableName, strings.Join(marks, ", ")))
	if err != nil {
		panic(err)
	}

	w.tables[tableName] = &table{
		rowType: reflect.TypeOf(sampleEntry),
		columns: columns,
		insert:  insert,
	}
}

// InsertData buffers a row. The writer flushes by itself once the number
// of buffered rows reaches the batch size.
func (w *SQLiteWriter) InsertData(tableName string, entry any) {
	tbl, exists := w.tables[tableName]
	if !exists {
		panic(fmt.Sprintf("table %s does not exist", tableName))
	}

	if reflect.TypeOf(entry) != tbl.rowType {
		panic(fmt.Sprintf("entry of type %T does not fit table %s",
			entry, tableName))
	}

	tbl.pending = append(tbl.pending, structs.Values(entry))

	w.pending++
	if w.pending >= w.batchSize {
		w.Flush()
	}
}

// Buffered returns the number of rows waiting for a flush.
func (w *SQLiteWriter) Buffered() int {
	return w.pending
}

// ListTables returns the names of the tables created so far, sorted.
func (w *SQLiteWriter) ListTables() []string {
	names := make([]string, 0, len(w.tables))
	for name := range w.tables {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Flush writes all the buffered rows in one transaction, table by table in
// name order.
func (w *SQLiteWriter) Flush() {
	if w.pending == 0 {
		return
	}

	tx, err := w.Begin()
	if err != nil {
		panic(err)
	}

	for _, name := range w.ListTables() {
		tbl := w.tables[name]
		if len(tbl.pending) == 0 {
			continue
		}

		if err := writeRows(tx, tbl); err != nil {
			_ = tx.Rollback()
			panic(errors.Wrapf(err, "writing table %s", name))
		}

		tbl.pending = nil
	}

	if err := tx.Commit(); err != nil {
		panic(err)
	}

	w.pending = 0
}

func writeRows(tx *sql.Tx, tbl *table) error {
	stmt := tx.Stmt(tbl.insert)
	defer stmt.Close()

	for _, row := range tbl.pending {
		if _, err := stmt.Exec(row...); err != nil {
			return err
		}
	}

	return nil
}

// Close flushes the buffered rows and closes the database.
func (w *SQLiteWriter) Close() error {
	w.Flush()

	for _, tbl := range w.tables {
		tbl.insert.Close()
	}

	return w.DB.Close()
}

func (w *SQLiteWriter) mustExecute(query string) sql.Result {
	res, err := w.Exec(query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to execute: %s\n", query)
		panic(err)
	}

	return res
}
