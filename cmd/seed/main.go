package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"imageclassifier/internal/config"
	"imageclassifier/internal/model"
	"imageclassifier/internal/repository/postgres"
	"imageclassifier/internal/repository/sqlite"
)

// seedRow is one line of the seed file.
type seedRow struct {
	Label     string    `json:"label"`
	Embedding []float64 `json:"embedding"`
}

type batchAppender interface {
	AppendBatch(ctx context.Context, classes []model.ClassRecord) ([]int64, error)
}

func main() {
	cfg := config.Load()
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path, or Postgres DSN with -driver postgres")
	driver := flag.String("driver", cfg.DBDriver, "Database driver: sqlite3 or postgres")
	file := flag.String("file", "classes.jsonl", "JSON lines file with {\"label\",\"embedding\"} rows")
	flag.Parse()

	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("Failed to open seed file: %v", err)
	}
	defer f.Close()

	classes, skipped, err := readSeedFile(f)
	if err != nil {
		log.Fatalf("Failed to read seed file: %v", err)
	}
	if len(classes) == 0 {
		fmt.Println("No classes found to seed")
		return
	}

	ctx := context.Background()
	store, closeStore, err := openStore(ctx, *driver, *dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer closeStore()

	fmt.Printf("Inserting %d classes into %s database...\n", len(classes), *driver)
	ids, err := store.AppendBatch(ctx, classes)
	if err != nil {
		log.Fatalf("Failed to insert classes: %v", err)
	}

	fmt.Printf("✅ Seeded %d classes (ids %d-%d)\n", len(ids), ids[0], ids[len(ids)-1])
	if skipped > 0 {
		fmt.Printf("⚠️  Skipped %d rows (duplicate label or invalid row)\n", skipped)
	}
}

func openStore(ctx context.Context, driver, dsn string) (batchAppender, func(), error) {
	switch driver {
	case "postgres":
		db, err := postgres.New(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewClassRepository(db), func() { db.Close() }, nil
	case "sqlite3":
		db, err := sqlite.New(dsn)
		if err != nil {
			return nil, nil, err
		}
		return sqlite.NewClassRepository(db), func() { db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

// readSeedFile parses JSON lines into classes. Blank lines are ignored. Rows with an
// empty label or embedding, or whose normalized label was already seen, are skipped.
// All embeddings must share one dimension.
func readSeedFile(r io.Reader) ([]model.ClassRecord, int, error) {
	var (
		classes []model.ClassRecord
		skipped int
		dim     int
		seen    = make(map[string]bool)
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var row seedRow
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return nil, 0, fmt.Errorf("line %d: %w", lineNo, err)
		}
		row.Label = strings.TrimSpace(row.Label)
		if row.Label == "" || len(row.Embedding) == 0 {
			log.Printf("⚠️  Skipping line %d: label and embedding are required", lineNo)
			skipped++
			continue
		}

		key := normalizeLabel(row.Label)
		if seen[key] {
			skipped++
			continue
		}
		if dim == 0 {
			dim = len(row.Embedding)
		} else if len(row.Embedding) != dim {
			return nil, 0, fmt.Errorf("line %d: embedding has %d dimensions, expected %d", lineNo, len(row.Embedding), dim)
		}

		seen[key] = true
		classes = append(classes, model.ClassRecord{Label: row.Label, Embedding: row.Embedding})
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, err
	}
	return classes, skipped, nil
}

// normalizeLabel case-folds and NFC-normalizes a label for duplicate detection.
func normalizeLabel(label string) string {
	return cases.Fold().String(norm.NFC.String(label))
}
