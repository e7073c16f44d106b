package store

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

var (
	migrationName = regexp.MustCompile(`^(\d+)_(.+)\.(up|down)\.sql$`)
	createTable   = regexp.MustCompile(`(?i)CREATE TABLE (?:IF NOT EXISTS )?(\w+)`)
	createIndex   = regexp.MustCompile(`(?i)CREATE (?:UNIQUE )?INDEX (?:IF NOT EXISTS )?(\w+) ON (\w+)`)
	dropTable     = regexp.MustCompile(`(?i)DROP TABLE (?:IF EXISTS )?(\w+)`)
	dropIndex     = regexp.MustCompile(`(?i)DROP INDEX (?:IF EXISTS )?(\w+)`)
)

type migrationPair struct {
	up, down string
}

func readMigrationPairs(t *testing.T) map[string]migrationPair {
	t.Helper()
	entries, err := os.ReadDir(testMigrationsDir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	pairs := map[string]migrationPair{}
	for _, entry := range entries {
		match := migrationName.FindStringSubmatch(entry.Name())
		if entry.IsDir() || match == nil {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(testMigrationsDir, entry.Name()))
		if err != nil {
			t.Fatalf("read %s: %v", entry.Name(), err)
		}
		key := match[1] + "_" + match[2]
		pair := pairs[key]
		if match[3] == "up" {
			pair.up = string(raw)
		} else {
			pair.down = string(raw)
		}
		pairs[key] = pair
	}
	if len(pairs) == 0 {
		t.Fatal("no migrations discovered")
	}
	return pairs
}

func TestDownMigrationsUndoEverythingUpCreates(t *testing.T) {
	for name, pair := range readMigrationPairs(t) {
		t.Run(name, func(t *testing.T) {
			if strings.TrimSpace(pair.up) == "" || strings.TrimSpace(pair.down) == "" {
				t.Fatalf("%s needs non-empty up and down files", name)
			}

			var created []string
			for _, m := range createTable.FindAllStringSubmatch(pair.up, -1) {
				created = append(created, strings.ToLower(m[1]))
			}
			dropped := map[string]int{}
			for i, m := range dropTable.FindAllStringSubmatch(pair.down, -1) {
				dropped[strings.ToLower(m[1])] = i
			}
			for _, table := range created {
				if _, ok := dropped[table]; !ok {
					t.Errorf("table %s is created but never dropped", table)
				}
			}
			// Tables referencing earlier ones must be dropped first.
			for i := 1; i < len(created); i++ {
				prev, cur := dropped[created[i-1]], dropped[created[i]]
				if cur > prev {
					t.Errorf("table %s is dropped after %s, which it was created after", created[i], created[i-1])
				}
			}

			droppedIndexes := map[string]bool{}
			for _, m := range dropIndex.FindAllStringSubmatch(pair.down, -1) {
				droppedIndexes[strings.ToLower(m[1])] = true
			}
			for _, m := range createIndex.FindAllStringSubmatch(pair.up, -1) {
				index, table := strings.ToLower(m[1]), strings.ToLower(m[2])
				if _, ok := dropped[table]; !ok && !droppedIndexes[index] {
					t.Errorf("index %s on %s survives the down migration", index, table)
				}
			}
		})
	}
}

func TestInitMigrationCoversBoardSchema(t *testing.T) {
	pair, ok := readMigrationPairs(t)["0001_init"]
	if !ok {
		t.Fatal("0001_init migration is missing")
	}
	up := strings.ToLower(pair.up)
	for _, table := range []string{"users", "refresh_sessions", "revoked_access_tokens", "workspaces", "workspace_members", "spaces", "columns", "tasks"} {
		if !strings.Contains(up, "create table "+table+" (") {
			t.Errorf("0001_init does not create %s", table)
		}
	}
	for _, index := range []string{"idx_spaces_workspace_order", "idx_columns_space_order", "idx_tasks_column_order"} {
		if !strings.Contains(up, index) {
			t.Errorf("0001_init is missing sibling-order index %s", index)
		}
	}
}
