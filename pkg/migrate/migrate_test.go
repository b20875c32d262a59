package migrate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/posledger-backend/pkg/config"
	"github.com/angelmondragon/posledger-backend/pkg/db"
	"github.com/angelmondragon/posledger-backend/pkg/logger"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "expected exactly one %s migration", suffix)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func requireContainsAll(t *testing.T, content string, subs ...string) {
	t.Helper()
	for _, sub := range subs {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationsDirIsValid(t *testing.T) {
	require.NoError(t, ValidateDir("migrations"))
}

func TestStoreInventoryMigrationGuardsQuantity(t *testing.T) {
	content := readMigration(t, "create_store_inventory")
	requireContainsAll(t, content,
		"CREATE TABLE IF NOT EXISTS store_inventory",
		"CONSTRAINT chk_store_inventory_quantity_non_negative CHECK (quantity >= 0)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_store_inventory_store_product ON store_inventory (store_id, product_id)",
		"WHERE quantity <= min_quantity",
		"DROP TABLE IF EXISTS store_inventory",
	)
}

func TestLedgerMigrationIsAppendOnly(t *testing.T) {
	content := readMigration(t, "create_inventory_ledger_entries")
	requireContainsAll(t, content,
		"kind ledger_entry_kind NOT NULL",
		"CHECK (delta <> 0)",
		"BEFORE UPDATE OR DELETE ON inventory_ledger_entries",
		"idx_ledger_entries_store_product",
		"DROP TABLE IF EXISTS inventory_ledger_entries",
	)
}

func TestOrdersMigrationConstraints(t *testing.T) {
	content := readMigration(t, "create_orders")
	requireContainsAll(t, content,
		"status order_status NOT NULL DEFAULT 'pending'",
		"total_amount numeric(12,2) NOT NULL",
		"FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE",
		"CHECK (quantity > 0)",
	)
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_bad.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	require.Error(t, ValidateDir(dir))
}

func TestValidateDirRejectsEmptyDir(t *testing.T) {
	require.Error(t, ValidateDir(t.TempDir()))
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Ledger Index!")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "_add_ledger_index.sql"))
	require.NoError(t, ValidateDir(dir))
}

func TestValidateDirRejectsDuplicateVersions(t *testing.T) {
	dir := t.TempDir()
	body := []byte(markerUp + "\n" + markerDown + "\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260301090000_a.sql"), body, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260301090000_b.sql"), body, 0o644))
	require.ErrorContains(t, ValidateDir(dir), "duplicate migration version")
}

func TestValidateDirRequiresDownSection(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260301090000_up_only.sql"), []byte(markerUp+"\n"), 0o644))
	require.ErrorContains(t, ValidateDir(dir), markerDown)
}

func TestScanOrdersByVersion(t *testing.T) {
	files, err := scanFS(Migrations())
	require.NoError(t, err)
	require.NotEmpty(t, files)
	for i := 1; i < len(files); i++ {
		require.Less(t, files[i-1].Version, files[i].Version)
	}
}

func TestCreateSQLMigrationRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "same")
	require.NoError(t, err)
	_, err = CreateSQLMigration(dir, "same")
	if err != nil {
		require.ErrorContains(t, err, "already exists")
		return
	}
	// the clock ticked into a new second; the first file must be untouched
	_, statErr := os.Stat(path)
	require.NoError(t, statErr)
}

func TestCreateSQLMigrationRejectsEmptySlug(t *testing.T) {
	_, err := CreateSQLMigration(t.TempDir(), "!!!")
	require.Error(t, err)
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("20260301090000")
	require.NoError(t, err)
	require.Equal(t, int64(20260301090000), v)

	_, err = ParseVersion("2026")
	require.Error(t, err)
	_, err = ParseVersion("2026030109000x")
	require.Error(t, err)
}

func TestMaybeRunDevAutoMigratesSQLite(t *testing.T) {
	cfg := &config.Config{
		App:          config.AppConfig{Env: config.AppEnvDev},
		DB:           config.DBConfig{Driver: config.DBDriverSQLite, DSN: "file:migrate_autorun?mode=memory&cache=shared"},
		FeatureFlags: config.FeatureFlagsConfig{AutoMigrate: true},
	}
	client, err := db.New(context.Background(), cfg.DB, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, MaybeRunDev(context.Background(), cfg, logger.Discard(), client))
	require.True(t, client.DB().Migrator().HasTable("inventory_ledger_entries"))
	require.True(t, client.DB().Migrator().HasTable("store_inventory"))
}

func TestMaybeRunDevSkipsOutsideDev(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: config.AppEnvProd}}
	require.NoError(t, MaybeRunDev(context.Background(), cfg, logger.Discard(), nil))
}

func TestEmbeddedMigrationsMatchSourceTree(t *testing.T) {
	require.NoError(t, ValidateFS(Migrations()))

	embeddedFiles, err := scanFS(Migrations())
	require.NoError(t, err)
	onDisk, err := scanFS(Source("migrations"))
	require.NoError(t, err)
	require.Equal(t, onDisk, embeddedFiles)
}

func TestNewRunnerRequiresDB(t *testing.T) {
	_, err := NewRunner(nil, Migrations(), logger.Discard())
	require.Error(t, err)
}
