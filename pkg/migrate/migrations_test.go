package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestMigrationsDirIsValid(t *testing.T) {
	require.NoError(t, ValidateDir("migrations"))
}

func TestMigrationsCoverEveryTable(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	var all strings.Builder
	for _, f := range files {
		b, err := os.ReadFile(f)
		require.NoError(t, err)
		all.Write(b)
	}
	content := all.String()

	for _, table := range []string{
		"users", "categories", "products", "product_categories", "carts", "cart_items",
		"coupons", "orders", "order_items", "reviews", "notifications", "outbox_events",
	} {
		require.Contains(t, content, "CREATE TABLE IF NOT EXISTS "+table+" (", "missing table %s", table)
	}

	require.Contains(t, content, "CHECK (stock >= 0)")
	require.Contains(t, content, "ux_reviews_user_product ON reviews (product_id, user_id) WHERE deleted_at IS NULL")
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	clock = func() time.Time { return time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC) }
	t.Cleanup(func() { clock = time.Now })

	path, err := CreateSQLMigration(dir, "Add Product Tags!")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "20260302093000_add_product_tags.sql"), path)
	require.NoError(t, ValidateDir(dir))

	_, err = CreateSQLMigration(dir, "add product tags")
	require.ErrorContains(t, err, "already exists")

	_, err = CreateSQLMigration(dir, "!!!")
	require.Error(t, err)
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_init.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260301000000_flipped.sql"), []byte("-- +goose Down\n-- +goose Up\n"), 0o644))

	err := ValidateDir(dir)
	require.Error(t, err)
	require.Len(t, multierr.Errors(err), 2)
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("20260301120300")
	require.NoError(t, err)
	require.EqualValues(t, 20260301120300, v)

	for _, bad := range []string{"", "2026", "2026030112030x"} {
		_, err := ParseVersion(bad)
		require.Error(t, err, bad)
	}
}
