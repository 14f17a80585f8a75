package main

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/authz-report/export"
)

func writeArchive(t *testing.T, dir string, entries map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	path := filepath.Join(dir, "extracts.zip")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRunCommand_Archive(t *testing.T) {
	dir := t.TempDir()
	archivePath := writeArchive(t, dir, map[string]string{
		"HDV_CHITIET_CKH_01.txt": "IDXACNO\tCUSTSEQ\n9001\t100\n",
		"HDV_CHITIET_KKH_01.txt": "IDXACNO\tCUSTSEQ\n100\t555\n",
		"MUC 30 2241.txt": "DESCRIPTION\tEFFECTIVEDATE\tEXPIRYDATE\tNGUOI_UY_QUYEN\tNGUOI_DUOC_UY_QUYEN\tTK_DUOC_UY_QUYEN\tPRIMARY_SOL_ID\n" +
			"uy quyen chu ky\t20200101\t21190101\tTRAN VAN C\tNGUYEN VAN B - 0901\t100\t2241\n",
		"Muc14_DK_SMS.txt": "FORACID\tCUSTTPCD\n100\tKHCN\n",
	})
	out := filepath.Join(dir, "report.xlsx")

	stdout, err := execute(t, "run",
		"--config", filepath.Join(dir, "absent.yaml"),
		"--archive", archivePath,
		"--out", out,
		"--ephemeral")
	require.NoError(t, err)
	assert.Contains(t, stdout, "completed")
	assert.Contains(t, stdout, "optional_source_unavailable")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	names, err := export.SheetNames(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"CKH", "KKH", "tieu chi 1", "tieu chi 2", "tieu chi 3"}, names)
}

func TestRunCommand_MissingExtract(t *testing.T) {
	dir := t.TempDir()
	archivePath := writeArchive(t, dir, map[string]string{
		"HDV_CHITIET_CKH_01.txt": "IDXACNO\tCUSTSEQ\n9001\t100\n",
	})

	_, err := execute(t, "run",
		"--config", filepath.Join(dir, "absent.yaml"),
		"--archive", archivePath,
		"--out", filepath.Join(dir, "report.xlsx"),
		"--ephemeral")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KKH")
	assert.NoFileExists(t, filepath.Join(dir, "report.xlsx"))
}
