package ticksource

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadFileValid(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "nifty.csv", "2024-01-01,100,110,95,105,1000\n2024-01-02,105,115,100,112,1200\n")

	records, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len = %d, want 2", len(records))
	}
	if records[0].Close != 105 || records[0].Volume != 1000 {
		t.Fatalf("unexpected first record: %+v", records[0])
	}
}

func TestLoadFileSkipsBlankLines(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "nifty.csv", "2024-01-01,100,110,95,105,1000\n\n2024-01-02,105,115,100,112,1200\n")

	records, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len = %d, want 2", len(records))
	}
}

func TestLoadFileTolerateBadRows(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "nifty.csv", "2024-01-01,100,110,95,105,1000\nnot,a,valid,row\n2024-01-03,105,115,100,112,1200\n")

	records, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len = %d, want 2 (one bad row skipped)", len(records))
	}
}

func TestLoadFileAllRowsBadFails(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "bad.csv", "not,a,valid,row\nalso,bad\n")

	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected an error when every row is invalid")
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile("/nonexistent/path/nifty.csv"); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestLoadDirDerivesSymbolFromFilename(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "nifty.csv", "2024-01-01,100,110,95,105,1000\n")
	writeTemp(t, dir, "banknifty.csv", "2024-01-01,200,210,195,205,2000\n")
	writeTemp(t, dir, "readme.txt", "not csv")

	bySymbol, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(bySymbol) != 2 {
		t.Fatalf("len = %d, want 2", len(bySymbol))
	}
	if _, ok := bySymbol["NIFTY"]; !ok {
		t.Fatal("expected NIFTY symbol")
	}
	if _, ok := bySymbol["BANKNIFTY"]; !ok {
		t.Fatal("expected BANKNIFTY symbol")
	}
}

func TestLoadDirTolerateBadFile(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "nifty.csv", "2024-01-01,100,110,95,105,1000\n")
	writeTemp(t, dir, "broken.csv", "not,a,valid,row\n")

	bySymbol, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(bySymbol) != 1 {
		t.Fatalf("len = %d, want 1 (broken.csv skipped)", len(bySymbol))
	}
}

func TestLoadDirMissing(t *testing.T) {
	if _, err := LoadDir("/nonexistent/dir"); err == nil {
		t.Fatal("expected an error for a missing directory")
	}
}

func TestDefaultFixture(t *testing.T) {
	fixture := DefaultFixture()
	records, ok := fixture["NIFTY"]
	if !ok || len(records) != 3 {
		t.Fatalf("fixture = %+v, want NIFTY with 3 records", fixture)
	}
}
