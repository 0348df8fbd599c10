package pdftext

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadFile_Missing(t *testing.T) {
	if _, err := ReadFile(filepath.Join(t.TempDir(), "nope.pdf")); err == nil {
		t.Fatalf("期望打开不存在的文件报错")
	}
}

func TestRead_NotPDF(t *testing.T) {
	if _, err := Read([]byte("esto no es un pdf")); err == nil {
		t.Fatalf("期望非 PDF 内容报错")
	}
}

func TestReadFile_Garbage(t *testing.T) {
	p := filepath.Join(t.TempDir(), "boleto.pdf")
	if err := os.WriteFile(p, []byte("%PDF-1.4\ngarbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(p); err == nil {
		t.Fatalf("期望损坏的 PDF 报错")
	}
}
