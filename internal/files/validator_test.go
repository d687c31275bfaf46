package files

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BioHazard786/Coderoom/internal/errs"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func ivfHeader(fourcc string) []byte {
	h := make([]byte, 32)
	copy(h, "DKIF")
	copy(h[8:], fourcc)
	return h
}

func TestValidateVideo(t *testing.T) {
	path := writeFile(t, "cam.ivf", ivfHeader("VP80"))
	info, err := ValidateMedia(path, KindVideo)
	if err != nil {
		t.Fatalf("ValidateMedia: %v", err)
	}
	if info.Codec != "VP80" || info.Kind != KindVideo || info.Name != "cam.ivf" {
		t.Fatalf("info=%+v", info)
	}
}

func TestValidateRejectsWrongContainer(t *testing.T) {
	ogg := writeFile(t, "mic.ogg", append([]byte("OggS"), make([]byte, 24)...))
	if _, err := ValidateMedia(ogg, KindVideo); !errors.Is(err, errs.ErrInvalidFile) {
		t.Fatalf("ogg as video err=%v, want ErrInvalidFile", err)
	}
	if _, err := ValidateMedia(ogg, KindAudio); err != nil {
		t.Fatalf("ogg as audio: %v", err)
	}

	h264 := writeFile(t, "cam.ivf", ivfHeader("H264"))
	if _, err := ValidateMedia(h264, KindVideo); !errors.Is(err, errs.ErrInvalidFile) {
		t.Fatalf("H264 ivf err=%v, want ErrInvalidFile", err)
	}
}

func TestValidateMissingAndShort(t *testing.T) {
	if _, err := ValidateMedia(filepath.Join(t.TempDir(), "none.ivf"), KindVideo); !errors.Is(err, errs.ErrInvalidFile) {
		t.Fatalf("missing file err=%v", err)
	}
	short := writeFile(t, "short.ivf", []byte("DK"))
	if _, err := ValidateMedia(short, KindVideo); !errors.Is(err, errs.ErrInvalidFile) {
		t.Fatalf("short file err=%v", err)
	}
}

func TestValidateAllJoinsFailures(t *testing.T) {
	dir := t.TempDir()
	_, _, err := ValidateAll(filepath.Join(dir, "a.ivf"), filepath.Join(dir, "b.ogg"))
	if err == nil || strings.Count(err.Error(), "\n  - ") != 2 {
		t.Fatalf("ValidateAll err=%v, want two listed failures", err)
	}

	v, a, err := ValidateAll("", "")
	if err != nil || v != nil || a != nil {
		t.Fatalf("empty sources: %v %v %v", v, a, err)
	}
}
