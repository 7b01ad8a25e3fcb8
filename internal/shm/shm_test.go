package shm

import (
	"os"
	"testing"
)

func TestOpenWriteAndHeader(t *testing.T) {
	name := "blobserver_test_segment"
	seg, err := Open(name, 4, 2)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer seg.Close()

	if seg.Name() != name {
		t.Errorf("expected name %q, got %q", name, seg.Name())
	}

	pix := make([]byte, 4*2*3)
	for i := range pix {
		pix[i] = byte(i)
	}
	if err := seg.WriteImage(pix); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := os.ReadFile("/tmp/" + name)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(data) != headerSize+len(pix) {
		t.Fatalf("expected segment size %d, got %d", headerSize+len(pix), len(data))
	}
	gotWidth := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24
	if gotWidth != 4 {
		t.Errorf("expected width header 4, got %d", gotWidth)
	}
	for i, b := range pix {
		if data[headerSize+i] != b {
			t.Fatalf("pixel mismatch at %d: want %d got %d", i, b, data[headerSize+i])
		}
	}
}

func TestWriteImageRejectsWrongSize(t *testing.T) {
	seg, err := Open("blobserver_test_wrongsize", 4, 2)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer seg.Close()
	if err := seg.WriteImage(make([]byte, 3)); err == nil {
		t.Fatal("expected error for wrong-size pixel buffer")
	}
}

func TestCloseRemovesBackingFile(t *testing.T) {
	name := "blobserver_test_closed"
	seg, err := Open(name, 2, 2)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := seg.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat("/tmp/" + name); !os.IsNotExist(err) {
		t.Fatalf("expected backing file removed, stat err = %v", err)
	}
}
