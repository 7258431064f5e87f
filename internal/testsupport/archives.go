package testsupport

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Entry is one named file inside a generated archive.
type Entry struct {
	Name string
	Data []byte
}

// BuildZip returns an in-memory zip holding entries in order.
func BuildZip(t testing.TB, entries ...Entry) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, entry := range entries {
		w, err := zw.Create(entry.Name)
		if err != nil {
			t.Fatalf("zip create %s: %v", entry.Name, err)
		}
		if _, err := w.Write(entry.Data); err != nil {
			t.Fatalf("zip write %s: %v", entry.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// BuildTar returns an in-memory tar holding entries in order. Names ending
// in "/" become directory headers.
func BuildTar(t testing.TB, entries ...Entry) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, entry := range entries {
		hdr := &tar.Header{Name: entry.Name, Mode: 0o644, Size: int64(len(entry.Data)), Typeflag: tar.TypeReg}
		if strings.HasSuffix(entry.Name, "/") {
			hdr = &tar.Header{Name: entry.Name, Mode: 0o755, Typeflag: tar.TypeDir}
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header %s: %v", entry.Name, err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := tw.Write(entry.Data); err != nil {
				t.Fatalf("tar write %s: %v", entry.Name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	return buf.Bytes()
}

// RecordZip builds the inner zip for one grant record: the XML document plus
// a placeholder file per drawing, all under a record-named folder.
func RecordZip(t testing.TB, record, xmlDoc string, drawings ...string) []byte {
	t.Helper()

	entries := []Entry{{Name: record + "/" + record + ".XML", Data: []byte(xmlDoc)}}
	for _, drawing := range drawings {
		entries = append(entries, Entry{Name: record + "/" + drawing, Data: []byte("drawing " + drawing)})
	}
	return BuildZip(t, entries...)
}

// GrantXML renders a minimal grant document with the given fields.
func GrantXML(applType, country, docNumber, title string, drawings ...string) string {
	var figures strings.Builder
	for idx, drawing := range drawings {
		fmt.Fprintf(&figures, `<figure id="Fig-EMI-D%05d" num="%d"><img id="EMI-D%05d" file="%s" img-format="tif"/></figure>`,
			idx+1, idx+1, idx+1, drawing)
	}
	return `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE us-patent-grant SYSTEM "us-patent-grant-v45-2014-04-03.dtd" [ ]>
<us-patent-grant lang="EN" dtd-version="v4.5 2014-04-03" file="` + docNumber + `.XML" country="US">
<us-bibliographic-data-grant>
<publication-reference><document-id><country>US</country><doc-number>` + docNumber + `</doc-number><kind>S1</kind></document-id></publication-reference>
<application-reference appl-type="` + applType + `"><document-id><country>` + country + `</country><doc-number>` + docNumber + `</doc-number><date>20200101</date></document-id></application-reference>
<invention-title id="d2e43">` + title + `</invention-title>
</us-bibliographic-data-grant>
<drawings id="DRAWINGS">` + figures.String() + `</drawings>
</us-patent-grant>
`
}

// WriteBytes writes data to path, creating parent directories.
func WriteBytes(t testing.TB, path string, data []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
