package metadata

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"grantfeed/internal/services"
)

// Grant is the subset of a grant document the catalogue keeps.
type Grant struct {
	DocType   string
	Country   string
	DocNumber string
	Title     string
	Images    []string
}

// Reference is the country code joined with the application number.
func (g *Grant) Reference() string {
	return g.Country + g.DocNumber
}

// text gathers all character data beneath an element, including text inside
// inline markup such as <i> or <sub>.
type text struct {
	value   string
	present bool
}

func (t *text) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var b strings.Builder
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch tok := tok.(type) {
		case xml.CharData:
			b.Write(tok)
		case xml.EndElement:
			if tok.Name == start.Name {
				t.value = b.String()
				t.present = true
				return nil
			}
		}
	}
}

type documentID struct {
	Country   string `xml:"country"`
	DocNumber string `xml:"doc-number"`
}

type grantXML struct {
	XMLName xml.Name `xml:"us-patent-grant"`
	Biblio  struct {
		Application *struct {
			ApplType   string     `xml:"appl-type,attr"`
			DocumentID documentID `xml:"document-id"`
		} `xml:"application-reference"`
		Title text `xml:"invention-title"`
	} `xml:"us-bibliographic-data-grant"`
	Drawings struct {
		Figures []struct {
			Images []imgXML `xml:"img"`
		} `xml:"figure"`
		Images []imgXML `xml:"img"`
	} `xml:"drawings"`
}

type imgXML struct {
	File string `xml:"file,attr"`
}

// Parse decodes a grant document. External DTDs are never fetched; a missing
// application reference or title is reported as services.ErrDataIntegrity.
func Parse(r io.Reader) (*Grant, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.Entity = xml.HTMLEntity

	var doc grantXML
	if err := dec.Decode(&doc); err != nil {
		return nil, services.Wrap(services.ErrDataIntegrity, "load", "parse grant", "malformed document", err)
	}

	app := doc.Biblio.Application
	if app == nil || strings.TrimSpace(app.DocumentID.DocNumber) == "" {
		return nil, services.Wrap(services.ErrDataIntegrity, "load", "parse grant", "missing application reference", nil)
	}
	if !doc.Biblio.Title.present {
		return nil, services.Wrap(services.ErrDataIntegrity, "load", "parse grant", "missing invention title", nil)
	}

	grant := &Grant{
		DocType:   strings.TrimSpace(app.ApplType),
		Country:   strings.TrimSpace(app.DocumentID.Country),
		DocNumber: strings.TrimSpace(app.DocumentID.DocNumber),
		Title:     cleanText(doc.Biblio.Title.value),
	}
	seen := make(map[string]struct{})
	addImage := func(file string) {
		file = strings.TrimSpace(file)
		if file == "" {
			return
		}
		if _, dup := seen[file]; dup {
			return
		}
		seen[file] = struct{}{}
		grant.Images = append(grant.Images, file)
	}
	for _, fig := range doc.Drawings.Figures {
		for _, img := range fig.Images {
			addImage(img.File)
		}
	}
	for _, img := range doc.Drawings.Images {
		addImage(img.File)
	}
	return grant, nil
}

func cleanText(value string) string {
	return strings.Join(strings.Fields(norm.NFC.String(value)), " ")
}

// DocumentPath finds patents/<record>/<record>.XML, matching the extension
// case-insensitively.
func DocumentPath(patentsDir, record string) (string, error) {
	dir := filepath.Join(patentsDir, record)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return "", services.Wrap(services.ErrDataIntegrity, "load", "locate document", "record directory missing: "+record, nil)
	}
	if err != nil {
		return "", services.Wrap(services.ErrTransientIO, "load", "locate document", record, err)
	}
	want := record + ".xml"
	for _, entry := range entries {
		if entry.Type().IsRegular() && strings.EqualFold(entry.Name(), want) {
			return filepath.Join(dir, entry.Name()), nil
		}
	}
	return "", services.Wrap(services.ErrDataIntegrity, "load", "locate document", fmt.Sprintf("no %s.XML in %s", record, dir), nil)
}

// ParseFile opens and parses a grant document from disk.
func ParseFile(path string) (*Grant, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrDataIntegrity, "load", "open document", path, err)
	}
	defer file.Close()
	return Parse(file)
}
