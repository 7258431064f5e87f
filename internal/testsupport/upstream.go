package testsupport

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
)

// Upstream is a fake bulk-data host serving a release listing at /listing and
// archive bytes under /files/.
type Upstream struct {
	Server *httptest.Server

	mu     sync.Mutex
	names  []string
	files  map[string][]byte
	served map[string]int
}

// NewUpstream starts an empty upstream and registers cleanup.
func NewUpstream(t testing.TB) *Upstream {
	t.Helper()

	u := &Upstream{files: map[string][]byte{}, served: map[string]int{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/listing", u.serveListing)
	mux.HandleFunc("/files/", u.serveFile)
	u.Server = httptest.NewServer(mux)
	t.Cleanup(u.Server.Close)
	return u
}

// AddRelease publishes archive under name in the listing.
func (u *Upstream) AddRelease(name string, archive []byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.files[name]; !ok {
		u.names = append(u.names, name)
	}
	u.files[name] = archive
}

// ListingURL is the value tests put in bdss.base_url.
func (u *Upstream) ListingURL() string {
	return u.Server.URL + "/listing"
}

// Downloads reports how many times name was served.
func (u *Upstream) Downloads(name string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.served[name]
}

func (u *Upstream) serveListing(w http.ResponseWriter, _ *http.Request) {
	type productFile struct {
		Name string `json:"fileName"`
		URL  string `json:"fileDownloadUrl"`
		Size int    `json:"fileSize"`
	}

	u.mu.Lock()
	files := make([]productFile, 0, len(u.names))
	for _, name := range u.names {
		files = append(files, productFile{Name: name, URL: u.Server.URL + "/files/" + name, Size: len(u.files[name])})
	}
	u.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"productFiles": files})
}

func (u *Upstream) serveFile(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/files/")
	u.mu.Lock()
	data, ok := u.files[name]
	if ok {
		u.served[name]++
	}
	u.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

// WidgetRelease builds a release tar holding one design grant, P1, with two
// drawing sheets.
func WidgetRelease(t testing.TB) []byte {
	t.Helper()
	doc := GrantXML("design", "US", "29000001", "Widget", "P1-D00001.PNG", "P1-D00002.PNG")
	inner := RecordZip(t, "P1", doc, "P1-D00001.PNG", "P1-D00002.PNG")
	return BuildTar(t, Entry{Name: "R1/P1.ZIP", Data: inner})
}
