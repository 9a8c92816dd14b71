package helpers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
)

// Section is the availability the fake registrar reports for a CRN
type Section struct {
	Open  bool
	Seats int
	// Status, when non-zero, is returned instead of a page
	Status int
}

// Registrar is a fake registration site serving the search page scraped by the HTML adapter
type Registrar struct {
	*httptest.Server

	mu       sync.Mutex
	sections map[string]Section
	requests int
}

// NewRegistrar starts a registrar with no sections
func NewRegistrar() *Registrar {
	r := &Registrar{sections: make(map[string]Section)}
	r.Server = httptest.NewServer(http.HandlerFunc(r.serveSearch))
	return r
}

// SetSection replaces the availability of crn
func (r *Registrar) SetSection(crn string, s Section) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sections[crn] = s
}

// Requests returns the number of search requests served so far
func (r *Registrar) Requests() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests
}

func (r *Registrar) serveSearch(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/search" {
		http.NotFound(w, req)
		return
	}
	crn := req.URL.Query().Get("crn")

	r.mu.Lock()
	r.requests++
	s, ok := r.sections[crn]
	r.mu.Unlock()

	if ok && s.Status != 0 {
		w.WriteHeader(s.Status)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprint(w, "<html><body><table>")
	if ok {
		status := "Closed"
		if s.Open {
			status = "Open"
		}
		_, _ = fmt.Fprintf(w, `<tr id="crn_%s"><td class="status">%s</td><td class="seats">%d</td></tr>`,
			crn, status, s.Seats)
	}
	_, _ = fmt.Fprint(w, "</table></body></html>")
}
