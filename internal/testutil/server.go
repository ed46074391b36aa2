// Package testutil provides an in-memory blob and filesystem service for tests.
package testutil

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/storagelite/storagelite/internal/auth"
)

// Account is the account name the server expects in every path.
const Account = "devstoreaccount1"

// Fault makes matching requests fail.
type Fault struct {
	// Method and Query narrow the match; empty matches anything. Query matches
	// when every listed parameter has the given value.
	Method string
	Query  map[string]string
	// Status and Code are returned instead of serving the request.
	Status int
	Code   string
	// Times is how many requests fail; 0 means every request.
	Times int
}

// Request is a recorded request.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Size   int
}

type object struct {
	data        []byte
	dir         bool
	contentType string
	meta        map[string]string
	props       string
	etag        string
	modified    time.Time

	blobType string
	blocks   map[string][]byte
	// committedBlocks is the block list of the current content.
	committedBlocks []stagedBlock
	appends         map[int64][]byte
	// pages holds the indexes of written pages of a page blob.
	pages map[int64]bool
}

type stagedBlock struct {
	id   string
	data []byte
}

func (o *object) kind() string {
	if o.blobType == "" {
		return "BlockBlob"
	}
	return o.blobType
}

// committed reports whether the object has been written, as opposed to only
// having staged blocks.
func (o *object) committed() bool {
	return o.etag != ""
}

type container struct {
	props    string
	meta     map[string]string
	etag     string
	modified time.Time
	objects  map[string]*object
}

// Server is an httptest server that implements the subset of the blob and
// filesystem REST protocol the client uses.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	containers map[string]*container
	faults     []*Fault
	requests   []Request
	verifier   *auth.SharedKeySigner
	seq        int
}

// NewServer starts a server that is closed with the test.
func NewServer(t testing.TB) *Server {
	s := &Server{containers: make(map[string]*container)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Endpoint is the base URL for both services.
func (s *Server) Endpoint() string {
	return s.URL + "/" + Account
}

// VerifySharedKey makes the server reject requests whose signature does not
// match one computed with signer.
func (s *Server) VerifySharedKey(signer *auth.SharedKeySigner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifier = signer
}

// InjectFault adds a failure rule. Rules are checked in order.
func (s *Server) InjectFault(f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, &f)
}

// Requests returns the recorded requests.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// CountRequests counts recorded requests with method and the given query value.
func (s *Server) CountRequests(method, key, value string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && (key == "" || r.Query.Get(key) == value) {
			n++
		}
	}
	return n
}

// Object returns the committed content of a blob or file.
func (s *Server) Object(containerName, name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.containers[containerName]
	if !ok {
		return nil, false
	}
	o, ok := c.objects[name]
	if !ok || o.dir || !o.committed() {
		return nil, false
	}
	return append([]byte{}, o.data...), true
}

// PutObject stores content directly, creating the container if needed.
func (s *Server) PutObject(containerName, name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.containerFor(containerName)
	o := s.objectFor(c, name)
	o.data = append([]byte(nil), data...)
	s.touch(o)
}

func (s *Server) containerFor(name string) *container {
	c, ok := s.containers[name]
	if !ok {
		c = &container{meta: map[string]string{}, objects: map[string]*object{}}
		s.seq++
		c.etag = fmt.Sprintf(`"0x%X"`, s.seq)
		c.modified = time.Now().UTC()
		s.containers[name] = c
	}
	return c
}

func (s *Server) objectFor(c *container, name string) *object {
	o, ok := c.objects[name]
	if !ok {
		o = &object{meta: map[string]string{}}
		c.objects[name] = o
	}
	return o
}

func (s *Server) touch(o *object) {
	s.seq++
	o.etag = fmt.Sprintf(`"0x%X"`, s.seq)
	o.modified = time.Now().UTC()
}

// dfsRequest reports whether the request uses the filesystem dialect, which
// answers errors with a JSON envelope.
func dfsRequest(r *http.Request) bool {
	q := r.URL.Query()
	return q.Get("resource") != "" || q.Get("action") != "" || q.Has("recursive") ||
		r.Header.Get("x-ms-rename-source") != "" || q.Get("mode") != ""
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("x-ms-error-code", code)
	w.Header().Set("x-ms-request-id", "fake-"+strconv.FormatInt(time.Now().UnixNano(), 36))
	if r.Method == http.MethodHead {
		w.WriteHeader(status)
		return
	}
	if dfsRequest(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"code": code, "message": message}})
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `<?xml version="1.0" encoding="utf-8"?><Error><Code>%s</Code><Message>%s</Message></Error>`, code, message)
}

func (s *Server) fault(r *http.Request) *Fault {
	q := r.URL.Query()
	for _, f := range s.faults {
		if f.Times < 0 {
			continue
		}
		if f.Method != "" && f.Method != r.Method {
			continue
		}
		match := true
		for k, v := range f.Query {
			if q.Get(k) != v {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		if f.Times > 0 {
			f.Times--
			if f.Times == 0 {
				f.Times = -1
			}
		}
		return f
	}
	return nil
}

func (s *Server) verify(r *http.Request) bool {
	if s.verifier == nil {
		return true
	}
	header := r.Header.Clone()
	if r.ContentLength > 0 {
		header.Set("Content-Length", strconv.FormatInt(r.ContentLength, 10))
	}
	u := *r.URL
	want := "SharedKey " + Account + ":" + s.verifier.Signature(&auth.Request{Method: r.Method, URL: &u, Header: header})
	return r.Header.Get("Authorization") == want
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		Size:   len(body),
	})

	if !s.verify(r) {
		writeError(w, r, http.StatusForbidden, "AuthenticationFailed", "signature mismatch")
		return
	}
	if f := s.fault(r); f != nil {
		writeError(w, r, f.Status, f.Code, "injected fault")
		return
	}

	rest, ok := strings.CutPrefix(r.URL.Path, "/"+Account+"/")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "InvalidUri", "unknown account")
		return
	}
	containerName, name, _ := strings.Cut(rest, "/")
	name = strings.Trim(name, "/")

	w.Header().Set("x-ms-request-id", "fake-"+strconv.Itoa(len(s.requests)))
	if containerName == "" {
		s.serveAccount(w, r)
		return
	}
	if name == "" {
		s.serveContainer(w, r, containerName)
		return
	}
	c, ok := s.containers[containerName]
	if !ok {
		code := "ContainerNotFound"
		if dfsRequest(r) {
			code = "FilesystemNotFound"
		}
		writeError(w, r, http.StatusNotFound, code, "The specified container does not exist.")
		return
	}
	s.serveObject(w, r, c, name, body)
}

func (s *Server) serveContainer(w http.ResponseWriter, r *http.Request, name string) {
	q := r.URL.Query()
	c, exists := s.containers[name]

	switch {
	case r.Method == http.MethodPut && q.Get("comp") == "metadata":
		if !exists {
			writeError(w, r, http.StatusNotFound, "ContainerNotFound", "The specified container does not exist.")
			return
		}
		c.meta = metaFromHeader(r.Header)
		s.seq++
		c.etag = fmt.Sprintf(`"0x%X"`, s.seq)
		c.modified = time.Now().UTC()
		w.Header().Set("ETag", c.etag)
		w.WriteHeader(http.StatusOK)
		return
	case r.Method == http.MethodPut:
		if exists {
			code := "ContainerAlreadyExists"
			if q.Get("resource") == "filesystem" {
				code = "FilesystemAlreadyExists"
			}
			writeError(w, r, http.StatusConflict, code, "The specified container already exists.")
			return
		}
		c = s.containerFor(name)
		c.props = r.Header.Get("x-ms-properties")
		c.meta = metaFromHeader(r.Header)
		w.Header().Set("ETag", c.etag)
		w.WriteHeader(http.StatusCreated)
		return
	case !exists:
		code := "ContainerNotFound"
		if q.Get("resource") == "filesystem" {
			code = "FilesystemNotFound"
		}
		writeError(w, r, http.StatusNotFound, code, "The specified container does not exist.")
		return
	case r.Method == http.MethodDelete:
		delete(s.containers, name)
		w.WriteHeader(http.StatusAccepted)
	case r.Method == http.MethodGet && q.Get("comp") == "list":
		s.listBlobs(w, r, name, c)
	case r.Method == http.MethodGet && q.Get("resource") == "filesystem":
		s.listPaths(w, r, c)
	case r.Method == http.MethodHead || r.Method == http.MethodGet:
		w.Header().Set("ETag", c.etag)
		w.Header().Set("Last-Modified", c.modified.Format(http.TimeFormat))
		if c.props != "" {
			w.Header().Set("x-ms-properties", c.props)
		}
		for k, v := range c.meta {
			w.Header().Set("x-ms-meta-"+k, v)
		}
		w.WriteHeader(http.StatusOK)
	default:
		writeError(w, r, http.StatusMethodNotAllowed, "UnsupportedHttpVerb", r.Method)
	}
}

func (s *Server) serveObject(w http.ResponseWriter, r *http.Request, c *container, name string, body []byte) {
	q := r.URL.Query()
	o, exists := c.objects[name]

	switch r.Method {
	case http.MethodPut:
		switch {
		case q.Get("comp") == "block":
			o = s.objectFor(c, name)
			if o.blocks == nil {
				o.blocks = map[string][]byte{}
			}
			o.blocks[q.Get("blockid")] = body
			w.WriteHeader(http.StatusCreated)
		case q.Get("comp") == "blocklist":
			s.commitBlocks(w, r, c, name, body)
		case q.Get("comp") == "page":
			s.putPage(w, r, o, body)
		case q.Get("comp") == "appendblock":
			s.appendBlock(w, r, o, body)
		case r.Header.Get("x-ms-copy-source") != "":
			s.copyBlob(w, r, c, name)
		case q.Get("comp") == "metadata":
			if !exists {
				writeError(w, r, http.StatusNotFound, "BlobNotFound", "The specified blob does not exist.")
				return
			}
			o.meta = metaFromHeader(r.Header)
			s.touch(o)
			w.WriteHeader(http.StatusOK)
		case r.Header.Get("x-ms-rename-source") != "":
			s.rename(w, r, c, name)
		case q.Get("resource") != "":
			o = &object{meta: map[string]string{}, dir: q.Get("resource") == "directory"}
			o.props = r.Header.Get("x-ms-properties")
			c.objects[name] = o
			s.touch(o)
			w.Header().Set("ETag", o.etag)
			w.WriteHeader(http.StatusCreated)
		default:
			o = s.objectFor(c, name)
			o.data = body
			o.blocks = nil
			o.committedBlocks = nil
			o.pages = nil
			o.blobType = r.Header.Get("x-ms-blob-type")
			if o.blobType == "PageBlob" {
				size, err := strconv.ParseInt(r.Header.Get("x-ms-blob-content-length"), 10, 64)
				if err != nil || size%512 != 0 {
					writeError(w, r, http.StatusBadRequest, "InvalidHeaderValue", "x-ms-blob-content-length")
					return
				}
				o.data = make([]byte, size)
				o.pages = map[int64]bool{}
			}
			o.contentType = r.Header.Get("x-ms-blob-content-type")
			o.meta = metaFromHeader(r.Header)
			s.touch(o)
			w.Header().Set("ETag", o.etag)
			w.WriteHeader(http.StatusCreated)
		}
	case http.MethodPatch:
		if !exists || o.dir {
			writeError(w, r, http.StatusNotFound, "PathNotFound", "The specified path does not exist.")
			return
		}
		position, err := strconv.ParseInt(q.Get("position"), 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "InvalidQueryParameterValue", "position")
			return
		}
		switch q.Get("action") {
		case "append":
			if o.appends == nil {
				o.appends = map[int64][]byte{}
			}
			o.appends[position] = body
			w.WriteHeader(http.StatusAccepted)
		case "flush":
			s.flush(w, r, o, position)
		default:
			writeError(w, r, http.StatusBadRequest, "InvalidQueryParameterValue", "action")
		}
	case http.MethodDelete:
		if !exists {
			writeError(w, r, http.StatusNotFound, notFoundCode(r), "The specified path does not exist.")
			return
		}
		prefix := name + "/"
		var children []string
		for other := range c.objects {
			if strings.HasPrefix(other, prefix) {
				children = append(children, other)
			}
		}
		if len(children) > 0 && q.Get("recursive") != "true" {
			writeError(w, r, http.StatusConflict, "DirectoryNotEmpty", "The recursive query parameter value must be true to delete a non-empty directory.")
			return
		}
		for _, child := range children {
			delete(c.objects, child)
		}
		delete(c.objects, name)
		w.WriteHeader(http.StatusAccepted)
	case http.MethodHead:
		if !exists || !o.committed() {
			writeError(w, r, http.StatusNotFound, notFoundCode(r), "The specified blob does not exist.")
			return
		}
		s.writeProperties(w, o)
		w.Header().Set("Content-Length", strconv.Itoa(len(o.data)))
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		if exists && !o.dir && q.Get("comp") == "blocklist" {
			s.blockList(w, o)
			return
		}
		if !exists || o.dir || !o.committed() {
			writeError(w, r, http.StatusNotFound, notFoundCode(r), "The specified blob does not exist.")
			return
		}
		if q.Get("comp") == "pagelist" {
			s.pageRanges(w, r, o)
			return
		}
		s.read(w, r, o)
	default:
		writeError(w, r, http.StatusMethodNotAllowed, "UnsupportedHttpVerb", r.Method)
	}
}

func notFoundCode(r *http.Request) string {
	if dfsRequest(r) {
		return "PathNotFound"
	}
	return "BlobNotFound"
}

func (s *Server) writeProperties(w http.ResponseWriter, o *object) {
	h := w.Header()
	h.Set("ETag", o.etag)
	h.Set("Last-Modified", o.modified.Format(http.TimeFormat))
	if o.dir {
		h.Set("x-ms-resource-type", "directory")
	} else {
		h.Set("x-ms-resource-type", "file")
		h.Set("x-ms-blob-type", o.kind())
	}
	if o.contentType != "" {
		h.Set("Content-Type", o.contentType)
	}
	if o.props != "" {
		h.Set("x-ms-properties", o.props)
	}
	for k, v := range o.meta {
		h.Set("x-ms-meta-"+k, v)
	}
}

type blockListBody struct {
	Latest      []string `xml:"Latest"`
	Committed   []string `xml:"Committed"`
	Uncommitted []string `xml:"Uncommitted"`
}

func (s *Server) commitBlocks(w http.ResponseWriter, r *http.Request, c *container, name string, body []byte) {
	var list blockListBody
	if err := xml.Unmarshal(body, &list); err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidXmlDocument", err.Error())
		return
	}
	o := s.objectFor(c, name)
	committed := make(map[string][]byte, len(o.committedBlocks))
	for _, b := range o.committedBlocks {
		committed[b.id] = b.data
	}
	var data []byte
	var blocks []stagedBlock
	for _, id := range append(append(list.Latest, list.Committed...), list.Uncommitted...) {
		block, ok := o.blocks[id]
		if !ok {
			block, ok = committed[id]
		}
		if !ok {
			writeError(w, r, http.StatusBadRequest, "InvalidBlockList", "The specified block list is invalid.")
			return
		}
		data = append(data, block...)
		blocks = append(blocks, stagedBlock{id: id, data: block})
	}
	o.committedBlocks = blocks
	o.blobType = ""
	if data == nil {
		data = []byte{}
	}
	o.data = data
	o.blocks = nil
	if ct := r.Header.Get("x-ms-blob-content-type"); ct != "" {
		o.contentType = ct
	}
	if meta := metaFromHeader(r.Header); len(meta) > 0 {
		o.meta = meta
	}
	s.touch(o)
	w.Header().Set("ETag", o.etag)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) flush(w http.ResponseWriter, r *http.Request, o *object, position int64) {
	data := append([]byte(nil), o.data...)
	for int64(len(data)) < position {
		next, ok := o.appends[int64(len(data))]
		if !ok || len(next) == 0 {
			writeError(w, r, http.StatusBadRequest, "InvalidFlushPosition",
				"The uploaded data is not contiguous or the position query parameter value is not equal to the length of the file after appending the uploaded data.")
			return
		}
		delete(o.appends, int64(len(data)))
		data = append(data, next...)
	}
	if int64(len(data)) != position {
		writeError(w, r, http.StatusBadRequest, "InvalidFlushPosition", "flush position does not match appended data")
		return
	}
	o.data = data
	s.touch(o)
	w.Header().Set("ETag", o.etag)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) rename(w http.ResponseWriter, r *http.Request, c *container, dest string) {
	src := strings.TrimPrefix(r.Header.Get("x-ms-rename-source"), "/")
	_, srcName, _ := strings.Cut(src, "/")
	o, ok := c.objects[srcName]
	if !ok {
		writeError(w, r, http.StatusNotFound, "SourcePathNotFound", "The source path for a rename operation does not exist.")
		return
	}
	prefix := srcName + "/"
	for other, child := range c.objects {
		if strings.HasPrefix(other, prefix) {
			delete(c.objects, other)
			c.objects[dest+"/"+strings.TrimPrefix(other, prefix)] = child
		}
	}
	delete(c.objects, srcName)
	c.objects[dest] = o
	s.touch(o)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) read(w http.ResponseWriter, r *http.Request, o *object) {
	s.writeProperties(w, o)
	w.Header().Del("x-ms-resource-type")

	total := int64(len(o.data))
	rangeHeader := r.Header.Get("x-ms-range")
	if rangeHeader == "" {
		rangeHeader = r.Header.Get("Range")
	}
	if rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(total, 10))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(o.data)
		return
	}

	start, end, ok := parseRange(rangeHeader)
	if !ok || start >= total {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", total))
		writeError(w, r, http.StatusRequestedRangeNotSatisfiable, "InvalidRange", "The range specified is invalid for the current size of the resource.")
		return
	}
	if end < 0 || end >= total {
		end = total - 1
	}
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, total))
	w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
	w.WriteHeader(http.StatusPartialContent)
	_, _ = w.Write(o.data[start : end+1])
}

func parseRange(rangeHeader string) (start, end int64, ok bool) {
	v, found := strings.CutPrefix(rangeHeader, "bytes=")
	if !found {
		return 0, 0, false
	}
	a, b, found := strings.Cut(v, "-")
	if !found {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(a, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	if b == "" {
		return start, -1, true
	}
	end, err = strconv.ParseInt(b, 10, 64)
	if err != nil || end < start {
		return 0, 0, false
	}
	return start, end, true
}

func metaFromHeader(h http.Header) map[string]string {
	meta := map[string]string{}
	for name, values := range h {
		lname := strings.ToLower(name)
		if strings.HasPrefix(lname, "x-ms-meta-") && len(values) > 0 {
			meta[strings.TrimPrefix(lname, "x-ms-meta-")] = values[0]
		}
	}
	return meta
}

type xmlListBlob struct {
	Name       string `xml:"Name"`
	Properties struct {
		LastModified  string `xml:"Last-Modified"`
		Etag          string `xml:"Etag"`
		ContentLength int    `xml:"Content-Length"`
		ContentType   string `xml:"Content-Type,omitempty"`
		BlobType      string `xml:"BlobType"`
	} `xml:"Properties"`
	Metadata *xmlMetadata `xml:"Metadata,omitempty"`
}

type xmlMetadata struct {
	Items []xmlMetaItem
}

type xmlMetaItem struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type xmlPrefix struct {
	Name string
}

type xmlListResult struct {
	XMLName       xml.Name      `xml:"EnumerationResults"`
	ContainerName string        `xml:"ContainerName,attr"`
	Prefix        string        `xml:"Prefix,omitempty"`
	Marker        string        `xml:"Marker,omitempty"`
	MaxResults    int           `xml:"MaxResults,omitempty"`
	Delimiter     string        `xml:"Delimiter,omitempty"`
	Blobs         []xmlListBlob `xml:"Blobs>Blob"`
	Prefixes      []xmlPrefix   `xml:"Blobs>BlobPrefix"`
	NextMarker    string        `xml:"NextMarker"`
}

func (s *Server) listBlobs(w http.ResponseWriter, r *http.Request, name string, c *container) {
	q := r.URL.Query()
	prefix, delimiter, marker := q.Get("prefix"), q.Get("delimiter"), q.Get("marker")
	max, _ := strconv.Atoi(q.Get("maxresults"))

	names := make([]string, 0, len(c.objects))
	for n, o := range c.objects {
		if !o.dir && o.committed() && strings.HasPrefix(n, prefix) && n > marker {
			names = append(names, n)
		}
	}
	sort.Strings(names)

	result := xmlListResult{ContainerName: name, Prefix: prefix, Marker: marker, MaxResults: max, Delimiter: delimiter}
	seen := map[string]bool{}
	count := 0
	last := ""
	for _, n := range names {
		if max > 0 && count == max {
			result.NextMarker = last
			break
		}
		last = n
		if delimiter != "" {
			if i := strings.Index(n[len(prefix):], delimiter); i >= 0 {
				p := n[:len(prefix)+i+len(delimiter)]
				if !seen[p] {
					seen[p] = true
					result.Prefixes = append(result.Prefixes, xmlPrefix{Name: p})
				}
				continue
			}
		}
		o := c.objects[n]
		b := xmlListBlob{Name: n}
		b.Properties.LastModified = o.modified.Format(http.TimeFormat)
		b.Properties.Etag = o.etag
		b.Properties.ContentLength = len(o.data)
		b.Properties.ContentType = o.contentType
		b.Properties.BlobType = o.kind()
		if q.Get("include") == "metadata" && len(o.meta) > 0 {
			b.Metadata = &xmlMetadata{}
			for _, k := range sortedKeys(o.meta) {
				b.Metadata.Items = append(b.Metadata.Items, xmlMetaItem{XMLName: xml.Name{Local: k}, Value: o.meta[k]})
			}
		}
		result.Blobs = append(result.Blobs, b)
		count++
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, xml.Header)
	_ = xml.NewEncoder(w).Encode(result)
}

func (s *Server) listPaths(w http.ResponseWriter, r *http.Request, c *container) {
	q := r.URL.Query()
	dir := strings.Trim(q.Get("directory"), "/")
	recursive := q.Get("recursive") == "true"

	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}
	type entry struct {
		Name          string `json:"name"`
		IsDirectory   string `json:"isDirectory,omitempty"`
		ContentLength string `json:"contentLength"`
		ETag          string `json:"etag"`
		LastModified  string `json:"lastModified"`
	}
	var paths []entry
	names := make([]string, 0, len(c.objects))
	for n := range c.objects {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if !strings.HasPrefix(n, prefix) {
			continue
		}
		if !recursive && strings.Contains(n[len(prefix):], "/") {
			continue
		}
		o := c.objects[n]
		e := entry{
			Name:          n,
			ContentLength: strconv.Itoa(len(o.data)),
			ETag:          o.etag,
			LastModified:  o.modified.Format(http.TimeFormat),
		}
		if o.dir {
			e.IsDirectory = "true"
		}
		paths = append(paths, e)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{"paths": paths})
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
